package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/db"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/embed"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getEntity(ctx context.Context, q queryRower, kind model.EntityKind, whereCol, value string) (model.Row, error) {
	cols, err := selectColumns(kind)
	if err != nil {
		return nil, err
	}
	return scanEntityRow(q.QueryRowContext(ctx, s.dialect.SelectSQL(kind.TableName(), cols, whereCol), value), cols)
}

func (s *SQLiteStore) GetEntity(ctx context.Context, kind model.EntityKind, id string) (model.Row, error) {
	row, err := s.getEntity(ctx, s.db, kind, "id", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError(string(kind.Type()), id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s %s", kind.Type(), id)
	}
	return row, nil
}

func (s *SQLiteStore) FindEntityByKey(ctx context.Context, kind model.CoreKind, key string) (model.Row, error) {
	row, err := s.getEntity(ctx, s.db, kind, kind.NaturalKey, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError(string(kind.Entity), key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find %s by %s", kind.Entity, kind.NaturalKey)
	}
	return row, nil
}

// FindEntityIDByName uses LIKE, which SQLite compares case-insensitively for
// ASCII text.
func (s *SQLiteStore) FindEntityIDByName(ctx context.Context, table, nameColumn, name string) (string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE %s LIKE ? ESCAPE '\' ORDER BY created_at LIMIT 1`,
		db.Ident(table), db.Ident(nameColumn))

	var id string
	err := s.db.QueryRowContext(ctx, query, escapeLike(name)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.NewNotFoundError(table, name)
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: find %s by name", table)
	}
	return id, nil
}

// UpsertEntity runs the same ON CONFLICT upsert as Postgres inside a
// transaction; the pre-read only decides whether the row was created.
func (s *SQLiteStore) UpsertEntity(ctx context.Context, kind model.CoreKind, values map[string]string) (model.Row, bool, error) {
	key := values[kind.NaturalKey]
	if key == "" {
		return nil, false, model.Validationf("%s requires %s", kind.Entity, kind.NaturalKey)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	var existing string
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE %s = ?`, db.Ident(kind.Table), db.Ident(kind.NaturalKey)), key,
	).Scan(&existing)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return nil, false, eris.Wrapf(err, "sqlite: lookup %s", kind.Entity)
	}

	cols, args := sortedColumns(values)
	cols = append([]string{"id"}, cols...)
	args = append([]any{uuid.New().String()}, args...)
	if _, err := tx.ExecContext(ctx, s.dialect.UpsertSQL(kind.Table, cols, kind.NaturalKey, ""), args...); err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: upsert %s", kind.Entity)
	}

	row, err := s.getEntity(ctx, tx, kind, kind.NaturalKey, key)
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: read back %s", kind.Entity)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: commit upsert")
	}
	return row, created, nil
}

func (s *SQLiteStore) UpdateEntity(ctx context.Context, kind model.CoreKind, id string, values map[string]string) (model.Row, error) {
	if len(values) == 0 {
		return nil, model.Validationf("no fields to update on %s %s", kind.Entity, id)
	}

	cols, args := sortedColumns(values)
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, s.dialect.UpdateSQL(kind.Table, cols, "id", ""), args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update %s %s", kind.Entity, id)
	}
	if err := checkRowsAffected(res, string(kind.Entity), id); err != nil {
		return nil, err
	}
	return s.GetEntity(ctx, kind, id)
}

func (s *SQLiteStore) InsertEnrichment(ctx context.Context, kind model.EnrichmentKind, parentID string, values map[string]string) (model.Row, error) {
	id := uuid.New().String()
	cols, args := sortedColumns(values)
	cols = append([]string{"id", kind.ParentColumn}, cols...)
	args = append([]any{id, parentID}, args...)

	if _, err := s.db.ExecContext(ctx, s.dialect.InsertSQL(kind.Table, cols, ""), args...); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert %s", kind.Entity)
	}
	return s.GetEntity(ctx, kind, id)
}

// MatchEntities scores every embedded row of the type by cosine similarity.
func (s *SQLiteStore) MatchEntities(ctx context.Context, t model.EntityType, embedding []float32, minSimilarity float64, count int) ([]model.SemanticMatch, error) {
	kind, err := indexedKind(t)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, %s, embedding FROM %s WHERE embedding IS NOT NULL`,
			db.Ident(kind.NameColumn), db.Ident(kind.Table)))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: match %s", t)
	}
	defer rows.Close()

	var matches []model.SemanticMatch
	for rows.Next() {
		var m model.SemanticMatch
		var blob []byte
		if err := rows.Scan(&m.EntityID, &m.EntityName, &blob); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s embedding", t)
		}
		m.EntityType = t
		m.Similarity = embed.Cosine(embedding, decodeVector(blob))
		if m.Similarity >= minSimilarity {
			matches = append(matches, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: match %s iterate", t)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].EntityID < matches[j].EntityID
	})
	if count > 0 && len(matches) > count {
		matches = matches[:count]
	}
	return matches, nil
}

func (s *SQLiteStore) SetEmbedding(ctx context.Context, t model.EntityType, id string, embedding []float32) error {
	kind, err := indexedKind(t)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET embedding = ? WHERE id = ?`, db.Ident(kind.Table)),
		encodeVector(embedding), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set embedding %s %s", t, id)
	}
	return checkRowsAffected(res, string(t), id)
}
