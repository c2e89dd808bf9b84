package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/db"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

func (s *PostgresStore) GetEntity(ctx context.Context, kind model.EntityKind, id string) (model.Row, error) {
	cols, err := selectColumns(kind)
	if err != nil {
		return nil, err
	}

	row, err := scanEntityRow(s.pool.QueryRow(ctx, s.dialect.SelectSQL(kind.TableName(), cols, "id"), id), cols)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError(string(kind.Type()), id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s %s", kind.Type(), id)
	}
	return row, nil
}

func (s *PostgresStore) FindEntityByKey(ctx context.Context, kind model.CoreKind, key string) (model.Row, error) {
	cols := kind.SelectColumns()

	row, err := scanEntityRow(s.pool.QueryRow(ctx, s.dialect.SelectSQL(kind.Table, cols, kind.NaturalKey), key), cols)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError(string(kind.Entity), key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find %s by %s", kind.Entity, kind.NaturalKey)
	}
	return row, nil
}

func (s *PostgresStore) FindEntityIDByName(ctx context.Context, table, nameColumn, name string) (string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE %s ILIKE $1 ORDER BY created_at LIMIT 1`,
		db.Ident(table), db.Ident(nameColumn))

	var id string
	err := s.pool.QueryRow(ctx, query, escapeLike(name)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.NewNotFoundError(table, name)
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: find %s by name", table)
	}
	return id, nil
}

func (s *PostgresStore) UpsertEntity(ctx context.Context, kind model.CoreKind, values map[string]string) (model.Row, bool, error) {
	if values[kind.NaturalKey] == "" {
		return nil, false, model.Validationf("%s requires %s", kind.Entity, kind.NaturalKey)
	}

	cols, args := sortedColumns(values)
	cols = append([]string{"id"}, cols...)
	args = append([]any{uuid.New().String()}, args...)

	selectCols := kind.SelectColumns()
	query := s.dialect.UpsertSQL(kind.Table, cols, kind.NaturalKey, db.IdentList(selectCols)+", (xmax = 0)")

	var inserted bool
	row, err := scanEntityRow(s.pool.QueryRow(ctx, query, args...), selectCols, &inserted)
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: upsert %s", kind.Entity)
	}
	return row, inserted, nil
}

func (s *PostgresStore) UpdateEntity(ctx context.Context, kind model.CoreKind, id string, values map[string]string) (model.Row, error) {
	if len(values) == 0 {
		return nil, model.Validationf("no fields to update on %s %s", kind.Entity, id)
	}

	cols, args := sortedColumns(values)
	args = append(args, id)
	selectCols := kind.SelectColumns()

	row, err := scanEntityRow(s.pool.QueryRow(ctx,
		s.dialect.UpdateSQL(kind.Table, cols, "id", db.IdentList(selectCols)), args...), selectCols)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError(string(kind.Entity), id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update %s %s", kind.Entity, id)
	}
	return row, nil
}

func (s *PostgresStore) InsertEnrichment(ctx context.Context, kind model.EnrichmentKind, parentID string, values map[string]string) (model.Row, error) {
	cols, args := sortedColumns(values)
	cols = append([]string{"id", kind.ParentColumn}, cols...)
	args = append([]any{uuid.New().String(), parentID}, args...)
	selectCols := kind.SelectColumns()

	row, err := scanEntityRow(s.pool.QueryRow(ctx,
		s.dialect.InsertSQL(kind.Table, cols, db.IdentList(selectCols)), args...), selectCols)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert %s", kind.Entity)
	}
	return row, nil
}

func (s *PostgresStore) MatchEntities(ctx context.Context, t model.EntityType, embedding []float32, minSimilarity float64, count int) ([]model.SemanticMatch, error) {
	fn, ok := matchFunctions[t]
	if !ok {
		return nil, model.Validationf("entity_type %q is not semantically indexed", t)
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, name, similarity FROM %s($1::vector, $2, $3)`, fn),
		vectorLiteral(embedding), minSimilarity, count,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", fn)
	}
	defer rows.Close()

	var matches []model.SemanticMatch
	for rows.Next() {
		m := model.SemanticMatch{EntityType: t}
		if err := rows.Scan(&m.EntityID, &m.EntityName, &m.Similarity); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", fn)
		}
		matches = append(matches, m)
	}
	return matches, eris.Wrapf(rows.Err(), "postgres: %s iterate", fn)
}

func (s *PostgresStore) SetEmbedding(ctx context.Context, t model.EntityType, id string, embedding []float32) error {
	kind, err := indexedKind(t)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET embedding = $1::vector WHERE id = $2`, db.Ident(kind.Table)),
		vectorLiteral(embedding), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set embedding %s %s", t, id)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(string(t), id)
	}
	return nil
}
