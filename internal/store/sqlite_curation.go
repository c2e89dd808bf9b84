package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/db"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/policy"
)

func (s *SQLiteStore) AppendAudit(ctx context.Context, e *model.AuditLogEntry) error {
	changes, err := marshalJSON(e.FieldChanges, "field changes")
	if err != nil {
		return err
	}
	snapshot, err := marshalJSON(e.FullSnapshot, "full snapshot")
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO curator_audit_log (`+auditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BatchID, string(e.Operation), string(e.EntityType), e.EntityID,
		string(changes), string(snapshot), e.ChangedBy, nullable(e.SessionID), nullable(e.ActionID), e.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: append audit %s %s", e.EntityType, e.EntityID)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, batchID string) ([]model.AuditLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM curator_audit_log WHERE batch_id = ? ORDER BY created_at, rowid`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close()

	var entries []model.AuditLogEntry
	for rows.Next() {
		e, err := scanSQLiteAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list audit iterate")
}

func (s *SQLiteStore) FindAuditByAction(ctx context.Context, actionID string) (*model.AuditLogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM curator_audit_log WHERE action_id = ? ORDER BY created_at, rowid LIMIT 1`, actionID)
	e, err := scanSQLiteAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("audit entry for action", actionID)
	}
	return e, err
}

func scanSQLiteAudit(sc scannable) (*model.AuditLogEntry, error) {
	var e model.AuditLogEntry
	var changes, snapshot []byte
	var sessionID, actionID sql.NullString
	if err := sc.Scan(&e.ID, &e.BatchID, &e.Operation, &e.EntityType, &e.EntityID,
		&changes, &snapshot, &e.ChangedBy, &sessionID, &actionID, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan audit")
	}
	if err := unmarshalJSON(changes, &e.FieldChanges, "field changes"); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(snapshot, &e.FullSnapshot, "full snapshot"); err != nil {
		return nil, err
	}
	e.SessionID = sessionID.String
	e.ActionID = actionID.String
	return &e, nil
}

// RecordProvenance inserts all rows in one transaction.
func (s *SQLiteStore) RecordProvenance(ctx context.Context, rows []model.Provenance) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin provenance")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.dialect.InsertSQL("field_provenance", provenanceColumns, ""))
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare provenance")
	}
	defer stmt.Close()

	for _, p := range rows {
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.BatchID, string(p.EntityType), p.EntityID, p.FieldName, p.Value,
			p.Confidence, string(p.Source), nullable(p.SourceSnippet), p.Model,
			nullable(p.SessionID), p.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert provenance %s.%s", p.EntityID, p.FieldName)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit provenance")
}

func (s *SQLiteStore) ListProvenance(ctx context.Context, entityID string) ([]model.Provenance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+db.IdentList(provenanceColumns)+` FROM field_provenance WHERE entity_id = ? ORDER BY created_at, field_name`,
		entityID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list provenance")
	}
	defer rows.Close()

	var out []model.Provenance
	for rows.Next() {
		var p model.Provenance
		var value, snippet, sessionID sql.NullString
		if err := rows.Scan(&p.ID, &p.BatchID, &p.EntityType, &p.EntityID, &p.FieldName, &value,
			&p.Confidence, &p.Source, &snippet, &p.Model, &sessionID, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provenance")
		}
		p.Value = value.String
		p.SourceSnippet = snippet.String
		p.SessionID = sessionID.String
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list provenance iterate")
}

func (s *SQLiteStore) UpsertSource(ctx context.Context, src *model.CuratorSource) (*model.CuratorSource, error) {
	categories, err := marshalJSON(nonNil(src.Categories), "categories")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	out, err := scanSource(s.db.QueryRowContext(ctx,
		`INSERT INTO curator_sources (`+sourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT (url) DO UPDATE SET
			fetch_count = curator_sources.fetch_count + 1,
			title = COALESCE(excluded.title, curator_sources.title),
			updated_at = excluded.updated_at
		 RETURNING `+sourceColumns,
		uuid.New().String(), src.URL, src.Domain, nullable(src.Title), string(src.AuthorityTier),
		src.AuthorityScore, string(categories), now, now,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert source %s", src.URL)
	}
	return out, nil
}

func (s *SQLiteStore) GetSource(ctx context.Context, id string) (*model.CuratorSource, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM curator_sources WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("source", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source %s", id)
	}
	return src, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context, filter model.SourceFilter) ([]model.CuratorSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM curator_sources WHERE 1=1`
	var args []any

	if filter.Tier != "" {
		query += ` AND authority_tier = ?`
		args = append(args, string(filter.Tier))
	}
	query += ` ORDER BY authority_score DESC, url LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	out := []model.CuratorSource{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		out = append(out, *src)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (s *SQLiteStore) UpdateSource(ctx context.Context, id string, u model.SourceUpdate) (*model.CuratorSource, error) {
	values, err := sourceUpdateValues(u)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return s.GetSource(ctx, id)
	}

	cols, args := sortedAnyColumns(values)
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, s.dialect.UpdateSQL("curator_sources", cols, "id", ""), args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update source %s", id)
	}
	if err := checkRowsAffected(res, "source", id); err != nil {
		return nil, err
	}
	return s.GetSource(ctx, id)
}

// DeleteSource removes the source and its entity links.
func (s *SQLiteStore) DeleteSource(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete source")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_sources WHERE source_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete links for source %s", id)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM curator_sources WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete source %s", id)
	}
	if err := checkRowsAffected(res, "source", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete source")
}

func (s *SQLiteStore) LinkSource(ctx context.Context, link *model.EntitySource) (*model.EntitySource, error) {
	fields, err := marshalJSON(nonNil(link.FieldsSourced), "fields sourced")
	if err != nil {
		return nil, err
	}

	out := *link
	out.FieldsSourced = nonNil(link.FieldsSourced)
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO entity_sources (id, source_id, entity_type, entity_id, fields_sourced, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_id, entity_type, entity_id) DO UPDATE SET fields_sourced = excluded.fields_sourced
		 RETURNING id, created_at`,
		uuid.New().String(), link.SourceID, string(link.EntityType), link.EntityID, string(fields), time.Now().UTC(),
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: link source %s", link.SourceID)
	}
	return &out, nil
}

func (s *SQLiteStore) CreateFeedback(ctx context.Context, f *model.FeedbackRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO research_feedback (`+feedbackColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ResearchSessionID, string(f.FeedbackType), nullable(f.FieldName),
		nullable(f.Notes), nullable(f.MarkedBy), f.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert feedback")
}

func (s *SQLiteStore) ListFeedback(ctx context.Context, filter model.FeedbackFilter) ([]model.FeedbackRecord, error) {
	query := `SELECT ` + feedbackColumns + ` FROM research_feedback WHERE 1=1`
	var args []any

	if filter.Type != "" {
		query += ` AND feedback_type = ?`
		args = append(args, string(filter.Type))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	return s.queryFeedback(ctx, query, args...)
}

func (s *SQLiteStore) ListFeedbackBySession(ctx context.Context, researchSessionID string) ([]model.FeedbackRecord, error) {
	return s.queryFeedback(ctx,
		`SELECT `+feedbackColumns+` FROM research_feedback WHERE research_session_id = ? ORDER BY created_at DESC, rowid DESC`,
		researchSessionID)
}

func (s *SQLiteStore) queryFeedback(ctx context.Context, query string, args ...any) ([]model.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close()

	out := []model.FeedbackRecord{}
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback")
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list feedback iterate")
}

func (s *SQLiteStore) DeleteFeedback(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM research_feedback WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete feedback %s", id)
	}
	return checkRowsAffected(res, "feedback", id)
}

func (s *SQLiteStore) FeedbackCounts(ctx context.Context) ([]model.FeedbackCounts, error) {
	rows, err := s.db.QueryContext(ctx, feedbackCountsSQL(s.dialect), policy.OverallFieldName)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: feedback counts")
	}
	defer rows.Close()

	var out []model.FeedbackCounts
	for rows.Next() {
		var c model.FeedbackCounts
		if err := rows.Scan(&c.FieldName, &c.Good, &c.Bad, &c.Partial); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback counts")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: feedback counts iterate")
}
