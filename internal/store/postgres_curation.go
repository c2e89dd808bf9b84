package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/db"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/policy"
)

const auditColumns = `id, batch_id, operation, entity_type, entity_id, field_changes, full_snapshot, changed_by, session_id, action_id, created_at`

func (s *PostgresStore) AppendAudit(ctx context.Context, e *model.AuditLogEntry) error {
	changes, err := marshalJSON(e.FieldChanges, "field changes")
	if err != nil {
		return err
	}
	snapshot, err := marshalJSON(e.FullSnapshot, "full snapshot")
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO curator_audit_log (`+auditColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.BatchID, string(e.Operation), string(e.EntityType), e.EntityID,
		changes, snapshot, e.ChangedBy, nullable(e.SessionID), nullable(e.ActionID), e.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: append audit %s %s", e.EntityType, e.EntityID)
}

func (s *PostgresStore) ListAudit(ctx context.Context, batchID string) ([]model.AuditLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auditColumns+` FROM curator_audit_log WHERE batch_id = $1 ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	var entries []model.AuditLogEntry
	for rows.Next() {
		e, err := scanPostgresAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list audit iterate")
}

func (s *PostgresStore) FindAuditByAction(ctx context.Context, actionID string) (*model.AuditLogEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auditColumns+` FROM curator_audit_log WHERE action_id = $1 ORDER BY created_at, id LIMIT 1`, actionID)
	e, err := scanPostgresAudit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError("audit entry for action", actionID)
	}
	return e, err
}

func scanPostgresAudit(sc scannable) (*model.AuditLogEntry, error) {
	var e model.AuditLogEntry
	var changes, snapshot []byte
	var sessionID, actionID *string
	if err := sc.Scan(&e.ID, &e.BatchID, &e.Operation, &e.EntityType, &e.EntityID,
		&changes, &snapshot, &e.ChangedBy, &sessionID, &actionID, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan audit")
	}
	if err := unmarshalJSON(changes, &e.FieldChanges, "field changes"); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(snapshot, &e.FullSnapshot, "full snapshot"); err != nil {
		return nil, err
	}
	e.SessionID = deref(sessionID)
	e.ActionID = deref(actionID)
	return &e, nil
}

var provenanceColumns = []string{
	"id", "batch_id", "entity_type", "entity_id", "field_name", "value",
	"confidence", "source", "source_snippet", "model", "session_id", "created_at",
}

// RecordProvenance bulk-loads provenance rows with COPY.
func (s *PostgresStore) RecordProvenance(ctx context.Context, rows []model.Provenance) error {
	data := make([][]any, len(rows))
	for i, p := range rows {
		data[i] = []any{
			p.ID, p.BatchID, string(p.EntityType), p.EntityID, p.FieldName, p.Value,
			p.Confidence, string(p.Source), nullable(p.SourceSnippet), p.Model,
			nullable(p.SessionID), p.CreatedAt,
		}
	}
	_, err := db.CopyFrom(ctx, s.pool, "field_provenance", provenanceColumns, data)
	return eris.Wrap(err, "postgres: record provenance")
}

func (s *PostgresStore) ListProvenance(ctx context.Context, entityID string) ([]model.Provenance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+db.IdentList(provenanceColumns)+` FROM field_provenance WHERE entity_id = $1 ORDER BY created_at, field_name`,
		entityID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list provenance")
	}
	defer rows.Close()

	var out []model.Provenance
	for rows.Next() {
		var p model.Provenance
		var value, snippet, sessionID *string
		if err := rows.Scan(&p.ID, &p.BatchID, &p.EntityType, &p.EntityID, &p.FieldName, &value,
			&p.Confidence, &p.Source, &snippet, &p.Model, &sessionID, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provenance")
		}
		p.Value = deref(value)
		p.SourceSnippet = deref(snippet)
		p.SessionID = deref(sessionID)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list provenance iterate")
}

const sourceColumns = `id, url, domain, title, authority_tier, authority_score, fetch_count, categories, created_at, updated_at`

func scanSource(sc scannable) (*model.CuratorSource, error) {
	var src model.CuratorSource
	var title *string
	var categories []byte
	if err := sc.Scan(&src.ID, &src.URL, &src.Domain, &title, &src.AuthorityTier, &src.AuthorityScore,
		&src.FetchCount, &categories, &src.CreatedAt, &src.UpdatedAt); err != nil {
		return nil, err
	}
	src.Title = deref(title)
	if err := unmarshalJSON(categories, &src.Categories, "categories"); err != nil {
		return nil, err
	}
	if src.Categories == nil {
		src.Categories = []string{}
	}
	return &src, nil
}

func (s *PostgresStore) UpsertSource(ctx context.Context, src *model.CuratorSource) (*model.CuratorSource, error) {
	categories, err := marshalJSON(nonNil(src.Categories), "categories")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	out, err := scanSource(s.pool.QueryRow(ctx,
		`INSERT INTO curator_sources (`+sourceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8, $8)
		 ON CONFLICT (url) DO UPDATE SET
			fetch_count = curator_sources.fetch_count + 1,
			title = COALESCE(excluded.title, curator_sources.title),
			updated_at = excluded.updated_at
		 RETURNING `+sourceColumns,
		uuid.New().String(), src.URL, src.Domain, nullable(src.Title), string(src.AuthorityTier),
		src.AuthorityScore, categories, now,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert source %s", src.URL)
	}
	return out, nil
}

func (s *PostgresStore) GetSource(ctx context.Context, id string) (*model.CuratorSource, error) {
	src, err := scanSource(s.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM curator_sources WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError("source", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source %s", id)
	}
	return src, nil
}

func (s *PostgresStore) ListSources(ctx context.Context, filter model.SourceFilter) ([]model.CuratorSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM curator_sources WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Tier != "" {
		query += fmt.Sprintf(` AND authority_tier = $%d`, argIdx)
		args = append(args, string(filter.Tier))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY authority_score DESC, url LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	out := []model.CuratorSource{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		out = append(out, *src)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (s *PostgresStore) UpdateSource(ctx context.Context, id string, u model.SourceUpdate) (*model.CuratorSource, error) {
	values, err := sourceUpdateValues(u)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return s.GetSource(ctx, id)
	}

	cols, args := sortedAnyColumns(values)
	args = append(args, id)

	src, err := scanSource(s.pool.QueryRow(ctx,
		s.dialect.UpdateSQL("curator_sources", cols, "id", sourceColumns), args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError("source", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update source %s", id)
	}
	return src, nil
}

func (s *PostgresStore) DeleteSource(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM curator_sources WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete source %s", id)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError("source", id)
	}
	return nil
}

func (s *PostgresStore) LinkSource(ctx context.Context, link *model.EntitySource) (*model.EntitySource, error) {
	fields, err := marshalJSON(nonNil(link.FieldsSourced), "fields sourced")
	if err != nil {
		return nil, err
	}

	out := *link
	out.FieldsSourced = nonNil(link.FieldsSourced)
	err = s.pool.QueryRow(ctx,
		`INSERT INTO entity_sources (id, source_id, entity_type, entity_id, fields_sourced, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (source_id, entity_type, entity_id) DO UPDATE SET fields_sourced = excluded.fields_sourced
		 RETURNING id, created_at`,
		uuid.New().String(), link.SourceID, string(link.EntityType), link.EntityID, fields, time.Now().UTC(),
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: link source %s", link.SourceID)
	}
	return &out, nil
}

const feedbackColumns = `id, research_session_id, feedback_type, field_name, notes, marked_by, created_at`

func scanFeedback(sc scannable) (*model.FeedbackRecord, error) {
	var f model.FeedbackRecord
	var field, notes, markedBy *string
	if err := sc.Scan(&f.ID, &f.ResearchSessionID, &f.FeedbackType, &field, &notes, &markedBy, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.FieldName = deref(field)
	f.Notes = deref(notes)
	f.MarkedBy = deref(markedBy)
	return &f, nil
}

func (s *PostgresStore) CreateFeedback(ctx context.Context, f *model.FeedbackRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO research_feedback (`+feedbackColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.ResearchSessionID, string(f.FeedbackType), nullable(f.FieldName),
		nullable(f.Notes), nullable(f.MarkedBy), f.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert feedback")
}

func (s *PostgresStore) ListFeedback(ctx context.Context, filter model.FeedbackFilter) ([]model.FeedbackRecord, error) {
	query := `SELECT ` + feedbackColumns + ` FROM research_feedback WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Type != "" {
		query += fmt.Sprintf(` AND feedback_type = $%d`, argIdx)
		args = append(args, string(filter.Type))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))

	return s.queryFeedback(ctx, query, args...)
}

func (s *PostgresStore) ListFeedbackBySession(ctx context.Context, researchSessionID string) ([]model.FeedbackRecord, error) {
	return s.queryFeedback(ctx,
		`SELECT `+feedbackColumns+` FROM research_feedback WHERE research_session_id = $1 ORDER BY created_at DESC`,
		researchSessionID)
}

func (s *PostgresStore) queryFeedback(ctx context.Context, query string, args ...any) ([]model.FeedbackRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	out := []model.FeedbackRecord{}
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list feedback iterate")
}

func (s *PostgresStore) DeleteFeedback(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM research_feedback WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete feedback %s", id)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError("feedback", id)
	}
	return nil
}

func (s *PostgresStore) FeedbackCounts(ctx context.Context) ([]model.FeedbackCounts, error) {
	rows, err := s.pool.Query(ctx, feedbackCountsSQL(s.dialect), policy.OverallFieldName)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: feedback counts")
	}
	defer rows.Close()

	var out []model.FeedbackCounts
	for rows.Next() {
		var c model.FeedbackCounts
		if err := rows.Scan(&c.FieldName, &c.Good, &c.Bad, &c.Partial); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback counts")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: feedback counts iterate")
}
