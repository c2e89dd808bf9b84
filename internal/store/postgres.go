package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/db"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

// PostgresStore implements Store using pgxpool and pgvector.
type PostgresStore struct {
	pool    db.Pool
	dialect db.Dialect
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pool: pool, dialect: db.Postgres, closeFn: closeFn}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS platforms (
	id           TEXT PRIMARY KEY,
	name         TEXT,
	code         TEXT NOT NULL UNIQUE,
	category     TEXT,
	description  TEXT,
	buying_model TEXT,
	notes        TEXT,
	embedding    vector,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS industries (
	id            TEXT PRIMARY KEY,
	name          TEXT,
	code          TEXT NOT NULL UNIQUE,
	description   TEXT,
	seasonality   TEXT,
	buyer_persona TEXT,
	notes         TEXT,
	embedding     vector,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT,
	data_value  TEXT NOT NULL UNIQUE,
	description TEXT,
	platform    TEXT,
	notes       TEXT,
	embedding   vector,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subproducts (
	id          TEXT PRIMARY KEY,
	product_id  TEXT REFERENCES products(id),
	name        TEXT,
	data_value  TEXT NOT NULL UNIQUE,
	description TEXT,
	notes       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tactic_types (
	id            TEXT PRIMARY KEY,
	subproduct_id TEXT REFERENCES subproducts(id),
	name          TEXT,
	data_value    TEXT NOT NULL UNIQUE,
	description   TEXT,
	kpis          TEXT,
	notes         TEXT,
	embedding     vector,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS soul_docs (
	id         TEXT PRIMARY KEY,
	title      TEXT,
	slug       TEXT NOT NULL UNIQUE,
	doc_type   TEXT,
	content    TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS platform_quirks (
	id          TEXT PRIMARY KEY,
	platform_id TEXT NOT NULL REFERENCES platforms(id) ON DELETE CASCADE,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	quirk_type  TEXT,
	impact      TEXT,
	workaround  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS industry_insights (
	id           TEXT PRIMARY KEY,
	industry_id  TEXT NOT NULL REFERENCES industries(id) ON DELETE CASCADE,
	title        TEXT NOT NULL,
	content      TEXT NOT NULL,
	insight_type TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS platform_buyer_notes (
	id          TEXT PRIMARY KEY,
	platform_id TEXT NOT NULL REFERENCES platforms(id) ON DELETE CASCADE,
	note        TEXT NOT NULL,
	note_type   TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS platform_kpis (
	id          TEXT PRIMARY KEY,
	platform_id TEXT NOT NULL REFERENCES platforms(id) ON DELETE CASCADE,
	metric      TEXT NOT NULL,
	description TEXT,
	benchmark   TEXT,
	objective   TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_subproducts_product_id ON subproducts(product_id);
CREATE INDEX IF NOT EXISTS idx_tactic_types_subproduct_id ON tactic_types(subproduct_id);
CREATE INDEX IF NOT EXISTS idx_platform_quirks_platform_id ON platform_quirks(platform_id);
CREATE INDEX IF NOT EXISTS idx_industry_insights_industry_id ON industry_insights(industry_id);
CREATE INDEX IF NOT EXISTS idx_platform_buyer_notes_platform_id ON platform_buyer_notes(platform_id);
CREATE INDEX IF NOT EXISTS idx_platform_kpis_platform_id ON platform_kpis(platform_id);

CREATE TABLE IF NOT EXISTS curator_sessions (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'active',
	messages        JSONB NOT NULL DEFAULT '[]',
	pending_items   JSONB NOT NULL DEFAULT '[]',
	committed_items JSONB NOT NULL DEFAULT '[]',
	tokens_used     INTEGER NOT NULL DEFAULT 0,
	tokens_limit    INTEGER NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS research_sessions (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_name TEXT,
	answer      TEXT,
	status      TEXT NOT NULL,
	error       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS curator_audit_log (
	id            TEXT PRIMARY KEY,
	batch_id      TEXT NOT NULL,
	operation     TEXT NOT NULL,
	entity_type   TEXT NOT NULL,
	entity_id     TEXT NOT NULL,
	field_changes JSONB NOT NULL,
	full_snapshot JSONB NOT NULL,
	changed_by    TEXT NOT NULL,
	session_id    TEXT,
	action_id     TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_curator_audit_log_batch_id ON curator_audit_log(batch_id);
ALTER TABLE curator_audit_log ADD COLUMN IF NOT EXISTS action_id TEXT;
CREATE INDEX IF NOT EXISTS idx_curator_audit_log_action_id ON curator_audit_log(action_id);
CREATE INDEX IF NOT EXISTS idx_curator_audit_log_entity ON curator_audit_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS field_provenance (
	id             TEXT PRIMARY KEY,
	batch_id       TEXT NOT NULL,
	entity_type    TEXT NOT NULL,
	entity_id      TEXT NOT NULL,
	field_name     TEXT NOT NULL,
	value          TEXT,
	confidence     DOUBLE PRECISION NOT NULL,
	source         TEXT NOT NULL,
	source_snippet TEXT,
	model          TEXT NOT NULL,
	session_id     TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_field_provenance_entity_field ON field_provenance(entity_id, field_name);
CREATE INDEX IF NOT EXISTS idx_field_provenance_batch_id ON field_provenance(batch_id);

CREATE TABLE IF NOT EXISTS curator_sources (
	id              TEXT PRIMARY KEY,
	url             TEXT NOT NULL UNIQUE,
	domain          TEXT NOT NULL,
	title           TEXT,
	authority_tier  TEXT NOT NULL,
	authority_score DOUBLE PRECISION NOT NULL,
	fetch_count     INTEGER NOT NULL DEFAULT 1,
	categories      JSONB NOT NULL DEFAULT '[]',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_curator_sources_tier ON curator_sources(authority_tier);

CREATE TABLE IF NOT EXISTS entity_sources (
	id             TEXT PRIMARY KEY,
	source_id      TEXT NOT NULL REFERENCES curator_sources(id) ON DELETE CASCADE,
	entity_type    TEXT NOT NULL,
	entity_id      TEXT NOT NULL,
	fields_sourced JSONB NOT NULL DEFAULT '[]',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_id, entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS research_feedback (
	id                  TEXT PRIMARY KEY,
	research_session_id TEXT NOT NULL,
	feedback_type       TEXT NOT NULL,
	field_name          TEXT,
	notes               TEXT,
	marked_by           TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_research_feedback_session ON research_feedback(research_session_id);

CREATE OR REPLACE FUNCTION match_platforms(query_embedding vector, match_threshold float, match_count int)
RETURNS TABLE (id text, name text, similarity float)
LANGUAGE sql STABLE AS $$
	SELECT p.id, p.name, 1 - (p.embedding <=> query_embedding) AS similarity
	FROM platforms p
	WHERE p.embedding IS NOT NULL
	  AND 1 - (p.embedding <=> query_embedding) >= match_threshold
	ORDER BY p.embedding <=> query_embedding
	LIMIT match_count;
$$;

CREATE OR REPLACE FUNCTION match_similar_industries(query_embedding vector, match_threshold float, match_count int)
RETURNS TABLE (id text, name text, similarity float)
LANGUAGE sql STABLE AS $$
	SELECT i.id, i.name, 1 - (i.embedding <=> query_embedding) AS similarity
	FROM industries i
	WHERE i.embedding IS NOT NULL
	  AND 1 - (i.embedding <=> query_embedding) >= match_threshold
	ORDER BY i.embedding <=> query_embedding
	LIMIT match_count;
$$;

CREATE OR REPLACE FUNCTION match_products(query_embedding vector, match_threshold float, match_count int)
RETURNS TABLE (id text, name text, similarity float)
LANGUAGE sql STABLE AS $$
	SELECT p.id, p.name, 1 - (p.embedding <=> query_embedding) AS similarity
	FROM products p
	WHERE p.embedding IS NOT NULL
	  AND 1 - (p.embedding <=> query_embedding) >= match_threshold
	ORDER BY p.embedding <=> query_embedding
	LIMIT match_count;
$$;

CREATE OR REPLACE FUNCTION match_tactics(query_embedding vector, match_threshold float, match_count int)
RETURNS TABLE (id text, name text, similarity float)
LANGUAGE sql STABLE AS $$
	SELECT t.id, t.name, 1 - (t.embedding <=> query_embedding) AS similarity
	FROM tactic_types t
	WHERE t.embedding IS NOT NULL
	  AND 1 - (t.embedding <=> query_embedding) >= match_threshold
	ORDER BY t.embedding <=> query_embedding
	LIMIT match_count;
$$;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const sessionColumns = `id, status, messages, pending_items, committed_items, tokens_used, tokens_limit, created_at, updated_at, expires_at`

func (s *PostgresStore) CreateSession(ctx context.Context, sess *model.CuratorSession) error {
	messages, pending, committed, err := encodeSessionLists(sess)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO curator_sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sess.ID, string(sess.Status), messages, pending, committed,
		sess.TokensUsed, sess.TokensLimit, sess.CreatedAt, sess.UpdatedAt, sess.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: insert session")
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.CuratorSession, error) {
	var sess model.CuratorSession
	var messages, pending, committed []byte

	err := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM curator_sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Status, &messages, &pending, &committed,
		&sess.TokensUsed, &sess.TokensLimit, &sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}

	if err := decodeSessionLists(&sess, messages, pending, committed); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *model.CuratorSession) error {
	messages, pending, committed, err := encodeSessionLists(sess)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE curator_sessions SET status = $1, messages = $2, pending_items = $3, committed_items = $4, updated_at = $5 WHERE id = $6`,
		string(sess.Status), messages, pending, committed, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save session %s", sess.ID)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError("session", sess.ID)
	}
	return nil
}

func (s *PostgresStore) ReserveTokens(ctx context.Context, id string, n int) (int, error) {
	var used int
	err := s.pool.QueryRow(ctx,
		`UPDATE curator_sessions SET tokens_used = tokens_used + $2, updated_at = now()
		 WHERE id = $1 AND tokens_used + $2 <= tokens_limit RETURNING tokens_used`,
		id, n,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, s.budgetError(ctx, id)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: reserve tokens %s", id)
	}
	return used, nil
}

// budgetError explains a failed reservation: the session is missing or over
// budget.
func (s *PostgresStore) budgetError(ctx context.Context, id string) error {
	var used, limit int
	err := s.pool.QueryRow(ctx,
		`SELECT tokens_used, tokens_limit FROM curator_sessions WHERE id = $1`, id,
	).Scan(&used, &limit)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NewNotFoundError("session", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: read token budget %s", id)
	}
	return &model.BudgetExceededError{SessionID: id, TokensUsed: used, TokensLimit: limit}
}

func (s *PostgresStore) AddTokens(ctx context.Context, id string, delta int) (int, error) {
	var used int
	err := s.pool.QueryRow(ctx,
		`UPDATE curator_sessions SET tokens_used = GREATEST(tokens_used + $2, 0), updated_at = now()
		 WHERE id = $1 RETURNING tokens_used`,
		id, delta,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, model.NewNotFoundError("session", id)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: add tokens %s", id)
	}
	return used, nil
}

const researchColumns = `id, query, entity_type, entity_name, answer, status, error, created_at`

func (s *PostgresStore) CreateResearchSession(ctx context.Context, r *model.ResearchSession) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO research_sessions (`+researchColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.Query, string(r.EntityType), nullable(r.EntityName), nullable(r.Answer),
		string(r.Status), nullable(r.Error), r.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert research session")
}

func (s *PostgresStore) GetResearchSession(ctx context.Context, id string) (*model.ResearchSession, error) {
	var r model.ResearchSession
	var name, answer, errText *string

	err := s.pool.QueryRow(ctx,
		`SELECT `+researchColumns+` FROM research_sessions WHERE id = $1`, id,
	).Scan(&r.ID, &r.Query, &r.EntityType, &name, &answer, &r.Status, &errText, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError("research session", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get research session %s", id)
	}

	r.EntityName = deref(name)
	r.Answer = deref(answer)
	r.Error = deref(errText)
	return &r, nil
}
