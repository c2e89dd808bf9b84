package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/db"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Embeddings are
// stored as little-endian float32 blobs and searched in process.
type SQLiteStore struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn, dialect: db.SQLite}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS platforms (
	id           TEXT PRIMARY KEY,
	name         TEXT,
	code         TEXT NOT NULL UNIQUE,
	category     TEXT,
	description  TEXT,
	buying_model TEXT,
	notes        TEXT,
	embedding    BLOB,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS industries (
	id            TEXT PRIMARY KEY,
	name          TEXT,
	code          TEXT NOT NULL UNIQUE,
	description   TEXT,
	seasonality   TEXT,
	buyer_persona TEXT,
	notes         TEXT,
	embedding     BLOB,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT,
	data_value  TEXT NOT NULL UNIQUE,
	description TEXT,
	platform    TEXT,
	notes       TEXT,
	embedding   BLOB,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS subproducts (
	id          TEXT PRIMARY KEY,
	product_id  TEXT REFERENCES products(id),
	name        TEXT,
	data_value  TEXT NOT NULL UNIQUE,
	description TEXT,
	notes       TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tactic_types (
	id            TEXT PRIMARY KEY,
	subproduct_id TEXT REFERENCES subproducts(id),
	name          TEXT,
	data_value    TEXT NOT NULL UNIQUE,
	description   TEXT,
	kpis          TEXT,
	notes         TEXT,
	embedding     BLOB,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS soul_docs (
	id         TEXT PRIMARY KEY,
	title      TEXT,
	slug       TEXT NOT NULL UNIQUE,
	doc_type   TEXT,
	content    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS platform_quirks (
	id          TEXT PRIMARY KEY,
	platform_id TEXT NOT NULL REFERENCES platforms(id),
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	quirk_type  TEXT,
	impact      TEXT,
	workaround  TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS industry_insights (
	id           TEXT PRIMARY KEY,
	industry_id  TEXT NOT NULL REFERENCES industries(id),
	title        TEXT NOT NULL,
	content      TEXT NOT NULL,
	insight_type TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS platform_buyer_notes (
	id          TEXT PRIMARY KEY,
	platform_id TEXT NOT NULL REFERENCES platforms(id),
	note        TEXT NOT NULL,
	note_type   TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS platform_kpis (
	id          TEXT PRIMARY KEY,
	platform_id TEXT NOT NULL REFERENCES platforms(id),
	metric      TEXT NOT NULL,
	description TEXT,
	benchmark   TEXT,
	objective   TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS curator_sessions (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'active',
	messages        TEXT NOT NULL DEFAULT '[]',
	pending_items   TEXT NOT NULL DEFAULT '[]',
	committed_items TEXT NOT NULL DEFAULT '[]',
	tokens_used     INTEGER NOT NULL DEFAULT 0,
	tokens_limit    INTEGER NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS research_sessions (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_name TEXT,
	answer      TEXT,
	status      TEXT NOT NULL,
	error       TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS curator_audit_log (
	id            TEXT PRIMARY KEY,
	batch_id      TEXT NOT NULL,
	operation     TEXT NOT NULL,
	entity_type   TEXT NOT NULL,
	entity_id     TEXT NOT NULL,
	field_changes TEXT NOT NULL,
	full_snapshot TEXT NOT NULL,
	changed_by    TEXT NOT NULL,
	session_id    TEXT,
	action_id     TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS field_provenance (
	id             TEXT PRIMARY KEY,
	batch_id       TEXT NOT NULL,
	entity_type    TEXT NOT NULL,
	entity_id      TEXT NOT NULL,
	field_name     TEXT NOT NULL,
	value          TEXT,
	confidence     REAL NOT NULL,
	source         TEXT NOT NULL,
	source_snippet TEXT,
	model          TEXT NOT NULL,
	session_id     TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS curator_sources (
	id              TEXT PRIMARY KEY,
	url             TEXT NOT NULL UNIQUE,
	domain          TEXT NOT NULL,
	title           TEXT,
	authority_tier  TEXT NOT NULL,
	authority_score REAL NOT NULL,
	fetch_count     INTEGER NOT NULL DEFAULT 1,
	categories      TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS entity_sources (
	id             TEXT PRIMARY KEY,
	source_id      TEXT NOT NULL REFERENCES curator_sources(id),
	entity_type    TEXT NOT NULL,
	entity_id      TEXT NOT NULL,
	fields_sourced TEXT NOT NULL DEFAULT '[]',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (source_id, entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS research_feedback (
	id                  TEXT PRIMARY KEY,
	research_session_id TEXT NOT NULL,
	feedback_type       TEXT NOT NULL,
	field_name          TEXT,
	notes               TEXT,
	marked_by           TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_subproducts_product_id ON subproducts(product_id);
CREATE INDEX IF NOT EXISTS idx_tactic_types_subproduct_id ON tactic_types(subproduct_id);
CREATE INDEX IF NOT EXISTS idx_platform_quirks_platform_id ON platform_quirks(platform_id);
CREATE INDEX IF NOT EXISTS idx_industry_insights_industry_id ON industry_insights(industry_id);
CREATE INDEX IF NOT EXISTS idx_platform_buyer_notes_platform_id ON platform_buyer_notes(platform_id);
CREATE INDEX IF NOT EXISTS idx_platform_kpis_platform_id ON platform_kpis(platform_id);
CREATE INDEX IF NOT EXISTS idx_curator_audit_log_batch_id ON curator_audit_log(batch_id);
CREATE INDEX IF NOT EXISTS idx_curator_audit_log_action_id ON curator_audit_log(action_id);
CREATE INDEX IF NOT EXISTS idx_field_provenance_entity_field ON field_provenance(entity_id, field_name);
CREATE INDEX IF NOT EXISTS idx_curator_sources_tier ON curator_sources(authority_tier);
CREATE INDEX IF NOT EXISTS idx_research_feedback_session ON research_feedback(research_session_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.CuratorSession) error {
	messages, pending, committed, err := encodeSessionLists(sess)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO curator_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, string(sess.Status), string(messages), string(pending), string(committed),
		sess.TokensUsed, sess.TokensLimit, sess.CreatedAt, sess.UpdatedAt, sess.ExpiresAt,
	)
	return eris.Wrap(err, "sqlite: insert session")
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.CuratorSession, error) {
	var sess model.CuratorSession
	var messages, pending, committed []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM curator_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Status, &messages, &pending, &committed,
		&sess.TokensUsed, &sess.TokensLimit, &sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}

	if err := decodeSessionLists(&sess, messages, pending, committed); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.CuratorSession) error {
	messages, pending, committed, err := encodeSessionLists(sess)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE curator_sessions SET status = ?, messages = ?, pending_items = ?, committed_items = ?, updated_at = ? WHERE id = ?`,
		string(sess.Status), string(messages), string(pending), string(committed), sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save session %s", sess.ID)
	}
	return checkRowsAffected(res, "session", sess.ID)
}

func (s *SQLiteStore) ReserveTokens(ctx context.Context, id string, n int) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		`UPDATE curator_sessions SET tokens_used = tokens_used + ?, updated_at = ?
		 WHERE id = ? AND tokens_used + ? <= tokens_limit RETURNING tokens_used`,
		n, time.Now().UTC(), id, n,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, s.budgetError(ctx, id)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: reserve tokens %s", id)
	}
	return used, nil
}

func (s *SQLiteStore) budgetError(ctx context.Context, id string) error {
	var used, limit int
	err := s.db.QueryRowContext(ctx,
		`SELECT tokens_used, tokens_limit FROM curator_sessions WHERE id = ?`, id,
	).Scan(&used, &limit)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewNotFoundError("session", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read token budget %s", id)
	}
	return &model.BudgetExceededError{SessionID: id, TokensUsed: used, TokensLimit: limit}
}

func (s *SQLiteStore) AddTokens(ctx context.Context, id string, delta int) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		`UPDATE curator_sessions SET tokens_used = MAX(tokens_used + ?, 0), updated_at = ?
		 WHERE id = ? RETURNING tokens_used`,
		delta, time.Now().UTC(), id,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.NewNotFoundError("session", id)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: add tokens %s", id)
	}
	return used, nil
}

func (s *SQLiteStore) CreateResearchSession(ctx context.Context, r *model.ResearchSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO research_sessions (`+researchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Query, string(r.EntityType), nullable(r.EntityName), nullable(r.Answer),
		string(r.Status), nullable(r.Error), r.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert research session")
}

func (s *SQLiteStore) GetResearchSession(ctx context.Context, id string) (*model.ResearchSession, error) {
	var r model.ResearchSession
	var name, answer, errText sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT `+researchColumns+` FROM research_sessions WHERE id = ?`, id,
	).Scan(&r.ID, &r.Query, &r.EntityType, &name, &answer, &r.Status, &errText, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("research session", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get research session %s", id)
	}

	r.EntityName = name.String
	r.Answer = answer.String
	r.Error = errText.String
	return &r, nil
}

// checkRowsAffected returns a NotFoundError if no rows were affected.
func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return model.NewNotFoundError(entity, id)
	}
	return nil
}
