package store

import (
	"context"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

// SessionStore persists curator sessions and their token budget.
type SessionStore interface {
	CreateSession(ctx context.Context, s *model.CuratorSession) error
	GetSession(ctx context.Context, id string) (*model.CuratorSession, error)
	// SaveSession writes status, transcript and item lists. Token counters
	// are only changed through ReserveTokens and AddTokens.
	SaveSession(ctx context.Context, s *model.CuratorSession) error
	// ReserveTokens atomically adds n to tokens_used when the result stays
	// within tokens_limit and returns the new total. It fails with a
	// BudgetExceededError otherwise.
	ReserveTokens(ctx context.Context, id string, n int) (int, error)
	// AddTokens adjusts tokens_used by delta without a limit check, never
	// going below zero.
	AddTokens(ctx context.Context, id string, delta int) (int, error)
}

// ResearchStore records research calls.
type ResearchStore interface {
	CreateResearchSession(ctx context.Context, r *model.ResearchSession) error
	GetResearchSession(ctx context.Context, id string) (*model.ResearchSession, error)
}

// EntityStore reads and writes the curated entity tables. Values are keyed by
// column name; every row is returned with the kind's select columns.
type EntityStore interface {
	GetEntity(ctx context.Context, kind model.EntityKind, id string) (model.Row, error)
	// FindEntityByKey matches the natural key exactly (case-sensitive).
	FindEntityByKey(ctx context.Context, kind model.CoreKind, key string) (model.Row, error)
	// FindEntityIDByName matches a name case-insensitively.
	FindEntityIDByName(ctx context.Context, table, nameColumn, name string) (string, error)
	// UpsertEntity inserts or updates by natural key in one statement and
	// reports whether a row was created.
	UpsertEntity(ctx context.Context, kind model.CoreKind, values map[string]string) (model.Row, bool, error)
	UpdateEntity(ctx context.Context, kind model.CoreKind, id string, values map[string]string) (model.Row, error)
	InsertEnrichment(ctx context.Context, kind model.EnrichmentKind, parentID string, values map[string]string) (model.Row, error)
}

// VectorStore runs similarity search over indexed entity types.
type VectorStore interface {
	MatchEntities(ctx context.Context, t model.EntityType, embedding []float32, minSimilarity float64, count int) ([]model.SemanticMatch, error)
	SetEmbedding(ctx context.Context, t model.EntityType, id string, embedding []float32) error
}

// AuditStore appends audit log rows and field provenance.
type AuditStore interface {
	AppendAudit(ctx context.Context, e *model.AuditLogEntry) error
	ListAudit(ctx context.Context, batchID string) ([]model.AuditLogEntry, error)
	// FindAuditByAction returns the earliest entry written for an action id,
	// or a NotFoundError.
	FindAuditByAction(ctx context.Context, actionID string) (*model.AuditLogEntry, error)
	RecordProvenance(ctx context.Context, rows []model.Provenance) error
	ListProvenance(ctx context.Context, entityID string) ([]model.Provenance, error)
}

// SourceStore manages curator sources and their entity links.
type SourceStore interface {
	// UpsertSource inserts by URL or increments fetch_count of the existing row.
	UpsertSource(ctx context.Context, src *model.CuratorSource) (*model.CuratorSource, error)
	GetSource(ctx context.Context, id string) (*model.CuratorSource, error)
	ListSources(ctx context.Context, filter model.SourceFilter) ([]model.CuratorSource, error)
	UpdateSource(ctx context.Context, id string, u model.SourceUpdate) (*model.CuratorSource, error)
	DeleteSource(ctx context.Context, id string) error
	LinkSource(ctx context.Context, link *model.EntitySource) (*model.EntitySource, error)
}

// FeedbackStore is the append-only research feedback log.
type FeedbackStore interface {
	CreateFeedback(ctx context.Context, f *model.FeedbackRecord) error
	ListFeedback(ctx context.Context, filter model.FeedbackFilter) ([]model.FeedbackRecord, error)
	ListFeedbackBySession(ctx context.Context, researchSessionID string) ([]model.FeedbackRecord, error)
	DeleteFeedback(ctx context.Context, id string) error
	// FeedbackCounts tallies feedback per field name. Records without a
	// field name are counted under policy.OverallFieldName.
	FeedbackCounts(ctx context.Context) ([]model.FeedbackCounts, error)
}

// Store defines the persistence interface for the curator.
type Store interface {
	SessionStore
	ResearchStore
	EntityStore
	VectorStore
	AuditStore
	SourceStore
	FeedbackStore

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
