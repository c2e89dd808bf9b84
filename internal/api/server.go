// Package api exposes the curator over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/curator"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

// maxBodyBytes caps request bodies; pasted documents can be large.
const maxBodyBytes = 10 << 20

// Curator is the service the handlers call.
type Curator interface {
	Extract(ctx context.Context, req curator.ExtractRequest) (*curator.ExtractResponse, error)
	GetSession(ctx context.Context, id string) (*model.CuratorSession, error)
	Commit(ctx context.Context, req curator.CommitRequest) (*curator.CommitResponse, error)

	ListSources(ctx context.Context, filter model.SourceFilter) ([]model.CuratorSource, error)
	GetSource(ctx context.Context, id string) (*model.CuratorSource, error)
	CreateSource(ctx context.Context, in curator.SourceInput) (*model.CuratorSource, error)
	UpdateSource(ctx context.Context, id string, u model.SourceUpdate) (*model.CuratorSource, error)
	DeleteSource(ctx context.Context, id string) error
	LinkSource(ctx context.Context, sourceID string, in curator.LinkInput) (*model.EntitySource, error)

	RecordFeedback(ctx context.Context, in curator.FeedbackInput) (*model.FeedbackRecord, error)
	ListFeedback(ctx context.Context, filter model.FeedbackFilter) ([]model.FeedbackRecord, error)
	FeedbackForSession(ctx context.Context, sessionID string) ([]model.FeedbackRecord, error)
	DeleteFeedback(ctx context.Context, id string) error
	FeedbackPatterns(ctx context.Context, limit int) ([]model.FeedbackPattern, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	curator Curator
	health  Pinger
}

// NewRouter builds the HTTP handler: /health plus the /curator routes.
func NewRouter(c Curator, health Pinger, allowedOrigins []string) http.Handler {
	s := &Server{curator: c, health: health}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/curator", func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Minute))

		r.Post("/extract", s.handleExtract)
		r.Get("/session/{id}", s.handleGetSession)
		r.Post("/commit", s.handleCommit)

		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.handleListSources)
			r.Post("/", s.handleCreateSource)
			r.Get("/{id}", s.handleGetSource)
			r.Put("/{id}", s.handleUpdateSource)
			r.Delete("/{id}", s.handleDeleteSource)
			r.Post("/{id}/link", s.handleLinkSource)
		})

		r.Route("/feedback", func(r chi.Router) {
			r.Get("/", s.handleListFeedback)
			r.Post("/", s.handleRecordFeedback)
			r.Get("/patterns", s.handleFeedbackPatterns)
			r.Get("/sessions/{session_id}", s.handleFeedbackForSession)
			r.Delete("/{id}", s.handleDeleteFeedback)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}
