package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/curator"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

// fakeCurator implements only what a test sets; anything else panics.
type fakeCurator struct {
	Curator

	extract        func(curator.ExtractRequest) (*curator.ExtractResponse, error)
	commit         func(curator.CommitRequest) (*curator.CommitResponse, error)
	getSession     func(string) (*model.CuratorSession, error)
	listSources    func(model.SourceFilter) ([]model.CuratorSource, error)
	createSource   func(curator.SourceInput) (*model.CuratorSource, error)
	updateSource   func(string, model.SourceUpdate) (*model.CuratorSource, error)
	deleteSource   func(string) error
	linkSource     func(string, curator.LinkInput) (*model.EntitySource, error)
	recordFeedback func(curator.FeedbackInput) (*model.FeedbackRecord, error)
	listFeedback   func(model.FeedbackFilter) ([]model.FeedbackRecord, error)
	forSession     func(string) ([]model.FeedbackRecord, error)
	patterns       func(int) ([]model.FeedbackPattern, error)
}

func (f *fakeCurator) Extract(_ context.Context, req curator.ExtractRequest) (*curator.ExtractResponse, error) {
	return f.extract(req)
}

func (f *fakeCurator) Commit(_ context.Context, req curator.CommitRequest) (*curator.CommitResponse, error) {
	return f.commit(req)
}

func (f *fakeCurator) GetSession(_ context.Context, id string) (*model.CuratorSession, error) {
	return f.getSession(id)
}

func (f *fakeCurator) ListSources(_ context.Context, filter model.SourceFilter) ([]model.CuratorSource, error) {
	return f.listSources(filter)
}

func (f *fakeCurator) CreateSource(_ context.Context, in curator.SourceInput) (*model.CuratorSource, error) {
	return f.createSource(in)
}

func (f *fakeCurator) UpdateSource(_ context.Context, id string, u model.SourceUpdate) (*model.CuratorSource, error) {
	return f.updateSource(id, u)
}

func (f *fakeCurator) DeleteSource(_ context.Context, id string) error {
	return f.deleteSource(id)
}

func (f *fakeCurator) LinkSource(_ context.Context, id string, in curator.LinkInput) (*model.EntitySource, error) {
	return f.linkSource(id, in)
}

func (f *fakeCurator) RecordFeedback(_ context.Context, in curator.FeedbackInput) (*model.FeedbackRecord, error) {
	return f.recordFeedback(in)
}

func (f *fakeCurator) ListFeedback(_ context.Context, filter model.FeedbackFilter) ([]model.FeedbackRecord, error) {
	return f.listFeedback(filter)
}

func (f *fakeCurator) FeedbackForSession(_ context.Context, id string) ([]model.FeedbackRecord, error) {
	return f.forSession(id)
}

func (f *fakeCurator) FeedbackPatterns(_ context.Context, limit int) ([]model.FeedbackPattern, error) {
	return f.patterns(limit)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()
	rec := do(t, NewRouter(&fakeCurator{}, fakePinger{}, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = do(t, NewRouter(&fakeCurator{}, fakePinger{err: errors.New("down")}, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExtract(t *testing.T) {
	t.Parallel()
	var got curator.ExtractRequest
	fc := &fakeCurator{extract: func(req curator.ExtractRequest) (*curator.ExtractResponse, error) {
		got = req
		return &curator.ExtractResponse{SessionID: "s1", TokensUsed: 1500, TokensRemaining: 98500, Message: "Proposed 1 actions."}, nil
	}}
	h := NewRouter(fc, nil, nil)

	rec := do(t, h, http.MethodPost, "/curator/extract",
		`{"content":"Facebook has a 2-hour lag","content_type":"text","target_types":["platform"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Facebook has a 2-hour lag", got.Content)
	assert.Equal(t, curator.ContentType("text"), got.ContentType)
	assert.Equal(t, []model.EntityType{model.EntityPlatform}, got.TargetTypes)

	body := decodeBody(t, rec)
	assert.Equal(t, "s1", body["session_id"])
	assert.EqualValues(t, 98500, body["tokens_remaining"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", model.NewValidationError("content is required"), http.StatusBadRequest, "validation_error"},
		{"not found", model.NewNotFoundError("session", "abc"), http.StatusNotFound, "not_found"},
		{"budget", &model.BudgetExceededError{SessionID: "s", TokensUsed: 99000, TokensLimit: 100000}, http.StatusTooManyRequests, "budget_exceeded"},
		{"external", model.NewExternalServiceError("classifier", errors.New("overloaded")), http.StatusBadGateway, "external_service_error"},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fc := &fakeCurator{extract: func(curator.ExtractRequest) (*curator.ExtractResponse, error) {
				return nil, tt.err
			}}
			rec := do(t, NewRouter(fc, nil, nil), http.MethodPost, "/curator/extract", `{"content":"x"}`)
			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	t.Parallel()
	fc := &fakeCurator{getSession: func(string) (*model.CuratorSession, error) {
		return nil, errors.New("pq: password authentication failed")
	}}
	rec := do(t, NewRouter(fc, nil, nil), http.MethodGet, "/curator/session/abc", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestMalformedBody(t *testing.T) {
	t.Parallel()
	h := NewRouter(&fakeCurator{}, nil, nil)

	rec := do(t, h, http.MethodPost, "/curator/commit", `{"items": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeBody(t, rec)["code"])

	rec = do(t, h, http.MethodPost, "/curator/extract", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommit(t *testing.T) {
	t.Parallel()
	fc := &fakeCurator{commit: func(req curator.CommitRequest) (*curator.CommitResponse, error) {
		require.Len(t, req.Items, 1)
		assert.Equal(t, "a1", req.Items[0].ID)
		return &curator.CommitResponse{
			BatchID:        "b1",
			Results:        []model.CommitResult{{ActionID: "a1", Success: true, EntityID: "e1"}},
			CommittedCount: 1,
		}, nil
	}}
	rec := do(t, NewRouter(fc, nil, nil), http.MethodPost, "/curator/commit",
		`{"session_id":"s1","items":[{"id":"a1","action_type":"update_field","entity_type":"platform","target_entity":{"id":"e1"},"fields":[]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "b1", body["batch_id"])
	assert.EqualValues(t, 1, body["committed_count"])
}

func TestGetSession(t *testing.T) {
	t.Parallel()
	fc := &fakeCurator{getSession: func(id string) (*model.CuratorSession, error) {
		if id != "s1" {
			return nil, model.NewNotFoundError("session", id)
		}
		return &model.CuratorSession{ID: "s1", Status: model.SessionActive, TokensLimit: 100000}, nil
	}}
	h := NewRouter(fc, nil, nil)

	rec := do(t, h, http.MethodGet, "/curator/session/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", decodeBody(t, rec)["id"])

	rec = do(t, h, http.MethodGet, "/curator/session/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSources(t *testing.T) {
	t.Parallel()
	var filter model.SourceFilter
	var update model.SourceUpdate
	deleted := ""
	fc := &fakeCurator{
		listSources: func(f model.SourceFilter) ([]model.CuratorSource, error) {
			filter = f
			return nil, nil
		},
		createSource: func(in curator.SourceInput) (*model.CuratorSource, error) {
			return &model.CuratorSource{ID: "src1", URL: in.URL, Domain: "adweek.com"}, nil
		},
		updateSource: func(id string, u model.SourceUpdate) (*model.CuratorSource, error) {
			update = u
			return &model.CuratorSource{ID: id, Title: *u.Title}, nil
		},
		deleteSource: func(id string) error {
			deleted = id
			return nil
		},
		linkSource: func(id string, in curator.LinkInput) (*model.EntitySource, error) {
			return &model.EntitySource{ID: "l1", SourceID: id, EntityType: in.EntityType, EntityID: in.EntityID}, nil
		},
	}
	h := NewRouter(fc, nil, nil)

	rec := do(t, h, http.MethodGet, "/curator/sources?tier=authoritative&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.SourceFilter{Tier: model.TierAuthoritative, Limit: 5}, filter)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{}, body["sources"])
	assert.EqualValues(t, 0, body["count"])

	rec = do(t, h, http.MethodGet, "/curator/sources?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/curator/sources", `{"url":"https://adweek.com/x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "adweek.com", decodeBody(t, rec)["domain"])

	rec = do(t, h, http.MethodPut, "/curator/sources/src1", `{"title":"CTV"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, update.Title)
	assert.Equal(t, "CTV", *update.Title)
	assert.Nil(t, update.AuthorityTier)

	rec = do(t, h, http.MethodPost, "/curator/sources/src1/link", `{"entity_type":"platform","entity_id":"p1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "src1", decodeBody(t, rec)["source_id"])

	rec = do(t, h, http.MethodDelete, "/curator/sources/src1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "src1", deleted)
}

func TestFeedback(t *testing.T) {
	t.Parallel()
	var filter model.FeedbackFilter
	var limit int
	fc := &fakeCurator{
		recordFeedback: func(in curator.FeedbackInput) (*model.FeedbackRecord, error) {
			if !in.FeedbackType.Valid() {
				return nil, model.Validationf("invalid feedback_type %q", in.FeedbackType)
			}
			return &model.FeedbackRecord{ID: "f1", ResearchSessionID: in.ResearchSessionID, FeedbackType: in.FeedbackType}, nil
		},
		listFeedback: func(f model.FeedbackFilter) ([]model.FeedbackRecord, error) {
			filter = f
			return []model.FeedbackRecord{{ID: "f1"}}, nil
		},
		forSession: func(id string) ([]model.FeedbackRecord, error) {
			return []model.FeedbackRecord{{ID: "f1", ResearchSessionID: id}}, nil
		},
		patterns: func(n int) ([]model.FeedbackPattern, error) {
			limit = n
			return []model.FeedbackPattern{{FieldName: "pricing", Good: 1, Total: 1, SuccessRate: 1}}, nil
		},
	}
	h := NewRouter(fc, nil, nil)

	rec := do(t, h, http.MethodPost, "/curator/feedback", `{"research_session_id":"r1","feedback_type":"good"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/curator/feedback", `{"research_session_id":"r1","feedback_type":"meh"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/curator/feedback?type=bad", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.FeedbackBad, filter.Type)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])

	rec = do(t, h, http.MethodGet, "/curator/feedback/sessions/r9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"research_session_id":"r9"`)

	rec = do(t, h, http.MethodGet, "/curator/feedback/patterns?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, limit)
	assert.Contains(t, rec.Body.String(), `"field_name":"pricing"`)
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()
	h := NewRouter(&fakeCurator{}, nil, nil)
	rec := do(t, h, http.MethodGet, "/curator/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody(t, rec)["code"])

	rec = do(t, h, http.MethodPatch, "/curator/extract", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	h := NewRouter(&fakeCurator{}, nil, []string{"https://app.example.com"})
	req := httptest.NewRequest(http.MethodOptions, "/curator/extract", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
