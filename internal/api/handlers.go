package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/curator"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "store unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req curator.ExtractRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	resp, err := s.curator.Extract(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.curator.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req curator.CommitRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	resp, err := s.curator.Commit(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Sources

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	filter := model.SourceFilter{
		Tier:  model.AuthorityTier(r.URL.Query().Get("tier")),
		Limit: limit,
	}
	sources, err := s.curator.ListSources(r.Context(), filter)
	if err != nil {
		fail(w, r, err)
		return
	}
	if sources == nil {
		sources = []model.CuratorSource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources, "count": len(sources)})
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var in curator.SourceInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	src, err := s.curator.CreateSource(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.curator.GetSource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	var u model.SourceUpdate
	if err := decode(w, r, &u); err != nil {
		fail(w, r, err)
		return
	}
	src, err := s.curator.UpdateSource(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := s.curator.DeleteSource(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleLinkSource(w http.ResponseWriter, r *http.Request) {
	var in curator.LinkInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	link, err := s.curator.LinkSource(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

// Feedback

func (s *Server) handleRecordFeedback(w http.ResponseWriter, r *http.Request) {
	var in curator.FeedbackInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	rec, err := s.curator.RecordFeedback(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	filter := model.FeedbackFilter{
		Type:  model.FeedbackType(r.URL.Query().Get("type")),
		Limit: limit,
	}
	records, err := s.curator.ListFeedback(r.Context(), filter)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeFeedback(w, records)
}

func (s *Server) handleFeedbackForSession(w http.ResponseWriter, r *http.Request) {
	records, err := s.curator.FeedbackForSession(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeFeedback(w, records)
}

func writeFeedback(w http.ResponseWriter, records []model.FeedbackRecord) {
	if records == nil {
		records = []model.FeedbackRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": records, "count": len(records)})
}

func (s *Server) handleDeleteFeedback(w http.ResponseWriter, r *http.Request) {
	if err := s.curator.DeleteFeedback(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleFeedbackPatterns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	patterns, err := s.curator.FeedbackPatterns(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns})
}
