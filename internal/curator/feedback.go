package curator

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/policy"
)

// FeedbackInput is a reviewer judgment to record.
type FeedbackInput struct {
	ResearchSessionID string             `json:"research_session_id"`
	FeedbackType      model.FeedbackType `json:"feedback_type"`
	FieldName         string             `json:"field_name,omitempty"`
	Notes             string             `json:"notes,omitempty"`
	MarkedBy          string             `json:"marked_by,omitempty"`
}

// RecordFeedback appends a feedback record.
func (s *Service) RecordFeedback(ctx context.Context, in FeedbackInput) (*model.FeedbackRecord, error) {
	if strings.TrimSpace(in.ResearchSessionID) == "" {
		return nil, model.NewValidationError("research_session_id is required")
	}
	if !in.FeedbackType.Valid() {
		return nil, model.Validationf("feedback_type must be good, bad or partial, got %q", in.FeedbackType)
	}

	rec := &model.FeedbackRecord{
		ID:                uuid.New().String(),
		ResearchSessionID: in.ResearchSessionID,
		FeedbackType:      in.FeedbackType,
		FieldName:         strings.TrimSpace(in.FieldName),
		Notes:             in.Notes,
		MarkedBy:          in.MarkedBy,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.CreateFeedback(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListFeedback lists feedback, newest first.
func (s *Service) ListFeedback(ctx context.Context, filter model.FeedbackFilter) ([]model.FeedbackRecord, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, model.Validationf("unknown feedback_type %q", filter.Type)
	}
	return s.store.ListFeedback(ctx, filter)
}

// FeedbackForSession lists feedback recorded against one session.
func (s *Service) FeedbackForSession(ctx context.Context, sessionID string) ([]model.FeedbackRecord, error) {
	return s.store.ListFeedbackBySession(ctx, sessionID)
}

// DeleteFeedback removes one record.
func (s *Service) DeleteFeedback(ctx context.Context, id string) error {
	return s.store.DeleteFeedback(ctx, id)
}

// FeedbackPatterns aggregates feedback per field. limit <= 0 returns all.
func (s *Service) FeedbackPatterns(ctx context.Context, limit int) ([]model.FeedbackPattern, error) {
	counts, err := s.store.FeedbackCounts(ctx)
	if err != nil {
		return nil, err
	}
	return Patterns(counts, limit), nil
}

// Patterns computes success rates, busiest fields first. Partial judgments
// count as half a success.
func Patterns(counts []model.FeedbackCounts, limit int) []model.FeedbackPattern {
	out := make([]model.FeedbackPattern, 0, len(counts))
	for _, c := range counts {
		total := c.Good + c.Bad + c.Partial
		if total == 0 {
			continue
		}
		out = append(out, model.FeedbackPattern{
			FieldName:   c.FieldName,
			Good:        c.Good,
			Bad:         c.Bad,
			Partial:     c.Partial,
			Total:       total,
			SuccessRate: (float64(c.Good) + policy.PartialSuccessWeight*float64(c.Partial)) / float64(total),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].FieldName < out[j].FieldName
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
