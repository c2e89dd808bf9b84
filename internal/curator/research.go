package curator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/policy"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/store"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/pkg/perplexity"
)

const researchPrompt = `Research the %s named %q for an advertising knowledge base.
Fill in these fields: %s.
Respond with a single JSON object whose keys are exactly those field names. Use null for anything you cannot verify. Keep each value under 300 characters.`

// Researcher fills missing entity fields with web research and records each
// call as a research session.
type Researcher struct {
	client   perplexity.Client
	sessions store.ResearchStore
	now      func() time.Time
}

// NewResearcher creates a Researcher.
func NewResearcher(client perplexity.Client, sessions store.ResearchStore) *Researcher {
	return &Researcher{client: client, sessions: sessions, now: time.Now}
}

// Research is the outcome of one research call.
type Research struct {
	SessionID string
	Fields    model.FieldList
}

// Fill asks for the named fields and returns the ones that came back
// non-null. The research session is recorded whether or not the call works.
func (r *Researcher) Fill(ctx context.Context, t model.EntityType, name string, fields []string) (*Research, error) {
	if len(fields) == 0 {
		return nil, model.Validationf("research_fill on %s %q has no fields to research", t, name)
	}
	sort.Strings(fields)
	query := fmt.Sprintf(researchPrompt, t, name, strings.Join(fields, ", "))

	rec := &model.ResearchSession{
		ID:         uuid.New().String(),
		Query:      query,
		EntityType: t,
		EntityName: name,
		CreatedAt:  r.now().UTC(),
	}

	resp, err := r.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{{Role: "user", Content: query}},
	})
	if err != nil {
		rec.Status = model.ResearchFailed
		rec.Error = err.Error()
		r.record(ctx, rec)
		return nil, model.NewExternalServiceError("research", err)
	}

	rec.Answer = resp.Content()
	var answer map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(rec.Answer)), &answer); err != nil {
		rec.Status = model.ResearchFailed
		rec.Error = err.Error()
		r.record(ctx, rec)
		return nil, model.NewExternalServiceError("research", eris.Wrap(err, "parse research answer"))
	}
	rec.Status = model.ResearchCompleted
	r.record(ctx, rec)

	snippet := "web research"
	if len(resp.Citations) > 0 {
		snippet = "web research: " + strings.Join(resp.Citations, " ")
	}

	out := &Research{SessionID: rec.ID}
	for _, f := range fields {
		v, ok := answer[f]
		if !ok {
			continue
		}
		if _, present := model.ValueString(v); !present {
			continue
		}
		out.Fields = append(out.Fields, model.ExtractedField{
			Name:          f,
			Value:         v,
			Confidence:    policy.ConfidenceImplied,
			Source:        model.SourceURL,
			SourceSnippet: snippet,
		})
	}
	return out, nil
}

func (r *Researcher) record(ctx context.Context, rec *model.ResearchSession) {
	if err := r.sessions.CreateResearchSession(ctx, rec); err != nil {
		zap.L().Warn("curator: record research session failed",
			zap.String("entity_type", string(rec.EntityType)),
			zap.String("entity_name", rec.EntityName),
			zap.Error(err),
		)
	}
}
