package curator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/policy"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/pkg/anthropic"
)

const legacySystemPrompt = `Extract every entity described in the content as a flat list. Do not decide whether entities already exist.

Entity types and their fields:
%s
Give each field a confidence between 0 and 1 and a reasoning string citing the text.
Respond with a single JSON object matching this schema and nothing else:
%s`

// LegacyExtractor implements the flat extraction contract of mode=legacy.
type LegacyExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    string
}

// NewLegacyExtractor creates a LegacyExtractor.
func NewLegacyExtractor(client anthropic.Client, model string, maxTokens int64) *LegacyExtractor {
	return &LegacyExtractor{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		system:    fmt.Sprintf(legacySystemPrompt, describeEntityTypes(), schemaJSON(&legacyOutput{})),
	}
}

// Extract returns flat items, optionally restricted to targetTypes.
func (e *LegacyExtractor) Extract(ctx context.Context, content string, source model.FieldSource, targetTypes []model.EntityType) ([]model.LegacyItem, anthropic.TokenUsage, error) {
	user := content
	if len(targetTypes) > 0 {
		user = fmt.Sprintf("Only extract these entity types: %v\n\n%s", targetTypes, content)
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    anthropic.CachedSystem(e.system),
		Messages:  []anthropic.Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return nil, anthropic.TokenUsage{}, model.NewExternalServiceError("extractor", err)
	}

	var out legacyOutput
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &out); err != nil {
		return nil, resp.Usage, model.NewExternalServiceError("extractor", eris.Wrap(err, "parse extractor output"))
	}

	allowed := make(map[model.EntityType]bool, len(targetTypes))
	for _, t := range targetTypes {
		allowed[t] = true
	}

	items := make([]model.LegacyItem, 0, len(out.ExtractedItems))
	for i, it := range out.ExtractedItems {
		t := model.EntityType(it.EntityType)
		if !t.Valid() {
			return nil, resp.Usage, model.NewExternalServiceError("extractor",
				eris.Errorf("contract violation: item %d has unknown entity_type %q", i, it.EntityType))
		}
		if len(allowed) > 0 && !allowed[t] {
			continue
		}
		if !policy.ValidConfidence(it.Confidence) {
			return nil, resp.Usage, model.NewExternalServiceError("extractor",
				eris.Errorf("contract violation: item %d confidence %v outside [0,1]", i, it.Confidence))
		}
		fields, err := toFields(it.Fields, source)
		if err != nil {
			return nil, resp.Usage, model.NewExternalServiceError("extractor", eris.Wrapf(err, "item %d", i))
		}
		items = append(items, model.LegacyItem{EntityType: t, Fields: fields, Confidence: it.Confidence})
	}
	return items, resp.Usage, nil
}
