package curator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/policy"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/pkg/anthropic"
)

const classifierSystemPrompt = `You curate a knowledge base of advertising platforms, industries, products, subproducts, tactic types and reference documents.
Given operator content and a list of existing entities that may match it, decide what the content wants to change and extract structured fields.

Entity types and their fields:
%s
Decide actions with this priority:
1. If the content describes a property of an entity listed in the candidates (similarity above %.1f), prefer add_enrichment or update_field on that entity over creating a duplicate.
2. If the content names an entity that is not among the candidates, emit create_entity.
3. If the content mixes both, emit several actions in the order they appear.
4. If you cannot tell which existing entity is meant, set requires_research to true and leave target_entity.id empty. Never guess an id.
5. If the overall intent is ambiguous, set intent to "unclear", ask one direct question in clarification_needed and emit no actions.

Confidence scale for every field and action:
- %.2f-1.00: directly and unambiguously stated
- %.2f-%.2f: strongly implied or standard terminology
- %.2f-%.2f: reasonable inference
- below %.2f: a guess that a human must review

Every field needs a reasoning string citing the text it came from.
For create_entity always include the name field and the natural key (a lowercase slug such as "roofing").
For enrichment types set target_entity to the parent entity.

Respond with a single JSON object matching this schema and nothing else:
%s`

const classifierUserPrompt = `Existing entity candidates:
%s

Content (source: %s):
%s`

// Classifier turns content plus match context into typed curator actions.
type Classifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    string
}

// NewClassifier creates a Classifier for the given model.
func NewClassifier(client anthropic.Client, model string, maxTokens int64) *Classifier {
	return &Classifier{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		system: fmt.Sprintf(classifierSystemPrompt,
			describeEntityTypes(),
			policy.MinSimilarity,
			policy.ConfidenceStated,
			policy.ConfidenceImplied, policy.ConfidenceStated-0.01,
			policy.ConfidenceInferred, policy.ConfidenceImplied-0.01,
			policy.ConfidenceInferred,
			schemaJSON(&classifierOutput{}),
		),
	}
}

// Model returns the model identifier recorded in provenance.
func (c *Classifier) Model() string { return c.model }

// Classification is a validated classifier result and the tokens it used.
type Classification struct {
	Result *model.SmartResult
	Usage  anthropic.TokenUsage
}

// Classify asks the model for actions and validates them. Model and contract
// failures are returned as ExternalServiceError. When the model replied but
// its output was rejected, the returned Classification carries only Usage.
func (c *Classifier) Classify(ctx context.Context, content, matchContext string, source model.FieldSource, mc model.MatchContext) (*Classification, error) {
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    anthropic.CachedSystem(c.system),
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: fmt.Sprintf(classifierUserPrompt, matchContext, source, content),
		}},
	})
	if err != nil {
		return nil, model.NewExternalServiceError("classifier", err)
	}

	var out classifierOutput
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &out); err != nil {
		return &Classification{Usage: resp.Usage}, model.NewExternalServiceError("classifier", eris.Wrap(err, "parse classifier output"))
	}

	result, err := toSmartResult(out, source, mc)
	if err != nil {
		return &Classification{Usage: resp.Usage}, model.NewExternalServiceError("classifier", err)
	}
	return &Classification{Result: result, Usage: resp.Usage}, nil
}

// toSmartResult validates classifier output against the closed enumerations
// and confidence range, then assigns action ids.
func toSmartResult(out classifierOutput, source model.FieldSource, mc model.MatchContext) (*model.SmartResult, error) {
	intent := model.Intent(out.Intent)
	if !intent.Valid() {
		return nil, eris.Errorf("contract violation: unknown intent %q", out.Intent)
	}
	if !policy.ValidConfidence(out.IntentConfidence) {
		return nil, eris.Errorf("contract violation: intent_confidence %v outside [0,1]", out.IntentConfidence)
	}

	known := knownTargets(mc)
	result := &model.SmartResult{
		Intent:              intent,
		IntentConfidence:    out.IntentConfidence,
		ClarificationNeeded: strings.TrimSpace(out.ClarificationNeeded),
		Summary:             out.Summary,
		Actions:             make([]model.CuratorAction, 0, len(out.Actions)),
	}
	for i, a := range out.Actions {
		action, err := toAction(a, source, known)
		if err != nil {
			return nil, eris.Wrapf(err, "action %d", i)
		}
		result.Actions = append(result.Actions, action)
	}
	return result, nil
}

func toAction(a classifiedAction, source model.FieldSource, known map[string]bool) (model.CuratorAction, error) {
	actionType := model.ActionType(a.ActionType)
	if !actionType.Valid() {
		return model.CuratorAction{}, eris.Errorf("contract violation: unknown action_type %q", a.ActionType)
	}
	entityType := model.EntityType(a.EntityType)
	if !entityType.Valid() {
		return model.CuratorAction{}, eris.Errorf("contract violation: unknown entity_type %q", a.EntityType)
	}
	if !policy.ValidConfidence(a.Confidence) {
		return model.CuratorAction{}, eris.Errorf("contract violation: action confidence %v outside [0,1]", a.Confidence)
	}

	fields, err := toFields(a.Fields, source)
	if err != nil {
		return model.CuratorAction{}, err
	}

	action := model.CuratorAction{
		ID:               uuid.New().String(),
		ActionType:       actionType,
		EntityType:       entityType,
		Fields:           fields,
		Confidence:       a.Confidence,
		Reasoning:        a.Reasoning,
		RequiresResearch: a.RequiresResearch,
		Status:           model.ActionPending,
	}

	if a.TargetEntity != nil {
		target := &model.TargetEntity{
			ID:   a.TargetEntity.ID,
			Name: a.TargetEntity.Name,
			Type: model.EntityType(a.TargetEntity.Type),
		}
		if target.ID != "" && !known[target.ID] {
			zap.L().Warn("curator: classifier targeted an unmatched entity id",
				zap.String("entity_type", a.EntityType),
				zap.String("target_id", target.ID),
			)
			target.ID = ""
			action.RequiresResearch = true
		}
		if target.ID != "" || target.Name != "" {
			action.TargetEntity = target
		}
	}

	if actionType == model.ActionCreateEntity {
		deriveNaturalKey(&action)
	}
	return action, nil
}

func toFields(in []classifiedField, source model.FieldSource) (model.FieldList, error) {
	fields := make(model.FieldList, 0, len(in))
	for _, f := range in {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, eris.New("contract violation: field without a name")
		}
		if !policy.ValidConfidence(f.Confidence) {
			return nil, eris.Errorf("contract violation: field %s confidence %v outside [0,1]", name, f.Confidence)
		}
		if strings.TrimSpace(f.Reasoning) == "" {
			return nil, eris.Errorf("contract violation: field %s has no reasoning", name)
		}
		fields = append(fields, model.ExtractedField{
			Name:          name,
			Value:         f.Value,
			Confidence:    f.Confidence,
			Source:        source,
			SourceSnippet: f.Reasoning,
		})
	}
	return fields, nil
}

// deriveNaturalKey adds a slug key to a core create action that has a name
// but no key.
func deriveNaturalKey(action *model.CuratorAction) {
	kind, ok := model.CoreKindOf(action.EntityType)
	if !ok || action.Fields.StringValue(kind.NaturalKey) != "" {
		return
	}
	name := action.Fields.StringValue(kind.NameColumn)
	if name == "" {
		return
	}
	key := Slugify(name, keySeparator(kind.NaturalKey))
	if key == "" {
		return
	}
	action.Fields = append(action.Fields, model.ExtractedField{
		Name:          kind.NaturalKey,
		Value:         key,
		Confidence:    policy.DerivedKeyConfidence,
		Source:        fieldSourceOf(action.Fields),
		SourceSnippet: fmt.Sprintf("derived from %s %q", kind.NameColumn, name),
	})
}

func fieldSourceOf(fields model.FieldList) model.FieldSource {
	for _, f := range fields {
		if f.Source != "" {
			return f.Source
		}
	}
	return model.SourceManual
}

func knownTargets(mc model.MatchContext) map[string]bool {
	known := make(map[string]bool)
	for _, m := range mc.Flatten() {
		known[m.EntityID] = true
	}
	return known
}

// cleanJSON strips code fences and surrounding prose from a model response.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
