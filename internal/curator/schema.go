package curator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

// classifierOutput is the JSON document the classifier must return.
type classifierOutput struct {
	Intent              string             `json:"intent" jsonschema:"enum=enrichment,enum=creation,enum=mixed,enum=unclear"`
	IntentConfidence    float64            `json:"intent_confidence" jsonschema:"minimum=0,maximum=1"`
	ClarificationNeeded string             `json:"clarification_needed,omitempty" jsonschema:"description=One direct question when intent is ambiguous"`
	Summary             string             `json:"summary"`
	Actions             []classifiedAction `json:"actions"`
}

type classifiedAction struct {
	ActionType       string            `json:"action_type" jsonschema:"enum=create_entity,enum=update_field,enum=add_enrichment,enum=research_fill"`
	EntityType       string            `json:"entity_type" jsonschema:"enum=platform,enum=industry,enum=product,enum=subproduct,enum=tactic_type,enum=soul_doc,enum=platform_quirk,enum=industry_insight,enum=platform_buyer_note,enum=platform_kpi"`
	TargetEntity     *classifiedTarget `json:"target_entity,omitempty"`
	Fields           []classifiedField `json:"fields"`
	Confidence       float64           `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Reasoning        string            `json:"reasoning"`
	RequiresResearch bool              `json:"requires_research"`
}

type classifiedTarget struct {
	ID   string `json:"id,omitempty" jsonschema:"description=Id copied from the candidate list. Omit when unsure."`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type classifiedField struct {
	Name       string  `json:"name"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Reasoning  string  `json:"reasoning" jsonschema:"description=Quote or paraphrase of the text supporting the value"`
}

// legacyOutput is the flat extraction contract used by mode=legacy.
type legacyOutput struct {
	ExtractedItems []legacyItem `json:"extracted_items"`
}

type legacyItem struct {
	EntityType string            `json:"entity_type" jsonschema:"enum=platform,enum=industry,enum=product,enum=subproduct,enum=tactic_type,enum=soul_doc,enum=platform_quirk,enum=industry_insight,enum=platform_buyer_note,enum=platform_kpi"`
	Fields     []classifiedField `json:"fields"`
	Confidence float64           `json:"confidence" jsonschema:"minimum=0,maximum=1"`
}

// schemaJSON reflects v into an inline JSON Schema document.
func schemaJSON(v any) string {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	b, err := json.MarshalIndent(r.Reflect(v), "", "  ")
	if err != nil {
		panic(fmt.Sprintf("curator: marshal schema: %v", err))
	}
	return string(b)
}

// describeEntityTypes lists every entity type with its writable fields.
func describeEntityTypes() string {
	var b strings.Builder
	for _, t := range model.AllEntityTypes {
		kind, err := model.KindOf(t)
		if err != nil {
			continue
		}
		switch k := kind.(type) {
		case model.CoreKind:
			fmt.Fprintf(&b, "- %s (natural key %q): %s", t, k.NaturalKey, strings.Join(k.Columns, ", "))
			if k.Parent != nil {
				fmt.Fprintf(&b, "; parent %s via %q (name) or %q (id)", k.Parent.Type, k.Parent.NameField, k.Parent.IDColumn)
			}
			if t.Indexed() {
				b.WriteString("; semantically indexed")
			}
		case model.EnrichmentKind:
			fmt.Fprintf(&b, "- %s (enrichment of %s, insert only): %s; required %s",
				t, k.ParentType, strings.Join(k.Columns, ", "), strings.Join(k.Required, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
