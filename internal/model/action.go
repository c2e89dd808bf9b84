package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ActionType is the closed set of operations the classifier may emit.
type ActionType string

// Action types.
const (
	ActionCreateEntity  ActionType = "create_entity"
	ActionUpdateField   ActionType = "update_field"
	ActionAddEnrichment ActionType = "add_enrichment"
	ActionResearchFill  ActionType = "research_fill"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionCreateEntity, ActionUpdateField, ActionAddEnrichment, ActionResearchFill:
		return true
	}
	return false
}

// ActionStatus tracks review state of a pending action.
type ActionStatus string

// Action statuses.
const (
	ActionPending  ActionStatus = "pending"
	ActionApproved ActionStatus = "approved"
	ActionRejected ActionStatus = "rejected"
)

// FieldSource identifies where extracted content came from.
type FieldSource string

// Field sources.
const (
	SourceURL    FieldSource = "url"
	SourceFile   FieldSource = "file"
	SourceManual FieldSource = "manual"
)

// Valid reports whether s is a known field source.
func (s FieldSource) Valid() bool {
	return s == SourceURL || s == SourceFile || s == SourceManual
}

// Intent is the classifier's overall reading of the content.
type Intent string

// Intents.
const (
	IntentEnrichment Intent = "enrichment"
	IntentCreation   Intent = "creation"
	IntentMixed      Intent = "mixed"
	IntentUnclear    Intent = "unclear"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentEnrichment, IntentCreation, IntentMixed, IntentUnclear:
		return true
	}
	return false
}

// ExtractedField is one field value proposed for commit.
type ExtractedField struct {
	Name          string      `json:"name"`
	Value         any         `json:"value"`
	Confidence    float64     `json:"confidence"`
	Source        FieldSource `json:"source,omitempty"`
	SourceSnippet string      `json:"source_snippet,omitempty"`
}

// FieldList is an ordered list of fields. It also accepts a plain JSON object
// of name to value, which becomes fields with full confidence and manual source.
type FieldList []ExtractedField

// UnmarshalJSON implements json.Unmarshaler.
func (f *FieldList) UnmarshalJSON(data []byte) error {
	var list []ExtractedField
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("fields must be an array of fields or an object: %w", err)
	}
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(FieldList, 0, len(names))
	for _, name := range names {
		out = append(out, ExtractedField{
			Name:       name,
			Value:      obj[name],
			Confidence: 1,
			Source:     SourceManual,
		})
	}
	*f = out
	return nil
}

// Get returns the field with the given name.
func (f FieldList) Get(name string) (ExtractedField, bool) {
	for _, field := range f {
		if field.Name == name {
			return field, true
		}
	}
	return ExtractedField{}, false
}

// StringValue returns the named field rendered as a string, or "" when absent
// or null.
func (f FieldList) StringValue(name string) string {
	field, ok := f.Get(name)
	if !ok {
		return ""
	}
	s, _ := ValueString(field.Value)
	return s
}

// ValueString renders a field value for a text column. The boolean result is
// false for null values.
func ValueString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t), true
		}
		return string(b), true
	}
}

// TargetEntity identifies an existing row an action applies to.
type TargetEntity struct {
	ID   string     `json:"id"`
	Name string     `json:"name,omitempty"`
	Type EntityType `json:"type,omitempty"`
}

// CuratorAction is one classifier-proposed mutation.
type CuratorAction struct {
	ID               string        `json:"id"`
	ActionType       ActionType    `json:"action_type"`
	EntityType       EntityType    `json:"entity_type"`
	TargetEntity     *TargetEntity `json:"target_entity,omitempty"`
	Fields           FieldList     `json:"fields"`
	Confidence       float64       `json:"confidence"`
	Reasoning        string        `json:"reasoning,omitempty"`
	RequiresResearch bool          `json:"requires_research"`
	Status           ActionStatus  `json:"status"`
}

// SemanticMatch is a single similarity hit for a mention.
type SemanticMatch struct {
	EntityType  EntityType `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	EntityName  string     `json:"entity_name"`
	Similarity  float64    `json:"similarity"`
	MatchedText string     `json:"matched_text"`
}

// MatchContext groups matches by indexed entity type, preserving first-seen order.
type MatchContext map[EntityType][]SemanticMatch

// Empty reports whether no matches were found.
func (m MatchContext) Empty() bool {
	for _, matches := range m {
		if len(matches) > 0 {
			return false
		}
	}
	return true
}

// Flatten returns all matches in indexed-type order.
func (m MatchContext) Flatten() []SemanticMatch {
	var out []SemanticMatch
	for _, t := range IndexedTypes {
		out = append(out, m[t]...)
	}
	return out
}

// SmartResult is the classifier output returned to callers.
type SmartResult struct {
	Intent              Intent          `json:"intent"`
	IntentConfidence    float64         `json:"intent_confidence"`
	MatchedEntities     []SemanticMatch `json:"matched_entities"`
	Actions             []CuratorAction `json:"actions"`
	ClarificationNeeded string          `json:"clarification_needed,omitempty"`
	Summary             string          `json:"summary"`
}

// LegacyItem is the flat extraction shape used by mode=legacy.
type LegacyItem struct {
	EntityType EntityType `json:"entity_type"`
	Fields     FieldList  `json:"fields"`
	Confidence float64    `json:"confidence"`
}

// CommitResult reports the outcome of one action in a batch.
type CommitResult struct {
	ActionID   string     `json:"action_id,omitempty"`
	EntityType EntityType `json:"entity_type"`
	Success    bool       `json:"success"`
	EntityID   string     `json:"entity_id,omitempty"`
	Operation  Operation  `json:"operation,omitempty"`
	Error      string     `json:"error,omitempty"`
	// Replayed is set when the action id was already committed and nothing
	// was applied again.
	Replayed bool `json:"replayed,omitempty"`
}
