package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldList_UnmarshalArray(t *testing.T) {
	t.Parallel()

	var f FieldList
	err := json.Unmarshal([]byte(`[{"name":"code","value":"roofing","confidence":0.9,"source":"manual"}]`), &f)
	require.NoError(t, err)
	require.Len(t, f, 1)
	assert.Equal(t, "code", f[0].Name)
	assert.Equal(t, 0.9, f[0].Confidence)
}

func TestFieldList_UnmarshalObject(t *testing.T) {
	t.Parallel()

	var f FieldList
	err := json.Unmarshal([]byte(`{"name":"Roofing","code":"roofing"}`), &f)
	require.NoError(t, err)
	require.Len(t, f, 2)
	// Sorted by name for stable ordering.
	assert.Equal(t, "code", f[0].Name)
	assert.Equal(t, "name", f[1].Name)
	assert.Equal(t, 1.0, f[1].Confidence)
	assert.Equal(t, SourceManual, f[1].Source)
}

func TestFieldList_UnmarshalInvalid(t *testing.T) {
	t.Parallel()

	var f FieldList
	err := json.Unmarshal([]byte(`"just a string"`), &f)
	assert.Error(t, err)
}

func TestFieldList_StringValue(t *testing.T) {
	t.Parallel()

	f := FieldList{
		{Name: "name", Value: "Roofing"},
		{Name: "budget", Value: 1500.5},
		{Name: "active", Value: true},
		{Name: "notes", Value: nil},
	}
	assert.Equal(t, "Roofing", f.StringValue("name"))
	assert.Equal(t, "1500.5", f.StringValue("budget"))
	assert.Equal(t, "true", f.StringValue("active"))
	assert.Equal(t, "", f.StringValue("notes"))
	assert.Equal(t, "", f.StringValue("missing"))
}

func TestValueString(t *testing.T) {
	t.Parallel()

	s, ok := ValueString(nil)
	assert.False(t, ok)
	assert.Empty(t, s)

	s, ok = ValueString(float64(7))
	assert.True(t, ok)
	assert.Equal(t, "7", s)

	s, ok = ValueString([]any{"a", "b"})
	assert.True(t, ok)
	assert.Equal(t, `["a","b"]`, s)
}

func TestMatchContext_FlattenOrder(t *testing.T) {
	t.Parallel()

	mc := MatchContext{
		EntityTacticType: {{EntityType: EntityTacticType, EntityID: "t1"}},
		EntityPlatform:   {{EntityType: EntityPlatform, EntityID: "p1"}},
	}
	flat := mc.Flatten()
	require.Len(t, flat, 2)
	assert.Equal(t, "p1", flat[0].EntityID)
	assert.Equal(t, "t1", flat[1].EntityID)
	assert.False(t, mc.Empty())
	assert.True(t, MatchContext{}.Empty())
}

func TestEnumValidity(t *testing.T) {
	t.Parallel()

	assert.True(t, ActionAddEnrichment.Valid())
	assert.False(t, ActionType("delete_entity").Valid())
	assert.True(t, IntentUnclear.Valid())
	assert.False(t, Intent("maybe").Valid())
	assert.True(t, SourceFile.Valid())
	assert.False(t, FieldSource("email").Valid())
	assert.True(t, TierUserProvided.Valid())
	assert.False(t, FeedbackType("meh").Valid())
}
