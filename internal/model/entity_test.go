package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_CoversEveryEntityType(t *testing.T) {
	t.Parallel()

	for _, et := range AllEntityTypes {
		kind, err := KindOf(et)
		require.NoError(t, err, et)
		assert.Equal(t, et, kind.Type())
		assert.NotEmpty(t, kind.TableName())
	}
}

func TestKindOf_Unknown(t *testing.T) {
	t.Parallel()

	_, err := KindOf("campaign")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestKindOf_Variants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		entity     EntityType
		enrichment bool
	}{
		{EntityPlatform, false},
		{EntityIndustry, false},
		{EntityProduct, false},
		{EntitySubproduct, false},
		{EntityTacticType, false},
		{EntitySoulDoc, false},
		{EntityPlatformQuirk, true},
		{EntityIndustryInsight, true},
		{EntityPlatformBuyerNote, true},
		{EntityPlatformKPI, true},
	}
	for _, tt := range tests {
		kind, err := KindOf(tt.entity)
		require.NoError(t, err)
		_, isEnrichment := kind.(EnrichmentKind)
		assert.Equal(t, tt.enrichment, isEnrichment, tt.entity)
	}
}

func TestCoreKind_NaturalKeys(t *testing.T) {
	t.Parallel()

	keys := map[EntityType]string{
		EntityPlatform:   "code",
		EntityIndustry:   "code",
		EntityProduct:    "data_value",
		EntitySubproduct: "data_value",
		EntityTacticType: "data_value",
		EntitySoulDoc:    "slug",
	}
	for et, key := range keys {
		ck, ok := CoreKindOf(et)
		require.True(t, ok, et)
		assert.Equal(t, key, ck.NaturalKey)
		assert.Contains(t, ck.Required(), key)
		assert.True(t, ck.HasColumn(key))
	}

	_, ok := CoreKindOf(EntityPlatformQuirk)
	assert.False(t, ok)
}

func TestEnrichmentKind_Parents(t *testing.T) {
	t.Parallel()

	kind, err := KindOf(EntityIndustryInsight)
	require.NoError(t, err)
	ek := kind.(EnrichmentKind)
	assert.Equal(t, EntityIndustry, ek.ParentType)
	assert.Equal(t, "industries", ek.ParentTable)
	assert.Equal(t, []string{"id", "industry_id", "title", "content", "insight_type"}, ek.SelectColumns())
}

func TestEntityType_Indexed(t *testing.T) {
	t.Parallel()

	assert.True(t, EntityPlatform.Indexed())
	assert.True(t, EntityTacticType.Indexed())
	assert.False(t, EntitySoulDoc.Indexed())
	assert.False(t, EntitySubproduct.Indexed())
	assert.False(t, EntityType("bogus").Valid())
}
