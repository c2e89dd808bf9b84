package model

import "fmt"

// EntityType names a curated entity table or an enrichment table.
type EntityType string

// Core entity types.
const (
	EntityPlatform   EntityType = "platform"
	EntityIndustry   EntityType = "industry"
	EntityProduct    EntityType = "product"
	EntitySubproduct EntityType = "subproduct"
	EntityTacticType EntityType = "tactic_type"
	EntitySoulDoc    EntityType = "soul_doc"
)

// Enrichment entity types. These are always inserted under a parent.
const (
	EntityPlatformQuirk     EntityType = "platform_quirk"
	EntityIndustryInsight   EntityType = "industry_insight"
	EntityPlatformBuyerNote EntityType = "platform_buyer_note"
	EntityPlatformKPI       EntityType = "platform_kpi"
)

// AllEntityTypes lists every accepted entity type in a stable order.
var AllEntityTypes = []EntityType{
	EntityPlatform,
	EntityIndustry,
	EntityProduct,
	EntitySubproduct,
	EntityTacticType,
	EntitySoulDoc,
	EntityPlatformQuirk,
	EntityIndustryInsight,
	EntityPlatformBuyerNote,
	EntityPlatformKPI,
}

// IndexedTypes are the entity types with a similarity index, in match order.
var IndexedTypes = []EntityType{
	EntityPlatform,
	EntityIndustry,
	EntityProduct,
	EntityTacticType,
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	for _, known := range AllEntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Indexed reports whether t is semantically searchable.
func (t EntityType) Indexed() bool {
	for _, known := range IndexedTypes {
		if t == known {
			return true
		}
	}
	return false
}

// EntityKind is a closed union over the commit behaviours of each entity type.
// Only CoreKind and EnrichmentKind implement it.
type EntityKind interface {
	Type() EntityType
	TableName() string
	isEntityKind()
}

// ParentRef describes an optional foreign key from a core kind to its parent.
type ParentRef struct {
	Type      EntityType
	Table     string
	IDColumn  string // column holding the parent id, e.g. product_id
	NameField string // field carrying a parent name instead of an id, e.g. product
}

// CoreKind is an entity resolved by natural key: created when absent, partially
// updated when present.
type CoreKind struct {
	Entity     EntityType
	Table      string
	NaturalKey string
	NameColumn string
	Columns    []string // writable columns, natural key included
	Parent     *ParentRef
}

// EnrichmentKind is an insert-only fact attached to a parent entity.
type EnrichmentKind struct {
	Entity       EntityType
	Table        string
	ParentType   EntityType
	ParentTable  string
	ParentColumn string
	Columns      []string // writable columns, parent column excluded
	Required     []string
}

// Type implements EntityKind.
func (k CoreKind) Type() EntityType { return k.Entity }

// TableName implements EntityKind.
func (k CoreKind) TableName() string { return k.Table }

func (CoreKind) isEntityKind() {}

// Type implements EntityKind.
func (k EnrichmentKind) Type() EntityType { return k.Entity }

// TableName implements EntityKind.
func (k EnrichmentKind) TableName() string { return k.Table }

func (EnrichmentKind) isEntityKind() {}

// Required returns the minimal fields needed to insert a new row.
func (k CoreKind) Required() []string {
	return []string{k.NameColumn, k.NaturalKey}
}

// HasColumn reports whether col is writable for this kind.
func (k CoreKind) HasColumn(col string) bool { return contains(k.Columns, col) }

// HasColumn reports whether col is writable for this kind.
func (k EnrichmentKind) HasColumn(col string) bool { return contains(k.Columns, col) }

// SelectColumns returns the id followed by every writable column.
func (k CoreKind) SelectColumns() []string {
	cols := []string{"id"}
	cols = append(cols, k.Columns...)
	if k.Parent != nil {
		cols = append(cols, k.Parent.IDColumn)
	}
	return cols
}

// SelectColumns returns the id, the parent column and every writable column.
func (k EnrichmentKind) SelectColumns() []string {
	cols := []string{"id", k.ParentColumn}
	return append(cols, k.Columns...)
}

var (
	platformKind = CoreKind{
		Entity:     EntityPlatform,
		Table:      "platforms",
		NaturalKey: "code",
		NameColumn: "name",
		Columns:    []string{"name", "code", "category", "description", "buying_model", "notes"},
	}
	industryKind = CoreKind{
		Entity:     EntityIndustry,
		Table:      "industries",
		NaturalKey: "code",
		NameColumn: "name",
		Columns:    []string{"name", "code", "description", "seasonality", "buyer_persona", "notes"},
	}
	productKind = CoreKind{
		Entity:     EntityProduct,
		Table:      "products",
		NaturalKey: "data_value",
		NameColumn: "name",
		Columns:    []string{"name", "data_value", "description", "platform", "notes"},
	}
	subproductKind = CoreKind{
		Entity:     EntitySubproduct,
		Table:      "subproducts",
		NaturalKey: "data_value",
		NameColumn: "name",
		Columns:    []string{"name", "data_value", "description", "notes"},
		Parent: &ParentRef{
			Type:      EntityProduct,
			Table:     "products",
			IDColumn:  "product_id",
			NameField: "product",
		},
	}
	tacticTypeKind = CoreKind{
		Entity:     EntityTacticType,
		Table:      "tactic_types",
		NaturalKey: "data_value",
		NameColumn: "name",
		Columns:    []string{"name", "data_value", "description", "kpis", "notes"},
		Parent: &ParentRef{
			Type:      EntitySubproduct,
			Table:     "subproducts",
			IDColumn:  "subproduct_id",
			NameField: "subproduct",
		},
	}
	soulDocKind = CoreKind{
		Entity:     EntitySoulDoc,
		Table:      "soul_docs",
		NaturalKey: "slug",
		NameColumn: "title",
		Columns:    []string{"title", "slug", "doc_type", "content"},
	}
	platformQuirkKind = EnrichmentKind{
		Entity:       EntityPlatformQuirk,
		Table:        "platform_quirks",
		ParentType:   EntityPlatform,
		ParentTable:  "platforms",
		ParentColumn: "platform_id",
		Columns:      []string{"title", "description", "quirk_type", "impact", "workaround"},
		Required:     []string{"title", "description"},
	}
	industryInsightKind = EnrichmentKind{
		Entity:       EntityIndustryInsight,
		Table:        "industry_insights",
		ParentType:   EntityIndustry,
		ParentTable:  "industries",
		ParentColumn: "industry_id",
		Columns:      []string{"title", "content", "insight_type"},
		Required:     []string{"title", "content"},
	}
	platformBuyerNoteKind = EnrichmentKind{
		Entity:       EntityPlatformBuyerNote,
		Table:        "platform_buyer_notes",
		ParentType:   EntityPlatform,
		ParentTable:  "platforms",
		ParentColumn: "platform_id",
		Columns:      []string{"note", "note_type"},
		Required:     []string{"note"},
	}
	platformKPIKind = EnrichmentKind{
		Entity:       EntityPlatformKPI,
		Table:        "platform_kpis",
		ParentType:   EntityPlatform,
		ParentTable:  "platforms",
		ParentColumn: "platform_id",
		Columns:      []string{"metric", "description", "benchmark", "objective"},
		Required:     []string{"metric"},
	}
)

// KindOf returns the commit behaviour for an entity type.
func KindOf(t EntityType) (EntityKind, error) {
	switch t {
	case EntityPlatform:
		return platformKind, nil
	case EntityIndustry:
		return industryKind, nil
	case EntityProduct:
		return productKind, nil
	case EntitySubproduct:
		return subproductKind, nil
	case EntityTacticType:
		return tacticTypeKind, nil
	case EntitySoulDoc:
		return soulDocKind, nil
	case EntityPlatformQuirk:
		return platformQuirkKind, nil
	case EntityIndustryInsight:
		return industryInsightKind, nil
	case EntityPlatformBuyerNote:
		return platformBuyerNoteKind, nil
	case EntityPlatformKPI:
		return platformKPIKind, nil
	}
	return nil, NewValidationError(fmt.Sprintf("unknown entity_type %q", t))
}

// CoreKindOf is KindOf restricted to core kinds.
func CoreKindOf(t EntityType) (CoreKind, bool) {
	k, err := KindOf(t)
	if err != nil {
		return CoreKind{}, false
	}
	ck, ok := k.(CoreKind)
	return ck, ok
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
