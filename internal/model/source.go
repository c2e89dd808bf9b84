package model

import "time"

// AuthorityTier is a coarse trust ranking for a source domain.
type AuthorityTier string

// Authority tiers.
const (
	TierAuthoritative AuthorityTier = "authoritative"
	TierStandard      AuthorityTier = "standard"
	TierLimited       AuthorityTier = "limited"
	TierUserProvided  AuthorityTier = "user_provided"
)

// Valid reports whether t is a known tier.
func (t AuthorityTier) Valid() bool {
	switch t {
	case TierAuthoritative, TierStandard, TierLimited, TierUserProvided:
		return true
	}
	return false
}

// CuratorSource is a URL that content has been pulled from. Unique by URL.
type CuratorSource struct {
	ID             string        `json:"id"`
	URL            string        `json:"url"`
	Domain         string        `json:"domain"`
	Title          string        `json:"title,omitempty"`
	AuthorityTier  AuthorityTier `json:"authority_tier"`
	AuthorityScore float64       `json:"authority_score"`
	FetchCount     int           `json:"fetch_count"`
	Categories     []string      `json:"categories"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// SourceUpdate is a partial update of a source. Nil fields are untouched.
type SourceUpdate struct {
	Title          *string        `json:"title,omitempty"`
	AuthorityTier  *AuthorityTier `json:"authority_tier,omitempty"`
	AuthorityScore *float64       `json:"authority_score,omitempty"`
	Categories     []string       `json:"categories,omitempty"`
}

// EntitySource links a source to an entity it informed.
type EntitySource struct {
	ID            string     `json:"id"`
	SourceID      string     `json:"source_id"`
	EntityType    EntityType `json:"entity_type"`
	EntityID      string     `json:"entity_id"`
	FieldsSourced []string   `json:"fields_sourced"`
	CreatedAt     time.Time  `json:"created_at"`
}

// SourceFilter narrows a source listing.
type SourceFilter struct {
	Tier  AuthorityTier
	Limit int
}
