package curator

import (
	"context"
	"net/url"
	"strings"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

// Authority scores per tier.
const (
	scoreAuthoritative = 0.95
	scoreStandard      = 0.70
	scoreLimited       = 0.40
	scoreUserProvided  = 0.60
)

// authoritativeDomains publish first-party platform documentation or
// measurement standards.
var authoritativeDomains = []string{
	"facebook.com", "meta.com", "instagram.com", "google.com", "youtube.com",
	"linkedin.com", "tiktok.com", "microsoft.com", "bing.com", "amazon.com",
	"snapchat.com", "pinterest.com", "spotify.com", "pandora.com", "thetradedesk.com",
	"madhive.com", "iab.com", "nielsen.com",
}

// standardDomains are established trade publications.
var standardDomains = []string{
	"adweek.com", "adage.com", "searchengineland.com", "marketingdive.com",
	"emarketer.com", "digiday.com", "hubspot.com", "wordstream.com",
	"socialmediaexaminer.com", "thinkwithgoogle.com",
}

// DomainOf returns the lowercased host of rawURL without a leading "www.".
func DomainOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", model.Validationf("invalid url %q", rawURL)
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www."), nil
}

// AuthorityFor ranks a domain.
func AuthorityFor(domain string) (model.AuthorityTier, float64) {
	switch {
	case strings.HasSuffix(domain, ".gov") || strings.HasSuffix(domain, ".edu"):
		return model.TierAuthoritative, scoreAuthoritative
	case matchesDomain(domain, authoritativeDomains):
		return model.TierAuthoritative, scoreAuthoritative
	case matchesDomain(domain, standardDomains):
		return model.TierStandard, scoreStandard
	}
	return model.TierLimited, scoreLimited
}

func matchesDomain(domain string, list []string) bool {
	for _, d := range list {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// SourceInput creates or refetches a source. Tier and score are derived from
// the domain when not given.
type SourceInput struct {
	URL            string              `json:"url"`
	Title          string              `json:"title,omitempty"`
	AuthorityTier  model.AuthorityTier `json:"authority_tier,omitempty"`
	AuthorityScore *float64            `json:"authority_score,omitempty"`
	Categories     []string            `json:"categories,omitempty"`
}

// LinkInput links a source to an entity.
type LinkInput struct {
	EntityType    model.EntityType `json:"entity_type"`
	EntityID      string           `json:"entity_id"`
	FieldsSourced []string         `json:"fields_sourced,omitempty"`
}

func newSource(in SourceInput) (*model.CuratorSource, error) {
	domain, err := DomainOf(in.URL)
	if err != nil {
		return nil, err
	}
	tier, score := AuthorityFor(domain)
	if in.AuthorityTier != "" {
		if !in.AuthorityTier.Valid() {
			return nil, model.Validationf("unknown authority_tier %q", in.AuthorityTier)
		}
		tier = in.AuthorityTier
		if tier == model.TierUserProvided {
			score = scoreUserProvided
		}
	}
	if in.AuthorityScore != nil {
		if *in.AuthorityScore < 0 || *in.AuthorityScore > 1 {
			return nil, model.Validationf("authority_score must be between 0 and 1, got %v", *in.AuthorityScore)
		}
		score = *in.AuthorityScore
	}
	return &model.CuratorSource{
		URL:            strings.TrimSpace(in.URL),
		Domain:         domain,
		Title:          in.Title,
		AuthorityTier:  tier,
		AuthorityScore: score,
		Categories:     in.Categories,
	}, nil
}

// ListSources lists sources, highest authority first.
func (s *Service) ListSources(ctx context.Context, filter model.SourceFilter) ([]model.CuratorSource, error) {
	if filter.Tier != "" && !filter.Tier.Valid() {
		return nil, model.Validationf("unknown authority_tier %q", filter.Tier)
	}
	return s.store.ListSources(ctx, filter)
}

// GetSource returns one source.
func (s *Service) GetSource(ctx context.Context, id string) (*model.CuratorSource, error) {
	return s.store.GetSource(ctx, id)
}

// CreateSource upserts a source by URL; a known URL has its fetch count
// incremented.
func (s *Service) CreateSource(ctx context.Context, in SourceInput) (*model.CuratorSource, error) {
	src, err := newSource(in)
	if err != nil {
		return nil, err
	}
	return s.store.UpsertSource(ctx, src)
}

// UpdateSource applies a partial update.
func (s *Service) UpdateSource(ctx context.Context, id string, u model.SourceUpdate) (*model.CuratorSource, error) {
	return s.store.UpdateSource(ctx, id, u)
}

// DeleteSource removes a source and its entity links.
func (s *Service) DeleteSource(ctx context.Context, id string) error {
	return s.store.DeleteSource(ctx, id)
}

// LinkSource records that a source informed an entity.
func (s *Service) LinkSource(ctx context.Context, sourceID string, in LinkInput) (*model.EntitySource, error) {
	if !in.EntityType.Valid() {
		return nil, model.Validationf("unknown entity_type %q", in.EntityType)
	}
	if in.EntityID == "" {
		return nil, model.NewValidationError("entity_id is required")
	}
	if _, err := s.store.GetSource(ctx, sourceID); err != nil {
		return nil, err
	}
	return s.store.LinkSource(ctx, &model.EntitySource{
		SourceID:      sourceID,
		EntityType:    in.EntityType,
		EntityID:      in.EntityID,
		FieldsSourced: in.FieldsSourced,
	})
}
