package curator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

func TestDomainOf(t *testing.T) {
	t.Parallel()
	got, err := DomainOf(" https://WWW.Facebook.com/business/help ")
	require.NoError(t, err)
	assert.Equal(t, "facebook.com", got)

	for _, bad := range []string{"", "facebook.com", "ftp://files.example.com/x", "https://"} {
		_, err := DomainOf(bad)
		assert.True(t, model.IsValidation(err), bad)
	}
}

func TestAuthorityFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		domain string
		tier   model.AuthorityTier
		score  float64
	}{
		{"facebook.com", model.TierAuthoritative, scoreAuthoritative},
		{"business.linkedin.com", model.TierAuthoritative, scoreAuthoritative},
		{"ftc.gov", model.TierAuthoritative, scoreAuthoritative},
		{"searchengineland.com", model.TierStandard, scoreStandard},
		{"blog.hubspot.com", model.TierStandard, scoreStandard},
		{"notfacebook.com", model.TierLimited, scoreLimited},
		{"randomblog.net", model.TierLimited, scoreLimited},
	}
	for _, tt := range tests {
		tier, score := AuthorityFor(tt.domain)
		assert.Equal(t, tt.tier, tier, tt.domain)
		assert.Equal(t, tt.score, score, tt.domain)
	}
}

func TestService_Sources(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestService(t, testConfig())

	src, err := ts.CreateSource(ctx, SourceInput{URL: "https://adweek.com/ctv-trends", Title: "CTV trends"})
	require.NoError(t, err)
	assert.Equal(t, "adweek.com", src.Domain)
	assert.Equal(t, model.TierStandard, src.AuthorityTier)
	assert.Equal(t, 1, src.FetchCount)

	again, err := ts.CreateSource(ctx, SourceInput{URL: "https://adweek.com/ctv-trends"})
	require.NoError(t, err)
	assert.Equal(t, src.ID, again.ID)
	assert.Equal(t, 2, again.FetchCount)

	manual, err := ts.CreateSource(ctx, SourceInput{URL: "https://notes.example.com/a", AuthorityTier: model.TierUserProvided})
	require.NoError(t, err)
	assert.Equal(t, scoreUserProvided, manual.AuthorityScore)

	_, err = ts.CreateSource(ctx, SourceInput{URL: "https://x.com", AuthorityTier: "gold"})
	assert.True(t, model.IsValidation(err))
	bad := 1.5
	_, err = ts.CreateSource(ctx, SourceInput{URL: "https://x.com", AuthorityScore: &bad})
	assert.True(t, model.IsValidation(err))

	list, err := ts.ListSources(ctx, model.SourceFilter{Tier: model.TierStandard})
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = ts.ListSources(ctx, model.SourceFilter{Tier: "gold"})
	assert.True(t, model.IsValidation(err))

	title := "CTV trends 2026"
	updated, err := ts.UpdateSource(ctx, src.ID, model.SourceUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	platformID := seedEntity(t, ts.store, model.EntityPlatform, map[string]string{"code": "hulu", "name": "Hulu"}, nil)
	link, err := ts.LinkSource(ctx, src.ID, LinkInput{EntityType: model.EntityPlatform, EntityID: platformID, FieldsSourced: []string{"description"}})
	require.NoError(t, err)
	assert.Equal(t, src.ID, link.SourceID)

	_, err = ts.LinkSource(ctx, src.ID, LinkInput{EntityType: "campaign", EntityID: platformID})
	assert.True(t, model.IsValidation(err))
	_, err = ts.LinkSource(ctx, "missing", LinkInput{EntityType: model.EntityPlatform, EntityID: platformID})
	assert.True(t, model.IsNotFound(err))

	require.NoError(t, ts.DeleteSource(ctx, src.ID))
	_, err = ts.GetSource(ctx, src.ID)
	assert.True(t, model.IsNotFound(err))
}
