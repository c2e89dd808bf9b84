package curator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/policy"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/pkg/anthropic"
)

var facebookVec = []float32{1, 0, 0, 0}

func TestService_ExtractAndCommitPlatformQuirk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestService(t, testConfig())
	ts.embedder.vectors["facebook"] = facebookVec
	fbID := seedEntity(t, ts.store, model.EntityPlatform, map[string]string{"code": "facebook", "name": "Facebook"}, facebookVec)

	out := classifierOutput{
		Intent:           "enrichment",
		IntentConfidence: 0.92,
		Summary:          "One Facebook quirk.",
		Actions: []classifiedAction{{
			ActionType:   "add_enrichment",
			EntityType:   "platform_quirk",
			TargetEntity: &classifiedTarget{ID: fbID, Name: "Facebook", Type: "platform"},
			Fields: []classifiedField{
				field("title", "Advantage+ ignores exclusions", 0.9, "placements ignore manual exclusions"),
				field("description", "Advantage+ placements ignore manual placement exclusions.", 0.7, "brand safety lists do not apply"),
			},
			Confidence: 0.88,
			Reasoning:  "Behavior specific to Facebook delivery",
		}},
	}
	ts.ai.On("CreateMessage", mock.Anything, promptContains("Facebook (id: "+fbID)).
		Return(reply(t, out, anthropic.TokenUsage{InputTokens: 1200, OutputTokens: 300}), nil).Once()

	resp, err := ts.Extract(ctx, ExtractRequest{
		Content: "Facebook's Advantage+ placements ignore manual exclusions, so brand safety lists do not apply.",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.SmartResult)

	assert.Equal(t, model.IntentEnrichment, resp.SmartResult.Intent)
	require.Len(t, resp.SmartResult.MatchedEntities, 1)
	assert.Equal(t, fbID, resp.SmartResult.MatchedEntities[0].EntityID)
	assert.Equal(t, "Facebook", resp.SmartResult.MatchedEntities[0].MatchedText)

	require.Len(t, resp.SmartResult.Actions, 1)
	action := resp.SmartResult.Actions[0]
	require.NotNil(t, action.TargetEntity)
	assert.Equal(t, fbID, action.TargetEntity.ID)
	assert.Equal(t, model.ActionPending, action.Status)
	assert.NotEmpty(t, action.ID)

	assert.Equal(t, 1500, resp.TokensUsed)
	assert.Equal(t, 98500, resp.TokensRemaining)
	assert.InDelta(t, 0.0081, resp.CostUSD, 1e-9)
	assert.Equal(t, "One Facebook quirk.", resp.Message)

	sess, err := ts.GetSession(ctx, resp.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.PendingItems, 1)
	assert.Len(t, sess.Messages, 2)

	commit, err := ts.Commit(ctx, CommitRequest{SessionID: resp.SessionID, Items: sess.PendingItems})
	require.NoError(t, err)
	assert.Equal(t, 1, commit.CommittedCount)
	assert.Zero(t, commit.CostUSD)
	assert.Equal(t, 0, commit.FailedCount)
	require.Len(t, commit.Results, 1)
	res := commit.Results[0]
	assert.True(t, res.Success)
	assert.Equal(t, model.OperationCreate, res.Operation)

	prov, err := ts.store.ListProvenance(ctx, res.EntityID)
	require.NoError(t, err)
	require.Len(t, prov, 2)
	for _, p := range prov {
		assert.Equal(t, commit.BatchID, p.BatchID)
		assert.Equal(t, resp.SessionID, p.SessionID)
		assert.Equal(t, model.SourceManual, p.Source)
		assert.Equal(t, "claude-sonnet-4-5-20250929", p.Model)
	}

	audit, err := ts.store.ListAudit(ctx, commit.BatchID)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, fbID, audit[0].FullSnapshot["platform_id"])
	assert.Equal(t, "test-curator", audit[0].ChangedBy)

	sess, err = ts.GetSession(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Empty(t, sess.PendingItems)
	assert.Equal(t, model.SessionCommitted, sess.Status)
	require.Len(t, sess.CommittedItems, 1)
	assert.Equal(t, res.EntityID, sess.CommittedItems[0].EntityID)

	// Replaying the same action returns the first result without writing.
	again, err := ts.Commit(ctx, CommitRequest{SessionID: resp.SessionID, Items: []model.CuratorAction{action}})
	require.NoError(t, err)
	require.Len(t, again.Results, 1)
	assert.True(t, again.Results[0].Success)
	assert.Equal(t, res.EntityID, again.Results[0].EntityID)
	replayAudit, err := ts.store.ListAudit(ctx, again.BatchID)
	require.NoError(t, err)
	assert.Empty(t, replayAudit)
}

func TestService_ExtractEnrichesMatchedPlatform(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestService(t, testConfig())
	// Cosine similarity 0.91 against the stored Facebook vector.
	ts.embedder.vectors["facebook"] = []float32{0.91, 0.4146, 0, 0}
	fbID := seedEntity(t, ts.store, model.EntityPlatform, map[string]string{"code": "facebook", "name": "Facebook"}, facebookVec)

	out := classifierOutput{
		Intent:           "enrichment",
		IntentConfidence: 0.93,
		Summary:          "Facebook attribution default.",
		Actions: []classifiedAction{{
			ActionType:   "add_enrichment",
			EntityType:   "platform_quirk",
			TargetEntity: &classifiedTarget{ID: fbID, Name: "Facebook", Type: "platform"},
			Fields: []classifiedField{
				field("title", "Attribution window defaults to 7-day click", 0.95, "attribution window quietly defaults to 7-day click"),
				field("description", "Reports use a 7-day click attribution window unless changed.", 0.8, "quietly defaults"),
			},
			Confidence: 0.92,
			Reasoning:  "A behavior of the matched Facebook platform",
		}},
	}
	ts.ai.On("CreateMessage", mock.Anything, promptContains("Facebook (id: "+fbID+", similarity: 0.91")).
		Return(reply(t, out, anthropic.TokenUsage{InputTokens: 900, OutputTokens: 200}), nil).Once()

	resp, err := ts.Extract(ctx, ExtractRequest{Content: "Facebook's attribution window quietly defaults to 7-day click"})
	require.NoError(t, err)
	r := resp.SmartResult
	require.NotNil(t, r)

	assert.Equal(t, model.IntentEnrichment, r.Intent)
	require.Len(t, r.MatchedEntities, 1)
	assert.InDelta(t, 0.91, r.MatchedEntities[0].Similarity, 1e-3)
	require.Len(t, r.Actions, 1)
	a := r.Actions[0]
	assert.Equal(t, model.ActionAddEnrichment, a.ActionType)
	assert.Equal(t, model.EntityPlatformQuirk, a.EntityType)
	require.NotNil(t, a.TargetEntity)
	assert.Equal(t, fbID, a.TargetEntity.ID)
	assert.False(t, a.RequiresResearch)
	for _, act := range r.Actions {
		assert.NotEqual(t, model.ActionCreateEntity, act.ActionType)
	}
}

func TestService_ExtractCreatesIndustryWithDerivedKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestService(t, testConfig())

	out := classifierOutput{
		Intent:           "creation",
		IntentConfidence: 0.85,
		Actions: []classifiedAction{{
			ActionType: "create_entity",
			EntityType: "industry",
			Fields: []classifiedField{
				field("name", "Roofing", 0.9, "campaigns for the roofing industry"),
				field("seasonality", "Spring and fall peaks", 0.7, "launching this spring"),
			},
			Confidence: 0.8,
			Reasoning:  "No existing industry matched",
		}},
	}
	ts.ai.On("CreateMessage", mock.Anything, promptContains(noMatchesText)).
		Return(reply(t, out, anthropic.TokenUsage{InputTokens: 900, OutputTokens: 100}), nil).Once()

	resp, err := ts.Extract(ctx, ExtractRequest{Content: "We are launching campaigns for the roofing industry this spring."})
	require.NoError(t, err)
	assert.Empty(t, resp.SmartResult.MatchedEntities)
	require.Len(t, resp.SmartResult.Actions, 1)

	action := resp.SmartResult.Actions[0]
	key, ok := action.Fields.Get("code")
	require.True(t, ok)
	assert.Equal(t, "roofing", key.Value)
	assert.Equal(t, policy.DerivedKeyConfidence, key.Confidence)
	assert.Equal(t, "Proposed 1 actions.", resp.Message)

	commit, err := ts.Commit(ctx, CommitRequest{SessionID: resp.SessionID, Items: resp.SmartResult.Actions})
	require.NoError(t, err)
	require.Len(t, commit.Results, 1)
	require.True(t, commit.Results[0].Success, commit.Results[0].Error)
	assert.Equal(t, model.OperationCreate, commit.Results[0].Operation)

	kind, _ := model.CoreKindOf(model.EntityIndustry)
	row, err := ts.store.FindEntityByKey(ctx, kind, "roofing")
	require.NoError(t, err)
	assert.Equal(t, "Roofing", row["name"])
	assert.Equal(t, "Spring and fall peaks", row["seasonality"])

	// New industries are indexed for later matching.
	assert.Contains(t, ts.embedder.documents(), "Roofing")
	matches, err := ts.store.MatchEntities(ctx, model.EntityIndustry, unknownVector, policy.MinSimilarity, policy.MatchCount)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, commit.Results[0].EntityID, matches[0].EntityID)
}

func TestService_ExtractEmptyContent(t *testing.T) {
	t.Parallel()
	ts := newTestService(t, testConfig())

	for _, content := range []string{"", "   \n\t"} {
		_, err := ts.Extract(context.Background(), ExtractRequest{Content: content})
		require.Error(t, err)
		assert.True(t, model.IsValidation(err))
	}
	ts.ai.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestService_ExtractRejectsBadInput(t *testing.T) {
	t.Parallel()
	ts := newTestService(t, testConfig())
	ctx := context.Background()

	_, err := ts.Extract(ctx, ExtractRequest{Content: "x", ContentType: "pdf"})
	assert.True(t, model.IsValidation(err))

	_, err = ts.Extract(ctx, ExtractRequest{Content: "x", Mode: "fast"})
	assert.True(t, model.IsValidation(err))

	_, err = ts.Extract(ctx, ExtractRequest{Content: "x", TargetTypes: []model.EntityType{"campaign"}})
	assert.True(t, model.IsValidation(err))

	_, err = ts.Extract(ctx, ExtractRequest{Content: "x", SessionID: "missing"})
	assert.True(t, model.IsNotFound(err))
}

func TestService_ExtractBudgetExceeded(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Curator.TokenLimit = 1000
	ts := newTestService(t, cfg)

	_, err := ts.Extract(context.Background(), ExtractRequest{Content: "Facebook retargeting notes"})
	require.Error(t, err)
	assert.True(t, model.IsBudgetExceeded(err))
	ts.ai.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestService_ExtractClassifierViolationChargesUsage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestService(t, testConfig())

	sess, err := ts.sessions.Create(ctx)
	require.NoError(t, err)

	ts.ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(reply(t, map[string]any{"intent": "gossip", "intent_confidence": 0.5}, anthropic.TokenUsage{InputTokens: 10}), nil).Once()

	_, err = ts.Extract(ctx, ExtractRequest{SessionID: sess.ID, Content: "TikTok Spark Ads notes"})
	require.Error(t, err)
	assert.True(t, model.IsExternal(err))

	// The reservation is released but the tokens the model spent stay billed.
	got, err := ts.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.TokensUsed)
}

func TestService_ExtractClientErrorRefundsTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestService(t, testConfig())

	sess, err := ts.sessions.Create(ctx)
	require.NoError(t, err)

	ts.ai.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded")).Once()

	_, err = ts.Extract(ctx, ExtractRequest{SessionID: sess.ID, Content: "TikTok Spark Ads notes"})
	require.Error(t, err)
	assert.True(t, model.IsExternal(err))

	got, err := ts.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TokensUsed)
}

func TestService_ExtractExpiredSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestService(t, testConfig())

	ts.sessions.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	sess, err := ts.sessions.Create(ctx)
	require.NoError(t, err)
	ts.sessions.now = time.Now

	_, err = ts.Extract(ctx, ExtractRequest{SessionID: sess.ID, Content: "Hulu CTV notes"})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	got, err := ts.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionExpired, got.Status)

	_, err = ts.Commit(ctx, CommitRequest{SessionID: sess.ID, Items: []model.CuratorAction{{EntityType: model.EntityIndustry}}})
	assert.True(t, model.IsValidation(err))

	// Reading the session still works after expiry.
	row, err := ts.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, row.ID)
	assert.Equal(t, model.SessionExpired, row.Status)
}

func TestService_ExtractURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestService(t, testConfig())
	ts.reader.title = "About Advantage+ placements"
	ts.reader.content = "Advantage+ placements on Facebook expand delivery automatically."

	ts.ai.On("CreateMessage", mock.Anything, promptContains("source: url")).
		Return(reply(t, classifierOutput{Intent: "unclear", IntentConfidence: 0.3, ClarificationNeeded: "Which platform is this about?"}, anthropic.TokenUsage{}), nil).Once()

	resp, err := ts.Extract(ctx, ExtractRequest{
		Content:     "https://www.facebook.com/business/help/advantage-placements",
		ContentType: ContentURL,
	})
	require.NoError(t, err)
	assert.Equal(t, "Which platform is this about?", resp.Message)
	assert.Empty(t, resp.SmartResult.Actions)

	sources, err := ts.ListSources(ctx, model.SourceFilter{})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "facebook.com", sources[0].Domain)
	assert.Equal(t, model.TierAuthoritative, sources[0].AuthorityTier)
	assert.Equal(t, "About Advantage+ placements", sources[0].Title)

	sess, err := ts.GetSession(ctx, resp.SessionID)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Messages)
	assert.Equal(t, "https://www.facebook.com/business/help/advantage-placements", sess.Messages[0].Content)
}

func TestService_ExtractURLReaderFailure(t *testing.T) {
	t.Parallel()
	ts := newTestService(t, testConfig())
	ts.reader.err = errors.New("reader timeout")

	_, err := ts.Extract(context.Background(), ExtractRequest{Content: "https://example.com/post", ContentType: ContentURL})
	require.Error(t, err)
	assert.True(t, model.IsExternal(err))
}

func TestService_ExtractLegacyMode(t *testing.T) {
	t.Parallel()
	ts := newTestService(t, testConfig())

	out := legacyOutput{ExtractedItems: []legacyItem{
		{EntityType: "industry", Fields: []classifiedField{field("name", "HVAC", 0.9, "HVAC advertisers")}, Confidence: 0.9},
		{EntityType: "platform", Fields: []classifiedField{field("name", "Hulu", 0.8, "Hulu placements")}, Confidence: 0.8},
	}}
	ts.ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(reply(t, out, anthropic.TokenUsage{InputTokens: 400, OutputTokens: 100}), nil).Once()

	resp, err := ts.Extract(context.Background(), ExtractRequest{
		Content:     "HVAC advertisers saw strong Hulu placements.",
		Mode:        ModeLegacy,
		TargetTypes: []model.EntityType{model.EntityIndustry},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.SmartResult)
	require.Len(t, resp.ExtractedItems, 1)
	assert.Equal(t, model.EntityIndustry, resp.ExtractedItems[0].EntityType)
	assert.Equal(t, 500, resp.TokensUsed)
}

func TestService_CommitPartialFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestService(t, testConfig())

	items := []model.CuratorAction{
		{
			ID: "a1", ActionType: model.ActionCreateEntity, EntityType: model.EntityIndustry,
			Fields: model.FieldList{
				{Name: "name", Value: "HVAC", Confidence: 0.9},
				{Name: "code", Value: "hvac", Confidence: 0.9},
			},
		},
		{
			ID: "a2", ActionType: model.ActionAddEnrichment, EntityType: model.EntityPlatformQuirk,
			TargetEntity: &model.TargetEntity{Name: "Nonexistent", Type: model.EntityPlatform},
			Fields: model.FieldList{
				{Name: "title", Value: "Quirk", Confidence: 0.9},
				{Name: "description", Value: "Does not matter", Confidence: 0.9},
			},
		},
		{
			ID: "a3", ActionType: model.ActionCreateEntity, EntityType: model.EntityPlatform,
			Fields: model.FieldList{
				{Name: "name", Value: "TikTok", Confidence: 0.9},
				{Name: "code", Value: "tiktok", Confidence: 0.9},
			},
		},
	}

	resp, err := ts.Commit(ctx, CommitRequest{Items: items})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.CommittedCount)
	assert.Equal(t, 1, resp.FailedCount)
	require.Len(t, resp.Results, 3)
	assert.True(t, resp.Results[0].Success)
	assert.False(t, resp.Results[1].Success)
	assert.Contains(t, resp.Results[1].Error, "Nonexistent")
	assert.True(t, resp.Results[2].Success)

	audit, err := ts.store.ListAudit(ctx, resp.BatchID)
	require.NoError(t, err)
	assert.Len(t, audit, 2)
}

func TestService_CommitDuplicateIDsInBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestService(t, testConfig())

	action := model.CuratorAction{
		ID: "dup", ActionType: model.ActionCreateEntity, EntityType: model.EntityPlatform,
		Fields: model.FieldList{{Name: "name", Value: "Roku", Confidence: 0.9}, {Name: "code", Value: "roku", Confidence: 0.9}},
	}
	resp, err := ts.Commit(ctx, CommitRequest{Items: []model.CuratorAction{action, action}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, resp.Results[0].EntityID, resp.Results[1].EntityID)
	assert.False(t, resp.Results[0].Replayed)
	assert.True(t, resp.Results[1].Replayed)
	assert.Equal(t, 2, resp.CommittedCount)

	audit, err := ts.store.ListAudit(ctx, resp.BatchID)
	require.NoError(t, err)
	assert.Len(t, audit, 1)
}

func TestService_CommitReplaysWithoutSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestService(t, testConfig())
	fbID := seedEntity(t, ts.store, model.EntityPlatform, map[string]string{"code": "facebook", "name": "Facebook"}, nil)

	action := model.CuratorAction{
		ID: "same", ActionType: model.ActionAddEnrichment, EntityType: model.EntityPlatformQuirk,
		TargetEntity: &model.TargetEntity{ID: fbID, Type: model.EntityPlatform},
		Fields: model.FieldList{
			{Name: "title", Value: "Attribution window default", Confidence: 0.9},
			{Name: "description", Value: "Attribution window quietly defaults to 7-day click.", Confidence: 0.9},
		},
	}

	first, err := ts.Commit(ctx, CommitRequest{Items: []model.CuratorAction{action}})
	require.NoError(t, err)
	require.True(t, first.Results[0].Success, first.Results[0].Error)

	second, err := ts.Commit(ctx, CommitRequest{Items: []model.CuratorAction{action}})
	require.NoError(t, err)
	require.Len(t, second.Results, 1)
	res := second.Results[0]
	assert.True(t, res.Success)
	assert.True(t, res.Replayed)
	assert.Equal(t, first.Results[0].EntityID, res.EntityID)
	assert.Equal(t, model.OperationCreate, res.Operation)
	assert.Equal(t, 1, second.CommittedCount)

	audit, err := ts.store.ListAudit(ctx, second.BatchID)
	require.NoError(t, err)
	assert.Empty(t, audit)

	prov, err := ts.store.ListProvenance(ctx, res.EntityID)
	require.NoError(t, err)
	assert.Len(t, prov, 2)
}

func TestService_CommitRequiresItems(t *testing.T) {
	t.Parallel()
	ts := newTestService(t, testConfig())

	_, err := ts.Commit(context.Background(), CommitRequest{})
	assert.True(t, model.IsValidation(err))
}
