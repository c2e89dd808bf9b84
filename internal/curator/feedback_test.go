package curator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/policy"
)

func TestPatterns(t *testing.T) {
	t.Parallel()
	counts := []model.FeedbackCounts{
		{FieldName: "description", Good: 3, Bad: 1, Partial: 0},
		{FieldName: "buying_model", Good: 1, Bad: 1, Partial: 2},
		{FieldName: policy.OverallFieldName, Good: 1, Bad: 0, Partial: 1},
		{FieldName: "notes"},
	}

	got := Patterns(counts, 0)
	require.Len(t, got, 3)

	assert.Equal(t, "buying_model", got[0].FieldName)
	assert.Equal(t, 4, got[0].Total)
	assert.InDelta(t, 0.5, got[0].SuccessRate, 1e-9)

	assert.Equal(t, "description", got[1].FieldName)
	assert.InDelta(t, 0.75, got[1].SuccessRate, 1e-9)

	assert.Equal(t, policy.OverallFieldName, got[2].FieldName)
	assert.InDelta(t, 0.75, got[2].SuccessRate, 1e-9)

	assert.Len(t, Patterns(counts, 1), 1)
	assert.Empty(t, Patterns(nil, 5))
	assert.NotNil(t, Patterns(nil, 5))
}

func TestService_Feedback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestService(t, testConfig())

	_, err := ts.RecordFeedback(ctx, FeedbackInput{FeedbackType: model.FeedbackGood})
	assert.True(t, model.IsValidation(err))
	_, err = ts.RecordFeedback(ctx, FeedbackInput{ResearchSessionID: "r1", FeedbackType: "meh"})
	assert.True(t, model.IsValidation(err))

	for _, in := range []FeedbackInput{
		{ResearchSessionID: "r1", FeedbackType: model.FeedbackGood, FieldName: "description", MarkedBy: "ana"},
		{ResearchSessionID: "r1", FeedbackType: model.FeedbackPartial, FieldName: "description"},
		{ResearchSessionID: "r2", FeedbackType: model.FeedbackBad, FieldName: " "},
	} {
		rec, err := ts.RecordFeedback(ctx, in)
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
	}

	bySession, err := ts.FeedbackForSession(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	bad, err := ts.ListFeedback(ctx, model.FeedbackFilter{Type: model.FeedbackBad})
	require.NoError(t, err)
	require.Len(t, bad, 1)
	assert.Empty(t, bad[0].FieldName)

	_, err = ts.ListFeedback(ctx, model.FeedbackFilter{Type: "meh"})
	assert.True(t, model.IsValidation(err))

	patterns, err := ts.FeedbackPatterns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, "description", patterns[0].FieldName)
	assert.InDelta(t, 0.75, patterns[0].SuccessRate, 1e-9)
	assert.Equal(t, policy.OverallFieldName, patterns[1].FieldName)
	assert.Zero(t, patterns[1].SuccessRate)

	require.NoError(t, ts.DeleteFeedback(ctx, bad[0].ID))
	assert.True(t, model.IsNotFound(ts.DeleteFeedback(ctx, bad[0].ID)))
}
