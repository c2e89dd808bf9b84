package curator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

func TestSessions_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	sessions := NewSessions(st, 5000, time.Hour)

	sess, err := sessions.Open(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, sess.Status)
	assert.Equal(t, 5000, sess.TokensLimit)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, time.Minute)

	require.NoError(t, sessions.Reserve(ctx, sess, 3000))
	assert.Equal(t, 3000, sess.TokensUsed)

	err = sessions.Reserve(ctx, sess, 2500)
	require.Error(t, err)
	assert.True(t, model.IsBudgetExceeded(err))
	assert.Equal(t, 3000, sess.TokensUsed)

	sessions.Reconcile(ctx, sess, 3000, 1200)
	assert.Equal(t, 1200, sess.TokensUsed)
	assert.Equal(t, 3800, sess.TokensRemaining())

	sess.Status = model.SessionCommitted
	require.NoError(t, sessions.Save(ctx, sess))

	got, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1200, got.TokensUsed)

	_, err = sessions.Open(ctx, sess.ID)
	assert.True(t, model.IsValidation(err))
}

func TestSessions_Expiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	sessions := NewSessions(st, 5000, time.Hour)

	start := time.Now()
	sessions.now = func() time.Time { return start }
	sess, err := sessions.Create(ctx)
	require.NoError(t, err)

	sessions.now = func() time.Time { return start.Add(59 * time.Minute) }
	_, err = sessions.Get(ctx, sess.ID)
	require.NoError(t, err)

	sessions.now = func() time.Time { return start.Add(61 * time.Minute) }
	_, err = sessions.Get(ctx, sess.ID)
	assert.True(t, model.IsValidation(err))

	stored, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionExpired, stored.Status)

	loaded, err := sessions.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, model.SessionExpired, loaded.Status)

	_, err = sessions.Open(ctx, sess.ID)
	assert.True(t, model.IsValidation(err))
}

func TestSessions_LoadMarksExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	sessions := NewSessions(st, 5000, time.Hour)

	start := time.Now()
	sessions.now = func() time.Time { return start }
	sess, err := sessions.Create(ctx)
	require.NoError(t, err)

	sessions.now = func() time.Time { return start.Add(2 * time.Hour) }
	loaded, err := sessions.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionExpired, loaded.Status)

	stored, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionExpired, stored.Status)

	_, err = sessions.Load(ctx, "no-such-session")
	assert.True(t, model.IsNotFound(err))
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()
	assert.Equal(t, promptOverheadTokens, estimateTokens(""))
	assert.Equal(t, promptOverheadTokens+2, estimateTokens("ééééééééé"))
}
