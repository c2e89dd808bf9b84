package curator

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/store"
)

// promptOverheadTokens approximates the cached system prompt and the match
// context added to every classification.
const promptOverheadTokens = 1500

// estimateTokens is the reservation made before a model call.
func estimateTokens(content string) int {
	return utf8.RuneCountInString(content)/4 + promptOverheadTokens
}

// Sessions manages curator session lifecycle and the token budget.
type Sessions struct {
	store store.SessionStore
	limit int
	ttl   time.Duration
	now   func() time.Time
}

// NewSessions creates a session manager.
func NewSessions(st store.SessionStore, tokenLimit int, ttl time.Duration) *Sessions {
	return &Sessions{store: st, limit: tokenLimit, ttl: ttl, now: time.Now}
}

// Create starts a new active session.
func (s *Sessions) Create(ctx context.Context) (*model.CuratorSession, error) {
	now := s.now().UTC()
	sess := &model.CuratorSession{
		ID:             uuid.New().String(),
		Status:         model.SessionActive,
		Messages:       []model.SessionMessage{},
		PendingItems:   []model.CuratorAction{},
		CommittedItems: []model.CommittedItem{},
		TokensLimit:    s.limit,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Load returns a session in any status. A session whose TTL has passed is
// marked expired first.
func (s *Sessions) Load(ctx context.Context, id string) (*model.CuratorSession, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionExpired && sess.Expired(s.now()) {
		sess.Status = model.SessionExpired
		if err := s.Save(ctx, sess); err != nil {
			zap.L().Warn("curator: mark session expired failed", zap.String("session_id", id), zap.Error(err))
		}
	}
	return sess, nil
}

// Get loads a session for extract or commit. Expired sessions are rejected.
func (s *Sessions) Get(ctx context.Context, id string) (*model.CuratorSession, error) {
	sess, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.SessionExpired {
		return nil, model.Validationf("session %s has expired; start a new session", id)
	}
	return sess, nil
}

// Open returns the active session with the given id, or a new one when id is
// empty.
func (s *Sessions) Open(ctx context.Context, id string) (*model.CuratorSession, error) {
	if id == "" {
		return s.Create(ctx)
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionActive {
		return nil, model.Validationf("session %s is %s; start a new session", id, sess.Status)
	}
	return sess, nil
}

// Save persists the session transcript, items and status.
func (s *Sessions) Save(ctx context.Context, sess *model.CuratorSession) error {
	sess.UpdatedAt = s.now().UTC()
	return s.store.SaveSession(ctx, sess)
}

// Reserve claims n tokens up front or fails with a BudgetExceededError.
func (s *Sessions) Reserve(ctx context.Context, sess *model.CuratorSession, n int) error {
	used, err := s.store.ReserveTokens(ctx, sess.ID, n)
	if err != nil {
		return err
	}
	sess.TokensUsed = used
	return nil
}

// Reconcile replaces a reservation with the tokens actually billed.
func (s *Sessions) Reconcile(ctx context.Context, sess *model.CuratorSession, reserved, actual int) {
	delta := actual - reserved
	if delta == 0 {
		return
	}
	used, err := s.store.AddTokens(ctx, sess.ID, delta)
	if err != nil {
		zap.L().Warn("curator: reconcile token usage failed",
			zap.String("session_id", sess.ID),
			zap.Int("delta", delta),
			zap.Error(err),
		)
		return
	}
	sess.TokensUsed = used
}
