package model

import "time"

// SessionStatus is the lifecycle state of a curator session.
type SessionStatus string

// Session statuses. Only active sessions accept extract and commit calls.
const (
	SessionActive    SessionStatus = "active"
	SessionCommitted SessionStatus = "committed"
	SessionExpired   SessionStatus = "expired"
)

// SessionMessage is one transcript entry.
type SessionMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	FileName  string    `json:"file_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CommittedItem is the historical pointer a session keeps after commit.
type CommittedItem struct {
	ActionID   string     `json:"action_id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Operation  Operation  `json:"operation"`
	BatchID    string     `json:"batch_id"`
}

// CuratorSession owns pending actions until they are committed.
type CuratorSession struct {
	ID             string           `json:"id"`
	Status         SessionStatus    `json:"status"`
	Messages       []SessionMessage `json:"messages"`
	PendingItems   []CuratorAction  `json:"pending_items"`
	CommittedItems []CommittedItem  `json:"committed_items"`
	TokensUsed     int              `json:"tokens_used"`
	TokensLimit    int              `json:"tokens_limit"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
}

// TokensRemaining returns the unused budget, never negative.
func (s *CuratorSession) TokensRemaining() int {
	if s.TokensUsed >= s.TokensLimit {
		return 0
	}
	return s.TokensLimit - s.TokensUsed
}

// Expired reports whether the session's TTL has passed.
func (s *CuratorSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Committed returns the committed item for an action id, if any.
func (s *CuratorSession) Committed(actionID string) (CommittedItem, bool) {
	if actionID == "" {
		return CommittedItem{}, false
	}
	for _, item := range s.CommittedItems {
		if item.ActionID == actionID {
			return item, true
		}
	}
	return CommittedItem{}, false
}

// ResearchStatus is the outcome of a research call.
type ResearchStatus string

// Research statuses.
const (
	ResearchCompleted ResearchStatus = "completed"
	ResearchFailed    ResearchStatus = "failed"
)

// ResearchSession records one web research call made to fill fields.
type ResearchSession struct {
	ID         string         `json:"id"`
	Query      string         `json:"query"`
	EntityType EntityType     `json:"entity_type"`
	EntityName string         `json:"entity_name"`
	Answer     string         `json:"answer,omitempty"`
	Status     ResearchStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
