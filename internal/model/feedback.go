package model

import "time"

// FeedbackType is a reviewer judgment of a research or extraction result.
type FeedbackType string

// Feedback types.
const (
	FeedbackGood    FeedbackType = "good"
	FeedbackBad     FeedbackType = "bad"
	FeedbackPartial FeedbackType = "partial"
)

// Valid reports whether t is a known feedback type.
func (t FeedbackType) Valid() bool {
	return t == FeedbackGood || t == FeedbackBad || t == FeedbackPartial
}

// FeedbackRecord is an append-only reviewer judgment.
type FeedbackRecord struct {
	ID                string       `json:"id"`
	ResearchSessionID string       `json:"research_session_id"`
	FeedbackType      FeedbackType `json:"feedback_type"`
	FieldName         string       `json:"field_name,omitempty"`
	Notes             string       `json:"notes,omitempty"`
	MarkedBy          string       `json:"marked_by,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// FeedbackCounts are raw per-field tallies as read from the store.
type FeedbackCounts struct {
	FieldName string
	Good      int
	Bad       int
	Partial   int
}

// FeedbackPattern is the aggregated judgment for one field.
type FeedbackPattern struct {
	FieldName   string  `json:"field_name"`
	Good        int     `json:"good"`
	Bad         int     `json:"bad"`
	Partial     int     `json:"partial"`
	Total       int     `json:"total"`
	SuccessRate float64 `json:"success_rate"`
}

// FeedbackFilter narrows a feedback listing.
type FeedbackFilter struct {
	Type  FeedbackType
	Limit int
}
