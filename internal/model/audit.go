package model

import "time"

// Operation is the kind of mutation recorded in the audit log.
type Operation string

// Audit operations.
const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
)

// FieldChange is a before/after pair for one column. Old is nil on create.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Row is a column snapshot of a stored entity. Values are strings or nil.
type Row map[string]any

// ID returns the row id, or "" when absent.
func (r Row) ID() string {
	if r == nil {
		return ""
	}
	id, _ := r["id"].(string)
	return id
}

// AuditLogEntry is an append-only record of one committed entity mutation.
type AuditLogEntry struct {
	ID           string                 `json:"id"`
	BatchID      string                 `json:"batch_id"`
	Operation    Operation              `json:"operation"`
	EntityType   EntityType             `json:"entity_type"`
	EntityID     string                 `json:"entity_id"`
	FieldChanges map[string]FieldChange `json:"field_changes"`
	FullSnapshot Row                    `json:"full_snapshot"`
	ChangedBy    string                 `json:"changed_by"`
	SessionID    string                 `json:"session_id,omitempty"`
	ActionID     string                 `json:"action_id,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Provenance links one committed field value to the extraction that produced it.
type Provenance struct {
	ID            string      `json:"id"`
	BatchID       string      `json:"batch_id"`
	EntityType    EntityType  `json:"entity_type"`
	EntityID      string      `json:"entity_id"`
	FieldName     string      `json:"field_name"`
	Value         string      `json:"value"`
	Confidence    float64     `json:"confidence"`
	Source        FieldSource `json:"source"`
	SourceSnippet string      `json:"source_snippet,omitempty"`
	Model         string      `json:"model"`
	SessionID     string      `json:"session_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}
