package models

import "time"

// AuditAction names a mutating workspace action
type AuditAction string

const (
	ActionMatchCreated            AuditAction = "match.created"
	ActionMatchRemoved            AuditAction = "match.removed"
	ActionAutoMatchRun            AuditAction = "automatch.run"
	ActionRuleUpdated             AuditAction = "rule.updated"
	ActionMappingUpdated          AuditAction = "mapping.updated"
	ActionExceptionCreated        AuditAction = "exception.created"
	ActionExceptionUpdated        AuditAction = "exception.updated"
	ActionExceptionStatusChanged  AuditAction = "exception.status_changed"
	ActionTransactionStatusChange AuditAction = "transaction.status_changed"
	ActionExport                  AuditAction = "export"
)

// AuditEvent is one entry of the append-only audit log
type AuditEvent struct {
	ID       string      `json:"id"`
	At       time.Time   `json:"at"`
	Actor    string      `json:"actor"`
	Action   AuditAction `json:"action"`
	EntityID string      `json:"entityId"`
	Detail   string      `json:"detail"`
}
