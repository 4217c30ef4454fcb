package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of event being audited
type AuditAction string

const (
	AuditActionGateAllowed     AuditAction = "gate_allowed"
	AuditActionGateDenied      AuditAction = "gate_denied"
	AuditActionGateEscalated   AuditAction = "gate_escalated"
	AuditActionGateError       AuditAction = "gate_error"
	AuditActionActionExecuted  AuditAction = "action_executed"
	AuditActionRuleCreated     AuditAction = "rule_created"
	AuditActionRuleDeleted     AuditAction = "rule_deleted"
	AuditActionEscalationReset AuditAction = "escalation_reset"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       *int64          `json:"user_id,omitempty" db:"user_id"`
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"` // rule, action, user
	ResourceID   string          `json:"resource_id,omitempty" db:"resource_id"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"` // JSONB for flexible metadata
	RequestID    string          `json:"request_id" db:"request_id"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`

	// Gating-specific fields
	ActionName   *string `json:"action_name,omitempty" db:"action_name"`
	ContextKey   *string `json:"context_key,omitempty" db:"context_key"`
	RetryCount   *int    `json:"retry_count,omitempty" db:"retry_count"`
	LatencyMs    *int    `json:"latency_ms,omitempty" db:"latency_ms"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, resourceType string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		Timestamp:    time.Now().UTC(),
	}
}

// WithUser sets the user ID
func (a *AuditLog) WithUser(userID int64) *AuditLog {
	a.UserID = &userID
	return a
}

// WithResource sets the resource ID
func (a *AuditLog) WithResource(resourceID string) *AuditLog {
	a.ResourceID = resourceID
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID string) *AuditLog {
	a.RequestID = requestID
	return a
}

// WithGate sets the gated action, its context key and the retry count observed
func (a *AuditLog) WithGate(actionName, contextKey string, retryCount int) *AuditLog {
	a.ActionName = &actionName
	a.ContextKey = &contextKey
	if retryCount > 0 {
		a.RetryCount = &retryCount
	}
	return a
}

// WithLatency sets the evaluation latency
func (a *AuditLog) WithLatency(d time.Duration) *AuditLog {
	ms := int(d.Milliseconds())
	a.LatencyMs = &ms
	return a
}

// WithError sets error information
func (a *AuditLog) WithError(errorMessage string) *AuditLog {
	a.ErrorMessage = &errorMessage
	return a
}
