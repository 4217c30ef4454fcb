package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultEscalateAfterRetries is applied when a rule is authored without a threshold.
const DefaultEscalateAfterRetries = 2

// Rule is an operator-authored, free-text condition gating a named action
type Rule struct {
	ID                   uuid.UUID `json:"id" db:"id"`
	ActionName           string    `json:"action_name" db:"action_name"`
	Condition            string    `json:"condition" db:"condition"`
	DenyMessage          *string   `json:"deny_message,omitempty" db:"deny_message"`
	EscalateAfterRetries int       `json:"escalate_after_retries" db:"escalate_after_retries"`
	CreatedBy            *int64    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Rule model
func (Rule) TableName() string {
	return "rules"
}

// NewRule creates a new Rule instance
func NewRule(actionName, condition string, escalateAfterRetries int) *Rule {
	if escalateAfterRetries <= 0 {
		escalateAfterRetries = DefaultEscalateAfterRetries
	}
	now := time.Now().UTC()
	return &Rule{
		ID:                   uuid.New(),
		ActionName:           actionName,
		Condition:            condition,
		EscalateAfterRetries: escalateAfterRetries,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// WithDenyMessage sets the message shown to the user when the rule denies the action
func (r *Rule) WithDenyMessage(msg string) *Rule {
	if msg != "" {
		r.DenyMessage = &msg
	}
	return r
}

// DenyMessageOr returns the rule's deny message, or def when none was authored
func (r *Rule) DenyMessageOr(def string) string {
	if r.DenyMessage == nil || *r.DenyMessage == "" {
		return def
	}
	return *r.DenyMessage
}
