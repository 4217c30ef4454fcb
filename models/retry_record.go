package models

import (
	"fmt"
	"time"
)

// RetryRecord counts gating evaluations for one (user, action, context) triple.
// Records are never deleted by the engine.
type RetryRecord struct {
	UserID        int64     `json:"user_id" db:"user_id"`
	ActionName    string    `json:"action_name" db:"action_name"`
	ContextKey    string    `json:"context_key" db:"context_key"`
	RetryCount    int       `json:"retry_count" db:"retry_count"`
	LastAttemptAt time.Time `json:"last_attempt_at" db:"last_attempt_at"`
}

// TableName returns the table name for the RetryRecord model
func (RetryRecord) TableName() string {
	return "action_retries"
}

// RetryKey identifies a retry counter
type RetryKey struct {
	UserID     int64
	ActionName string
	ContextKey string
}

// String returns a stable, unambiguous string form of the key. Action name
// and context key are length-prefixed so embedded ':' cannot merge two keys.
func (k RetryKey) String() string {
	return fmt.Sprintf("%d:%d:%s:%d:%s", k.UserID, len(k.ActionName), k.ActionName, len(k.ContextKey), k.ContextKey)
}
