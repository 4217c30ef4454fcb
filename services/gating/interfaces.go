package gating

import (
	"context"
	"time"

	"github.com/upb/action-gate/models"
)

// GatingContext is the per-call bundle of named entities handed to the oracle,
// e.g. {"order": ..., "user": ...}. It is never persisted.
type GatingContext map[string]interface{}

// RuleStore loads the rules registered for an action
type RuleStore interface {
	// RulesForAction returns all rules for the action, newest first.
	// An empty slice means the action is ungated.
	RulesForAction(ctx context.Context, actionName string) ([]*models.Rule, error)
}

// RetryStore owns the per (user, action, context) attempt counters
type RetryStore interface {
	// IncrementAndGet atomically bumps the counter for the key and returns the new value (>= 1)
	IncrementAndGet(ctx context.Context, userID int64, actionName, contextKey string) (int, error)
}

// DecisionOracle judges whether the combined rule text holds for the given context at asOf
type DecisionOracle interface {
	Judge(ctx context.Context, payload GatingContext, ruleText string, asOf time.Time) (bool, error)
}

// UserStore persists the per-user escalation flag
type UserStore interface {
	// SetEscalated writes the flag and reports whether the stored value changed
	SetEscalated(ctx context.Context, userID int64, escalated bool) (bool, error)

	// IsEscalated reads the flag
	IsEscalated(ctx context.Context, userID int64) (bool, error)

	// ListEscalated returns every user currently routed to a human agent
	ListEscalated(ctx context.Context) ([]*models.User, error)
}

// Notifier announces Normal -> Escalated transitions to the human-agent channel
type Notifier interface {
	NotifyEscalation(ctx context.Context, event EscalationEvent) error
}

// DecisionRecorder receives every evaluation outcome, including failures
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, eval Evaluation)
}

// Evaluation describes one completed call to Engine.Evaluate
type Evaluation struct {
	UserID     int64
	ActionName string
	ContextKey string
	Decision   *Decision
	Err        error
	Latency    time.Duration
}
