package gating

import (
	"context"
	"errors"
	"time"

	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"github.com/upb/action-gate/services"
	"go.uber.org/zap"
)

// EscalationState is a user's position in the escalation lifecycle
type EscalationState string

const (
	StateNormal    EscalationState = "normal"
	StateEscalated EscalationState = "escalated"
)

// EscalationEvent is published when a user moves from Normal to Escalated
type EscalationEvent struct {
	UserID     int64     `json:"user_id"`
	ActionName string    `json:"action_name,omitempty"`
	ContextKey string    `json:"context_key,omitempty"`
	RetryCount int       `json:"retry_count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EscalationStateMachine tracks the has_escalated flag of each user.
// Normal -> Escalated fires from the engine's threshold check;
// Escalated -> Normal fires only when the user's conversation ends.
type EscalationStateMachine struct {
	users    UserStore
	notifier Notifier
	logger   *zap.Logger
}

// NewEscalationStateMachine creates a state machine. notifier may be nil.
func NewEscalationStateMachine(users UserStore, notifier Notifier, logger *zap.Logger) *EscalationStateMachine {
	return &EscalationStateMachine{
		users:    users,
		notifier: notifier,
		logger:   logger,
	}
}

// Escalate moves the user to Escalated. Escalating an escalated user is a no-op.
func (m *EscalationStateMachine) Escalate(ctx context.Context, event EscalationEvent) error {
	changed, err := m.users.SetEscalated(ctx, event.UserID, true)
	if err != nil {
		return userStoreError("failed to set escalation flag", err)
	}

	if !changed {
		m.logger.Debug("user already escalated", zap.Int64("user_id", event.UserID))
		return nil
	}

	m.logger.Info("user escalated to human agent",
		zap.Int64("user_id", event.UserID),
		zap.String("action", event.ActionName),
		zap.String("context_key", event.ContextKey),
		zap.Int("retry_count", event.RetryCount))

	if m.notifier == nil {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	// Notification is eventual; the flag is already durable.
	if err := m.notifier.NotifyEscalation(ctx, event); err != nil {
		m.logger.Warn("failed to publish escalation event",
			zap.Int64("user_id", event.UserID),
			zap.Error(err))
	}
	return nil
}

// Reset moves the user back to Normal. Retry counters are untouched.
func (m *EscalationStateMachine) Reset(ctx context.Context, userID int64) error {
	changed, err := m.users.SetEscalated(ctx, userID, false)
	if err != nil {
		return userStoreError("failed to clear escalation flag", err)
	}

	if changed {
		m.logger.Info("escalation reset", zap.Int64("user_id", userID))
	}
	return nil
}

// State returns the user's current escalation state
func (m *EscalationStateMachine) State(ctx context.Context, userID int64) (EscalationState, error) {
	escalated, err := m.users.IsEscalated(ctx, userID)
	if err != nil {
		return "", userStoreError("failed to read escalation flag", err)
	}
	if escalated {
		return StateEscalated, nil
	}
	return StateNormal, nil
}

// ListEscalated returns users waiting for a human agent
func (m *EscalationStateMachine) ListEscalated(ctx context.Context) ([]*models.User, error) {
	users, err := m.users.ListEscalated(ctx)
	if err != nil {
		return nil, services.WrapStorage("failed to list escalated users", err)
	}
	return users, nil
}

func userStoreError(message string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return services.NewDomainError(services.ErrorTypeNotFound, "user not found", err)
	}
	return services.WrapStorage(message, err)
}
