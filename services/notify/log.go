package notify

import (
	"context"

	"github.com/upb/action-gate/services/gating"
	"go.uber.org/zap"
)

// LogNotifier writes escalation events to the log. It is used when no
// message broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

var _ gating.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyEscalation implements gating.Notifier
func (n *LogNotifier) NotifyEscalation(ctx context.Context, event gating.EscalationEvent) error {
	n.logger.Info("human agent requested",
		zap.Int64("user_id", event.UserID),
		zap.String("action", event.ActionName),
		zap.String("context_key", event.ContextKey),
		zap.Int("retry_count", event.RetryCount),
		zap.Time("occurred_at", event.OccurredAt))
	return nil
}
