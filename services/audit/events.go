package audit

import (
	"context"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services/gating"
	"go.uber.org/zap"
)

var _ gating.DecisionRecorder = (*AuditService)(nil)

// RecordDecision records one gating evaluation. Drops are logged, never returned.
func (s *AuditService) RecordDecision(ctx context.Context, eval gating.Evaluation) {
	entry := models.NewAuditLog(decisionAction(eval), "action").
		WithUser(eval.UserID).
		WithResource(eval.ActionName).
		WithRequest(chimw.GetReqID(ctx)).
		WithLatency(eval.Latency)

	retries := 0
	if d := eval.Decision; d != nil {
		retries = d.RetryCount
		details := map[string]interface{}{"outcome": d.Outcome}
		if d.Reason != "" {
			details["reason"] = d.Reason
		}
		entry.WithDetails(details)
	}
	entry.WithGate(eval.ActionName, eval.ContextKey, retries)
	if eval.Err != nil {
		entry.WithError(eval.Err.Error())
	}

	if err := s.Enqueue(entry); err != nil {
		s.logger.Warn("gating decision not audited",
			zap.Int64("user_id", eval.UserID),
			zap.String("action", eval.ActionName),
			zap.Error(err))
	}
}

func decisionAction(eval gating.Evaluation) models.AuditAction {
	d := eval.Decision
	switch {
	case eval.Err != nil || d == nil:
		return models.AuditActionGateError
	case d.IsAllowed():
		return models.AuditActionGateAllowed
	case d.IsEscalated():
		return models.AuditActionGateEscalated
	}
	return models.AuditActionGateDenied
}

// LogActionExecuted records the side effect performed after an allow
func (s *AuditService) LogActionExecuted(ctx context.Context, userID int64, actionName, contextKey, message string) error {
	return s.Enqueue(models.NewAuditLog(models.AuditActionActionExecuted, "action").
		WithUser(userID).
		WithResource(actionName).
		WithRequest(chimw.GetReqID(ctx)).
		WithGate(actionName, contextKey, 0).
		WithDetails(map[string]interface{}{"message": message}))
}

// LogRuleCreated records a rule authored by actorID
func (s *AuditService) LogRuleCreated(ctx context.Context, rule *models.Rule, actorID int64) error {
	entry := models.NewAuditLog(models.AuditActionRuleCreated, "rule").
		WithResource(rule.ID.String()).
		WithRequest(chimw.GetReqID(ctx)).
		WithDetails(map[string]interface{}{
			"action_name":            rule.ActionName,
			"escalate_after_retries": rule.EscalateAfterRetries,
		})
	return s.Enqueue(withActor(entry, actorID))
}

// LogRuleDeleted records a rule removed by actorID
func (s *AuditService) LogRuleDeleted(ctx context.Context, ruleID uuid.UUID, actorID int64) error {
	entry := models.NewAuditLog(models.AuditActionRuleDeleted, "rule").
		WithResource(ruleID.String()).
		WithRequest(chimw.GetReqID(ctx))
	return s.Enqueue(withActor(entry, actorID))
}

// LogEscalationReset records a user being handed back from a human agent.
// The subject is the user; the operator goes into the details.
func (s *AuditService) LogEscalationReset(ctx context.Context, userID, actorID int64) error {
	entry := models.NewAuditLog(models.AuditActionEscalationReset, "user").
		WithUser(userID).
		WithResource(strconv.FormatInt(userID, 10)).
		WithRequest(chimw.GetReqID(ctx))
	if actorID > 0 {
		entry.WithDetails(map[string]interface{}{"actor_id": actorID})
	}
	return s.Enqueue(entry)
}

// withActor attributes entry to actorID; 0 means the CLI or a system caller
func withActor(entry *models.AuditLog, actorID int64) *models.AuditLog {
	if actorID > 0 {
		entry.WithUser(actorID)
	}
	return entry
}
