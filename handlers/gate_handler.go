package handlers

import (
	"context"
	"net/http"

	"github.com/upb/action-gate/middleware"
	"github.com/upb/action-gate/services/gating"
	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

// GateEvaluator runs one gating evaluation
type GateEvaluator interface {
	Evaluate(ctx context.Context, userID int64, actionName, contextKey string, gctx gating.GatingContext) (*gating.Decision, error)
}

// EscalationStateReader reads a user's escalation state
type EscalationStateReader interface {
	State(ctx context.Context, userID int64) (gating.EscalationState, error)
}

// EvaluateRequest is the body of POST /api/v1/gate/evaluate
type EvaluateRequest struct {
	UserID     int64                  `json:"user_id" validate:"required,gte=1"`
	ActionName string                 `json:"action_name" validate:"required,max=100"`
	ContextKey string                 `json:"context_key" validate:"max=200"`
	Context    map[string]interface{} `json:"context"`
}

// GateHandler exposes the gating engine to trusted callers that perform
// side effects themselves.
type GateHandler struct {
	engine GateEvaluator
	states EscalationStateReader
	logger *zap.Logger
}

// NewGateHandler creates a new GateHandler
func NewGateHandler(engine GateEvaluator, states EscalationStateReader, logger *zap.Logger) *GateHandler {
	return &GateHandler{engine: engine, states: states, logger: logger}
}

// HandleEvaluate handles POST /api/v1/gate/evaluate.
// Escalated users short-circuit without touching counters or the oracle.
func (h *GateHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EvaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	state, err := h.states.State(ctx, req.UserID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if state == gating.StateEscalated {
		_ = utils.WriteOK(w, &gating.Decision{
			Outcome: gating.OutcomeDeniedEscalate,
			Message: gating.EscalationMessage,
		})
		return
	}

	decision, err := h.engine.Evaluate(ctx, req.UserID, req.ActionName, req.ContextKey, gating.GatingContext(req.Context))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("gate evaluated via api",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.Int64("caller_id", middleware.GetUserIDFromContext(ctx)),
		zap.Int64("user_id", req.UserID),
		zap.String("outcome", string(decision.Outcome)))
	_ = utils.WriteOK(w, decision)
}
