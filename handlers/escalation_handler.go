package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/action-gate/middleware"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services/gating"
	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

// EscalationManager drives the escalation state machine
type EscalationManager interface {
	State(ctx context.Context, userID int64) (gating.EscalationState, error)
	Reset(ctx context.Context, userID int64) error
	ListEscalated(ctx context.Context) ([]*models.User, error)
}

// EscalationAuditor records conversation resets
type EscalationAuditor interface {
	LogEscalationReset(ctx context.Context, userID, actorID int64) error
}

// EscalationStatus is the escalation state of one user
type EscalationStatus struct {
	UserID int64                  `json:"user_id"`
	State  gating.EscalationState `json:"state"`
}

// EscalationHandler handles escalation HTTP requests
type EscalationHandler struct {
	escalation EscalationManager
	audit      EscalationAuditor
	logger     *zap.Logger
}

// NewEscalationHandler creates a new EscalationHandler. audit may be nil.
func NewEscalationHandler(escalation EscalationManager, audit EscalationAuditor, logger *zap.Logger) *EscalationHandler {
	return &EscalationHandler{escalation: escalation, audit: audit, logger: logger}
}

// HandleListEscalated handles GET /api/v1/escalations
func (h *EscalationHandler) HandleListEscalated(w http.ResponseWriter, r *http.Request) {
	users, err := h.escalation.ListEscalated(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, users)
}

// HandleGetStatus handles GET /api/v1/escalations/{userID}
func (h *EscalationHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := int64Param(chi.URLParam(r, "userID"), "user ID")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	state, err := h.escalation.State(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, EscalationStatus{UserID: userID, State: state})
}

// HandleEndConversation handles POST /api/v1/escalations/{userID}/reset.
// Ending the conversation returns the user to the automated flow; retry counters are kept.
func (h *EscalationHandler) HandleEndConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := int64Param(chi.URLParam(r, "userID"), "user ID")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := h.escalation.Reset(ctx, userID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	actorID := middleware.GetUserIDFromContext(ctx)
	if h.audit != nil {
		if err := h.audit.LogEscalationReset(ctx, userID, actorID); err != nil {
			h.logger.Warn("failed to audit escalation reset",
				zap.Int64("user_id", userID),
				zap.Error(err))
		}
	}

	_ = utils.WriteOK(w, EscalationStatus{UserID: userID, State: gating.StateNormal})
}
