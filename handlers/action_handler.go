package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/action-gate/middleware"
	"github.com/upb/action-gate/services/actions"
	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

// ActionInvoker runs gated actions on behalf of a user
type ActionInvoker interface {
	Definitions() []actions.Definition
	Invoke(ctx context.Context, userID int64, name string, args map[string]interface{}) (*actions.Result, error)
}

// InvokeActionRequest is the body of POST /api/v1/actions/{name}
type InvokeActionRequest struct {
	Arguments map[string]interface{} `json:"arguments"`
}

// ActionHandler handles action HTTP requests
type ActionHandler struct {
	actions ActionInvoker
	logger  *zap.Logger
}

// NewActionHandler creates a new ActionHandler
func NewActionHandler(invoker ActionInvoker, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{actions: invoker, logger: logger}
}

// HandleListActions handles GET /api/v1/actions
func (h *ActionHandler) HandleListActions(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.actions.Definitions())
}

// HandleInvokeAction handles POST /api/v1/actions/{name}.
// The caller always acts as themselves.
func (h *ActionHandler) HandleInvokeAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	userID := middleware.GetUserIDFromContext(ctx)
	name := chi.URLParam(r, "name")

	var req InvokeActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	result, err := h.actions.Invoke(ctx, userID, name, req.Arguments)
	if err != nil {
		h.logger.Warn("action invocation failed",
			zap.String("request_id", requestID),
			zap.Int64("user_id", userID),
			zap.String("action", name),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("action invoked",
		zap.String("request_id", requestID),
		zap.Int64("user_id", userID),
		zap.String("action", name),
		zap.Bool("performed", result.Performed),
		zap.Bool("escalated", result.Escalated))

	_ = utils.WriteOK(w, result)
}
