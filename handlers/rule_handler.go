package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/action-gate/middleware"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/services/rules"
	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

// RuleService defines the rule authoring operations used over HTTP
type RuleService interface {
	Create(ctx context.Context, actorID int64, in rules.CreateRuleInput) (*models.Rule, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Rule, error)
	List(ctx context.Context, actionName string, limit, offset int) ([]*models.Rule, error)
	Delete(ctx context.Context, actorID int64, id uuid.UUID) error
	Import(ctx context.Context, actorID int64, bundle *rules.Bundle) ([]*models.Rule, error)
}

// importRequest is the JSON form of a rule bundle
type importRequest struct {
	Rules []rules.CreateRuleInput `json:"rules"`
}

// RuleHandler handles rule HTTP requests
type RuleHandler struct {
	rules  RuleService
	logger *zap.Logger
}

// NewRuleHandler creates a new RuleHandler
func NewRuleHandler(svc RuleService, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{rules: svc, logger: logger}
}

// HandleListRules handles GET /api/v1/rules?action=&limit=&offset=
func (h *RuleHandler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	list, err := h.rules.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("action")), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleCreateRule handles POST /api/v1/rules
func (h *RuleHandler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in rules.CreateRuleInput
	if err := decodeJSON(w, r, &in); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	rule, err := h.rules.Create(ctx, middleware.GetUserIDFromContext(ctx), in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("rule created via api",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("rule_id", rule.ID.String()),
		zap.String("action", rule.ActionName))
	_ = utils.WriteCreated(w, rule)
}

// HandleImportRules handles POST /api/v1/rules/import.
// The body is a YAML bundle when Content-Type mentions yaml, JSON otherwise.
func (h *RuleHandler) HandleImportRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var bundle *rules.Bundle
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		decoded, err := rules.DecodeBundle(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		bundle = decoded
	} else {
		var req importRequest
		if err := decodeJSON(w, r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		bundle = &rules.Bundle{Rules: req.Rules}
	}

	created, err := h.rules.Import(ctx, middleware.GetUserIDFromContext(ctx), bundle)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, created)
}

// HandleGetRule handles GET /api/v1/rules/{id}
func (h *RuleHandler) HandleGetRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid rule ID format", nil)
		return
	}

	rule, err := h.rules.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, rule)
}

// HandleDeleteRule handles DELETE /api/v1/rules/{id}
func (h *RuleHandler) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid rule ID format", nil)
		return
	}

	if err := h.rules.Delete(ctx, middleware.GetUserIDFromContext(ctx), id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}
