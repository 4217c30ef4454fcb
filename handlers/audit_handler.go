package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

// AuditReader queries the audit trail
type AuditReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)
	GetByRequestID(ctx context.Context, requestID string) ([]*models.AuditLog, error)
	GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*models.AuditLog, error)
	GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error)
	GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditLog, error)
}

// AuditHandler handles audit trail HTTP requests
type AuditHandler struct {
	logs   AuditReader
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(logs AuditReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{logs: logs, logger: logger}
}

// HandleListAuditLogs handles GET /api/v1/audit.
// Filters, first match wins: request_id (unpaginated), user_id, action, or
// since/until (RFC3339) with since defaulting to 24h ago.
func (h *AuditHandler) HandleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit, offset, err := pagination(r)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	var logs []*models.AuditLog
	switch {
	case q.Get("request_id") != "":
		logs, err = h.logs.GetByRequestID(ctx, q.Get("request_id"))

	case q.Get("user_id") != "":
		userID, perr := int64Param(q.Get("user_id"), "user_id")
		if perr != nil {
			_ = utils.WriteBadRequest(w, perr.Error(), nil)
			return
		}
		logs, err = h.logs.GetByUserID(ctx, userID, limit, offset)

	case q.Get("action") != "":
		logs, err = h.logs.GetByAction(ctx, models.AuditAction(q.Get("action")), limit, offset)

	default:
		until := time.Now().UTC()
		since := until.Add(-24 * time.Hour)
		if raw := q.Get("since"); raw != "" {
			if since, err = time.Parse(time.RFC3339, raw); err != nil {
				_ = utils.WriteBadRequest(w, "since must be an RFC3339 timestamp", nil)
				return
			}
		}
		if raw := q.Get("until"); raw != "" {
			if until, err = time.Parse(time.RFC3339, raw); err != nil {
				_ = utils.WriteBadRequest(w, "until must be an RFC3339 timestamp", nil)
				return
			}
		}
		logs, err = h.logs.GetByDateRange(ctx, since, until, limit, offset)
	}

	if err != nil {
		h.logger.Error("failed to query audit logs", zap.Error(err))
		_ = utils.WriteServiceUnavailable(w, "Service temporarily unavailable")
		return
	}
	_ = utils.WriteOK(w, logs)
}

// HandleGetAuditLog handles GET /api/v1/audit/{id}
func (h *AuditHandler) HandleGetAuditLog(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "id must be a UUID", nil)
		return
	}

	entry, err := h.logs.GetByID(r.Context(), id)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		_ = utils.WriteNotFound(w, "audit log not found")
	case err != nil:
		h.logger.Error("failed to get audit log", zap.String("id", id.String()), zap.Error(err))
		_ = utils.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		_ = utils.WriteOK(w, entry)
	}
}
