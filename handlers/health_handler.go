package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	readinessTimeout = 5 * time.Second
)

// HealthResponse is the body of both probes
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Pinger checks the external stores the gate depends on, keyed by store name
type Pinger interface {
	Ping(ctx context.Context) map[string]error
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	pinger Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler. A nil pinger means there is
// nothing external to check.
func NewHealthHandler(pinger Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{pinger: pinger, logger: logger}
}

// HandleHealth handles GET /healthz. It never touches a store.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, newHealthResponse(statusHealthy, nil))
}

// HandleReadiness handles GET /readyz; any failing store makes it 503
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	var results map[string]error
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		results = h.pinger.Ping(ctx)
	}

	status, code := statusHealthy, http.StatusOK
	checks := make(map[string]string, len(results))
	for name, err := range results {
		if err == nil {
			checks[name] = statusHealthy
			continue
		}
		h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
		checks[name] = statusUnhealthy
		status, code = statusUnhealthy, http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, code, utils.SuccessResponse{Data: newHealthResponse(status, checks)}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func newHealthResponse(status string, checks map[string]string) HealthResponse {
	return HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
}
