package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/action-gate/app"
	"github.com/upb/action-gate/handlers"
	"github.com/upb/action-gate/internal/auth"
	"github.com/upb/action-gate/internal/observability"
	"github.com/upb/action-gate/middleware"
	"github.com/upb/action-gate/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(observability.HTTPMiddleware(deps.Config.Observability.ServiceName))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(deps, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	actionHandler := handlers.NewActionHandler(deps.Actions, deps.Logger)
	ruleHandler := handlers.NewRuleHandler(deps.Rules, deps.Logger)
	gateHandler := handlers.NewGateHandler(deps.Engine, deps.Escalation, deps.Logger)
	escalationHandler := handlers.NewEscalationHandler(deps.Escalation, deps.Audit, deps.Logger)
	auditHandler := handlers.NewAuditHandler(deps.Repos.AuditLogs, deps.Logger)
	authn := deps.AuthMiddleware

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn.RequireAuth)

		r.Route("/actions", func(r chi.Router) {
			r.Use(authn.RequirePermission(auth.PermissionInvokeActions))
			r.Get("/", actionHandler.HandleListActions)
			r.Post("/{name}", actionHandler.HandleInvokeAction)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Use(authn.RequirePermission(auth.PermissionManageRules))
			r.Get("/", ruleHandler.HandleListRules)
			r.Post("/", ruleHandler.HandleCreateRule)
			r.Post("/import", ruleHandler.HandleImportRules)
			r.Get("/{id}", ruleHandler.HandleGetRule)
			r.Delete("/{id}", ruleHandler.HandleDeleteRule)
		})

		r.With(authn.RequirePermission(auth.PermissionEvaluateGate)).
			Post("/gate/evaluate", gateHandler.HandleEvaluate)

		r.Route("/escalations", func(r chi.Router) {
			r.Use(authn.RequirePermission(auth.PermissionManageEscalation))
			r.Get("/", escalationHandler.HandleListEscalated)
			r.Get("/{userID}", escalationHandler.HandleGetStatus)
			r.Post("/{userID}/reset", escalationHandler.HandleEndConversation)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Use(authn.RequirePermission(auth.PermissionReadAudit))
			r.Get("/", auditHandler.HandleListAuditLogs)
			r.Get("/{id}", auditHandler.HandleGetAuditLog)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
