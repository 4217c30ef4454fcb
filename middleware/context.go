package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/action-gate/internal/auth"
)

// Context key type to avoid collisions
type contextKey string

const (
	// PrincipalKey is the context key for the authenticated caller
	PrincipalKey contextKey = "principal"
)

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetPrincipalFromContext retrieves the authenticated caller from context
func GetPrincipalFromContext(ctx context.Context) *auth.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if principal, ok := val.(*auth.Principal); ok {
			return principal
		}
	}
	return nil
}

// WithPrincipal adds the authenticated caller to the context
func WithPrincipal(ctx context.Context, principal *auth.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// GetUserIDFromContext retrieves the caller's user ID, or 0 when unauthenticated
func GetUserIDFromContext(ctx context.Context) int64 {
	if principal := GetPrincipalFromContext(ctx); principal != nil {
		return principal.UserID
	}
	return 0
}
