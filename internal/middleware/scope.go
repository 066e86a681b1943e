package middleware

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/gate"
	"github.com/keygate/keygate/internal/model"
)

// RequireScope returns middleware that enforces scope requirements.
// Must be applied after the Gate middleware. If multiple scopes are
// provided, having ANY of them is sufficient.
func RequireScope(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				// Reachable only when enforcement is disabled and no key
				// was presented; scoped surfaces still demand an identity.
				WriteError(w, http.StatusUnauthorized, gate.ErrorTypeAuthentication,
					"Authentication required.", nil)
				return
			}

			// Admin scope grants all permissions
			if slices.Contains(authCtx.Scopes, model.ScopeAdmin) {
				next.ServeHTTP(w, r)
				return
			}

			for _, req := range required {
				if slices.Contains(authCtx.Scopes, req) {
					next.ServeHTTP(w, r)
					return
				}
			}

			WriteError(w, http.StatusForbidden, gate.ErrorTypeAuthorization,
				fmt.Sprintf("Insufficient permissions. Required scope: %s.", required[0]),
				map[string]any{"required_scope": required[0]})
		})
	}
}

// RequireRead is a convenience middleware for read scope.
func RequireRead() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeRead)
}

// RequireWrite is a convenience middleware for write scope.
func RequireWrite() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeWrite)
}

// RequireAdmin is a convenience middleware for admin scope.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeAdmin)
}
