package handler

import (
	"net/http"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/gate"
	"github.com/keygate/keygate/internal/middleware"
)

// WhoamiHandler answers identity introspection requests.
type WhoamiHandler struct{}

// NewWhoamiHandler creates a new WhoamiHandler.
func NewWhoamiHandler() *WhoamiHandler {
	return &WhoamiHandler{}
}

// Whoami handles GET /v1/auth/me. It echoes the identity the gate resolved
// for this request; the key itself is never echoed back.
func (h *WhoamiHandler) Whoami(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		middleware.WriteError(w, http.StatusUnauthorized, gate.ErrorTypeAuthentication,
			"Authentication required.", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"credential_id": authCtx.CredentialID,
		"key_prefix":    authCtx.KeyPrefix,
		"tenant_id":     authCtx.TenantID,
		"tenant_slug":   authCtx.TenantSlug,
		"display_name":  authCtx.DisplayName,
		"scopes":        authCtx.Scopes,
		"tier":          authCtx.Tier,
		"expires_at":    authCtx.ExpiresAt,
	})
}
