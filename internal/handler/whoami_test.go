package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/model"
)

func TestWhoami(t *testing.T) {
	h := NewWhoamiHandler()

	authCtx := &model.AuthContext{
		CredentialID: "cred-1",
		KeyPrefix:    "abc123",
		TenantID:     "tnt-1",
		TenantSlug:   "acme",
		DisplayName:  "Acme",
		Scopes:       []string{"read", "write"},
		Tier:         "basic",
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req = req.WithContext(auth.ContextWithAuth(req.Context(), authCtx))
	rec := httptest.NewRecorder()

	h.Whoami(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response["credential_id"] != "cred-1" {
		t.Errorf("unexpected credential_id: %v", response["credential_id"])
	}
	if response["tenant_slug"] != "acme" {
		t.Errorf("unexpected tenant_slug: %v", response["tenant_slug"])
	}
	if response["tier"] != "basic" {
		t.Errorf("unexpected tier: %v", response["tier"])
	}

	// The key itself must never be echoed back.
	if _, ok := response["key"]; ok {
		t.Error("response must not contain the key")
	}
	if response["key_prefix"] != "abc123" {
		t.Errorf("unexpected key_prefix: %v", response["key_prefix"])
	}
}

func TestWhoami_Unauthenticated(t *testing.T) {
	h := NewWhoamiHandler()

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	rec := httptest.NewRecorder()

	h.Whoami(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response["error_type"] != "authentication_error" {
		t.Errorf("unexpected error_type: %v", response["error_type"])
	}
}
