package auth

import (
	"context"
	"testing"

	"github.com/keygate/keygate/internal/model"
)

func TestAuthContext_RoundTrip(t *testing.T) {
	authCtx := &model.AuthContext{
		CredentialID: "cred-1",
		TenantID:     "tnt-1",
		TenantSlug:   "acme",
		Scopes:       []string{model.ScopeRead},
		Tier:         model.TierBasic,
	}

	ctx := ContextWithAuth(context.Background(), authCtx)

	got := AuthFromContext(ctx)
	if got == nil {
		t.Fatal("expected auth context, got nil")
	}
	if got.CredentialID != "cred-1" {
		t.Errorf("unexpected credential ID: %s", got.CredentialID)
	}

	if id := TenantIDFromContext(ctx); id != "tnt-1" {
		t.Errorf("unexpected tenant ID: %s", id)
	}
	if id := CredentialIDFromContext(ctx); id != "cred-1" {
		t.Errorf("unexpected credential ID: %s", id)
	}
}

func TestAuthContext_Missing(t *testing.T) {
	ctx := context.Background()

	if AuthFromContext(ctx) != nil {
		t.Error("expected nil auth context")
	}
	if TenantIDFromContext(ctx) != "" {
		t.Error("expected empty tenant ID")
	}
	if CredentialIDFromContext(ctx) != "" {
		t.Error("expected empty credential ID")
	}
}
