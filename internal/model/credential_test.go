package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCredential_IsUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		cred Credential
		want bool
	}{
		{"active, no expiry", Credential{IsActive: true}, true},
		{"active, future expiry", Credential{IsActive: true, ExpiresAt: &future}, true},
		{"active, past expiry", Credential{IsActive: true, ExpiresAt: &past}, false},
		{"revoked", Credential{IsActive: false}, false},
		{"revoked and expired", Credential{IsActive: false, ExpiresAt: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.IsUsable(now); got != tt.want {
				t.Errorf("IsUsable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCredential_HasScope(t *testing.T) {
	readOnly := Credential{Scopes: []string{ScopeRead}}
	if !readOnly.HasScope(ScopeRead) {
		t.Error("read key should have read scope")
	}
	if readOnly.HasScope(ScopeWrite) {
		t.Error("read key should not have write scope")
	}

	// Admin implies everything.
	admin := Credential{Scopes: []string{ScopeAdmin}}
	for _, scope := range ValidScopes {
		if !admin.HasScope(scope) {
			t.Errorf("admin key should have %s scope", scope)
		}
	}
}

func TestCredential_SecretsNeverSerialized(t *testing.T) {
	cred := Credential{
		ID:           "cred-1",
		SecretDigest: "digest-value",
		SecretHash:   "$argon2id$hash-value",
		KeyPrefix:    "abc123",
	}

	raw, err := json.Marshal(cred)
	if err != nil {
		t.Fatal(err)
	}

	body := string(raw)
	if strings.Contains(body, "digest-value") || strings.Contains(body, "hash-value") {
		t.Errorf("serialized credential leaks secret material: %s", body)
	}
	if !strings.Contains(body, "abc123") {
		t.Error("key prefix should be serialized")
	}
}

func TestCredential_ToResponse(t *testing.T) {
	cred := Credential{
		ID:           "cred-1",
		TenantID:     "tnt-1",
		SecretDigest: "digest",
		SecretHash:   "hash",
		IsActive:     false,
	}

	resp := cred.ToResponse()
	if !resp.Revoked {
		t.Error("inactive credential should report revoked")
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "digest") || strings.Contains(string(raw), "hash") {
		t.Errorf("response leaks secret material: %s", raw)
	}
}

func TestAuthContext_HasScope(t *testing.T) {
	authCtx := AuthContext{Scopes: []string{ScopeAdmin}}
	if !authCtx.HasScope(ScopeWrite) {
		t.Error("admin auth context should imply write scope")
	}

	readCtx := AuthContext{Scopes: []string{ScopeRead}}
	if readCtx.HasScope(ScopeAdmin) {
		t.Error("read auth context should not imply admin scope")
	}
}
