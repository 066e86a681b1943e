package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/gate"
	"github.com/keygate/keygate/internal/model"
)

func scopedRequest(scopes []string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/tenants", nil)
	if scopes == nil {
		return req
	}
	ctx := auth.ContextWithAuth(req.Context(), &model.AuthContext{
		CredentialID: "cred-1",
		Scopes:       scopes,
	})
	return req.WithContext(ctx)
}

func TestRequireScope(t *testing.T) {
	tests := []struct {
		name       string
		scopes     []string // nil = unauthenticated
		required   string
		wantStatus int
	}{
		{"has scope", []string{model.ScopeWrite}, model.ScopeWrite, http.StatusOK},
		{"admin implies any scope", []string{model.ScopeAdmin}, model.ScopeWrite, http.StatusOK},
		{"missing scope", []string{model.ScopeRead}, model.ScopeWrite, http.StatusForbidden},
		{"no identity", nil, model.ScopeRead, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireScope(tt.required)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, scopedRequest(tt.scopes))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}

			if tt.wantStatus == http.StatusForbidden {
				var body map[string]any
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatal(err)
				}
				if body["error_type"] != gate.ErrorTypeAuthorization {
					t.Errorf("unexpected error_type: %v", body["error_type"])
				}
				details, _ := body["details"].(map[string]any)
				if details == nil || details["required_scope"] != tt.required {
					t.Errorf("unexpected details: %v", body["details"])
				}
			}
		})
	}
}

func TestRequireScope_AnyOf(t *testing.T) {
	handler := RequireScope(model.ScopeRead, model.ScopeWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, scopedRequest([]string{model.ScopeWrite}))

	if rec.Code != http.StatusOK {
		t.Errorf("any of the listed scopes should suffice, got %d", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, scopedRequest([]string{model.ScopeRead, model.ScopeWrite}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("read+write must not reach the admin surface, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, scopedRequest([]string{model.ScopeAdmin}))
	if rec.Code != http.StatusOK {
		t.Errorf("admin scope should pass, got %d", rec.Code)
	}
}
