package gate

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/keygate/keygate/internal/identity"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/quota"
)

type fakeResolver struct {
	auth  *model.AuthContext
	err   error
	calls int
}

func (r *fakeResolver) Resolve(_ context.Context, _ string) (*model.AuthContext, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if r.auth == nil {
		return nil, identity.ErrMissingCredential
	}
	return r.auth, nil
}

// brokenResolver violates the Resolve contract by returning neither an
// identity nor an error.
type brokenResolver struct{}

func (brokenResolver) Resolve(_ context.Context, _ string) (*model.AuthContext, error) {
	return nil, nil
}

type fakeEnforcer struct {
	result *quota.Result
	err    error
	calls  int
}

func (e *fakeEnforcer) Check(_ context.Context, _, _ string) (*quota.Result, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuth() *model.AuthContext {
	return &model.AuthContext{
		CredentialID: "cred-1",
		TenantID:     "tnt-1",
		TenantSlug:   "acme",
		Tier:         model.TierFree,
		Scopes:       []string{model.ScopeRead},
	}
}

func newGate(resolver Resolver, enforcer Enforcer, enforced bool) *Gate {
	return New(resolver, enforcer, []string{"/healthz", "/readyz", "/", "/metrics"}, enforced, &metrics.Noop{}, testLogger())
}

func TestAuthorize_ExemptPath(t *testing.T) {
	resolver := &fakeResolver{}
	g := newGate(resolver, &fakeEnforcer{}, true)

	for _, path := range []string{"/healthz", "/readyz", "/", "/metrics"} {
		d := g.Authorize(context.Background(), "", path)
		if !d.Allowed || !d.Exempt {
			t.Errorf("path %s: expected exempt allow, got %+v", path, d)
		}
	}

	if resolver.calls != 0 {
		t.Errorf("exempt paths must not resolve identities, got %d calls", resolver.calls)
	}

	// Matching is exact, not prefix.
	d := g.Authorize(context.Background(), "", "/healthz/sub")
	if d.Exempt {
		t.Error("/healthz/sub should not be exempt")
	}
}

func TestAuthorize_AllowedWithQuota(t *testing.T) {
	g := newGate(
		&fakeResolver{auth: testAuth()},
		&fakeEnforcer{result: &quota.Result{Allowed: true, Remaining: 9}},
		true,
	)

	d := g.Authorize(context.Background(), "Bearer key", "/v1/auth/me")
	if !d.Allowed {
		t.Fatalf("expected allow, got %+v", d)
	}
	if d.Auth == nil || d.Auth.CredentialID != "cred-1" {
		t.Errorf("decision should carry the resolved identity: %+v", d.Auth)
	}
}

func TestAuthorize_ResolutionDenials(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"missing", identity.ErrMissingCredential, http.StatusUnauthorized, ErrorTypeAuthentication},
		{"malformed", identity.ErrMalformedCredential, http.StatusUnauthorized, ErrorTypeAuthentication},
		{"invalid", identity.ErrInvalidCredential, http.StatusUnauthorized, ErrorTypeAuthentication},
		{"expired or revoked", identity.ErrCredentialExpiredOrRevoked, http.StatusUnauthorized, ErrorTypeAuthentication},
		{"store down", identity.ErrStoreUnavailable, http.StatusServiceUnavailable, ErrorTypeStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGate(&fakeResolver{err: tt.err}, &fakeEnforcer{}, true)

			d := g.Authorize(context.Background(), "Bearer whatever", "/v1/auth/me")
			if d.Allowed {
				t.Fatal("expected denial")
			}
			if d.Status != tt.wantStatus {
				t.Errorf("status: expected %d, got %d", tt.wantStatus, d.Status)
			}
			if d.ErrorType != tt.wantType {
				t.Errorf("error type: expected %s, got %s", tt.wantType, d.ErrorType)
			}
			if d.Message == "" {
				t.Error("denial must carry a message")
			}
		})
	}
}

func TestAuthorize_StoreOutageIsNot401(t *testing.T) {
	g := newGate(&fakeResolver{err: identity.ErrStoreUnavailable}, &fakeEnforcer{}, true)

	d := g.Authorize(context.Background(), "Bearer key", "/v1/auth/me")
	if d.Status == http.StatusUnauthorized {
		t.Error("a store outage must never present as an invalid key")
	}
}

func TestAuthorize_RateLimited(t *testing.T) {
	g := newGate(
		&fakeResolver{auth: testAuth()},
		&fakeEnforcer{result: &quota.Result{
			Allowed:    false,
			Window:     "minute",
			Limit:      10,
			Current:    10,
			RetryAfter: 30 * time.Second,
		}},
		true,
	)

	d := g.Authorize(context.Background(), "Bearer key", "/v1/auth/me")
	if d.Allowed {
		t.Fatal("expected rate-limit denial")
	}
	if d.Status != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", d.Status)
	}
	if d.ErrorType != ErrorTypeRateLimit {
		t.Errorf("expected %s, got %s", ErrorTypeRateLimit, d.ErrorType)
	}
	if d.Window != "minute" || d.RetryAfter != 30*time.Second {
		t.Errorf("unexpected denial detail: %+v", d)
	}
	if d.Limit != 10 {
		t.Errorf("expected limit 10 on the decision, got %d", d.Limit)
	}
	if d.Details["limit"] != 10 || d.Details["window"] != "minute" {
		t.Errorf("unexpected details: %v", d.Details)
	}
	if d.Auth == nil {
		t.Error("rate-limited decision should still carry the identity for attribution")
	}
}

func TestAuthorize_NilIdentityDenied(t *testing.T) {
	g := newGate(brokenResolver{}, &fakeEnforcer{}, true)

	d := g.Authorize(context.Background(), "Bearer key", "/v1/auth/me")
	if d.Allowed {
		t.Fatal("a resolver returning no identity must not allow")
	}
	if d.Status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", d.Status)
	}
	if d.ErrorType != ErrorTypeAuthentication {
		t.Errorf("expected %s, got %s", ErrorTypeAuthentication, d.ErrorType)
	}
}

func TestAuthorize_EnforcerErrorFailsOpen(t *testing.T) {
	g := newGate(
		&fakeResolver{auth: testAuth()},
		&fakeEnforcer{err: context.DeadlineExceeded},
		true,
	)

	d := g.Authorize(context.Background(), "Bearer key", "/v1/auth/me")
	if !d.Allowed {
		t.Error("quota state loss must not deny authenticated requests")
	}
}

func TestAuthorize_EnforcementDisabled(t *testing.T) {
	resolver := &fakeResolver{auth: testAuth()}
	enforcer := &fakeEnforcer{}
	g := newGate(resolver, enforcer, false)

	// A usable key is still resolved for attribution.
	d := g.Authorize(context.Background(), "Bearer key", "/v1/auth/me")
	if !d.Allowed {
		t.Fatal("disabled gate must allow")
	}
	if d.Auth == nil {
		t.Error("disabled gate should still attach a resolvable identity")
	}
	if enforcer.calls != 0 {
		t.Error("disabled gate must not consume quota")
	}

	// A bad key passes too, just without identity.
	g = newGate(&fakeResolver{err: identity.ErrInvalidCredential}, enforcer, false)
	d = g.Authorize(context.Background(), "Bearer bad", "/v1/auth/me")
	if !d.Allowed {
		t.Error("disabled gate must allow unauthenticated requests")
	}
	if d.Auth != nil {
		t.Error("unresolvable key should leave Auth nil")
	}
}

func TestEnforced(t *testing.T) {
	if !newGate(&fakeResolver{}, &fakeEnforcer{}, true).Enforced() {
		t.Error("expected enforced")
	}
	if newGate(&fakeResolver{}, &fakeEnforcer{}, false).Enforced() {
		t.Error("expected not enforced")
	}
}
