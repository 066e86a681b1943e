// Package gate makes the allow-or-deny decision for incoming requests:
// identity resolution first, then quota enforcement, with a stable mapping
// from every failure class to a wire status.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/keygate/keygate/internal/identity"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/quota"
)

// Error type tags carried in denial bodies. Stable: clients match on these.
const (
	ErrorTypeAuthentication = "authentication_error"
	ErrorTypeAuthorization  = "authorization_error"
	ErrorTypeRateLimit      = "rate_limit_exceeded"
	ErrorTypeStore          = "store_unavailable"
)

// Decision is the outcome of authorizing one request.
type Decision struct {
	Allowed bool
	Exempt  bool

	// Auth is the resolved identity; nil for exempt paths and for requests
	// passed through while enforcement is disabled without a usable key.
	Auth *model.AuthContext

	// Denial fields; meaningful only when Allowed is false.
	Status     int
	ErrorType  string
	Message    string
	Details    map[string]any
	RetryAfter time.Duration

	// Window and Limit describe the exhausted quota window on a
	// rate-limit denial.
	Window string
	Limit  int
}

// Resolver validates a presented credential.
type Resolver interface {
	Resolve(ctx context.Context, rawHeader string) (*model.AuthContext, error)
}

// Enforcer checks a credential against its tier's request ceilings.
type Enforcer interface {
	Check(ctx context.Context, credentialID, tier string) (*quota.Result, error)
}

// Gate authorizes requests. It owns the exempt-path set and the
// enforcement switch.
type Gate struct {
	resolver Resolver
	enforcer Enforcer
	exempt   map[string]struct{}
	enforced bool
	recorder metrics.Recorder
	logger   *slog.Logger
}

// New creates a Gate.
func New(resolver Resolver, enforcer Enforcer, exemptPaths []string, enforced bool, recorder metrics.Recorder, logger *slog.Logger) *Gate {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}

	return &Gate{
		resolver: resolver,
		enforcer: enforcer,
		exempt:   exempt,
		enforced: enforced,
		recorder: recorder,
		logger:   logger,
	}
}

// Enforced reports whether the gate is actually denying requests.
func (g *Gate) Enforced() bool {
	return g.enforced
}

// IsExempt reports whether a path bypasses the authorization pipeline.
// Matching is exact, no prefix or glob semantics.
func (g *Gate) IsExempt(path string) bool {
	_, ok := g.exempt[path]
	return ok
}

// Authorize decides whether the request may proceed. Exempt paths skip the
// pipeline entirely. With enforcement disabled every request passes, though
// a presented key is still resolved so downstream handlers and usage
// attribution see the identity when one is available.
func (g *Gate) Authorize(ctx context.Context, header, path string) *Decision {
	start := time.Now()
	defer func() {
		g.recorder.ObserveAuthorizeDuration(time.Since(start))
	}()

	if g.IsExempt(path) {
		g.recorder.IncAuthDecision("exempt")
		return &Decision{Allowed: true, Exempt: true}
	}

	if !g.enforced {
		auth, err := g.resolver.Resolve(ctx, header)
		if err != nil {
			auth = nil
		}
		g.recorder.IncAuthDecision("bypassed")
		return &Decision{Allowed: true, Auth: auth}
	}

	auth, err := g.resolver.Resolve(ctx, header)
	if err != nil {
		return g.denyResolution(err)
	}
	if auth == nil {
		// A resolver that returns neither identity nor error is broken;
		// deny rather than crash or silently allow.
		g.logger.Error("resolver returned no identity and no error")
		g.recorder.IncAuthDecision("unauthenticated")
		return &Decision{
			Status:    http.StatusUnauthorized,
			ErrorType: ErrorTypeAuthentication,
			Message:   "Invalid API key.",
		}
	}

	res, err := g.enforcer.Check(ctx, auth.CredentialID, auth.Tier)
	if err != nil {
		// The enforcer degrades internally; an error here is unexpected.
		// Quota state loss must not outage the API, so the request passes.
		g.logger.Error("quota check failed", slog.String("error", err.Error()))
		g.recorder.IncAuthDecision("allowed")
		return &Decision{Allowed: true, Auth: auth}
	}

	if res.Degraded {
		g.recorder.IncQuotaFallback()
	}

	if !res.Allowed {
		g.recorder.IncAuthDecision("rate_limited")
		return &Decision{
			Allowed:    false,
			Auth:       auth,
			Status:     http.StatusTooManyRequests,
			ErrorType:  ErrorTypeRateLimit,
			Message:    fmt.Sprintf("Rate limit exceeded: %d requests per %s.", res.Limit, res.Window),
			Details:    map[string]any{"limit": res.Limit, "window": res.Window, "retry_after_seconds": int(res.RetryAfter.Seconds() + 0.999)},
			RetryAfter: res.RetryAfter,
			Window:     res.Window,
			Limit:      res.Limit,
		}
	}

	g.recorder.IncAuthDecision("allowed")
	return &Decision{Allowed: true, Auth: auth}
}

// denyResolution maps resolver errors onto wire responses. Messages never
// echo the presented key or reveal stored hashes.
func (g *Gate) denyResolution(err error) *Decision {
	switch {
	case errors.Is(err, identity.ErrMissingCredential):
		g.recorder.IncAuthDecision("unauthenticated")
		return &Decision{
			Status:    http.StatusUnauthorized,
			ErrorType: ErrorTypeAuthentication,
			Message:   "Missing API key.",
			Details:   map[string]any{"header": "Authorization: Bearer <key>"},
		}
	case errors.Is(err, identity.ErrMalformedCredential):
		g.recorder.IncAuthDecision("unauthenticated")
		return &Decision{
			Status:    http.StatusUnauthorized,
			ErrorType: ErrorTypeAuthentication,
			Message:   "Malformed API key.",
		}
	case errors.Is(err, identity.ErrCredentialExpiredOrRevoked):
		g.recorder.IncAuthDecision("unauthenticated")
		return &Decision{
			Status:    http.StatusUnauthorized,
			ErrorType: ErrorTypeAuthentication,
			Message:   "API key is expired or revoked.",
		}
	case errors.Is(err, identity.ErrStoreUnavailable):
		// Fail closed, but with 503 so a store outage is never mistaken
		// for a bad key.
		g.recorder.IncAuthDecision("store_error")
		return &Decision{
			Status:    http.StatusServiceUnavailable,
			ErrorType: ErrorTypeStore,
			Message:   "Authorization is temporarily unavailable.",
		}
	default:
		g.recorder.IncAuthDecision("unauthenticated")
		return &Decision{
			Status:    http.StatusUnauthorized,
			ErrorType: ErrorTypeAuthentication,
			Message:   "Invalid API key.",
		}
	}
}
