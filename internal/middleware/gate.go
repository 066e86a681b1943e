package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/gate"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/usage"
)

// GateConfig holds dependencies for the gate middleware.
type GateConfig struct {
	Gate      *gate.Gate
	Publisher *usage.Publisher // nil disables usage recording
	Logger    *slog.Logger
}

// Gate returns the middleware that authorizes every request: identity
// first, then quota. Allowed requests proceed with the resolved identity
// in the request context; denied requests are answered here and never
// reach a handler. Usage events are published after the response so
// recording cost never lands on the caller.
func Gate(cfg GateConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			decision := cfg.Gate.Authorize(r.Context(), r.Header.Get("Authorization"), r.URL.Path)

			if decision.Exempt {
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				cfg.Logger.Warn("request denied",
					slog.Int("status", decision.Status),
					slog.String("error_type", decision.ErrorType),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("ip", r.RemoteAddr),
					slog.String("request_id", GetRequestID(r.Context())),
				)

				if decision.Status == http.StatusTooManyRequests {
					writeRateLimitHeaders(w, decision)
					publishUsage(cfg.Publisher, decision.Auth, r, model.OutcomeRateLimited, time.Since(start))
				}

				WriteError(w, decision.Status, decision.ErrorType, decision.Message, decision.Details)
				return
			}

			ctx := r.Context()
			if decision.Auth != nil {
				ctx = auth.ContextWithAuth(ctx, decision.Auth)
			}

			next.ServeHTTP(w, r.WithContext(ctx))

			publishUsage(cfg.Publisher, decision.Auth, r, model.OutcomeAllowed, time.Since(start))
		})
	}
}

// writeRateLimitHeaders sets the standard throttling headers on a 429.
func writeRateLimitHeaders(w http.ResponseWriter, d *gate.Decision) {
	retryAfter := int(d.RetryAfter.Seconds() + 0.999)
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Window", d.Window)
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(d.RetryAfter).Unix()))
}

// publishUsage fires an asynchronous usage event for an identified request.
// Unidentified requests (bad keys, enforcement bypass with no key) are not
// recorded; their denials are visible in logs and metrics instead.
func publishUsage(p *usage.Publisher, authCtx *model.AuthContext, r *http.Request, outcome string, elapsed time.Duration) {
	if p == nil || authCtx == nil {
		return
	}

	p.PublishAsync(usage.EventPayload{
		CredentialID:   authCtx.CredentialID,
		TenantID:       authCtx.TenantID,
		Endpoint:       r.URL.Path,
		Method:         r.Method,
		Outcome:        outcome,
		CallerAddress:  usage.TruncateCallerAddress(r.RemoteAddr),
		UserAgent:      usage.TruncateUserAgent(r.UserAgent()),
		ResponseTimeMs: elapsed.Milliseconds(),
		OccurredAt:     time.Now().UnixMilli(),
	})
}
