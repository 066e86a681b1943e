// Package quota enforces per-credential request ceilings over fixed
// minute, hour, and day windows.
package quota

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keygate/keygate/internal/cache"
	"github.com/keygate/keygate/internal/model"
)

// maxLocalLimiters bounds the fallback limiter map. When Redis is down for
// long enough to accumulate this many entries the map is reset wholesale;
// losing fallback state is acceptable, unbounded growth is not.
const maxLocalLimiters = 10000

// Result is the outcome of a quota decision.
type Result struct {
	Allowed bool

	// Populated when denied.
	Window     string
	Limit      int
	Current    int64
	RetryAfter time.Duration

	// Remaining is the tightest headroom across windows, -1 for unlimited.
	Remaining int64

	// Degraded is true when the decision came from the in-process fallback
	// because the counter backend was unreachable.
	Degraded bool
}

// Counter is the windowed counter backend, normally Redis.
type Counter interface {
	CheckQuota(ctx context.Context, credentialID string, limits model.TierLimits, now time.Time) (*cache.QuotaResult, error)
}

// Enforcer checks requests against tier ceilings. When the shared counter
// backend fails it degrades to a per-credential in-process limiter pinned
// to the minute ceiling, so a Redis outage throttles rather than outages
// the whole API.
type Enforcer struct {
	counter Counter
	logger  *slog.Logger

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

// NewEnforcer creates an Enforcer backed by the given counter.
func NewEnforcer(counter Counter, logger *slog.Logger) *Enforcer {
	return &Enforcer{
		counter: counter,
		logger:  logger,
		local:   make(map[string]*rate.Limiter),
	}
}

// Check decides whether a request for the credential may proceed under its
// tier's ceilings. A denied request consumes no quota.
func (e *Enforcer) Check(ctx context.Context, credentialID, tier string) (*Result, error) {
	limits := model.LimitsForTier(tier)

	if limits.RequestsPerMinute == 0 && limits.RequestsPerHour == 0 && limits.RequestsPerDay == 0 {
		return &Result{Allowed: true, Remaining: -1}, nil
	}

	res, err := e.counter.CheckQuota(ctx, credentialID, limits, time.Now())
	if err != nil {
		e.logger.Warn("quota counter unavailable, using local fallback",
			slog.String("credential_id", credentialID),
			slog.String("error", err.Error()),
		)
		return e.checkLocal(credentialID, limits), nil
	}

	return &Result{
		Allowed:    res.Allowed,
		Window:     res.Window,
		Limit:      res.Limit,
		Current:    res.Current,
		RetryAfter: res.RetryAfter,
		Remaining:  res.Remaining,
	}, nil
}

// checkLocal rates a credential against its minute ceiling using an
// in-process token bucket. Only the minute window is approximated; hour and
// day ceilings cannot be tracked meaningfully across a backend outage.
func (e *Enforcer) checkLocal(credentialID string, limits model.TierLimits) *Result {
	rpm := limits.RequestsPerMinute
	if rpm == 0 {
		return &Result{Allowed: true, Remaining: -1, Degraded: true}
	}

	e.mu.Lock()
	if len(e.local) >= maxLocalLimiters {
		e.local = make(map[string]*rate.Limiter)
	}
	limiter, ok := e.local[credentialID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
		e.local[credentialID] = limiter
	}
	e.mu.Unlock()

	if !limiter.Allow() {
		return &Result{
			Allowed:    false,
			Window:     "minute",
			Limit:      rpm,
			Current:    int64(rpm),
			RetryAfter: time.Second,
			Degraded:   true,
		}
	}

	return &Result{Allowed: true, Remaining: -1, Degraded: true}
}
