package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keygate/keygate/internal/model"
)

// quotaKeyPrefix is the Redis key prefix for windowed request counters.
const quotaKeyPrefix = "quota:"

// Window names, ordered tightest to widest. The order matches the KEYS and
// ARGV layout of quotaScript.
var quotaWindows = []struct {
	Name    string
	Seconds int64
}{
	{"minute", 60},
	{"hour", 3600},
	{"day", 86400},
}

// QuotaResult is the outcome of a quota check.
type QuotaResult struct {
	Allowed bool

	// Set when denied: which window was exhausted and its ceiling.
	Window     string
	Limit      int
	Current    int64
	RetryAfter time.Duration

	// Set when allowed: the tightest remaining headroom across windows.
	Remaining int64
}

// quotaScript checks all three fixed windows and increments them only when
// every window has headroom. Denied requests consume nothing, and the
// check-and-increment is atomic so concurrent requests cannot overshoot.
//
// KEYS[1..3]: minute, hour, day counter keys
// ARGV[1..3]: limits (0 = unlimited, window skipped)
// ARGV[4..6]: TTLs in seconds
//
// Returns {0, window_index, current, limit} when denied,
// {1, minute_count, hour_count, day_count} when allowed.
var quotaScript = redis.NewScript(`
	for i = 1, 3 do
		local limit = tonumber(ARGV[i])
		if limit > 0 then
			local current = tonumber(redis.call('GET', KEYS[i]) or '0')
			if current >= limit then
				return {0, i, current, limit}
			end
		end
	end

	local counts = {0, 0, 0}
	for i = 1, 3 do
		if tonumber(ARGV[i]) > 0 then
			counts[i] = redis.call('INCR', KEYS[i])
			if counts[i] == 1 then
				redis.call('EXPIRE', KEYS[i], tonumber(ARGV[i+3]))
			end
		end
	end

	return {1, counts[1], counts[2], counts[3]}
`)

// CheckQuota atomically checks a credential's request count against its
// tier ceilings for the minute, hour, and day windows, and counts the
// request only if it is allowed.
//
// Redis errors are returned to the caller; the enforcer decides how to
// degrade when the counter backend is down.
func (c *Cache) CheckQuota(ctx context.Context, credentialID string, limits model.TierLimits, now time.Time) (*QuotaResult, error) {
	ceilings := [3]int{limits.RequestsPerMinute, limits.RequestsPerHour, limits.RequestsPerDay}
	if ceilings[0] == 0 && ceilings[1] == 0 && ceilings[2] == 0 {
		return &QuotaResult{Allowed: true, Remaining: -1}, nil
	}

	epoch := now.Unix()
	keys := make([]string, len(quotaWindows))
	buckets := make([]int64, len(quotaWindows))
	argv := make([]any, 0, 6)

	for i, w := range quotaWindows {
		buckets[i] = epoch / w.Seconds
		keys[i] = fmt.Sprintf("%s%s:%s:%d", quotaKeyPrefix, credentialID, w.Name, buckets[i])
	}
	for i := range quotaWindows {
		argv = append(argv, ceilings[i])
	}
	for _, w := range quotaWindows {
		// Slack past the window end so a clock-skewed reader never sees
		// a counter vanish mid-window.
		argv = append(argv, w.Seconds+60)
	}

	raw, err := quotaScript.Run(ctx, c.client, keys, argv...).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("quota script: %w", err)
	}

	if raw[0] == 0 {
		idx := int(raw[1]) - 1
		w := quotaWindows[idx]
		bucketEnd := time.Unix((buckets[idx]+1)*w.Seconds, 0)
		return &QuotaResult{
			Allowed:    false,
			Window:     w.Name,
			Limit:      int(raw[3]),
			Current:    raw[2],
			RetryAfter: bucketEnd.Sub(now),
		}, nil
	}

	remaining := int64(-1)
	for i := range quotaWindows {
		if ceilings[i] > 0 {
			headroom := int64(ceilings[i]) - raw[i+1]
			if remaining < 0 || headroom < remaining {
				remaining = headroom
			}
		}
	}

	return &QuotaResult{Allowed: true, Remaining: remaining}, nil
}
