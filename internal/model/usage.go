package model

import "time"

// Usage outcomes recorded per authorization decision.
const (
	OutcomeAllowed     = "allowed"
	OutcomeRateLimited = "rate_limited"
)

// UsageRecord is an append-only log entry for one authorized (or
// rate-limited) request. Records are retained for analytics independent of
// the credential lifecycle.
type UsageRecord struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"` // idempotency key for at-least-once delivery
	CredentialID   string    `json:"credential_id"`
	TenantID       string    `json:"tenant_id"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	Outcome        string    `json:"outcome"`
	CallerAddress  string    `json:"caller_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// DailyUsageStat aggregates usage for one credential over one UTC day.
type DailyUsageStat struct {
	Date        time.Time `json:"date"`
	Total       int64     `json:"total"`
	Allowed     int64     `json:"allowed"`
	RateLimited int64     `json:"rate_limited"`
}
