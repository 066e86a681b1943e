package usage

import (
	"strings"
	"testing"
	"time"
)

func validPayload() EventPayload {
	return EventPayload{
		CredentialID:   "cred-1",
		TenantID:       "tnt-1",
		Endpoint:       "/v1/auth/me",
		Method:         "GET",
		Outcome:        "allowed",
		ResponseTimeMs: 12,
		OccurredAt:     time.Now().UnixMilli(),
	}
}

func TestValidateEventPayload(t *testing.T) {
	if err := ValidateEventPayload(validPayload()); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}

	rateLimited := validPayload()
	rateLimited.Outcome = "rate_limited"
	if err := ValidateEventPayload(rateLimited); err != nil {
		t.Errorf("rate_limited outcome rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*EventPayload)
	}{
		{"missing credential", func(p *EventPayload) { p.CredentialID = "" }},
		{"missing tenant", func(p *EventPayload) { p.TenantID = "" }},
		{"missing endpoint", func(p *EventPayload) { p.Endpoint = "" }},
		{"endpoint too long", func(p *EventPayload) { p.Endpoint = "/" + strings.Repeat("a", 2048) }},
		{"missing method", func(p *EventPayload) { p.Method = "" }},
		{"unknown outcome", func(p *EventPayload) { p.Outcome = "denied" }},
		{"zero timestamp", func(p *EventPayload) { p.OccurredAt = 0 }},
		{"user agent too long", func(p *EventPayload) { p.UserAgent = strings.Repeat("a", 501) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := validPayload()
			tt.mutate(&payload)
			if err := ValidateEventPayload(payload); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestTruncateUserAgent(t *testing.T) {
	short := "curl/8.0"
	if got := TruncateUserAgent(short); got != short {
		t.Errorf("short UA should pass through, got %q", got)
	}

	long := strings.Repeat("x", 600)
	if got := TruncateUserAgent(long); len(got) != 500 {
		t.Errorf("expected 500 chars, got %d", len(got))
	}
}

func TestTruncateCallerAddress(t *testing.T) {
	addr := "[2001:db8::1]:8080"
	if got := TruncateCallerAddress(addr); got != addr {
		t.Errorf("normal address should pass through, got %q", got)
	}

	long := strings.Repeat("1", 100)
	if got := TruncateCallerAddress(long); len(got) != 64 {
		t.Errorf("expected 64 chars, got %d", len(got))
	}
}
