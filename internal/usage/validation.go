package usage

import "fmt"

const (
	maxEndpointLength = 2048
	maxMetaLength     = 500
)

// ValidateEventPayload validates usage event payload fields before they
// reach the database.
func ValidateEventPayload(payload EventPayload) error {
	if payload.CredentialID == "" {
		return fmt.Errorf("credential_id is required")
	}
	if payload.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if payload.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if len(payload.Endpoint) > maxEndpointLength {
		return fmt.Errorf("endpoint too long")
	}
	if payload.Method == "" {
		return fmt.Errorf("method is required")
	}
	if payload.Outcome != "allowed" && payload.Outcome != "rate_limited" {
		return fmt.Errorf("outcome must be allowed or rate_limited")
	}
	if payload.OccurredAt <= 0 {
		return fmt.Errorf("occurred_at must be set")
	}
	if len(payload.UserAgent) > maxMetaLength {
		return fmt.Errorf("user_agent too long")
	}
	return nil
}
