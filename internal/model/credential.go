package model

import (
	"slices"
	"time"
)

// Scope constants for credential authorization on the admin surface.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// ValidScopes contains all valid scope values.
var ValidScopes = []string{ScopeRead, ScopeWrite, ScopeAdmin}

// Credential is an API key: a hashed secret plus metadata, owned by exactly
// one tenant. The plaintext secret is never stored.
type Credential struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	SecretDigest  string     `json:"-"` // SHA-256 lookup digest, never serialized
	SecretHash    string     `json:"-"` // argon2id verification hash, never serialized
	KeyPrefix     string     `json:"key_prefix"`
	Name          string     `json:"name,omitempty"`
	Scopes        []string   `json:"scopes"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	IsActive      bool       `json:"is_active"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	TotalRequests int64      `json:"total_requests"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IsExpired reports whether the credential is past its expiry at the given time.
func (c *Credential) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// IsUsable reports whether the credential may authenticate requests at the
// given time: active and not expired.
func (c *Credential) IsUsable(now time.Time) bool {
	return c.IsActive && !c.IsExpired(now)
}

// HasScope checks if the credential has a specific scope.
// Admin scope implies all other scopes.
func (c *Credential) HasScope(scope string) bool {
	if slices.Contains(c.Scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(c.Scopes, scope)
}

// AuthContext holds the resolved identity for an authorized request.
// It is injected into the request context by the gate middleware.
type AuthContext struct {
	CredentialID string     `json:"credential_id"`
	KeyPrefix    string     `json:"key_prefix"`
	TenantID     string     `json:"tenant_id"`
	TenantSlug   string     `json:"tenant_slug"`
	DisplayName  string     `json:"display_name"`
	Scopes       []string   `json:"scopes"`
	Tier         string     `json:"tier"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// HasScope checks if the auth context has a specific scope.
func (a *AuthContext) HasScope(scope string) bool {
	if slices.Contains(a.Scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(a.Scopes, scope)
}

// CredentialCreateRequest represents an administrative request to create a
// new credential. Exactly one of TenantSlug or Individual+Email must be set:
// individual accounts are requested explicitly, never inferred from names.
type CredentialCreateRequest struct {
	TenantSlug    string   `json:"tenant_slug,omitempty"`
	Individual    bool     `json:"individual,omitempty"`
	Email         string   `json:"email,omitempty"`
	Name          string   `json:"name,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`
	ExpiresInDays int      `json:"expires_in_days,omitempty"`
}

// CredentialResponse is the external representation of a credential,
// without secrets.
type CredentialResponse struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	KeyPrefix     string     `json:"key_prefix"`
	Name          string     `json:"name,omitempty"`
	Scopes        []string   `json:"scopes"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Revoked       bool       `json:"revoked"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	TotalRequests int64      `json:"total_requests"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ToResponse converts a Credential to its external representation.
func (c *Credential) ToResponse() CredentialResponse {
	return CredentialResponse{
		ID:            c.ID,
		TenantID:      c.TenantID,
		KeyPrefix:     c.KeyPrefix,
		Name:          c.Name,
		Scopes:        c.Scopes,
		ExpiresAt:     c.ExpiresAt,
		Revoked:       !c.IsActive,
		LastUsedAt:    c.LastUsedAt,
		TotalRequests: c.TotalRequests,
		CreatedAt:     c.CreatedAt,
	}
}

// CredentialCreateResponse includes the plaintext key, shown exactly once.
type CredentialCreateResponse struct {
	ID         string     `json:"id"`
	Key        string     `json:"key"` // plaintext, display once only
	TenantID   string     `json:"tenant_id"`
	TenantSlug string     `json:"tenant_slug"`
	KeyPrefix  string     `json:"key_prefix"`
	Name       string     `json:"name,omitempty"`
	Scopes     []string   `json:"scopes"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CredentialRotateResponse pairs the revoked predecessor with its replacement.
type CredentialRotateResponse struct {
	OldID        string                   `json:"old_credential_id"`
	OldRevokedAt time.Time                `json:"old_revoked_at"`
	New          CredentialCreateResponse `json:"new_credential"`
}
