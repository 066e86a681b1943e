package model

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// slugRegex validates tenant slugs: lowercase alphanumeric with single hyphens.
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Tenant is a billing and quota scope: either a visible organization or a
// hidden per-email individual account.
type Tenant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Tier         string    `json:"tier"`
	IsIndividual bool      `json:"is_individual"`
	IsActive     bool      `json:"is_active"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Limits returns the quota policy for the tenant's tier.
func (t *Tenant) Limits() TierLimits {
	return LimitsForTier(t.Tier)
}

// IsValidSlug reports whether slug is a well-formed tenant slug.
func IsValidSlug(slug string) bool {
	return len(slug) >= 3 && len(slug) <= 64 && slugRegex.MatchString(slug)
}

// NormalizeEmail canonicalizes an email address for individual-tenant lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IndividualSlug derives the deterministic hidden-tenant slug for an email.
// The same email always maps to the same slug, which is what makes
// individual-tenant provisioning idempotent.
func IndividualSlug(email string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	return "user-" + hex.EncodeToString(sum[:])[:16]
}

// IndividualName returns the display name for a hidden individual tenant.
func IndividualName(email string) string {
	return "Personal - " + NormalizeEmail(email)
}

// TenantCreateRequest represents a request to create a visible organization.
type TenantCreateRequest struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Tier         string `json:"tier,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
}

// TenantResponse is the external representation of a tenant.
type TenantResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Tier         string    `json:"tier"`
	IsActive     bool      `json:"is_active"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ToResponse converts a Tenant to its external representation.
func (t *Tenant) ToResponse() TenantResponse {
	return TenantResponse{
		ID:           t.ID,
		Name:         t.Name,
		Slug:         t.Slug,
		Tier:         t.Tier,
		IsActive:     t.IsActive,
		ContactEmail: t.ContactEmail,
		CreatedAt:    t.CreatedAt,
	}
}
