// Package model defines domain entities for the application.
package model

import "slices"

// Tier name constants. The tier set is closed; limits are looked up from
// TierTable rather than free-form per-row columns.
const (
	TierFree         = "free"
	TierBasic        = "basic"
	TierProfessional = "professional"
	TierEnterprise   = "enterprise"
	TierCustom       = "custom"
)

// ValidTiers contains all valid tier values.
var ValidTiers = []string{TierFree, TierBasic, TierProfessional, TierEnterprise, TierCustom}

// TierLimits defines the quota policy for a tier.
// A zero value for any limit means unlimited for that dimension.
type TierLimits struct {
	MaxCredentials    int
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	MonthlyPriceUSD   int // informational only, never enforced
}

// TierTable maps tier names to their quota policies.
var TierTable = map[string]TierLimits{
	TierFree:         {MaxCredentials: 2, RequestsPerMinute: 10, RequestsPerHour: 200, RequestsPerDay: 1000, MonthlyPriceUSD: 0},
	TierBasic:        {MaxCredentials: 5, RequestsPerMinute: 60, RequestsPerHour: 1000, RequestsPerDay: 10000, MonthlyPriceUSD: 29},
	TierProfessional: {MaxCredentials: 20, RequestsPerMinute: 300, RequestsPerHour: 10000, RequestsPerDay: 100000, MonthlyPriceUSD: 99},
	TierEnterprise:   {MaxCredentials: 100, RequestsPerMinute: 1000, RequestsPerHour: 50000, RequestsPerDay: 1000000, MonthlyPriceUSD: 499},
	TierCustom:       {MaxCredentials: 0, RequestsPerMinute: 0, RequestsPerHour: 0, RequestsPerDay: 0, MonthlyPriceUSD: 0},
}

// IsValidTier reports whether name is a known tier.
func IsValidTier(name string) bool {
	return slices.Contains(ValidTiers, name)
}

// LimitsForTier returns the quota policy for a tier name.
// Unknown tiers fall back to the free tier.
func LimitsForTier(name string) TierLimits {
	if limits, ok := TierTable[name]; ok {
		return limits
	}
	return TierTable[TierFree]
}
