package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keygate/keygate/internal/model"
)

// identityCachePrefix is the Redis key prefix for resolved identities.
// Entries are keyed by the credential's secret digest so revocation can
// evict them directly.
const identityCachePrefix = "identity:"

// CachedIdentity is the wire form of a resolved identity stored in Redis.
type CachedIdentity struct {
	CredentialID string     `json:"credential_id"`
	KeyPrefix    string     `json:"key_prefix"`
	TenantID     string     `json:"tenant_id"`
	TenantSlug   string     `json:"tenant_slug"`
	DisplayName  string     `json:"display_name"`
	Scopes       []string   `json:"scopes"`
	Tier         string     `json:"tier"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// GetIdentity retrieves a cached identity by secret digest.
// Returns nil on a miss; a corrupted entry is also treated as a miss.
func (c *Cache) GetIdentity(ctx context.Context, digest string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, identityCachePrefix+digest).Bytes()
	if err != nil {
		return nil, nil //nolint:nilerr
	}

	var cached CachedIdentity
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		CredentialID: cached.CredentialID,
		KeyPrefix:    cached.KeyPrefix,
		TenantID:     cached.TenantID,
		TenantSlug:   cached.TenantSlug,
		DisplayName:  cached.DisplayName,
		Scopes:       cached.Scopes,
		Tier:         cached.Tier,
		ExpiresAt:    cached.ExpiresAt,
	}, nil
}

// SetIdentity caches a resolved identity under its secret digest.
// The TTL bounds how long a revoked credential can keep authenticating.
func (c *Cache) SetIdentity(ctx context.Context, digest string, auth *model.AuthContext, ttl time.Duration) error {
	cached := CachedIdentity{
		CredentialID: auth.CredentialID,
		KeyPrefix:    auth.KeyPrefix,
		TenantID:     auth.TenantID,
		TenantSlug:   auth.TenantSlug,
		DisplayName:  auth.DisplayName,
		Scopes:       auth.Scopes,
		Tier:         auth.Tier,
		ExpiresAt:    auth.ExpiresAt,
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	return c.client.Set(ctx, identityCachePrefix+digest, data, ttl).Err()
}

// DeleteIdentity evicts a cached identity. Called on revoke and rotate so
// the credential stops authenticating without waiting out the TTL.
func (c *Cache) DeleteIdentity(ctx context.Context, digest string) error {
	return c.client.Del(ctx, identityCachePrefix+digest).Err()
}
