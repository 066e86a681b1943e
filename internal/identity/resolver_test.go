package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

type fakeStore struct {
	credentials map[string]*model.Credential // keyed by digest
	tenants     map[string]*model.Tenant     // keyed by ID
	credErr     error
	tenantErr   error

	credentialLookups int
}

func (s *fakeStore) FindCredentialByDigest(_ context.Context, digest string) (*model.Credential, error) {
	s.credentialLookups++
	if s.credErr != nil {
		return nil, s.credErr
	}
	cred, ok := s.credentials[digest]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	return cred, nil
}

func (s *fakeStore) GetTenantByID(_ context.Context, id string) (*model.Tenant, error) {
	if s.tenantErr != nil {
		return nil, s.tenantErr
	}
	tenant, ok := s.tenants[id]
	if !ok {
		return nil, repository.ErrTenantNotFound
	}
	return tenant, nil
}

type fakeCache struct {
	entries map[string]*model.AuthContext
	sets    int
}

func (c *fakeCache) GetIdentity(_ context.Context, digest string) (*model.AuthContext, error) {
	return c.entries[digest], nil
}

func (c *fakeCache) SetIdentity(_ context.Context, digest string, authCtx *model.AuthContext, _ time.Duration) error {
	if c.entries == nil {
		c.entries = make(map[string]*model.AuthContext)
	}
	c.entries[digest] = authCtx
	c.sets++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// spyRecorder counts identity cache lookups and discards everything else.
type spyRecorder struct {
	metrics.Noop
	hits   int
	misses int
}

func (r *spyRecorder) IncIdentityCache(result string) {
	switch result {
	case "hit":
		r.hits++
	case "miss":
		r.misses++
	}
}

// fixture builds a store holding one usable credential and returns its
// plaintext key.
func fixture(t *testing.T) (*fakeStore, string) {
	t.Helper()

	generated, err := auth.GenerateKey(auth.EnvLive)
	if err != nil {
		t.Fatal(err)
	}

	cred := &model.Credential{
		ID:           "cred-1",
		TenantID:     "tnt-1",
		SecretDigest: generated.Digest,
		SecretHash:   generated.Hash,
		KeyPrefix:    generated.Prefix,
		Scopes:       []string{model.ScopeRead},
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	tenant := &model.Tenant{
		ID:       "tnt-1",
		Name:     "Acme",
		Slug:     "acme",
		Tier:     model.TierBasic,
		IsActive: true,
	}

	return &fakeStore{
		credentials: map[string]*model.Credential{generated.Digest: cred},
		tenants:     map[string]*model.Tenant{"tnt-1": tenant},
	}, generated.Plaintext
}

func TestResolve_HappyPath(t *testing.T) {
	store, key := fixture(t)
	resolver := NewResolver(store, nil, 0, nil, testLogger())

	authCtx, err := resolver.Resolve(context.Background(), "Bearer "+key)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if authCtx.CredentialID != "cred-1" {
		t.Errorf("unexpected credential ID: %s", authCtx.CredentialID)
	}
	if authCtx.TenantSlug != "acme" {
		t.Errorf("unexpected tenant slug: %s", authCtx.TenantSlug)
	}
	if authCtx.Tier != model.TierBasic {
		t.Errorf("unexpected tier: %s", authCtx.Tier)
	}
}

func TestResolve_HeaderParsing(t *testing.T) {
	store, key := fixture(t)
	resolver := NewResolver(store, nil, 0, nil, testLogger())

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"empty header", "", ErrMissingCredential},
		{"wrong scheme", "Basic dXNlcg==", ErrMalformedCredential},
		{"bare token", key, ErrMalformedCredential},
		{"empty token", "Bearer   ", ErrMalformedCredential},
		{"not a key", "Bearer hello", ErrMalformedCredential},
		{"case-insensitive scheme", "bearer " + key, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestResolve_UnknownKey(t *testing.T) {
	store, _ := fixture(t)
	resolver := NewResolver(store, nil, 0, nil, testLogger())

	// Well-formed but not in the store.
	other, err := auth.GenerateKey(auth.EnvLive)
	if err != nil {
		t.Fatal(err)
	}

	_, err = resolver.Resolve(context.Background(), "Bearer "+other.Plaintext)
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestResolve_RevokedCredential(t *testing.T) {
	store, key := fixture(t)
	for _, cred := range store.credentials {
		cred.IsActive = false
	}
	resolver := NewResolver(store, nil, 0, nil, testLogger())

	_, err := resolver.Resolve(context.Background(), "Bearer "+key)
	if !errors.Is(err, ErrCredentialExpiredOrRevoked) {
		t.Errorf("expected ErrCredentialExpiredOrRevoked, got %v", err)
	}
}

func TestResolve_ExpiredCredential(t *testing.T) {
	store, key := fixture(t)
	past := time.Now().Add(-time.Hour)
	for _, cred := range store.credentials {
		cred.ExpiresAt = &past
	}
	resolver := NewResolver(store, nil, 0, nil, testLogger())

	_, err := resolver.Resolve(context.Background(), "Bearer "+key)
	if !errors.Is(err, ErrCredentialExpiredOrRevoked) {
		t.Errorf("expected ErrCredentialExpiredOrRevoked, got %v", err)
	}
}

func TestResolve_InactiveTenant(t *testing.T) {
	store, key := fixture(t)
	store.tenants["tnt-1"].IsActive = false
	resolver := NewResolver(store, nil, 0, nil, testLogger())

	_, err := resolver.Resolve(context.Background(), "Bearer "+key)
	if !errors.Is(err, ErrCredentialExpiredOrRevoked) {
		t.Errorf("expected ErrCredentialExpiredOrRevoked, got %v", err)
	}
}

func TestResolve_OrphanedCredential(t *testing.T) {
	store, key := fixture(t)
	delete(store.tenants, "tnt-1")
	resolver := NewResolver(store, nil, 0, nil, testLogger())

	_, err := resolver.Resolve(context.Background(), "Bearer "+key)
	if !errors.Is(err, ErrCredentialExpiredOrRevoked) {
		t.Errorf("expected ErrCredentialExpiredOrRevoked, got %v", err)
	}
}

func TestResolve_StoreFailureFailsClosed(t *testing.T) {
	store, key := fixture(t)
	store.credErr = errors.New("connection refused")
	resolver := NewResolver(store, nil, 0, nil, testLogger())

	_, err := resolver.Resolve(context.Background(), "Bearer "+key)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("store outage must map to ErrStoreUnavailable, got %v", err)
	}
}

func TestResolve_TenantLookupFailureFailsClosed(t *testing.T) {
	store, key := fixture(t)
	store.tenantErr = errors.New("connection refused")
	resolver := NewResolver(store, nil, 0, nil, testLogger())

	_, err := resolver.Resolve(context.Background(), "Bearer "+key)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestResolve_CachePopulatedAndUsed(t *testing.T) {
	store, key := fixture(t)
	cache := &fakeCache{}
	resolver := NewResolver(store, cache, 2*time.Minute, nil, testLogger())

	if _, err := resolver.Resolve(context.Background(), "Bearer "+key); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cache.sets)
	}

	// Second resolve hits the cache; no further store lookup.
	if _, err := resolver.Resolve(context.Background(), "Bearer "+key); err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if store.credentialLookups != 1 {
		t.Errorf("expected 1 store lookup, got %d", store.credentialLookups)
	}
}

func TestResolve_CacheMetricsRecorded(t *testing.T) {
	store, key := fixture(t)
	cache := &fakeCache{}
	spy := &spyRecorder{}
	resolver := NewResolver(store, cache, 2*time.Minute, spy, testLogger())

	if _, err := resolver.Resolve(context.Background(), "Bearer "+key); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), "Bearer "+key); err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}

	if spy.misses != 1 {
		t.Errorf("expected 1 recorded miss, got %d", spy.misses)
	}
	if spy.hits != 1 {
		t.Errorf("expected 1 recorded hit, got %d", spy.hits)
	}
}

func TestResolve_CachedExpiryRechecked(t *testing.T) {
	store, key := fixture(t)
	past := time.Now().Add(-time.Minute)

	digest := auth.Digest(key)
	cache := &fakeCache{entries: map[string]*model.AuthContext{
		digest: {CredentialID: "cred-1", ExpiresAt: &past},
	}}
	resolver := NewResolver(store, cache, 2*time.Minute, nil, testLogger())

	// The cached entry is stale past its own expiry; it must be rejected
	// even though the cache still holds it.
	_, err := resolver.Resolve(context.Background(), "Bearer "+key)
	if !errors.Is(err, ErrCredentialExpiredOrRevoked) {
		t.Errorf("expected ErrCredentialExpiredOrRevoked, got %v", err)
	}
}
