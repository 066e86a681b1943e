// Package identity resolves presented credentials into validated identities.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

// Resolution errors. These carry no detail about which check failed beyond
// the broad class; the gate maps them onto stable wire responses that never
// tell a probing caller whether a key exists.
var (
	// ErrMissingCredential means no Authorization header was presented.
	ErrMissingCredential = errors.New("missing credential")
	// ErrMalformedCredential means the header or key shape is wrong.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrInvalidCredential means the key does not match any stored credential.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrCredentialExpiredOrRevoked means the key matched but is no longer usable.
	ErrCredentialExpiredOrRevoked = errors.New("credential expired or revoked")
	// ErrStoreUnavailable means the credential store could not answer.
	// The gate fails closed on this, never treating it as a bad key.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Store is the credential store subset the resolver reads from.
type Store interface {
	FindCredentialByDigest(ctx context.Context, digest string) (*model.Credential, error)
	GetTenantByID(ctx context.Context, id string) (*model.Tenant, error)
}

// IdentityCache caches resolved identities keyed by secret digest.
type IdentityCache interface {
	GetIdentity(ctx context.Context, digest string) (*model.AuthContext, error)
	SetIdentity(ctx context.Context, digest string, auth *model.AuthContext, ttl time.Duration) error
}

// Resolver turns a raw Authorization header into a validated AuthContext.
type Resolver struct {
	store    Store
	cache    IdentityCache
	cacheTTL time.Duration
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewResolver creates a Resolver. cache may be nil to disable identity
// caching entirely; recorder may be nil when metrics are disabled.
func NewResolver(store Store, cache IdentityCache, cacheTTL time.Duration, recorder metrics.Recorder, logger *slog.Logger) *Resolver {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Resolver{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		recorder: recorder,
		logger:   logger,
	}
}

// Resolve validates the Authorization header and returns the identity it
// proves. The happy path after cache warm-up is a single Redis GET; a miss
// costs one indexed store lookup plus an argon2id verification.
func (r *Resolver) Resolve(ctx context.Context, rawHeader string) (*model.AuthContext, error) {
	token, err := parseBearer(rawHeader)
	if err != nil {
		return nil, err
	}

	if !auth.ValidateKeyFormat(token) {
		return nil, ErrMalformedCredential
	}

	digest := auth.Digest(token)

	if r.cache != nil {
		if cached, _ := r.cache.GetIdentity(ctx, digest); cached != nil {
			r.recorder.IncIdentityCache("hit")
			// Expiry is rechecked on every hit; the cache TTL only bounds
			// revocation staleness.
			if cached.ExpiresAt != nil && cached.ExpiresAt.Before(time.Now()) {
				return nil, ErrCredentialExpiredOrRevoked
			}
			return cached, nil
		}
		r.recorder.IncIdentityCache("miss")
	}

	cred, err := r.store.FindCredentialByDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrInvalidCredential
		}
		r.logger.Error("credential lookup failed", slog.String("error", err.Error()))
		return nil, ErrStoreUnavailable
	}

	// The digest already matched, but the argon2id hash is the stored
	// verifier of record.
	ok, err := auth.VerifySecret(token, cred.SecretHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredential
	}

	now := time.Now()
	if !cred.IsUsable(now) {
		return nil, ErrCredentialExpiredOrRevoked
	}

	tenant, err := r.store.GetTenantByID(ctx, cred.TenantID)
	if err != nil {
		if errors.Is(err, repository.ErrTenantNotFound) {
			// Orphaned credential; treat like a revoked one.
			return nil, ErrCredentialExpiredOrRevoked
		}
		r.logger.Error("tenant lookup failed", slog.String("error", err.Error()))
		return nil, ErrStoreUnavailable
	}

	if !tenant.IsActive {
		return nil, ErrCredentialExpiredOrRevoked
	}

	authCtx := &model.AuthContext{
		CredentialID: cred.ID,
		KeyPrefix:    cred.KeyPrefix,
		TenantID:     tenant.ID,
		TenantSlug:   tenant.Slug,
		DisplayName:  tenant.Name,
		Scopes:       cred.Scopes,
		Tier:         tenant.Tier,
		ExpiresAt:    cred.ExpiresAt,
	}

	if r.cache != nil {
		if err := r.cache.SetIdentity(ctx, digest, authCtx, r.cacheTTL); err != nil {
			// Cache write failures never fail the request.
			r.logger.Warn("identity cache write failed", slog.String("error", err.Error()))
		}
	}

	return authCtx, nil
}

// parseBearer extracts the token from a Bearer authorization header.
func parseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingCredential
	}

	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMalformedCredential
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrMalformedCredential
	}

	return token, nil
}
