// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

// Service errors.
var (
	ErrInvalidRequest   = errors.New("exactly one of tenant_slug or individual+email must be set")
	ErrInvalidScope     = errors.New("invalid scope")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidExpiry    = errors.New("expires_in_days must not be negative")
	ErrTenantInactive   = errors.New("tenant is deactivated")
	ErrInvalidStatsDays = errors.New("days must be between 1 and 90")
)

const (
	// individualTier is the tier every hidden individual tenant starts on.
	individualTier = model.TierFree

	maxStatsDays     = 90
	defaultStatsDays = 30
)

// IdentityEvictor removes cached identities when a credential stops being
// valid. Normally the Redis identity cache.
type IdentityEvictor interface {
	DeleteIdentity(ctx context.Context, digest string) error
}

// CredentialService handles credential lifecycle business logic.
type CredentialService struct {
	repo    *repository.Repository
	evictor IdentityEvictor
	metrics metrics.Recorder
	logger  *slog.Logger
	keyEnv  string
}

// NewCredentialService creates a new CredentialService. evictor may be nil
// when no identity cache is configured.
func NewCredentialService(repo *repository.Repository, evictor IdentityEvictor, recorder metrics.Recorder, logger *slog.Logger, keyEnv string) *CredentialService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &CredentialService{
		repo:    repo,
		evictor: evictor,
		metrics: recorder,
		logger:  logger,
		keyEnv:  keyEnv,
	}
}

// Create issues a new credential. For organization credentials the tenant
// must already exist; for individual credentials the hidden tenant is
// provisioned on first use, keyed by normalized email.
func (s *CredentialService) Create(ctx context.Context, req model.CredentialCreateRequest) (*model.CredentialCreateResponse, error) {
	hasSlug := req.TenantSlug != ""
	hasIndividual := req.Individual
	if hasSlug == hasIndividual {
		return nil, ErrInvalidRequest
	}
	if hasIndividual && !isPlausibleEmail(req.Email) {
		return nil, ErrInvalidEmail
	}
	if req.ExpiresInDays < 0 {
		return nil, ErrInvalidExpiry
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{model.ScopeRead}
	}
	for _, scope := range scopes {
		if !slices.Contains(model.ValidScopes, scope) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidScope, scope)
		}
	}

	key, err := auth.GenerateKey(s.keyEnv)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	now := time.Now()
	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := now.AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	cred := &model.Credential{
		ID:           ulid.Make().String(),
		SecretDigest: key.Digest,
		SecretHash:   key.Hash,
		KeyPrefix:    key.Prefix,
		Name:         req.Name,
		Scopes:       scopes,
		ExpiresAt:    expiresAt,
		IsActive:     true,
		CreatedAt:    now,
	}

	var tenant *model.Tenant
	if hasIndividual {
		tenant, err = s.repo.CreateIndividualCredential(ctx, req.Email, individualTier, cred)
		if err != nil {
			return nil, err
		}
	} else {
		tenant, err = s.repo.GetTenantBySlug(ctx, req.TenantSlug)
		if err != nil {
			return nil, err
		}
		if !tenant.IsActive {
			return nil, ErrTenantInactive
		}
		cred.TenantID = tenant.ID
		if err := s.repo.CreateCredentialForTenant(ctx, cred); err != nil {
			return nil, err
		}
	}

	s.metrics.IncCredentialCreated()
	s.logger.Info("credential created",
		slog.String("credential_id", cred.ID),
		slog.String("key_prefix", cred.KeyPrefix),
		slog.String("tenant_slug", tenant.Slug),
	)

	return &model.CredentialCreateResponse{
		ID:         cred.ID,
		Key:        key.Plaintext,
		TenantID:   tenant.ID,
		TenantSlug: tenant.Slug,
		KeyPrefix:  cred.KeyPrefix,
		Name:       cred.Name,
		Scopes:     cred.Scopes,
		ExpiresAt:  cred.ExpiresAt,
		CreatedAt:  cred.CreatedAt,
	}, nil
}

// List returns all credentials belonging to a tenant, looked up by slug.
func (s *CredentialService) List(ctx context.Context, tenantSlug string) ([]model.CredentialResponse, error) {
	tenant, err := s.repo.GetTenantBySlug(ctx, tenantSlug)
	if err != nil {
		return nil, err
	}

	creds, err := s.repo.ListCredentialsByTenant(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}

	responses := make([]model.CredentialResponse, 0, len(creds))
	for _, cred := range creds {
		responses = append(responses, cred.ToResponse())
	}
	return responses, nil
}

// Revoke deactivates a credential and evicts its cached identity so it
// stops authenticating immediately rather than at cache expiry.
// Revoking an already-revoked credential succeeds.
func (s *CredentialService) Revoke(ctx context.Context, id string) error {
	cred, err := s.repo.GetCredentialByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.RevokeCredential(ctx, id); err != nil {
		return err
	}

	s.evictIdentity(ctx, cred.SecretDigest)
	s.metrics.IncCredentialRevoked()
	s.logger.Info("credential revoked",
		slog.String("credential_id", id),
		slog.String("key_prefix", cred.KeyPrefix),
	)

	return nil
}

// Rotate revokes a credential and issues its replacement in one atomic
// operation. The replacement keeps the old name, scopes, and expiry.
func (s *CredentialService) Rotate(ctx context.Context, id string) (*model.CredentialRotateResponse, error) {
	old, err := s.repo.GetCredentialByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !old.IsActive {
		return nil, repository.ErrCredentialNotFound
	}

	tenant, err := s.repo.GetTenantByID(ctx, old.TenantID)
	if err != nil {
		return nil, err
	}

	key, err := auth.GenerateKey(s.keyEnv)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	now := time.Now()
	newCred := &model.Credential{
		ID:           ulid.Make().String(),
		TenantID:     old.TenantID,
		SecretDigest: key.Digest,
		SecretHash:   key.Hash,
		KeyPrefix:    key.Prefix,
		Name:         old.Name,
		Scopes:       old.Scopes,
		ExpiresAt:    old.ExpiresAt,
		IsActive:     true,
		CreatedAt:    now,
	}

	if err := s.repo.RotateCredential(ctx, old.ID, newCred); err != nil {
		return nil, err
	}

	s.evictIdentity(ctx, old.SecretDigest)
	s.metrics.IncCredentialRotated()
	s.logger.Info("credential rotated",
		slog.String("old_credential_id", old.ID),
		slog.String("new_credential_id", newCred.ID),
	)

	return &model.CredentialRotateResponse{
		OldID:        old.ID,
		OldRevokedAt: now,
		New: model.CredentialCreateResponse{
			ID:         newCred.ID,
			Key:        key.Plaintext,
			TenantID:   tenant.ID,
			TenantSlug: tenant.Slug,
			KeyPrefix:  newCred.KeyPrefix,
			Name:       newCred.Name,
			Scopes:     newCred.Scopes,
			ExpiresAt:  newCred.ExpiresAt,
			CreatedAt:  newCred.CreatedAt,
		},
	}, nil
}

// UsageStats returns per-day usage for a credential over the last `days`
// days. days <= 0 selects the default window.
func (s *CredentialService) UsageStats(ctx context.Context, id string, days int) ([]*model.DailyUsageStat, error) {
	if days <= 0 {
		days = defaultStatsDays
	}
	if days > maxStatsDays {
		return nil, ErrInvalidStatsDays
	}

	if _, err := s.repo.GetCredentialByID(ctx, id); err != nil {
		return nil, err
	}

	return s.repo.DailyUsageStats(ctx, id, days)
}

// Cleanup deletes credentials that have been revoked or expired for longer
// than olderThanDays. Returns the number of rows removed.
func (s *CredentialService) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = defaultStatsDays
	}

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	deleted, err := s.repo.DeleteInactiveCredentials(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.logger.Info("inactive credentials cleaned up",
		slog.Int64("deleted", deleted),
		slog.Int("older_than_days", olderThanDays),
	)
	return deleted, nil
}

// evictIdentity best-effort removes a cached identity.
func (s *CredentialService) evictIdentity(ctx context.Context, digest string) {
	if s.evictor == nil {
		return
	}
	if err := s.evictor.DeleteIdentity(ctx, digest); err != nil {
		// The cache TTL still bounds staleness if eviction fails.
		s.logger.Warn("failed to evict cached identity", slog.String("error", err.Error()))
	}
}

// isPlausibleEmail applies the minimal shape check for an email address.
// Real validation happens when mail is actually sent; this only rejects
// obvious garbage before it becomes a tenant slug.
func isPlausibleEmail(email string) bool {
	email = model.NormalizeEmail(email)
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.Contains(email[at+1:], "@") && strings.Contains(email[at+1:], ".")
}
