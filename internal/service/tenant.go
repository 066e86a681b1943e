package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

// Tenant validation errors.
var (
	ErrInvalidSlug = errors.New("slug must be 3-64 lowercase alphanumeric characters with single hyphens")
	ErrInvalidTier = errors.New("invalid tier")
	ErrNameMissing = errors.New("name is required")
)

// TenantService handles organization management business logic.
type TenantService struct {
	repo   *repository.Repository
	logger *slog.Logger
}

// NewTenantService creates a new TenantService.
func NewTenantService(repo *repository.Repository, logger *slog.Logger) *TenantService {
	return &TenantService{repo: repo, logger: logger}
}

// Create registers a new visible organization. Individual tenants are never
// created here; they are provisioned implicitly by credential creation.
func (s *TenantService) Create(ctx context.Context, req model.TenantCreateRequest) (*model.TenantResponse, error) {
	if req.Name == "" {
		return nil, ErrNameMissing
	}
	if !model.IsValidSlug(req.Slug) {
		return nil, ErrInvalidSlug
	}

	tier := req.Tier
	if tier == "" {
		tier = model.TierFree
	}
	if !model.IsValidTier(tier) {
		return nil, ErrInvalidTier
	}

	tenant := &model.Tenant{
		ID:           ulid.Make().String(),
		Name:         req.Name,
		Slug:         req.Slug,
		Tier:         tier,
		IsIndividual: false,
		IsActive:     true,
		ContactEmail: model.NormalizeEmail(req.ContactEmail),
		CreatedAt:    time.Now(),
	}

	if err := s.repo.CreateTenant(ctx, tenant); err != nil {
		return nil, err
	}

	s.logger.Info("tenant created",
		slog.String("tenant_id", tenant.ID),
		slog.String("slug", tenant.Slug),
		slog.String("tier", tenant.Tier),
	)

	resp := tenant.ToResponse()
	return &resp, nil
}

// List returns all visible organizations. Hidden individual tenants are
// excluded at the store level.
func (s *TenantService) List(ctx context.Context) ([]model.TenantResponse, error) {
	tenants, err := s.repo.ListTenants(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]model.TenantResponse, 0, len(tenants))
	for _, tenant := range tenants {
		responses = append(responses, tenant.ToResponse())
	}
	return responses, nil
}

// ChangeTier moves a tenant to a new tier. Existing credentials keep
// working; the new ceilings apply from the next quota check.
func (s *TenantService) ChangeTier(ctx context.Context, slug, tier string) (*model.TenantResponse, error) {
	if !model.IsValidTier(tier) {
		return nil, ErrInvalidTier
	}

	tenant, err := s.repo.GetTenantBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTenantTier(ctx, tenant.ID, tier); err != nil {
		return nil, err
	}

	s.logger.Info("tenant tier changed",
		slog.String("tenant_id", tenant.ID),
		slog.String("slug", tenant.Slug),
		slog.String("from", tenant.Tier),
		slog.String("to", tier),
	)

	tenant.Tier = tier
	resp := tenant.ToResponse()
	return &resp, nil
}

// Get returns a single tenant by slug.
func (s *TenantService) Get(ctx context.Context, slug string) (*model.TenantResponse, error) {
	tenant, err := s.repo.GetTenantBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if tenant.IsIndividual {
		// Hidden tenants are not addressable through the admin surface.
		return nil, repository.ErrTenantNotFound
	}
	resp := tenant.ToResponse()
	return &resp, nil
}
