package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/keygate/keygate/internal/model"
)

// CreateTenant inserts a new visible organization.
// Returns ErrSlugTaken if the slug is already in use.
func (r *Repository) CreateTenant(ctx context.Context, tenant *model.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, slug, tier, is_individual, is_active, contact_email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		tenant.Tier,
		tenant.IsIndividual,
		tenant.IsActive,
		tenant.ContactEmail,
		tenant.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	return nil
}

// GetTenantByID retrieves a tenant by its ID.
func (r *Repository) GetTenantByID(ctx context.Context, id string) (*model.Tenant, error) {
	query := `
		SELECT id, name, slug, tier, is_individual, is_active, contact_email, created_at
		FROM tenants
		WHERE id = $1
	`

	return scanTenant(r.db.QueryRow(ctx, query, id))
}

// GetTenantBySlug retrieves a tenant by its unique slug.
func (r *Repository) GetTenantBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	query := `
		SELECT id, name, slug, tier, is_individual, is_active, contact_email, created_at
		FROM tenants
		WHERE slug = $1
	`

	return scanTenant(r.db.QueryRow(ctx, query, slug))
}

// ListTenants retrieves all visible organizations.
// Hidden individual tenants never appear in listings.
func (r *Repository) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	query := `
		SELECT id, name, slug, tier, is_individual, is_active, contact_email, created_at
		FROM tenants
		WHERE is_individual = FALSE
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*model.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}

	return tenants, nil
}

// UpdateTenantTier changes a tenant's tier.
func (r *Repository) UpdateTenantTier(ctx context.Context, id, tier string) error {
	query := `
		UPDATE tenants
		SET tier = $2
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, tier)
	if err != nil {
		return fmt.Errorf("failed to update tenant tier: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrTenantNotFound
	}

	return nil
}

// getOrCreateIndividualTenant finds or creates the hidden individual tenant
// for an email inside an existing transaction. The insert races safely with
// concurrent first-time creations via ON CONFLICT DO NOTHING followed by a
// re-read, so the same email always resolves to a single tenant.
func getOrCreateIndividualTenant(ctx context.Context, tx pgx.Tx, email, tier string) (*model.Tenant, error) {
	slug := model.IndividualSlug(email)

	selectQuery := `
		SELECT id, name, slug, tier, is_individual, is_active, contact_email, created_at
		FROM tenants
		WHERE slug = $1 AND is_individual = TRUE
	`

	tenant, err := scanTenant(tx.QueryRow(ctx, selectQuery, slug))
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, ErrTenantNotFound) {
		return nil, err
	}

	insertQuery := `
		INSERT INTO tenants (id, name, slug, tier, is_individual, is_active, contact_email, created_at)
		VALUES ($1, $2, $3, $4, TRUE, TRUE, $5, NOW())
		ON CONFLICT (slug) DO NOTHING
	`

	id := ulid.Make().String()
	if _, err := tx.Exec(ctx, insertQuery, id, model.IndividualName(email), slug, tier, model.NormalizeEmail(email)); err != nil {
		return nil, fmt.Errorf("failed to create individual tenant: %w", err)
	}

	// Re-read: either our insert or a concurrent one won.
	tenant, err = scanTenant(tx.QueryRow(ctx, selectQuery, slug))
	if err != nil {
		return nil, fmt.Errorf("failed to read individual tenant after insert: %w", err)
	}

	return tenant, nil
}

// scanTenant scans a single row into a Tenant model.
func scanTenant(row pgx.Row) (*model.Tenant, error) {
	var tenant model.Tenant

	err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Slug,
		&tenant.Tier,
		&tenant.IsIndividual,
		&tenant.IsActive,
		&tenant.ContactEmail,
		&tenant.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}

	return &tenant, nil
}
