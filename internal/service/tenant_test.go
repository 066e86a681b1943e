package service

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

func setupTenantService(t *testing.T) (*TenantService, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewTenantService(repository.NewWithDB(mock), discardLogger()), mock
}

func TestTenantCreate(t *testing.T) {
	svc, mock := setupTenantService(t)

	mock.ExpectExec(`INSERT INTO tenants`).
		WithArgs(pgxmock.AnyArg(), "Acme Corp", "acme", "basic", false, true, "ops@acme.com", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	resp, err := svc.Create(context.Background(), model.TenantCreateRequest{
		Name:         "Acme Corp",
		Slug:         "acme",
		Tier:         "basic",
		ContactEmail: " Ops@Acme.COM ",
	})

	require.NoError(t, err)
	assert.Equal(t, "acme", resp.Slug)
	assert.Equal(t, "basic", resp.Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantCreate_DefaultsToFreeTier(t *testing.T) {
	svc, mock := setupTenantService(t)

	mock.ExpectExec(`INSERT INTO tenants`).
		WithArgs(pgxmock.AnyArg(), "Acme", "acme", "free", false, true, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	resp, err := svc.Create(context.Background(), model.TenantCreateRequest{
		Name: "Acme",
		Slug: "acme",
	})

	require.NoError(t, err)
	assert.Equal(t, model.TierFree, resp.Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantCreate_Validation(t *testing.T) {
	svc, _ := setupTenantService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     model.TenantCreateRequest
		wantErr error
	}{
		{"missing name", model.TenantCreateRequest{Slug: "acme"}, ErrNameMissing},
		{"empty slug", model.TenantCreateRequest{Name: "Acme"}, ErrInvalidSlug},
		{"uppercase slug", model.TenantCreateRequest{Name: "Acme", Slug: "Acme"}, ErrInvalidSlug},
		{"slug too short", model.TenantCreateRequest{Name: "Acme", Slug: "ab"}, ErrInvalidSlug},
		{"unknown tier", model.TenantCreateRequest{Name: "Acme", Slug: "acme", Tier: "platinum"}, ErrInvalidTier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTenantCreate_SlugTaken(t *testing.T) {
	svc, mock := setupTenantService(t)

	mock.ExpectExec(`INSERT INTO tenants`).
		WithArgs(anyArgs(8)...).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := svc.Create(context.Background(), model.TenantCreateRequest{
		Name: "Acme",
		Slug: "acme",
	})

	assert.ErrorIs(t, err, repository.ErrSlugTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantChangeTier(t *testing.T) {
	svc, mock := setupTenantService(t)

	mock.ExpectQuery(`SELECT (.+) FROM tenants\s+WHERE slug`).
		WithArgs("acme").
		WillReturnRows(tenantRow("tnt-1", "acme", true))
	mock.ExpectExec(`UPDATE tenants`).
		WithArgs("tnt-1", "professional").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	resp, err := svc.ChangeTier(context.Background(), "acme", "professional")

	require.NoError(t, err)
	assert.Equal(t, "professional", resp.Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantChangeTier_InvalidTier(t *testing.T) {
	svc, _ := setupTenantService(t)

	_, err := svc.ChangeTier(context.Background(), "acme", "diamond")

	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestTenantGet_HidesIndividuals(t *testing.T) {
	svc, mock := setupTenantService(t)

	rows := pgxmock.NewRows([]string{
		"id", "name", "slug", "tier", "is_individual", "is_active", "contact_email", "created_at",
	}).AddRow("tnt-1", "Personal - dev@example.com", "user-abc123", "free", true, true, "dev@example.com", time.Now())

	mock.ExpectQuery(`SELECT (.+) FROM tenants\s+WHERE slug`).
		WithArgs("user-abc123").
		WillReturnRows(rows)

	_, err := svc.Get(context.Background(), "user-abc123")

	assert.ErrorIs(t, err, repository.ErrTenantNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantGet(t *testing.T) {
	svc, mock := setupTenantService(t)

	mock.ExpectQuery(`SELECT (.+) FROM tenants\s+WHERE slug`).
		WithArgs("acme").
		WillReturnRows(tenantRow("tnt-1", "acme", true))

	resp, err := svc.Get(context.Background(), "acme")

	require.NoError(t, err)
	assert.Equal(t, "tnt-1", resp.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
