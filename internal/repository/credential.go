package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/keygate/keygate/internal/model"
)

const credentialColumns = `id, tenant_id, secret_digest, secret_hash, key_prefix, name, scopes,
		expires_at, is_active, revoked_at, last_used_at, total_requests, created_at`

// CredentialTouch carries one credential's batched usage update.
type CredentialTouch struct {
	ID         string
	Count      int64
	LastUsedAt time.Time
}

// executor is the Exec subset shared by DB and pgx.Tx, so inserts can run
// either standalone or inside a transaction.
type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CreateCredential inserts a credential without a cap check.
// Used by the bootstrap path; the admin surface goes through
// CreateCredentialForTenant instead.
func (r *Repository) CreateCredential(ctx context.Context, cred *model.Credential) error {
	if err := insertCredential(ctx, r.db, cred); err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

// CreateCredentialForTenant inserts a credential after checking the owning
// tenant's tier cap. The tenant row is locked for the duration of the
// transaction so concurrent creations cannot both pass a stale count.
func (r *Repository) CreateCredentialForTenant(ctx context.Context, cred *model.Credential) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	tier, err := lockTenant(ctx, tx, cred.TenantID)
	if err != nil {
		return err
	}

	if err := checkCredentialCap(ctx, tx, cred.TenantID, model.LimitsForTier(tier).MaxCredentials); err != nil {
		return err
	}

	if err := insertCredential(ctx, tx, cred); err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	return tx.Commit(ctx)
}

// CreateIndividualCredential provisions (or finds) the hidden individual
// tenant for an email and inserts the credential, all in one transaction.
// Two concurrent first-time creations for the same email resolve to a
// single tenant.
func (r *Repository) CreateIndividualCredential(ctx context.Context, email, tier string, cred *model.Credential) (*model.Tenant, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	tenant, err := getOrCreateIndividualTenant(ctx, tx, email, tier)
	if err != nil {
		return nil, err
	}

	if _, err := lockTenant(ctx, tx, tenant.ID); err != nil {
		return nil, err
	}

	if err := checkCredentialCap(ctx, tx, tenant.ID, tenant.Limits().MaxCredentials); err != nil {
		return nil, err
	}

	cred.TenantID = tenant.ID
	if err := insertCredential(ctx, tx, cred); err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return tenant, nil
}

// FindCredentialByDigest retrieves a credential by its SHA-256 lookup digest.
// This is the hot-path lookup and relies on the unique index on secret_digest.
// Inactive and expired rows are returned too; the resolver distinguishes
// revoked from unknown.
func (r *Repository) FindCredentialByDigest(ctx context.Context, digest string) (*model.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE secret_digest = $1
	`

	return scanCredential(r.db.QueryRow(ctx, query, digest))
}

// GetCredentialByID retrieves a credential by its ID.
func (r *Repository) GetCredentialByID(ctx context.Context, id string) (*model.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE id = $1
	`

	return scanCredential(r.db.QueryRow(ctx, query, id))
}

// ListCredentialsByTenant retrieves all credentials for a tenant.
func (r *Repository) ListCredentialsByTenant(ctx context.Context, tenantID string) ([]*model.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}

	return creds, nil
}

// RevokeCredential deactivates a credential. Revoking an already-revoked
// credential is a no-op; only an unknown ID is an error.
func (r *Repository) RevokeCredential(ctx context.Context, id string) error {
	query := `
		UPDATE credentials
		SET is_active = FALSE, revoked_at = $2
		WHERE id = $1 AND is_active = TRUE
	`

	result, err := r.db.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to revoke credential: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM credentials WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check credential existence: %w", err)
		}
		if !exists {
			return ErrCredentialNotFound
		}
	}

	return nil
}

// RotateCredential atomically deactivates the old credential and inserts its
// replacement in the same transaction, preserving tenant linkage.
// Returns ErrCredentialNotFound if the old credential is missing or already
// revoked.
func (r *Repository) RotateCredential(ctx context.Context, oldID string, newCred *model.Credential) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	var lockedID string
	err = tx.QueryRow(ctx, `SELECT id FROM credentials WHERE id = $1 AND is_active = TRUE FOR UPDATE`, oldID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCredentialNotFound
		}
		return fmt.Errorf("failed to lock credential: %w", err)
	}

	if err := insertCredential(ctx, tx, newCred); err != nil {
		return fmt.Errorf("failed to insert rotated credential: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE credentials SET is_active = FALSE, revoked_at = $2 WHERE id = $1`, oldID, time.Now()); err != nil {
		return fmt.Errorf("failed to deactivate old credential: %w", err)
	}

	return tx.Commit(ctx)
}

// TouchCredentials applies batched last-used and request-counter updates.
// Called by the usage worker, never from the request path.
func (r *Repository) TouchCredentials(ctx context.Context, touches []CredentialTouch) error {
	if len(touches) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		UPDATE credentials
		SET last_used_at = $2, total_requests = total_requests + $3
		WHERE id = $1
	`

	for _, touch := range touches {
		batch.Queue(query, touch.ID, touch.LastUsedAt, touch.Count)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := range touches {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch touch credential %d: %w", i, err)
		}
	}

	return nil
}

// DeleteInactiveCredentials removes credentials revoked or expired before
// the cutoff. This is the explicit cleanup sweep; nothing else deletes rows.
func (r *Repository) DeleteInactiveCredentials(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM credentials
		WHERE is_active = FALSE
		  AND (revoked_at < $1 OR (expires_at IS NOT NULL AND expires_at < $1))
	`

	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive credentials: %w", err)
	}

	return result.RowsAffected(), nil
}

// lockTenant locks the tenant row for the transaction and returns its tier.
func lockTenant(ctx context.Context, tx pgx.Tx, tenantID string) (string, error) {
	var tier string
	err := tx.QueryRow(ctx, `SELECT tier FROM tenants WHERE id = $1 FOR UPDATE`, tenantID).Scan(&tier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTenantNotFound
		}
		return "", fmt.Errorf("failed to lock tenant: %w", err)
	}
	return tier, nil
}

// checkCredentialCap fails with ErrTenantLimitExceeded when the tenant is at
// its tier's active-credential cap. A cap of zero means unlimited.
func checkCredentialCap(ctx context.Context, tx pgx.Tx, tenantID string, maxActive int) error {
	if maxActive <= 0 {
		return nil
	}

	var active int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM credentials WHERE tenant_id = $1 AND is_active = TRUE`, tenantID).Scan(&active)
	if err != nil {
		return fmt.Errorf("failed to count active credentials: %w", err)
	}

	if active >= maxActive {
		return ErrTenantLimitExceeded
	}

	return nil
}

// insertCredential writes a credential row via any executor (pool or tx).
func insertCredential(ctx context.Context, db executor, cred *model.Credential) error {
	query := `
		INSERT INTO credentials (id, tenant_id, secret_digest, secret_hash, key_prefix, name, scopes,
			expires_at, is_active, total_requests, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, 0, $9)
	`

	_, err := db.Exec(ctx, query,
		cred.ID,
		cred.TenantID,
		cred.SecretDigest,
		cred.SecretHash,
		cred.KeyPrefix,
		cred.Name,
		pq.Array(cred.Scopes),
		cred.ExpiresAt,
		cred.CreatedAt,
	)
	return err
}

// scanCredential scans a single row into a Credential model.
func scanCredential(row pgx.Row) (*model.Credential, error) {
	var cred model.Credential
	var scopes []string

	err := row.Scan(
		&cred.ID,
		&cred.TenantID,
		&cred.SecretDigest,
		&cred.SecretHash,
		&cred.KeyPrefix,
		&cred.Name,
		pq.Array(&scopes),
		&cred.ExpiresAt,
		&cred.IsActive,
		&cred.RevokedAt,
		&cred.LastUsedAt,
		&cred.TotalRequests,
		&cred.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}

	cred.Scopes = scopes
	return &cred, nil
}
