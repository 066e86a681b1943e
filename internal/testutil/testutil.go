package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/keygate/keygate/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetCoreSchema drops and recreates the tenants/credentials/usage_records
// schema for tests.
func ResetCoreSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downPath := filepath.Join(root, "migrations", "000001_core.down.sql")
	upPath := filepath.Join(root, "migrations", "000001_core.up.sql")

	downSQL, err := os.ReadFile(downPath)
	if err != nil {
		return fmt.Errorf("read down migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		return fmt.Errorf("apply down migration: %w", err)
	}

	upSQL, err := os.ReadFile(upPath)
	if err != nil {
		return fmt.Errorf("read up migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		return fmt.Errorf("apply up migration: %w", err)
	}

	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestTenant creates a test organization with sensible defaults.
func NewTestTenant(t testing.TB, slug string) *model.Tenant {
	t.Helper()
	now := time.Now().UTC()
	return &model.Tenant{
		ID:        fmt.Sprintf("tnt-%d", now.UnixNano()),
		Name:      "Test Tenant " + slug,
		Slug:      slug,
		Tier:      model.TierFree,
		IsActive:  true,
		CreatedAt: now,
	}
}

// NewTestCredential creates a test credential with sensible defaults.
// The digest and hash are synthetic; use auth.GenerateKey when the test
// needs a verifiable plaintext key.
func NewTestCredential(t testing.TB, tenantID string) *model.Credential {
	t.Helper()
	now := time.Now().UTC()
	return &model.Credential{
		ID:           fmt.Sprintf("crd-%d", now.UnixNano()),
		TenantID:     tenantID,
		SecretDigest: fmt.Sprintf("digest-%d", now.UnixNano()),
		SecretHash:   fmt.Sprintf("hash-%d", now.UnixNano()),
		KeyPrefix:    "kg_test_abc123",
		Name:         "Test Credential",
		Scopes:       []string{model.ScopeRead, model.ScopeWrite},
		IsActive:     true,
		CreatedAt:    now,
	}
}

// NewTestCredentialWithExpiry creates a test credential with an expiry time.
func NewTestCredentialWithExpiry(t testing.TB, tenantID string, expiresAt time.Time) *model.Credential {
	t.Helper()
	cred := NewTestCredential(t, tenantID)
	cred.ExpiresAt = &expiresAt
	return cred
}

// UniqueSlug generates a unique tenant slug for tests.
func UniqueSlug(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
