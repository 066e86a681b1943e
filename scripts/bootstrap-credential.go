package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

// Bootstraps the first admin credential. Every other credential is minted
// through the admin API, which itself requires an admin credential; this
// breaks the circle.

type output struct {
	TenantID   string   `json:"tenant_id"`
	TenantSlug string   `json:"tenant_slug"`
	KeyID      string   `json:"credential_id"`
	Key        string   `json:"key"`
	KeyPrefix  string   `json:"key_prefix"`
	Scopes     []string `json:"scopes"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		slug        = flag.String("tenant-slug", "system", "Slug of the tenant to own the credential")
		tenantName  = flag.String("tenant-name", "System", "Tenant name if the tenant must be created")
		name        = flag.String("name", "bootstrap", "Credential name")
		scopesInput = flag.String("scopes", "admin", "Comma-separated scopes (read,write,admin)")
		keyEnv      = flag.String("key-env", auth.EnvLive, "Key environment: live or test")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	scopes, err := parseScopes(*scopesInput)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	tenant, err := ensureTenant(ctx, repo, *slug, *tenantName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	generated, err := auth.GenerateKey(*keyEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate key:", err)
		os.Exit(1)
	}

	cred := &model.Credential{
		ID:           ulid.Make().String(),
		TenantID:     tenant.ID,
		SecretDigest: generated.Digest,
		SecretHash:   generated.Hash,
		KeyPrefix:    generated.Prefix,
		Name:         *name,
		Scopes:       scopes,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := repo.CreateCredential(ctx, cred); err != nil {
		fmt.Fprintln(os.Stderr, "create credential:", err)
		os.Exit(1)
	}

	out := output{
		TenantID:   tenant.ID,
		TenantSlug: tenant.Slug,
		KeyID:      cred.ID,
		Key:        generated.Plaintext,
		KeyPrefix:  cred.KeyPrefix,
		Scopes:     scopes,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Key)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

func parseScopes(input string) ([]string, error) {
	if strings.TrimSpace(input) == "" {
		return []string{model.ScopeAdmin}, nil
	}
	parts := strings.Split(input, ",")
	scopes := make([]string, 0, len(parts))
	for _, part := range parts {
		scope := strings.TrimSpace(part)
		if scope == "" {
			continue
		}
		if !isValidScope(scope) {
			return nil, fmt.Errorf("invalid scope: %s", scope)
		}
		scopes = append(scopes, scope)
	}
	if len(scopes) == 0 {
		scopes = []string{model.ScopeAdmin}
	}
	return scopes, nil
}

func isValidScope(scope string) bool {
	for _, allowed := range model.ValidScopes {
		if scope == allowed {
			return true
		}
	}
	return false
}

// ensureTenant finds or creates the owning tenant. The bootstrap tenant
// gets the custom tier so it is never throttled.
func ensureTenant(ctx context.Context, repo *repository.Repository, slug, name string) (*model.Tenant, error) {
	existing, err := repo.GetTenantBySlug(ctx, slug)
	if err == nil {
		return existing, nil
	}

	if !model.IsValidSlug(slug) {
		return nil, fmt.Errorf("invalid tenant slug: %s", slug)
	}

	tenant := &model.Tenant{
		ID:        ulid.Make().String(),
		Name:      name,
		Slug:      slug,
		Tier:      model.TierCustom,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateTenant(ctx, tenant); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return tenant, nil
}
