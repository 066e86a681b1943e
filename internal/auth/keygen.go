// Package auth provides credential generation and hashing utilities.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Key format: kg_{env}_{prefix}_{secret}
// Example: kg_live_7a9x3k_<64 hex chars>
//
// The secret carries 32 bytes (256 bits) of entropy. The prefix is
// non-secret and only used for display.
const (
	KeyPrefixLen = 6  // visible prefix length (hex encoded 3 bytes)
	KeySecretLen = 64 // secret length (hex encoded 32 bytes)
)

// Environment indicators for key prefix.
const (
	EnvLive = "live"
	EnvTest = "test"
)

var (
	// ErrInvalidKeyFormat indicates the key format is invalid.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	// keyFormatRegex validates the key format.
	keyFormatRegex = regexp.MustCompile(`^kg_(live|test)_([a-f0-9]{6})_([a-f0-9]{64})$`)
)

// GeneratedKey contains the parts of a newly generated credential secret.
type GeneratedKey struct {
	Plaintext string // full key (show once only)
	Digest    string // SHA-256 digest for indexed lookup
	Hash      string // argon2id hash for verification after lookup
	Prefix    string // 6-char visible prefix
}

// GenerateKey creates a new credential secret for the given environment.
// Returns the plaintext (to show once), the lookup digest and verification
// hash (to store), and the display prefix.
func GenerateKey(env string) (*GeneratedKey, error) {
	if env != EnvLive && env != EnvTest {
		env = EnvLive
	}

	prefixBytes := make([]byte, 3)
	if _, err := rand.Read(prefixBytes); err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	prefix := hex.EncodeToString(prefixBytes)

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	plaintext := fmt.Sprintf("kg_%s_%s_%s", env, prefix, secret)

	hash, err := HashSecret(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &GeneratedKey{
		Plaintext: plaintext,
		Digest:    Digest(plaintext),
		Hash:      hash,
		Prefix:    prefix,
	}, nil
}

// ValidateKeyFormat checks if the key matches the expected format.
func ValidateKeyFormat(key string) bool {
	return keyFormatRegex.MatchString(key)
}
