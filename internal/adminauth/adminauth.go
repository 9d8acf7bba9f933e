// Package adminauth implements the Admin API Key surface guarding
// ingestion-trigger and schema/rule-registration endpoints, adapted from
// internal/storage's API-key hashing and lookup idiom in
// correlator-io-correlator: bcrypt cost-10 hashing for the stored
// secret, plus a SHA-256 lookup hash for an O(1) indexed lookup that
// never touches the bcrypt comparison on a miss.
package adminauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost      = 10
	bcryptLimit     = 72
	randomBytesSize = 32
	keyPrefix       = "dcsp_admin_"
	apiKeyLength    = len(keyPrefix) + 64
)

// Sentinel errors for admin API key operations.
var (
	ErrKeyNil           = errors.New("adminauth: key cannot be nil")
	ErrKeyNotFound      = errors.New("adminauth: key not found")
	ErrKeyRevoked       = errors.New("adminauth: key has been revoked")
	ErrInvalidKeyFormat = errors.New("adminauth: invalid key format")
	ErrInvalidKeyLength = errors.New("adminauth: invalid key length")
	ErrKeyStringEmpty   = errors.New("adminauth: key string cannot be empty")
)

// Key is the domain model for a stored admin API key. KeyHash is the
// bcrypt digest; the plaintext key is never persisted or logged.
type Key struct {
	ID         string
	Label      string
	LookupHash string
	KeyHash    string
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// IsRevoked reports whether the key has been soft-deleted.
func (k *Key) IsRevoked() bool {
	return k.RevokedAt != nil
}

// GenerateKey creates a new secure admin API key string of the form
// "dcsp_admin_" + 64 hex chars (256 bits of entropy).
func GenerateKey() (string, error) {
	raw := make([]byte, randomBytesSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("adminauth: generate key: %w", err)
	}

	return keyPrefix + hex.EncodeToString(raw), nil
}

// ParseKey extracts and validates a presented API key from an
// "Authorization: Bearer <key>" header value or a bare key string.
func ParseKey(raw string) (string, error) {
	if raw == "" {
		return "", ErrKeyStringEmpty
	}

	raw = strings.TrimPrefix(raw, "Bearer ")

	if !strings.HasPrefix(raw, keyPrefix) {
		return "", ErrInvalidKeyFormat
	}

	if len(raw) != apiKeyLength {
		return "", ErrInvalidKeyLength
	}

	return raw, nil
}

// HashKey bcrypt-hashes a plaintext key for storage. Keys longer than
// bcrypt's 72-byte limit are pre-hashed with SHA-256, matching the
// teacher's HashAPIKey input-preparation logic.
func HashKey(key string) (string, error) {
	if key == "" {
		return "", ErrKeyNil
	}

	hash, err := bcrypt.GenerateFromPassword(prepareInput(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("adminauth: hash key: %w", err)
	}

	return string(hash), nil
}

// CompareKeyHash performs constant-time verification of a plaintext key
// against its stored bcrypt hash.
func CompareKeyHash(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), prepareInput(key)) == nil
}

// LookupHash computes the SHA-256 hash used as the indexed lookup column;
// it is not a security boundary, only an O(1) index into admin_api_keys
// ahead of the bcrypt comparison.
func LookupHash(key string) string {
	sum := sha256.Sum256([]byte(key))

	return hex.EncodeToString(sum[:])
}

// MaskKey renders a key safe for logs: prefix and last 4 characters
// visible, the rest masked.
func MaskKey(key string) string {
	if len(key) != apiKeyLength {
		return strings.Repeat("*", len(key))
	}

	visiblePrefix := len(keyPrefix) + 4
	maskedLen := len(key) - visiblePrefix - 4

	return key[:visiblePrefix] + strings.Repeat("*", maskedLen) + key[len(key)-4:]
}

func prepareInput(key string) []byte {
	if len(key) > bcryptLimit {
		sum := sha256.Sum256([]byte(key))

		return sum[:]
	}

	return []byte(key)
}

// secureCompare performs constant-time comparison, reserved for callers
// that already hold a lookup hash and want to avoid a timing leak on
// string equality (bcrypt comparison above already does this for the
// key_hash path; this helper exists for lookup_hash comparisons done
// outside of SQL, e.g. a cached in-memory lookup table).
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
