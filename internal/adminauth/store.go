package adminauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver
)

// Store is the PostgreSQL-backed admin_api_keys table, grounded on
// PersistentKeyStore's lookup-hash-then-bcrypt-verify flow.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	cache  *verifiedCache
}

// NewStore wraps an already-open *sql.DB.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger, cache: newVerifiedCache()}
}

// Issue generates a new plaintext key, persists its hashes under label,
// and returns the plaintext (shown to the operator exactly once; it is
// never recoverable afterward).
func (s *Store) Issue(ctx context.Context, label string) (plaintext string, key Key, err error) {
	plaintext, err = GenerateKey()
	if err != nil {
		return "", Key{}, err
	}

	keyHash, err := HashKey(plaintext)
	if err != nil {
		return "", Key{}, err
	}

	k := Key{
		ID:         uuid.NewString(),
		Label:      label,
		LookupHash: LookupHash(plaintext),
		KeyHash:    keyHash,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO admin_api_keys (id, label, lookup_hash, key_hash, created_at) VALUES ($1, $2, $3, $4, now())`,
		k.ID, k.Label, k.LookupHash, k.KeyHash,
	)
	if err != nil {
		return "", Key{}, fmt.Errorf("adminauth: issue: %w", err)
	}

	return plaintext, k, nil
}

// Verify looks up a presented plaintext key by its lookup hash, then
// verifies it against the stored bcrypt hash. Returns ErrKeyNotFound if
// no row matches the lookup hash, and ErrKeyRevoked if the matching row
// has been soft-deleted, distinguishing "wrong key" from "right key,
// revoked" for audit logging without ever logging the plaintext.
func (s *Store) Verify(ctx context.Context, plaintext string) (Key, error) {
	lookupHash := LookupHash(plaintext)

	// A prior call may already have paid the bcrypt cost for this exact
	// key; the row is still re-read below so a since-issued revocation is
	// honored.
	cachedID, cached := s.cache.Check(lookupHash)

	var (
		k         Key
		revokedAt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, label, lookup_hash, key_hash, created_at, revoked_at FROM admin_api_keys WHERE lookup_hash = $1`,
		lookupHash,
	).Scan(&k.ID, &k.Label, &k.LookupHash, &k.KeyHash, &k.CreatedAt, &revokedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Key{}, ErrKeyNotFound
	case err != nil:
		return Key{}, fmt.Errorf("adminauth: verify lookup: %w", err)
	}

	if revokedAt.Valid {
		t := revokedAt.Time
		k.RevokedAt = &t
	}

	if !(cached && cachedID == k.ID) && !CompareKeyHash(k.KeyHash, plaintext) {
		s.logger.Warn("adminauth: lookup hash matched but bcrypt verification failed", slog.String("key_id", k.ID))

		return Key{}, ErrKeyNotFound
	}

	if k.IsRevoked() {
		s.cache.Forget(lookupHash)

		return Key{}, ErrKeyRevoked
	}

	s.cache.Remember(lookupHash, k.ID)

	return k, nil
}

// Revoke soft-deletes a key by ID.
func (s *Store) Revoke(ctx context.Context, id string) error {
	var lookupHash string
	if err := s.db.QueryRowContext(ctx,
		`SELECT lookup_hash FROM admin_api_keys WHERE id = $1`, id,
	).Scan(&lookupHash); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("adminauth: revoke lookup: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE admin_api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("adminauth: revoke: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adminauth: revoke rows affected: %w", err)
	}

	if affected == 0 {
		return ErrKeyNotFound
	}

	if lookupHash != "" {
		s.cache.Forget(lookupHash)
	}

	return nil
}

// HealthCheck verifies the underlying connection is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("adminauth: health check: %w", err)
	}

	return nil
}
