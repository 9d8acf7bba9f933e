package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Registration is a resolved dataset_identity row.
type Registration struct {
	DatasetID         string
	Tuple             Tuple
	CanonicalIdentity string
	CreatedAt         time.Time
	LastWriteAt       time.Time
	CollisionAttempts int
	LastCollisionAt   sql.NullTime
}

// Registry is a race-safe, Postgres-backed datasetId <-> Tuple registry.
type Registry struct {
	db *sql.DB
}

// NewRegistry wraps an already-open *sql.DB. The caller owns the
// connection's lifecycle (pool sizing, Close).
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// RegisterIdentity performs a race-safe insert: if the tuple is new, it is
// inserted under the supplied datasetId. If a row for this exact tuple
// already exists under the same datasetId, the call is idempotent. If a
// *different* datasetId already claims this tuple (a collision, which
// should only happen if computeDatasetId's hash space is exhausted or a
// caller passes a hand-rolled id), the pre-existing row's collision
// counter is incremented and ErrIdentityViolation is returned.
func (r *Registry) RegisterIdentity(ctx context.Context, datasetID string, t Tuple) error {
	canonicalJSON, err := CanonicalJSON(t)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("identity: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingID string

	row := tx.QueryRowContext(ctx, `
		SELECT dataset_id FROM dataset_identity
		WHERE sport = $1 AND competition_level = $2 AND season = $3
		  AND dataset_type = $4 AND qualifier = $5
		FOR UPDATE`,
		t.Sport, t.CompetitionLevel, t.Season, t.DatasetType, t.Qualifier,
	)

	err = row.Scan(&existingID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO dataset_identity
				(dataset_id, sport, competition_level, season, dataset_type, qualifier,
				 identity_version, canonical_identity, created_at, last_write_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`,
			datasetID, t.Sport, t.CompetitionLevel, t.Season, t.DatasetType, t.Qualifier,
			t.IdentitySchemaVer, string(canonicalJSON),
		)
		if err != nil {
			return fmt.Errorf("identity: insert: %w", err)
		}
	case err != nil:
		return fmt.Errorf("identity: lookup: %w", err)
	case existingID == datasetID:
		_, err = tx.ExecContext(ctx, `
			UPDATE dataset_identity SET last_write_at = now() WHERE dataset_id = $1`,
			datasetID,
		)
		if err != nil {
			return fmt.Errorf("identity: touch: %w", err)
		}
	default:
		_, uerr := tx.ExecContext(ctx, `
			UPDATE dataset_identity
			SET collision_attempts = collision_attempts + 1, last_collision_at = now()
			WHERE dataset_id = $1`,
			existingID,
		)
		if uerr != nil {
			return fmt.Errorf("identity: record collision: %w", uerr)
		}

		if cerr := tx.Commit(); cerr != nil {
			return fmt.Errorf("identity: commit collision record: %w", cerr)
		}

		return fmt.Errorf("%w: tuple already claimed by datasetId %s", ErrIdentityViolation, existingID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("identity: commit: %w", err)
	}

	return nil
}

// ResolveIdentity loads the tuple registered under datasetID. Returns
// sql.ErrNoRows (wrapped) if no row exists.
func (r *Registry) ResolveIdentity(ctx context.Context, datasetID string) (Registration, error) {
	var reg Registration

	reg.DatasetID = datasetID

	row := r.db.QueryRowContext(ctx, `
		SELECT sport, competition_level, season, dataset_type, qualifier,
		       identity_version, canonical_identity, created_at, last_write_at,
		       collision_attempts, last_collision_at
		FROM dataset_identity WHERE dataset_id = $1`,
		datasetID,
	)

	err := row.Scan(
		&reg.Tuple.Sport, &reg.Tuple.CompetitionLevel, &reg.Tuple.Season,
		&reg.Tuple.DatasetType, &reg.Tuple.Qualifier, &reg.Tuple.IdentitySchemaVer,
		&reg.CanonicalIdentity, &reg.CreatedAt, &reg.LastWriteAt,
		&reg.CollisionAttempts, &reg.LastCollisionAt,
	)
	if err != nil {
		return Registration{}, fmt.Errorf("identity: resolve %s: %w", datasetID, err)
	}

	return reg, nil
}

// HealthCheck verifies the underlying connection is reachable.
func (r *Registry) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("identity: health check: %w", err)
	}

	return nil
}
