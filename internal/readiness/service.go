package readiness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// defaultSnapshotMaxAge bounds how old an object-store snapshot may be
// for cold-start recovery (spec.md §4.6, "Snapshot recovery").
const defaultSnapshotMaxAge = 24 * time.Hour

// Service is the Postgres-backed readiness store. Every scope (a
// datasetId, or a broader label such as "system") owns exactly one row.
type Service struct {
	db             *sql.DB
	snapshotMaxAge time.Duration
}

// NewService wraps an already-open *sql.DB with the default snapshot
// recovery window.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, snapshotMaxAge: defaultSnapshotMaxAge}
}

// WithSnapshotMaxAge overrides the snapshot recovery age bound.
func (s *Service) WithSnapshotMaxAge(d time.Duration) *Service {
	s.snapshotMaxAge = d

	return s
}

// Record is the persisted readiness row for one scope.
type Record struct {
	Scope               string
	State               State
	LastTransitionAt    time.Time
	Reason              string
	SnapshotValidatedAt *time.Time
	LiveIngestionAt     *time.Time
}

// Check consults the readiness row for scope and returns the tuple reads
// must obey before touching the KV surface. A cold start (no row) is
// treated as StateInitializing. If the metadata store itself cannot be
// reached, it falls back to MetadataStoreDown rather than propagating the
// database error, since a degraded metadata store must still let reads
// attempt to serve LKG.
func (s *Service) Check(ctx context.Context, scope string) Check {
	rec, err := s.resolve(ctx, scope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Evaluate(StateInitializing, "cold start: no readiness row")
		}

		return MetadataStoreDown(fmt.Sprintf("metadata store unavailable: %v", err))
	}

	return Evaluate(rec.State, rec.Reason)
}

func (s *Service) resolve(ctx context.Context, scope string) (Record, error) {
	var (
		rec                 Record
		snapshotValidatedAt sql.NullTime
		liveIngestionAt     sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT scope, readiness_state, last_transition_at, reason, snapshot_validated_at, live_ingestion_at
		FROM system_readiness WHERE scope = $1`,
		scope,
	).Scan(&rec.Scope, &rec.State, &rec.LastTransitionAt, &rec.Reason, &snapshotValidatedAt, &liveIngestionAt)
	if err != nil {
		return Record{}, err
	}

	if snapshotValidatedAt.Valid {
		t := snapshotValidatedAt.Time
		rec.SnapshotValidatedAt = &t
	}

	if liveIngestionAt.Valid {
		t := liveIngestionAt.Time
		rec.LiveIngestionAt = &t
	}

	return rec, nil
}

// Transition moves scope to newState, validating against the state
// machine and upserting the row. reason is recorded verbatim.
func (s *Service) Transition(ctx context.Context, scope string, newState State, reason string) error {
	rec, err := s.resolve(ctx, scope)

	current := StateInitializing
	if err == nil {
		current = rec.State
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("readiness: resolve current state: %w", err)
	}

	if err := ValidateTransition(current, newState); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO system_readiness (scope, readiness_state, last_transition_at, reason)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (scope) DO UPDATE SET
			readiness_state = EXCLUDED.readiness_state,
			last_transition_at = EXCLUDED.last_transition_at,
			reason = EXCLUDED.reason`,
		scope, newState, reason,
	)
	if err != nil {
		return fmt.Errorf("readiness: upsert transition: %w", err)
	}

	return nil
}

// MarkLiveIngestion transitions scope to ready and records the moment a
// successful commit promoted, called by the Orchestrator after step 8's
// promoteCommit succeeds.
func (s *Service) MarkLiveIngestion(ctx context.Context, scope string) error {
	if err := s.Transition(ctx, scope, StateReady, "live ingestion succeeded"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE system_readiness SET live_ingestion_at = now() WHERE scope = $1`,
		scope,
	)
	if err != nil {
		return fmt.Errorf("readiness: mark live ingestion: %w", err)
	}

	return nil
}

// TryRecoverFromSnapshot attempts the initializing -> ready cold-start
// shortcut: if an object-store snapshot for scope exists, passes
// structural validation, and is younger than the configured max age, the
// scope transitions directly to ready and snapshot_validated_at is
// recorded. Returns false if recovery did not apply (no snapshot, too
// old, or scope already past initializing).
func (s *Service) TryRecoverFromSnapshot(ctx context.Context, scope string, snapshotAt time.Time, structurallyValid bool) (bool, error) {
	rec, err := s.resolve(ctx, scope)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("readiness: resolve for snapshot recovery: %w", err)
	}

	current := StateInitializing
	if err == nil {
		current = rec.State
	}

	if current != StateInitializing {
		return false, nil
	}

	if !structurallyValid || time.Since(snapshotAt) > s.snapshotMaxAge {
		return false, nil
	}

	if err := s.Transition(ctx, scope, StateReady, "recovered from object-store snapshot"); err != nil {
		return false, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE system_readiness SET snapshot_validated_at = now() WHERE scope = $1`,
		scope,
	)
	if err != nil {
		return false, fmt.Errorf("readiness: record snapshot validation: %w", err)
	}

	return true, nil
}

// HealthCheck verifies the underlying connection is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("readiness: health check: %w", err)
	}

	return nil
}
