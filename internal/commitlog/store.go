package commitlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Store is the PostgreSQL-backed commit log and current-version pointer,
// grounded on internal/storage.LineageStore's FOR UPDATE transaction
// pattern: every mutation that reads-then-writes the current pointer row
// does so under a single *sql.Tx with the row locked for its duration, so
// concurrent promotions for the same dataset serialize rather than race.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-open *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetNextVersion returns MAX(version)+1 for a dataset, or 1 if none exists.
func (s *Store) GetNextVersion(ctx context.Context, datasetID string) (int, error) {
	var next sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM dataset_commits WHERE dataset_id = $1`,
		datasetID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("commitlog: get next version: %w", err)
	}

	if !next.Valid {
		return 1, nil
	}

	return int(next.Int64) + 1, nil
}

// CreatePendingCommit inserts a status='pending' row carrying the full
// ingestion-attempt metadata.
func (s *Store) CreatePendingCommit(ctx context.Context, c Commit) error {
	errsJSON, err := json.Marshal(c.ValidationErrors)
	if err != nil {
		return fmt.Errorf("commitlog: marshal validation errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dataset_commits
			(dataset_id, version, status, record_count, previous_record_count,
			 validation_status, validation_errors, ingested_at, kv_versioned_key,
			 source, schema_version, schema_hash)
		VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.DatasetID, c.Version, c.RecordCount, c.PreviousRecordCount,
		c.ValidationStatus, errsJSON, c.IngestedAt, c.KVVersionedKey,
		c.Source, c.SchemaVersion, c.SchemaHash,
	)
	if err != nil {
		return fmt.Errorf("commitlog: insert pending commit: %w", err)
	}

	return nil
}

// PromoteCommit performs, in one transaction: (a) any existing committed
// row for this dataset transitions to superseded; (b) the target version
// transitions to committed with committed_at=now; (c) the current_version
// pointer is upserted with the new version, is_serving_lkg=false,
// lkg_reason=null, and the new schema info.
//
// Every existing commit row of the dataset, the target included, is
// locked FOR UPDATE (in version order) before either write so a
// concurrent promotion attempt for the same dataset blocks until this one
// commits or rolls back, mirroring lineage_store.go's fetchJobRunState
// idiom.
func (s *Store) PromoteCommit(ctx context.Context, datasetID string, version int, schema SchemaInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commitlog: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`SELECT 1 FROM dataset_commits WHERE dataset_id = $1 ORDER BY version FOR UPDATE`,
		datasetID,
	); err != nil {
		return fmt.Errorf("commitlog: lock dataset rows: %w", err)
	}

	var status string

	err = tx.QueryRowContext(ctx,
		`SELECT status FROM dataset_commits WHERE dataset_id = $1 AND version = $2 FOR UPDATE`,
		datasetID, version,
	).Scan(&status)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: dataset %s version %d", ErrNoCommitRow, datasetID, version)
	case err != nil:
		return fmt.Errorf("commitlog: lock target row: %w", err)
	case status != string(StatusPending):
		return fmt.Errorf("%w: dataset %s version %d is %s", ErrNotPending, datasetID, version, status)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE dataset_commits SET status = $1 WHERE dataset_id = $2 AND status = $3`,
		StatusSuperseded, datasetID, StatusCommitted,
	); err != nil {
		return fmt.Errorf("commitlog: supersede prior committed row: %w", err)
	}

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE dataset_commits SET status = $1, committed_at = $2 WHERE dataset_id = $3 AND version = $4`,
		StatusCommitted, now, datasetID, version,
	); err != nil {
		return fmt.Errorf("commitlog: promote target row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dataset_current_version
			(dataset_id, current_version, last_committed_version, last_committed_at,
			 is_serving_lkg, lkg_reason, current_schema_version, last_committed_schema_hash)
		VALUES ($1, $2, $2, $3, false, NULL, $4, $5)
		ON CONFLICT (dataset_id) DO UPDATE SET
			current_version = EXCLUDED.current_version,
			last_committed_version = EXCLUDED.last_committed_version,
			last_committed_at = EXCLUDED.last_committed_at,
			is_serving_lkg = false,
			lkg_reason = NULL,
			current_schema_version = EXCLUDED.current_schema_version,
			last_committed_schema_hash = EXCLUDED.last_committed_schema_hash`,
		datasetID, version, now, schema.SchemaVersion, schema.SchemaHash,
	); err != nil {
		return fmt.Errorf("commitlog: upsert current pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commitlog: commit tx: %w", err)
	}

	return nil
}

// RollbackCommit transitions a pending row to rolled_back and stores the
// reason.
func (s *Store) RollbackCommit(ctx context.Context, datasetID string, version int, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dataset_commits SET status = $1, rolled_back_reason = $2
		 WHERE dataset_id = $3 AND version = $4 AND status = $5`,
		StatusRolledBack, reason, datasetID, version, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("commitlog: rollback: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commitlog: rollback rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: dataset %s version %d", ErrNotPending, datasetID, version)
	}

	return nil
}

// MarkServingLKG sets is_serving_lkg=true and records lkg_reason on the
// current pointer row.
func (s *Store) MarkServingLKG(ctx context.Context, datasetID string, lkgVersion int, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dataset_current_version
		 SET current_version = $1, is_serving_lkg = true, lkg_reason = $2
		 WHERE dataset_id = $3`,
		lkgVersion, reason, datasetID,
	)
	if err != nil {
		return fmt.Errorf("commitlog: mark serving lkg: %w", err)
	}

	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("commitlog: mark serving lkg rows affected: %w", err)
	} else if affected == 0 {
		return fmt.Errorf("%w: dataset %s", ErrNoCurrentPointer, datasetID)
	}

	return nil
}

// ClearLKGStatus is the inverse of MarkServingLKG.
func (s *Store) ClearLKGStatus(ctx context.Context, datasetID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE dataset_current_version SET is_serving_lkg = false, lkg_reason = NULL WHERE dataset_id = $1`,
		datasetID,
	)
	if err != nil {
		return fmt.Errorf("commitlog: clear lkg status: %w", err)
	}

	return nil
}

// CurrentVersionFor loads the current-version pointer row for a dataset.
func (s *Store) CurrentVersionFor(ctx context.Context, datasetID string) (CurrentVersion, error) {
	var (
		cv               CurrentVersion
		lastCommittedAt  sql.NullTime
		lkgReason        sql.NullString
		currentSchemaVer sql.NullString
		lastSchemaHash   sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT dataset_id, current_version, last_committed_version, last_committed_at,
		       is_serving_lkg, lkg_reason, current_schema_version, last_committed_schema_hash
		FROM dataset_current_version WHERE dataset_id = $1`,
		datasetID,
	).Scan(
		&cv.DatasetID, &cv.CurrentVersion, &cv.LastCommittedVersion, &lastCommittedAt,
		&cv.IsServingLKG, &lkgReason, &currentSchemaVer, &lastSchemaHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return CurrentVersion{}, fmt.Errorf("%w: dataset %s", ErrNoCurrentPointer, datasetID)
	}

	if err != nil {
		return CurrentVersion{}, fmt.Errorf("commitlog: current version for: %w", err)
	}

	if lastCommittedAt.Valid {
		t := lastCommittedAt.Time
		cv.LastCommittedAt = &t
	}

	cv.LKGReason = lkgReason.String
	cv.CurrentSchemaVersion = currentSchemaVer.String
	cv.LastCommittedSchemaHash = lastSchemaHash.String

	return cv, nil
}

// LatestCommitted returns the highest-version row for a dataset whose
// status is committed, used when the Orchestrator needs an LKG candidate.
// Superseded rows are not considered.
func (s *Store) LatestCommitted(ctx context.Context, datasetID string) (Commit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dataset_id, version, status, record_count, previous_record_count,
		       validation_status, validation_errors, ingested_at, committed_at,
		       kv_versioned_key, source, schema_version, schema_hash
		FROM dataset_commits
		WHERE dataset_id = $1 AND status = $2
		ORDER BY version DESC LIMIT 1`,
		datasetID, StatusCommitted,
	)

	return scanCommit(row)
}

func scanCommit(row *sql.Row) (Commit, error) {
	var (
		c           Commit
		errsJSON    []byte
		committedAt sql.NullTime
	)

	err := row.Scan(
		&c.DatasetID, &c.Version, &c.Status, &c.RecordCount, &c.PreviousRecordCount,
		&c.ValidationStatus, &errsJSON, &c.IngestedAt, &committedAt,
		&c.KVVersionedKey, &c.Source, &c.SchemaVersion, &c.SchemaHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Commit{}, fmt.Errorf("%w", ErrNoCommitRow)
	}

	if err != nil {
		return Commit{}, fmt.Errorf("commitlog: scan commit: %w", err)
	}

	if committedAt.Valid {
		t := committedAt.Time
		c.CommittedAt = &t
	}

	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &c.ValidationErrors); err != nil {
			return Commit{}, fmt.Errorf("commitlog: unmarshal validation errors: %w", err)
		}
	}

	return c, nil
}

// HealthCheck verifies the underlying connection is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("commitlog: health check: %w", err)
	}

	return nil
}
