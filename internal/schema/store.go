package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // postgres driver
)

// Store persists registered schemas to dataset_schema. Admin operations
// (register, deactivate) write here; the Orchestrator and Validated Read
// only read.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-open *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Register inserts a new schema version and, if markActive is true,
// deactivates any previously active schema for this dataset in the same
// transaction, preserving the "at most one active schema per dataset"
// invariant.
func (s *Store) Register(ctx context.Context, sc Schema, markActive bool) error {
	hash, err := ComputeSchemaHash(sc.RequiredFields, sc.Invariants)
	if err != nil {
		return err
	}

	sc.SchemaHash = hash

	requiredJSON, err := json.Marshal(sc.RequiredFields)
	if err != nil {
		return fmt.Errorf("schema: marshal required fields: %w", err)
	}

	invariantsJSON, err := json.Marshal(sc.Invariants)
	if err != nil {
		return fmt.Errorf("schema: marshal invariants: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if markActive {
		if _, err := tx.ExecContext(ctx,
			`UPDATE dataset_schema SET is_active = false WHERE dataset_id = $1 AND is_active = true`,
			sc.DatasetID,
		); err != nil {
			return fmt.Errorf("schema: deactivate prior active: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dataset_schema
			(dataset_id, schema_version, schema_hash, required_fields, invariants,
			 minimum_renderable_count, sunset_at, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), $8)`,
		sc.DatasetID, sc.SchemaVersion, sc.SchemaHash, requiredJSON, invariantsJSON,
		sc.MinimumRenderableCount, sc.SunsetAt, markActive,
	)
	if err != nil {
		return fmt.Errorf("schema: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("schema: commit: %w", err)
	}

	return nil
}

// ResolveActive loads the single active schema for a dataset. Returns
// ErrNoActiveSchema if none is registered.
func (s *Store) ResolveActive(ctx context.Context, datasetID string) (Schema, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dataset_id, schema_version, schema_hash, required_fields, invariants,
		       minimum_renderable_count, sunset_at, created_at, is_active
		FROM dataset_schema WHERE dataset_id = $1 AND is_active = true`,
		datasetID,
	)
	if err != nil {
		return Schema{}, fmt.Errorf("schema: query active: %w", err)
	}
	defer rows.Close()

	var (
		found Schema
		count int
	)

	for rows.Next() {
		sc, err := scanSchema(rows)
		if err != nil {
			return Schema{}, err
		}

		found = sc
		count++
	}

	if err := rows.Err(); err != nil {
		return Schema{}, fmt.Errorf("schema: scan active: %w", err)
	}

	if count == 0 {
		return Schema{}, fmt.Errorf("%w: dataset %s", ErrNoActiveSchema, datasetID)
	}

	if count > 1 {
		return Schema{}, fmt.Errorf("%w: dataset %s", ErrMultipleActive, datasetID)
	}

	return found, nil
}

// ResolveVersion loads a specific schema version regardless of active
// status. Validated Read does not call it: its compatibility check
// compares version strings against ResolveActive's result.
func (s *Store) ResolveVersion(ctx context.Context, datasetID, version string) (Schema, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dataset_id, schema_version, schema_hash, required_fields, invariants,
		       minimum_renderable_count, sunset_at, created_at, is_active
		FROM dataset_schema WHERE dataset_id = $1 AND schema_version = $2`,
		datasetID, version,
	)

	return scanSchema(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchema(row scanner) (Schema, error) {
	var (
		sc             Schema
		requiredJSON   []byte
		invariantsJSON []byte
		sunsetAt       sql.NullTime
	)

	err := row.Scan(
		&sc.DatasetID, &sc.SchemaVersion, &sc.SchemaHash, &requiredJSON, &invariantsJSON,
		&sc.MinimumRenderableCount, &sunsetAt, &sc.CreatedAt, &sc.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Schema{}, fmt.Errorf("%w", err)
		}

		return Schema{}, fmt.Errorf("schema: scan: %w", err)
	}

	if err := json.Unmarshal(requiredJSON, &sc.RequiredFields); err != nil {
		return Schema{}, fmt.Errorf("schema: unmarshal required fields: %w", err)
	}

	if err := json.Unmarshal(invariantsJSON, &sc.Invariants); err != nil {
		return Schema{}, fmt.Errorf("schema: unmarshal invariants: %w", err)
	}

	if sunsetAt.Valid {
		t := sunsetAt.Time
		sc.SunsetAt = &t
	}

	return sc, nil
}

// HealthCheck verifies the underlying connection is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("schema: health check: %w", err)
	}

	return nil
}
