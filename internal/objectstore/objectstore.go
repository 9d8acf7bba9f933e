// Package objectstore implements the Object-Store Snapshot surface
// (spec.md §6): a durable `(datasetId, version)` blob plus a `latest`
// pointer per dataset, used by the Orchestrator's snapshot step and by
// Validated Read's fallback when the KV surface misses. Grounded on the
// S3 uploader in the retrieval pack (controlplane/s3-uploader), adapted
// from a one-shot file-upload CLI into a keyed Put/Get store.
package objectstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrSnapshotNotFound is returned when neither a versioned nor a latest
// snapshot exists at the requested key.
var ErrSnapshotNotFound = errors.New("objectstore: snapshot not found")

// Snapshot is the wire shape written under a versioned or latest key.
type Snapshot struct {
	DatasetID         string `json:"dataset_id"`
	Version           int    `json:"version"`
	Data              []byte `json:"data"`
	ValidationSummary string `json:"validation_summary"`
	SnapshotAt        string `json:"snapshot_at"` // RFC3339; caller stamps, package does not call time.Now
}

// Store is the Object-Store Snapshot surface. Implementations must
// treat PutLatest as an overwrite and PutVersion as an idempotent,
// append-only write under a stable key.
type Store interface {
	PutVersion(ctx context.Context, datasetID string, version int, snap Snapshot) error
	GetVersion(ctx context.Context, datasetID string, version int) (Snapshot, error)
	PutLatest(ctx context.Context, datasetID string, snap Snapshot) error
	GetLatest(ctx context.Context, datasetID string) (Snapshot, error)
}

func versionKey(datasetID string, version int) string {
	return fmt.Sprintf("snapshots/%s/v%d.json", datasetID, version)
}

func latestKey(datasetID string) string {
	return fmt.Sprintf("snapshots/%s/latest.json", datasetID)
}
