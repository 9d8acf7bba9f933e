// Package commitlog implements the durable, queryable history of every
// ingestion attempt and the single authoritative pointer to the
// currently-served version per dataset.
package commitlog

import (
	"errors"
	"time"
)

// Status is the lifecycle state of one commit row.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
	StatusSuperseded Status = "superseded"
)

// Sentinel errors for commit log operations.
var (
	ErrNoCommitRow       = errors.New("commitlog: no commit row found")
	ErrNoCurrentPointer  = errors.New("commitlog: no current version pointer")
	ErrNotPending        = errors.New("commitlog: target row is not pending")
	ErrAlreadyCommitted  = errors.New("commitlog: a committed row already exists for this dataset")
	ErrIncompatibleWrite = errors.New("commitlog: write would violate current_version ordering invariant")
)

// Commit is one row of the commit log: a single ingestion attempt for
// (datasetId, version).
type Commit struct {
	DatasetID           string
	Version             int
	Status              Status
	RecordCount         int
	PreviousRecordCount int
	ValidationStatus    string
	ValidationErrors    []string
	IngestedAt          time.Time
	CommittedAt         *time.Time
	KVVersionedKey      string
	Source              string
	SchemaVersion       string
	SchemaHash          string
	RolledBackReason    string
}

// CurrentVersion is the single authoritative pointer to the currently
// served version of a dataset.
type CurrentVersion struct {
	DatasetID               string
	CurrentVersion          int
	LastCommittedVersion    int
	LastCommittedAt         *time.Time
	IsServingLKG            bool
	LKGReason               string
	CurrentSchemaVersion    string
	LastCommittedSchemaHash string
}

// SchemaInfo carries the schema_version/schema_hash pair stamped onto a
// commit at promotion time, when known.
type SchemaInfo struct {
	SchemaVersion string
	SchemaHash    string
}
