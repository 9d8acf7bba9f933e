// Package envelope implements the KV Safety Envelope: the wrapper that
// freezes write-time truth into every payload written to the KV surface
// so a reader can reconstruct correct HTTP semantics without a second
// metadata lookup (spec.md §4.7).
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// HTTPStatusAtWrite enumerates the write-time statuses the envelope may
// freeze, per spec.md's Data Model.
type HTTPStatusAtWrite int

const (
	HTTPStatusLive         HTTPStatusAtWrite = 200
	HTTPStatusInitializing HTTPStatusAtWrite = 202
	HTTPStatusEmptyValid   HTTPStatusAtWrite = 204
	HTTPStatusUnavailable  HTTPStatusAtWrite = 503
)

// ErrLegacyPayload marks an envelope that could not be parsed as a
// current-format envelope: an array-only payload with no meta, treated as
// stale per spec.md §4.7.
var ErrLegacyPayload = errors.New("envelope: legacy payload, no meta")

// Meta is the frozen write-time truth accompanying a payload.
type Meta struct {
	HTTPStatusAtWrite HTTPStatusAtWrite `json:"http_status_at_write"`
	LifecycleState    string            `json:"lifecycle_state"`
	RecordCount       int               `json:"record_count"`
	ValidationStatus  string            `json:"validation_status"`
	DatasetID         string            `json:"dataset_id"`
	ExpectedMinCount  int               `json:"expected_min_count"`
	WrittenAt         time.Time         `json:"written_at"`
	Version           int               `json:"version"`
	IsLKG             bool              `json:"is_lkg"`
	LKGReason         string            `json:"lkg_reason,omitempty"`
	SchemaVersion     string            `json:"schema_version,omitempty"`
	SchemaHash        string            `json:"schema_hash,omitempty"`
	CommittedAt       *time.Time        `json:"committed_at,omitempty"`
	CanonicalIdentity json.RawMessage   `json:"canonical_identity,omitempty"`
}

// Envelope[T] is the generic wrapper around every KV-surface payload,
// answering spec.md §9's directive for a generic Envelope<T> rather than
// one struct per dataset shape.
type Envelope[T any] struct {
	Data T    `json:"data"`
	Meta Meta `json:"meta"`
}

// Wrap constructs a new Envelope around data with the given meta.
func Wrap[T any](data T, meta Meta) Envelope[T] {
	return Envelope[T]{Data: data, Meta: meta}
}

// Marshal serializes the envelope to its wire form.
func (e Envelope[T]) Marshal() ([]byte, error) {
	out, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal: %w", err)
	}

	return out, nil
}

// Parse decodes raw bytes into an Envelope[T]. If raw does not carry a
// recognizable `meta` object — the legacy shape is a bare JSON array — it
// returns ErrLegacyPayload so the caller can apply §4.7's stale-and-
// non-cacheable handling instead of failing the read outright.
func Parse[T any](raw []byte) (Envelope[T], error) {
	var probe struct {
		Meta json.RawMessage `json:"meta"`
	}

	if err := json.Unmarshal(raw, &probe); err != nil || probe.Meta == nil {
		return Envelope[T]{}, ErrLegacyPayload
	}

	var env Envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope[T]{}, fmt.Errorf("envelope: parse: %w", err)
	}

	return env, nil
}

// IsCacheEligible reports spec.md §4.9's sole cache-eligibility rule:
// lifecycle_state == live AND validation_status == valid.
func (m Meta) IsCacheEligible() bool {
	return m.LifecycleState == "live" && m.ValidationStatus == "valid"
}
