// Package identity derives and validates dataset identities.
//
// A dataset identity is the typed tuple (sport, competition_level, season,
// dataset_type, qualifier?) that uniquely names a dataset. This package
// normalizes the tuple, derives a deterministic datasetId from it, and
// keeps a registry mapping datasetId back to the tuple it was derived from.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// IdentitySchemaVersion is folded into the canonical JSON before hashing so
// that a future change to the tuple shape produces a disjoint id space
// instead of silently colliding with ids minted under an older shape.
const IdentitySchemaVersion = 1

// DatasetIDLength is the number of hex characters kept from the SHA-256
// digest. 16 hex chars (64 bits) is enough to make accidental collisions
// vanishingly unlikely for the dataset catalog sizes this system targets,
// while keeping ids short enough to use as KV/object-store key segments.
const DatasetIDLength = 16

// Sentinel errors. Wrapped with fmt.Errorf("%w: ...", ...) at call sites so
// callers can still errors.Is against the sentinel.
var (
	// ErrUnknownField is returned by Normalize when an enumerated field
	// carries a value outside its allow-list.
	ErrUnknownField = errors.New("identity: unknown enumerated value")

	// ErrMissingField is returned when a required tuple field is empty.
	ErrMissingField = errors.New("identity: required field missing")

	// ErrIdentityViolation is returned when a stored envelope's identity
	// disagrees with the identity the caller expected.
	ErrIdentityViolation = errors.New("identity: envelope identity mismatch")
)

// Tuple is the typed identity of a dataset. Qualifier is optional; all
// other fields are required.
type Tuple struct {
	Sport             string `json:"sport"`
	CompetitionLevel  string `json:"competitionLevel"`
	Season            string `json:"season"`
	DatasetType       string `json:"datasetType"`
	Qualifier         string `json:"qualifier,omitempty"`
	IdentitySchemaVer int    `json:"identitySchemaVersion"`
}

// AllowLists constrains the enumerated fields of a Tuple. A process wires
// its allow-lists once at startup (from the same config file that defines
// Semantic Rules, see rules.Config.IdentityAllowLists) and passes it to
// Normalize. An empty list for a field means "no restriction" -- only the
// required-field presence check in Normalize applies to it.
type AllowLists struct {
	Sports            []string `yaml:"sports"`
	CompetitionLevels []string `yaml:"competitionLevels"`
	DatasetTypes      []string `yaml:"datasetTypes"`
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}

	return false
}

// Normalize lowercases and trims the enumerated fields of a raw tuple and
// rejects values outside the supplied allow-lists. Season and Qualifier are
// trimmed but not enumerated (seasons are open-ended, e.g. "2025-2026").
func Normalize(raw Tuple, allow AllowLists) (Tuple, error) {
	t := Tuple{
		Sport:            strings.ToLower(strings.TrimSpace(raw.Sport)),
		CompetitionLevel: strings.ToLower(strings.TrimSpace(raw.CompetitionLevel)),
		Season:           strings.TrimSpace(raw.Season),
		DatasetType:      strings.ToLower(strings.TrimSpace(raw.DatasetType)),
		Qualifier:        strings.TrimSpace(raw.Qualifier),
	}

	if t.Sport == "" || t.CompetitionLevel == "" || t.Season == "" || t.DatasetType == "" {
		return Tuple{}, fmt.Errorf("%w: sport, competitionLevel, season and datasetType are all required", ErrMissingField)
	}

	if len(allow.Sports) > 0 && !contains(allow.Sports, t.Sport) {
		return Tuple{}, fmt.Errorf("%w: sport %q", ErrUnknownField, t.Sport)
	}

	if len(allow.CompetitionLevels) > 0 && !contains(allow.CompetitionLevels, t.CompetitionLevel) {
		return Tuple{}, fmt.Errorf("%w: competitionLevel %q", ErrUnknownField, t.CompetitionLevel)
	}

	if len(allow.DatasetTypes) > 0 && !contains(allow.DatasetTypes, t.DatasetType) {
		return Tuple{}, fmt.Errorf("%w: datasetType %q", ErrUnknownField, t.DatasetType)
	}

	t.IdentitySchemaVer = IdentitySchemaVersion

	return t, nil
}

// CanonicalJSON marshals the normalized tuple with sorted, stable field
// order (Go's encoding/json already emits struct fields in declaration
// order, so field order is fixed by the Tuple struct definition rather than
// a manual sort step).
func CanonicalJSON(t Tuple) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("identity: canonicalize tuple: %w", err)
	}

	return data, nil
}

// ComputeDatasetID returns (datasetId, canonicalJSON) for a normalized
// tuple. datasetId is the first DatasetIDLength hex characters of the
// SHA-256 digest of the canonical JSON.
func ComputeDatasetID(t Tuple) (datasetID string, canonicalJSON []byte, err error) {
	canonicalJSON, err = CanonicalJSON(t)
	if err != nil {
		return "", nil, err
	}

	sum := sha256.Sum256(canonicalJSON)
	full := hex.EncodeToString(sum[:])

	return full[:DatasetIDLength], canonicalJSON, nil
}

// AssertIdentity compares a stored envelope identity against the identity
// the caller expected. Comparison is field-by-field on the normalized
// tuple, not on the datasetId alone, so a datasetId collision (however
// unlikely) is still caught.
func AssertIdentity(expected, stored Tuple) error {
	if expected != stored {
		return fmt.Errorf("%w: expected %+v, stored %+v", ErrIdentityViolation, expected, stored)
	}

	return nil
}
