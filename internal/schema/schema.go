// Package schema implements the versioned structural contract registry:
// required fields, field invariants, schema hashing, and the dual-read
// compatibility window between schema versions.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// InvariantType enumerates the field-level invariant kinds a Schema can
// declare.
type InvariantType string

const (
	InvariantNonNull InvariantType = "non_null"
	InvariantRange   InvariantType = "range"
	InvariantEnum    InvariantType = "enum"
	InvariantRegex   InvariantType = "regex"
	InvariantLength  InvariantType = "length"
)

// SchemaHashLength mirrors identity.DatasetIDLength: 16 hex chars of the
// SHA-256 digest, short enough to carry on every commit row without
// re-parsing the schema to check for drift.
const SchemaHashLength = 16

// Sentinel errors.
var (
	ErrInvariantViolation = errors.New("schema: invariant violation")
	ErrSchemaSunset       = errors.New("schema: sunset")
	ErrSchemaIncompatible = errors.New("schema: incompatible version")
	ErrNoActiveSchema     = errors.New("schema: no active schema registered")
	ErrMultipleActive     = errors.New("schema: more than one active schema")
	ErrInvalidSemver      = errors.New("schema: invalid semver")
)

// Invariant is one field-level rule. Which of Min/Max/Pattern/Enum is
// populated depends on Type.
type Invariant struct {
	Type    InvariantType `json:"type"`
	Field   string        `json:"field"`
	Min     *float64      `json:"min,omitempty"`
	Max     *float64      `json:"max,omitempty"`
	Pattern string        `json:"pattern,omitempty"`
	Enum    []string      `json:"enum,omitempty"`
	MinLen  *int          `json:"minLen,omitempty"`
	MaxLen  *int          `json:"maxLen,omitempty"`
}

// Schema is a registered structural contract for one datasetId.
type Schema struct {
	DatasetID              string
	SchemaVersion          string // semver, e.g. "2.3.0"
	SchemaHash             string
	RequiredFields         []string
	Invariants             []Invariant
	MinimumRenderableCount int
	SunsetAt               *time.Time
	IsActive               bool
	CreatedAt              time.Time
}

// canonicalForm produces a stable representation of the fields that feed
// schema_hash: sorted required fields, invariants sorted by (field, type).
type canonicalForm struct {
	RequiredFields []string    `json:"requiredFields"`
	Invariants     []Invariant `json:"invariants"`
}

// ComputeSchemaHash recomputes schema_hash deterministically from the
// sorted required fields and invariants, so edge readers can detect drift
// by recomputing rather than re-parsing the whole schema.
func ComputeSchemaHash(requiredFields []string, invariants []Invariant) (string, error) {
	sortedFields := append([]string(nil), requiredFields...)
	sort.Strings(sortedFields)

	sortedInvariants := append([]Invariant(nil), invariants...)
	sort.Slice(sortedInvariants, func(i, j int) bool {
		if sortedInvariants[i].Field != sortedInvariants[j].Field {
			return sortedInvariants[i].Field < sortedInvariants[j].Field
		}

		return sortedInvariants[i].Type < sortedInvariants[j].Type
	})

	data, err := json.Marshal(canonicalForm{RequiredFields: sortedFields, Invariants: sortedInvariants})
	if err != nil {
		return "", fmt.Errorf("schema: canonicalize: %w", err)
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])[:SchemaHashLength], nil
}

// semverMajor extracts the major component of a semver string ("2.3.0" -> 2).
func semverMajor(version string) (int, error) {
	parts := strings.SplitN(version, ".", 2)
	if len(parts) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSemver, version)
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSemver, version)
	}

	return major, nil
}

// IsCompatible reports whether dataVersion may be served under
// activeVersion's dual-read window: same major, or exactly one major
// behind.
func IsCompatible(dataVersion, activeVersion string) (bool, error) {
	dataMajor, err := semverMajor(dataVersion)
	if err != nil {
		return false, err
	}

	activeMajor, err := semverMajor(activeVersion)
	if err != nil {
		return false, err
	}

	diff := activeMajor - dataMajor

	return diff == 0 || diff == 1, nil
}

// ValidateBatch checks every record in records against s, failing the
// whole batch on the first violation (spec: "rejects the batch on any
// record-level violation").
func (s Schema) ValidateBatch(now time.Time, records []map[string]any) error {
	if s.SunsetAt != nil && !s.SunsetAt.After(now) {
		return fmt.Errorf("%w: schema %s sunset at %s", ErrSchemaSunset, s.SchemaVersion, s.SunsetAt)
	}

	for i, record := range records {
		for _, field := range s.RequiredFields {
			if isNullOrEmpty(record[field]) {
				return fmt.Errorf("%w: record %d missing required field %q", ErrInvariantViolation, i, field)
			}
		}

		for _, inv := range s.Invariants {
			if err := validateInvariant(record, inv); err != nil {
				return fmt.Errorf("%w: record %d: %w", ErrInvariantViolation, i, err)
			}
		}
	}

	return nil
}

func isNullOrEmpty(v any) bool {
	if v == nil {
		return true
	}

	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}

	return false
}

func validateInvariant(record map[string]any, inv Invariant) error {
	value, present := record[inv.Field]

	switch inv.Type {
	case InvariantNonNull:
		if !present || isNullOrEmpty(value) {
			return fmt.Errorf("field %q: non_null violated", inv.Field)
		}
	case InvariantRange:
		num, ok := toFloat64(value)
		if !ok {
			return fmt.Errorf("field %q: range requires numeric value, got %T", inv.Field, value)
		}

		if inv.Min != nil && num < *inv.Min {
			return fmt.Errorf("field %q: %v below min %v", inv.Field, num, *inv.Min)
		}

		if inv.Max != nil && num > *inv.Max {
			return fmt.Errorf("field %q: %v above max %v", inv.Field, num, *inv.Max)
		}
	case InvariantEnum:
		str, ok := value.(string)
		if !ok || !containsStr(inv.Enum, str) {
			return fmt.Errorf("field %q: value %v not in enum %v", inv.Field, value, inv.Enum)
		}
	case InvariantRegex:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q: regex requires string value", inv.Field)
		}

		matched, err := regexp.MatchString(inv.Pattern, str)
		if err != nil {
			return fmt.Errorf("field %q: invalid pattern %q: %w", inv.Field, inv.Pattern, err)
		}

		if !matched {
			return fmt.Errorf("field %q: value %q does not match pattern %q", inv.Field, str, inv.Pattern)
		}
	case InvariantLength:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q: length requires string value", inv.Field)
		}

		if inv.MinLen != nil && len(str) < *inv.MinLen {
			return fmt.Errorf("field %q: length %d below min %d", inv.Field, len(str), *inv.MinLen)
		}

		if inv.MaxLen != nil && len(str) > *inv.MaxLen {
			return fmt.Errorf("field %q: length %d above max %d", inv.Field, len(str), *inv.MaxLen)
		}
	default:
		return fmt.Errorf("unknown invariant type %q", inv.Type)
	}

	return nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func containsStr(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}

	return false
}
