package rules

import (
	"errors"
	"fmt"
	"time"
)

// Status is the tagged classification a Validator assigns to a proposed
// record batch. Downstream code branches on this tag, never on duck-typed
// shapes (spec.md §9).
type Status string

const (
	StatusValid       Status = "valid"
	StatusInvalid     Status = "invalid"
	StatusUnavailable Status = "unavailable"
)

// Sentinel errors for classification failures that are themselves useful
// to distinguish with errors.Is, even though Result.Status is the primary
// signal consumed by the Orchestrator.
var (
	ErrNoRuleDefined        = errors.New("rules: no rule defined for dataset")
	ErrInsufficientDensity  = errors.New("rules: insufficient density")
	ErrMissingRequiredField = errors.New("rules: missing required field")
)

// minSchemaSampleSize is how many leading records get the structural
// schema-gate check; spec.md §4.1 requires "the first N records (N >= 5,
// or all when fewer)".
const minSchemaSampleSize = 5

// Result carries the full classification outcome for one ingestion
// attempt, including enough detail for the Orchestrator to build a commit
// row and for callers to render a validation-errors list.
type Result struct {
	Status        Status
	DatasetID     string
	RecordCount   int
	ExpectedMin   int
	PassedSchema  bool
	PassedDensity bool
	Reason        string
	ValidatedAt   time.Time
	SchemaErrors  []string
}

// Validator is stateless; a single instance is safe to share across
// concurrent ingestion attempts, mirroring internal/ingestion.Validator in
// the reference pack.
type Validator struct{}

// NewValidator constructs a stateless Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Classify implements spec.md §4.1's four gates in order: explicit-
// unavailable override, season gate, density gate, schema gate.
func (v *Validator) Classify(
	rule Rule,
	records []map[string]any,
	now time.Time,
	explicitlyUnavailable bool,
) Result {
	result := Result{
		DatasetID:   rule.DatasetID,
		RecordCount: len(records),
		ExpectedMin: rule.MinRecordCount,
		ValidatedAt: now,
	}

	if explicitlyUnavailable {
		result.Status = StatusUnavailable
		result.Reason = "source reported unavailable"

		return result
	}

	inSeason := rule.SeasonWindow == nil || rule.SeasonWindow.InWindow(int(now.Month()))
	if !inSeason {
		result.Status = StatusUnavailable
		result.Reason = "outside season window"

		return result
	}

	if len(records) < rule.MinRecordCount {
		result.Status = StatusInvalid
		result.Reason = fmt.Sprintf("insufficient density: got %d records, need %d", len(records), rule.MinRecordCount)

		return result
	}

	result.PassedDensity = true

	sampleSize := len(records)
	if sampleSize > minSchemaSampleSize {
		sampleSize = minSchemaSampleSize
	}

	var schemaErrors []string

	for i := 0; i < sampleSize; i++ {
		for _, field := range rule.RequiredFields {
			val, ok := records[i][field]
			if !ok || isEmptyValue(val) {
				schemaErrors = append(schemaErrors, fmt.Sprintf("record %d: missing required field %q", i, field))
			}
		}
	}

	if len(schemaErrors) > 0 {
		result.Status = StatusInvalid
		result.Reason = "required field check failed"
		result.SchemaErrors = schemaErrors

		return result
	}

	result.PassedSchema = true
	result.Status = StatusValid
	result.Reason = "valid"

	return result
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}

	if s, ok := v.(string); ok {
		return s == ""
	}

	return false
}
