package schema_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcsp-io/dcsp/internal/schema"
)

func ptrFloat(f float64) *float64 { return &f }
func ptrInt(i int) *int           { return &i }

func TestComputeSchemaHash_OrderIndependent(t *testing.T) {
	t.Parallel()

	fields := []string{"b", "a", "c"}
	invariants := []schema.Invariant{
		{Type: schema.InvariantNonNull, Field: "b"},
		{Type: schema.InvariantNonNull, Field: "a"},
	}

	hash1, err := schema.ComputeSchemaHash(fields, invariants)
	require.NoError(t, err)

	reordered := []string{"c", "a", "b"}
	reorderedInvariants := []schema.Invariant{
		{Type: schema.InvariantNonNull, Field: "a"},
		{Type: schema.InvariantNonNull, Field: "b"},
	}

	hash2, err := schema.ComputeSchemaHash(reordered, reorderedInvariants)
	require.NoError(t, err)

	assert.Equal(t, hash1, hash2)
	assert.Len(t, hash1, schema.SchemaHashLength)
}

func TestComputeSchemaHash_Deterministic(t *testing.T) {
	t.Parallel()

	fields := []string{"name", "value"}
	invariants := []schema.Invariant{{Type: schema.InvariantRange, Field: "value", Min: ptrFloat(0), Max: ptrFloat(100)}}

	hash1, err := schema.ComputeSchemaHash(fields, invariants)
	require.NoError(t, err)

	hash2, err := schema.ComputeSchemaHash(fields, invariants)
	require.NoError(t, err)

	assert.Equal(t, hash1, hash2)
}

func TestIsCompatible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		data, active string
		wantCompat   bool
	}{
		{"same major", "2.1.0", "2.5.0", true},
		{"one major behind", "1.9.0", "2.0.0", true},
		{"two majors behind", "0.9.0", "2.0.0", false},
		{"ahead of active", "3.0.0", "2.0.0", false},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := schema.IsCompatible(tt.data, tt.active)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCompat, got)
		})
	}
}

func TestValidateBatch_RejectsOnFirstViolation(t *testing.T) {
	t.Parallel()

	sc := schema.Schema{
		DatasetID:      "abc123",
		SchemaVersion:  "1.0.0",
		RequiredFields: []string{"name"},
		Invariants: []schema.Invariant{
			{Type: schema.InvariantRange, Field: "score", Min: ptrFloat(0), Max: ptrFloat(100)},
		},
	}

	records := []map[string]any{
		{"name": "a", "score": 50.0},
		{"name": "b", "score": 150.0},
	}

	err := sc.ValidateBatch(time.Now(), records)
	require.ErrorIs(t, err, schema.ErrInvariantViolation)
}

func TestValidateBatch_PassesWithValidRecords(t *testing.T) {
	t.Parallel()

	sc := schema.Schema{
		DatasetID:      "abc123",
		SchemaVersion:  "1.0.0",
		RequiredFields: []string{"name"},
		Invariants: []schema.Invariant{
			{Type: schema.InvariantLength, Field: "name", MinLen: ptrInt(1), MaxLen: ptrInt(40)},
			{Type: schema.InvariantEnum, Field: "tier", Enum: []string{"gold", "silver"}},
		},
	}

	records := []map[string]any{
		{"name": "a", "tier": "gold"},
	}

	require.NoError(t, sc.ValidateBatch(time.Now(), records))
}

func TestValidateBatch_SunsetRejectsAll(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour)
	sc := schema.Schema{DatasetID: "abc123", SchemaVersion: "1.0.0", SunsetAt: &past}

	err := sc.ValidateBatch(time.Now(), []map[string]any{{"name": "a"}})
	require.ErrorIs(t, err, schema.ErrSchemaSunset)
}
