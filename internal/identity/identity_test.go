package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcsp-io/dcsp/internal/identity"
)

func testAllowLists() identity.AllowLists {
	return identity.AllowLists{
		Sports:            []string{"basketball", "football"},
		CompetitionLevels: []string{"pro", "college"},
		DatasetTypes:      []string{"rankings", "schedule"},
	}
}

func TestNormalize_LowercasesAndTrims(t *testing.T) {
	t.Parallel()

	tuple, err := identity.Normalize(identity.Tuple{
		Sport:            " Basketball ",
		CompetitionLevel: "PRO",
		Season:           "2025-2026",
		DatasetType:      "Rankings",
	}, testAllowLists())

	require.NoError(t, err)
	assert.Equal(t, "basketball", tuple.Sport)
	assert.Equal(t, "pro", tuple.CompetitionLevel)
	assert.Equal(t, "rankings", tuple.DatasetType)
	assert.Equal(t, identity.IdentitySchemaVersion, tuple.IdentitySchemaVer)
}

func TestNormalize_RejectsUnknownValue(t *testing.T) {
	t.Parallel()

	_, err := identity.Normalize(identity.Tuple{
		Sport:            "cricket",
		CompetitionLevel: "pro",
		Season:           "2025-2026",
		DatasetType:      "rankings",
	}, testAllowLists())

	require.ErrorIs(t, err, identity.ErrUnknownField)
}

func TestNormalize_RejectsMissingField(t *testing.T) {
	t.Parallel()

	_, err := identity.Normalize(identity.Tuple{
		Sport:            "basketball",
		CompetitionLevel: "pro",
		DatasetType:      "rankings",
	}, testAllowLists())

	require.ErrorIs(t, err, identity.ErrMissingField)
}

func TestComputeDatasetID_Deterministic(t *testing.T) {
	t.Parallel()

	tuple, err := identity.Normalize(identity.Tuple{
		Sport:            "basketball",
		CompetitionLevel: "pro",
		Season:           "2025-2026",
		DatasetType:      "rankings",
	}, testAllowLists())
	require.NoError(t, err)

	id1, json1, err := identity.ComputeDatasetID(tuple)
	require.NoError(t, err)

	id2, json2, err := identity.ComputeDatasetID(tuple)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, json1, json2)
	assert.Len(t, id1, identity.DatasetIDLength)
}

func TestComputeDatasetID_DiffersByQualifier(t *testing.T) {
	t.Parallel()

	base := identity.Tuple{
		Sport: "basketball", CompetitionLevel: "pro",
		Season: "2025-2026", DatasetType: "rankings",
		IdentitySchemaVer: identity.IdentitySchemaVersion,
	}
	withQualifier := base
	withQualifier.Qualifier = "conference-east"

	idBase, _, err := identity.ComputeDatasetID(base)
	require.NoError(t, err)

	idQualified, _, err := identity.ComputeDatasetID(withQualifier)
	require.NoError(t, err)

	assert.NotEqual(t, idBase, idQualified)
}

func TestAssertIdentity_MismatchIsFatal(t *testing.T) {
	t.Parallel()

	expected := identity.Tuple{Sport: "basketball", CompetitionLevel: "pro", Season: "2025-2026", DatasetType: "rankings"}
	stored := expected
	stored.Season = "2024-2025"

	err := identity.AssertIdentity(expected, stored)
	require.ErrorIs(t, err, identity.ErrIdentityViolation)
}

func TestAssertIdentity_MatchPasses(t *testing.T) {
	t.Parallel()

	expected := identity.Tuple{Sport: "basketball", CompetitionLevel: "pro", Season: "2025-2026", DatasetType: "rankings"}

	require.NoError(t, identity.AssertIdentity(expected, expected))
}
