package envelope_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcsp-io/dcsp/internal/envelope"
)

type record struct {
	Team  string `json:"team"`
	Score int    `json:"score"`
}

func TestWrapMarshalParse_RoundTrips(t *testing.T) {
	t.Parallel()

	env := envelope.Wrap([]record{{Team: "a", Score: 1}}, envelope.Meta{
		HTTPStatusAtWrite: envelope.HTTPStatusLive,
		LifecycleState:    "live",
		RecordCount:       1,
		ValidationStatus:  "valid",
		DatasetID:         "abc123",
		Version:           3,
		WrittenAt:         time.Now().UTC(),
	})

	raw, err := env.Marshal()
	require.NoError(t, err)

	parsed, err := envelope.Parse[[]record](raw)
	require.NoError(t, err)
	assert.Equal(t, env.Data, parsed.Data)
	assert.Equal(t, env.Meta.DatasetID, parsed.Meta.DatasetID)
}

func TestParse_LegacyArrayPayloadIsDetected(t *testing.T) {
	t.Parallel()

	legacy := []byte(`[{"team":"a","score":1}]`)

	_, err := envelope.Parse[[]record](legacy)
	require.ErrorIs(t, err, envelope.ErrLegacyPayload)
}

func TestIsCacheEligible(t *testing.T) {
	t.Parallel()

	assert.True(t, envelope.Meta{LifecycleState: "live", ValidationStatus: "valid"}.IsCacheEligible())
	assert.False(t, envelope.Meta{LifecycleState: "stale", ValidationStatus: "valid"}.IsCacheEligible())
	assert.False(t, envelope.Meta{LifecycleState: "live", ValidationStatus: "invalid"}.IsCacheEligible())
}
