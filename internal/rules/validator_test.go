package rules_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dcsp-io/dcsp/internal/rules"
)

func rankingsRule() rules.Rule {
	return rules.Rule{
		DatasetID:      "abc123",
		RequiredFields: []string{"team", "score"},
		MinRecordCount: 25,
	}
}

func fullRecords(n int) []map[string]any {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{"team": "x", "score": 1}
	}

	return records
}

func TestClassify_ValidWhenDensityAndSchemaPass(t *testing.T) {
	t.Parallel()

	v := rules.NewValidator()
	result := v.Classify(rankingsRule(), fullRecords(25), time.Now(), false)

	assert.Equal(t, rules.StatusValid, result.Status)
	assert.True(t, result.PassedDensity)
	assert.True(t, result.PassedSchema)
}

func TestClassify_InvalidOnInsufficientDensity(t *testing.T) {
	t.Parallel()

	v := rules.NewValidator()
	result := v.Classify(rankingsRule(), fullRecords(10), time.Now(), false)

	assert.Equal(t, rules.StatusInvalid, result.Status)
	assert.Contains(t, result.Reason, "insufficient density")
}

func TestClassify_InvalidOnMissingRequiredField(t *testing.T) {
	t.Parallel()

	v := rules.NewValidator()
	records := fullRecords(25)
	delete(records[0], "score")

	result := v.Classify(rankingsRule(), records, time.Now(), false)

	assert.Equal(t, rules.StatusInvalid, result.Status)
	assert.NotEmpty(t, result.SchemaErrors)
}

func TestClassify_ExplicitUnavailableOverridesEverything(t *testing.T) {
	t.Parallel()

	v := rules.NewValidator()
	result := v.Classify(rankingsRule(), fullRecords(25), time.Now(), true)

	assert.Equal(t, rules.StatusUnavailable, result.Status)
	assert.Equal(t, "source reported unavailable", result.Reason)
}

func TestClassify_SeasonGate(t *testing.T) {
	t.Parallel()

	rule := rankingsRule()
	rule.SeasonWindow = &rules.SeasonWindow{StartMonth: 8, EndMonth: 1} // wraps year boundary

	v := rules.NewValidator()

	outOfSeason := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	result := v.Classify(rule, []map[string]any{}, outOfSeason, false)
	assert.Equal(t, rules.StatusUnavailable, result.Status)

	inSeason := time.Date(2025, time.December, 15, 0, 0, 0, 0, time.UTC)
	result = v.Classify(rule, fullRecords(25), inSeason, false)
	assert.Equal(t, rules.StatusValid, result.Status)
}

func TestSeasonWindow_InWindow_NoWindowAlwaysInSeason(t *testing.T) {
	t.Parallel()

	w := rules.SeasonWindow{}
	assert.True(t, w.InWindow(1))
	assert.True(t, w.InWindow(12))
}
