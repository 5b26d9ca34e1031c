package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	cat, err := LoadCatalog()
	require.NoError(t, err)

	want := []string{
		"GEOFENCE_01",
		"HUMAN_PROX_01",
		"HUMAN_PROX_02",
		"SPEED_LIMIT_01",
		"COLLISION_01",
		"PATH_BLOCKED_01",
		"BATTERY_01",
	}
	require.Len(t, cat.Policies, len(want))
	for i, id := range want {
		assert.Equal(t, id, cat.Policies[i].ID)
		assert.NotEmpty(t, cat.Policies[i].Name)
		assert.NotEmpty(t, cat.Policies[i].Description)
	}
}

func TestLoadCatalog_SeveritiesMatchRuleWeights(t *testing.T) {
	cat, err := LoadCatalog()
	require.NoError(t, err)

	severities := map[string]Severity{
		"GEOFENCE_01":     SeverityHigh,
		"HUMAN_PROX_01":   SeverityHigh,
		"HUMAN_PROX_02":   SeverityMedium,
		"SPEED_LIMIT_01":  SeverityMedium,
		"COLLISION_01":    SeverityHigh,
		"PATH_BLOCKED_01": SeverityMedium,
		"BATTERY_01":      SeverityLow,
	}
	for id, want := range severities {
		info, ok := cat.ByID(id)
		require.True(t, ok, "catalog missing %s", id)
		assert.Equal(t, want, info.Severity, "severity of %s", id)
	}
}

func TestCatalog_ByIDUnknown(t *testing.T) {
	cat, err := LoadCatalog()
	require.NoError(t, err)

	_, ok := cat.ByID("NOPE_99")
	assert.False(t, ok)
}

func TestCatalog_EveryRuleHasAnEntry(t *testing.T) {
	// Each shipped rule must be represented in the operator-facing
	// catalog; a rule that can fire with no metadata is a defect.
	cat, err := LoadCatalog()
	require.NoError(t, err)
	assert.Len(t, defaultRules, len(cat.Policies))
}
