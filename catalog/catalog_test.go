package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badgekit/core"
)

func TestLoadFile(t *testing.T) {
	content := `{
		"badges": [
			{
				"id": "bronze",
				"kind": "cumulative",
				"acquisition_threshold": 100,
				"maintenance_threshold": 50,
				"reset": {"frequency": "custom", "interval": 30, "unit": "days"},
				"grace_days": 7,
				"reward": {"points": 10, "multiplier": "1.1"},
				"assigned": [" Alice ", "bob"],
				"created_at": "2026-01-01T00:00:00Z"
			},
			{
				"id": "weekly_star",
				"kind": "periodic",
				"acquisition_threshold": 0,
				"maintenance_threshold": 0,
				"reward": {"multiplier": "0"}
			}
		]
	}`
	path := filepath.Join(t.TempDir(), "badges.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)

	defs, err := c.Definitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, []core.IndividualID{"alice", "bob"}, defs[0].Assigned)
	assert.Equal(t, "1.1", defs[0].Reward.Multiplier.String())
	assert.True(t, defs[0].MaintenanceEnabled())

	got, err := c.Get("weekly_star")
	require.NoError(t, err)
	assert.Equal(t, core.KindPeriodic, got.Kind)

	_, err = c.Get("nope")
	assert.True(t, errors.Is(err, core.ErrUnknownBadge))
}

func TestLoadFileRejectsExtension(t *testing.T) {
	_, err := LoadFile("badges.yaml")
	require.Error(t, err)
}

func TestValidateRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  core.BadgeDefinition
	}{
		{"missing kind", core.BadgeDefinition{ID: "a"}},
		{"bad id", core.BadgeDefinition{ID: "a b", Kind: core.KindCumulative}},
		{"negative threshold", core.BadgeDefinition{ID: "a", Kind: core.KindCumulative, AcquisitionThreshold: -1}},
		{"unknown frequency", core.BadgeDefinition{ID: "a", Kind: core.KindCumulative, Reset: core.ResetSchedule{Frequency: "hourly"}}},
		{"custom without interval", core.BadgeDefinition{ID: "a", Kind: core.KindCumulative, Reset: core.ResetSchedule{Frequency: core.FrequencyCustom}}},
		{"negative grace", core.BadgeDefinition{ID: "a", Kind: core.KindCumulative, GraceDays: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Validate(tt.def))
		})
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	d := core.BadgeDefinition{ID: "gold", Kind: core.KindCumulative}
	_, err := New(d, d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}
