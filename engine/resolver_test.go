package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"badgekit/core"
)

func tier(id core.BadgeID, threshold int64, multiplier string, created time.Time) core.BadgeDefinition {
	return core.BadgeDefinition{
		ID:                   id,
		Kind:                 core.KindCumulative,
		AcquisitionThreshold: threshold,
		Reward:               core.Reward{Multiplier: decimal.RequireFromString(multiplier)},
		CreatedAt:            created,
	}
}

func progressOf(pairs map[core.BadgeID]core.Status) map[core.BadgeID]core.Progress {
	out := map[core.BadgeID]core.Progress{}
	for id, st := range pairs {
		out[id] = core.Progress{Badge: id, Status: st}
	}
	return out
}

func TestResolveHighest(t *testing.T) {
	defs := []core.BadgeDefinition{
		tier("bronze", 100, "1.1", day1),
		tier("silver", 500, "1.25", day1),
		tier("gold", 1000, "1.5", day1),
	}

	if _, _, found := ResolveHighest(defs, nil); found {
		t.Fatal("nothing earned, nothing resolved")
	}

	got, _, found := ResolveHighest(defs, progressOf(map[core.BadgeID]core.Status{
		"bronze": core.StatusActive,
		"silver": core.StatusDemoted,
		"gold":   core.StatusNotEarned,
	}))
	// demoted still counts as earned
	if !found || got.ID != "silver" {
		t.Fatalf("got %q found=%v, want silver", got.ID, found)
	}
}

func TestResolveHighestIgnoresPeriodic(t *testing.T) {
	periodic := tier("weekly", 9999, "3", day1)
	periodic.Kind = core.KindPeriodic
	defs := []core.BadgeDefinition{tier("bronze", 100, "1.1", day1), periodic}
	got, _, found := ResolveHighest(defs, progressOf(map[core.BadgeID]core.Status{
		"bronze": core.StatusActive,
		"weekly": core.StatusActive,
	}))
	if !found || got.ID != "bronze" {
		t.Fatalf("got %q found=%v, want bronze", got.ID, found)
	}
}

// Equal thresholds resolve to the most recently defined badge.
func TestResolveHighestTieBreaksOnMostRecentlyDefined(t *testing.T) {
	older := tier("alpha", 500, "1.2", day1)
	newer := tier("zulu", 500, "1.3", day1.AddDate(0, 1, 0))
	status := progressOf(map[core.BadgeID]core.Status{"alpha": core.StatusActive, "zulu": core.StatusActive})

	for _, defs := range [][]core.BadgeDefinition{{older, newer}, {newer, older}} {
		if got, _, _ := ResolveHighest(defs, status); got.ID != "zulu" {
			t.Fatalf("got %q, want zulu", got.ID)
		}
	}

	// identical creation times fall back to the larger id
	newer.CreatedAt = day1
	older.ID = "zz_top"
	got, _, _ := ResolveHighest([]core.BadgeDefinition{newer, older}, progressOf(map[core.BadgeID]core.Status{
		newer.ID: core.StatusActive,
		older.ID: core.StatusActive,
	}))
	if got.ID != "zz_top" {
		t.Fatalf("got %q, want zz_top", got.ID)
	}
}

func TestMultiplier(t *testing.T) {
	defs := []core.BadgeDefinition{
		tier("bronze", 100, "1.1", day1),
		tier("silver", 500, "1.25", day1),
		tier("gold", 1000, "1.5", day1),
	}
	tests := []struct {
		name   string
		status map[core.BadgeID]core.Status
		want   string
	}{
		{"nothing earned", nil, "1"},
		{"highest active", map[core.BadgeID]core.Status{"bronze": core.StatusActive, "silver": core.StatusActive}, "1.25"},
		{"grace keeps tier", map[core.BadgeID]core.Status{"bronze": core.StatusActive, "silver": core.StatusGrace}, "1.25"},
		{"demoted falls to next lower", map[core.BadgeID]core.Status{"bronze": core.StatusActive, "silver": core.StatusActive, "gold": core.StatusDemoted}, "1.25"},
		{"demoted skips demoted", map[core.BadgeID]core.Status{"bronze": core.StatusActive, "silver": core.StatusDemoted, "gold": core.StatusDemoted}, "1.1"},
		{"only tier demoted", map[core.BadgeID]core.Status{"bronze": core.StatusDemoted}, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Multiplier(defs, progressOf(tt.status))
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestMultiplierZeroRewardMeansBase(t *testing.T) {
	defs := []core.BadgeDefinition{tier("plain", 100, "0", day1)}
	if got := Multiplier(defs, progressOf(map[core.BadgeID]core.Status{"plain": core.StatusActive})); !got.Equal(BaseMultiplier) {
		t.Fatalf("got %s", got)
	}
}
