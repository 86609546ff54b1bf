package engine

import "badgekit/core"

// ResolveHighest returns the cumulative badge with the highest acquisition
// threshold among those the individual has earned (active, grace or demoted).
// Equal thresholds resolve to the most recently defined badge, then to the
// lexically larger id.
func ResolveHighest(defs []core.BadgeDefinition, progress map[core.BadgeID]core.Progress) (core.BadgeDefinition, core.Progress, bool) {
	var (
		best     core.BadgeDefinition
		bestProg core.Progress
		found    bool
	)
	for _, d := range defs {
		if d.Kind != core.KindCumulative {
			continue
		}
		p, ok := progress[d.ID]
		if !ok || !p.Status.Earned() {
			continue
		}
		if !found || outranks(d, best) {
			best, bestProg, found = d, p, true
		}
	}
	return best, bestProg, found
}

// outranks reports whether a governs over b.
func outranks(a, b core.BadgeDefinition) bool {
	if a.AcquisitionThreshold != b.AcquisitionThreshold {
		return a.AcquisitionThreshold > b.AcquisitionThreshold
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
