package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"badgekit/core"
)

// BaseMultiplier applies when no earned tier grants a multiplier.
var BaseMultiplier = decimal.NewFromInt(1)

// Multiplier derives the point multiplier from the highest earned cumulative
// badge. A demoted tier yields the multiplier of the next lower tier that is
// not demoted.
func Multiplier(defs []core.BadgeDefinition, progress map[core.BadgeID]core.Progress) decimal.Decimal {
	tiers := make([]core.BadgeDefinition, 0, len(defs))
	for _, d := range defs {
		if d.Kind != core.KindCumulative {
			continue
		}
		if p, ok := progress[d.ID]; ok && p.Status.Earned() {
			tiers = append(tiers, d)
		}
	}
	sort.Slice(tiers, func(i, j int) bool { return outranks(tiers[i], tiers[j]) })
	for _, d := range tiers {
		if progress[d.ID].Status == core.StatusDemoted {
			continue
		}
		return rewardMultiplier(d)
	}
	return BaseMultiplier
}

func rewardMultiplier(d core.BadgeDefinition) decimal.Decimal {
	if d.Reward.Multiplier.IsZero() {
		return BaseMultiplier
	}
	return d.Reward.Multiplier
}
