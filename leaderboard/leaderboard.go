// Package leaderboard ranks individuals by lifetime points, breaking ties
// by the multiplier their governing badge grants.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"badgekit/core"
)

// Standing is what an individual is ranked by.
type Standing struct {
	Points     int64           `json:"points"`
	Multiplier decimal.Decimal `json:"multiplier"`
	// Badge is the governing badge, empty when nothing was earned.
	Badge core.BadgeID `json:"badge,omitempty"`
}

func (s Standing) same(o Standing) bool {
	return s.Points == o.Points && s.Badge == o.Badge && s.Multiplier.Equal(o.Multiplier)
}

// ranked reports whether the standing belongs on a board at all.
func (s Standing) ranked() bool { return s.Points > 0 || s.Badge != "" }

// Entry is one ranked individual.
type Entry struct {
	Individual core.IndividualID `json:"individual_id"`
	Standing
	Rank int `json:"rank,omitempty"`
}

// Board abstracts leaderboard operations.
type Board interface {
	Put(id core.IndividualID, s Standing)
	Remove(id core.IndividualID)
	TopN(n int) []Entry
	Get(id core.IndividualID) (Entry, bool)
}

// StandingFunc reads an individual's current standing.
type StandingFunc func(ctx context.Context, id core.IndividualID) (Standing, error)

// Seed loads the standings of ids into board. Individuals with no points and
// no badge are skipped.
func Seed(ctx context.Context, board Board, ids []core.IndividualID, standing StandingFunc) error {
	for _, id := range ids {
		s, err := standing(ctx, id)
		if err != nil {
			return fmt.Errorf("seed %s: %w", id, err)
		}
		if s.ranked() {
			board.Put(id, s)
		}
	}
	return nil
}

// Feed returns an event handler that refreshes an individual's standing
// whenever its balance or badge status changes.
func Feed(board Board, standing StandingFunc, logger *slog.Logger) func(context.Context, core.Event) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, e core.Event) {
		switch e.Type {
		case core.EventPointsChanged, core.EventBadgeEarned, core.EventBadgeUpdated:
		default:
			return
		}
		s, err := standing(ctx, e.Individual)
		if err != nil {
			logger.Warn("leaderboard refresh failed", "individual", e.Individual, "event", e.Type, "error", err)
			return
		}
		if !s.ranked() {
			board.Remove(e.Individual)
			return
		}
		board.Put(e.Individual, s)
	}
}
