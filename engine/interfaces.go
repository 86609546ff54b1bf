package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"badgekit/core"
)

// Catalog provides the badge definitions.
type Catalog interface {
	Definitions(ctx context.Context) ([]core.BadgeDefinition, error)
}

// Ledger exposes the individual balance the engine reads and the multiplier it writes.
type Ledger interface {
	LifetimePoints(ctx context.Context, id core.IndividualID) (int64, error)
	SetMultiplier(ctx context.Context, id core.IndividualID, multiplier decimal.Decimal) error
	// Multiplier returns the last written multiplier, 1 for unknown individuals.
	Multiplier(ctx context.Context, id core.IndividualID) (decimal.Decimal, error)
}

// ProgressStore persists badge progress. The engine is its only writer of status and dates.
type ProgressStore interface {
	// GetProgress returns every progress record of the individual keyed by badge.
	GetProgress(ctx context.Context, id core.IndividualID) (map[core.BadgeID]core.Progress, error)
	// PutProgress writes all records atomically.
	PutProgress(ctx context.Context, id core.IndividualID, records ...core.Progress) error
	// AccrueCyclePoints adds delta to the cycle points of the given earned badges.
	AccrueCyclePoints(ctx context.Context, id core.IndividualID, badges []core.BadgeID, delta int64) error
}

// Storage is the combined persistence surface implemented by the adapters.
type Storage interface {
	Ledger
	ProgressStore
}

// Evaluator runs a full evaluation pass for one individual against a single
// canonical today.
type Evaluator interface {
	EvaluateIndividual(ctx context.Context, id core.IndividualID, today time.Time) error
}
