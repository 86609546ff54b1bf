package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"badgekit/core"
)

// Store is a concurrent in-memory ledger and progress store.
type Store struct {
	individuals sync.Map // map[core.IndividualID]*record
}

type record struct {
	mu         sync.Mutex
	lifetime   int64
	multiplier decimal.Decimal
	progress   map[core.BadgeID]core.Progress
}

func New() *Store { return &Store{} }

func (s *Store) getOrCreate(id core.IndividualID) *record {
	if v, ok := s.individuals.Load(id); ok {
		return v.(*record)
	}
	rec := &record{multiplier: decimal.NewFromInt(1), progress: map[core.BadgeID]core.Progress{}}
	actual, _ := s.individuals.LoadOrStore(id, rec)
	return actual.(*record)
}

// AddPoints moves the lifetime balance. Negative deltas never take it below zero.
func (s *Store) AddPoints(_ context.Context, id core.IndividualID, delta int64) (int64, error) {
	if delta == 0 {
		return 0, core.ErrZeroDelta
	}
	rec := s.getOrCreate(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	next, err := core.AddSafe(rec.lifetime, delta)
	if err != nil {
		return 0, err
	}
	if next < 0 {
		next = 0
	}
	rec.lifetime = next
	return next, nil
}

func (s *Store) LifetimePoints(_ context.Context, id core.IndividualID) (int64, error) {
	rec := s.getOrCreate(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.lifetime, nil
}

func (s *Store) SetMultiplier(_ context.Context, id core.IndividualID, m decimal.Decimal) error {
	rec := s.getOrCreate(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.multiplier = m
	return nil
}

func (s *Store) Multiplier(_ context.Context, id core.IndividualID) (decimal.Decimal, error) {
	rec := s.getOrCreate(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.multiplier, nil
}

func (s *Store) GetProgress(_ context.Context, id core.IndividualID) (map[core.BadgeID]core.Progress, error) {
	rec := s.getOrCreate(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make(map[core.BadgeID]core.Progress, len(rec.progress))
	for k, v := range rec.progress {
		out[k] = v.Clone()
	}
	return out, nil
}

func (s *Store) PutProgress(_ context.Context, id core.IndividualID, records ...core.Progress) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	rec := s.getOrCreate(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, r := range records {
		rec.progress[r.Badge] = r.Clone()
	}
	return nil
}

func (s *Store) AccrueCyclePoints(_ context.Context, id core.IndividualID, badges []core.BadgeID, delta int64) error {
	rec := s.getOrCreate(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, b := range badges {
		p, ok := rec.progress[b]
		if !ok || !p.Status.Earned() {
			continue
		}
		next, err := core.AddSafe(p.CyclePoints, delta)
		if err != nil {
			return err
		}
		p.CyclePoints = next
		rec.progress[b] = p
	}
	return nil
}
