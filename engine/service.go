package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"badgekit/core"
)

// maxSteps bounds how many transitions one badge may take in a single pass
// while catching up on missed cycles.
const maxSteps = 64

// ErrReadOnlyLedger is returned by AddPoints when the ledger cannot move balances.
var ErrReadOnlyLedger = errors.New("ledger does not accept point changes")

// PointsWriter is implemented by ledgers that can also move balances.
type PointsWriter interface {
	AddPoints(ctx context.Context, id core.IndividualID, delta int64) (int64, error)
}

// Service wires catalog, storage, event bus and the debounce scheduler into
// the badge evaluation engine.
type Service struct {
	catalog   Catalog
	store     Storage
	bus       *EventBus
	logger    *slog.Logger
	clock     func() time.Time
	scheduler *Scheduler
	schedOpts []SchedulerOption
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the wall clock used for "today".
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.clock = fn
		}
	}
}

// WithDebounce sets the quiet window of the trigger scheduler.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) { s.schedOpts = append(s.schedOpts, WithWindow(d)) }
}

func NewService(catalog Catalog, store Storage, bus *EventBus, opts ...Option) *Service {
	if catalog == nil || store == nil || bus == nil {
		panic("NewService requires non-nil catalog, storage, and bus")
	}
	s := &Service{
		catalog: catalog,
		store:   store,
		bus:     bus,
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	schedOpts := append([]SchedulerOption{WithSchedulerClock(s.clock), WithSchedulerLogger(s.logger)}, s.schedOpts...)
	s.scheduler = NewScheduler(s, schedOpts...)
	return s
}

// Subscribe convenience method.
func (s *Service) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *Service) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

// Scheduler exposes the debounce scheduler.
func (s *Service) Scheduler() *Scheduler { return s.scheduler }

// AddPoints records delta on the ledger when it supports writes, then
// handles the balance change like any other trigger.
func (s *Service) AddPoints(ctx context.Context, id core.IndividualID, delta int64) (int64, error) {
	w, ok := s.store.(PointsWriter)
	if !ok {
		return 0, ErrReadOnlyLedger
	}
	if delta == 0 {
		return 0, core.ErrZeroDelta
	}
	normalized, err := core.NormalizeIndividualID(id)
	if err != nil {
		return 0, err
	}
	total, err := w.AddPoints(ctx, normalized, delta)
	if err != nil {
		return 0, err
	}
	if err := s.OnPointsChanged(ctx, normalized, delta); err != nil {
		return total, err
	}
	return total, nil
}

// OnPointsChanged accrues positive deltas into the running maintenance cycle
// of the governing badge and schedules a re-evaluation. Accrual waits for an
// in-flight pass so a pass never writes back a stale cycle total. It must not
// be called from a handler running inside a synchronous pass.
func (s *Service) OnPointsChanged(ctx context.Context, id core.IndividualID, delta int64) error {
	if delta == 0 {
		return core.ErrZeroDelta
	}
	normalized, err := core.NormalizeIndividualID(id)
	if err != nil {
		return err
	}
	if delta > 0 {
		err := s.scheduler.Exclusive(func() error { return s.accrue(ctx, normalized, delta) })
		if err != nil {
			return err
		}
	}
	s.bus.Publish(ctx, core.NewPointsChanged(normalized, delta))
	s.scheduler.MarkPending(normalized)
	return nil
}

func (s *Service) accrue(ctx context.Context, id core.IndividualID, delta int64) error {
	defs, err := s.assigned(ctx, id)
	if err != nil {
		return err
	}
	progress, err := s.store.GetProgress(ctx, id)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	highest, _, found := ResolveHighest(defs, progress)
	if !found || !maintained(highest) {
		return nil
	}
	if err := s.store.AccrueCyclePoints(ctx, id, []core.BadgeID{highest.ID}, delta); err != nil {
		return fmt.Errorf("accrue cycle points: %w", err)
	}
	return nil
}

// OnTaskApproved schedules a re-evaluation after a task approval.
func (s *Service) OnTaskApproved(ctx context.Context, id core.IndividualID, task string) error {
	normalized, err := core.NormalizeIndividualID(id)
	if err != nil {
		return err
	}
	s.bus.Publish(ctx, core.NewTaskApproved(normalized, task))
	s.scheduler.MarkPending(normalized)
	return nil
}

// OnDailyRollover marks every tracked individual pending. It returns how
// many individuals were marked.
func (s *Service) OnDailyRollover(ctx context.Context) (int, error) {
	ids, err := s.Individuals(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.scheduler.MarkPending(id)
	}
	s.logger.Info("daily rollover scheduled", "individuals", len(ids))
	return len(ids), nil
}

// Individuals lists every individual assigned to at least one badge.
func (s *Service) Individuals(ctx context.Context) ([]core.IndividualID, error) {
	defs, err := s.catalog.Definitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	seen := map[core.IndividualID]struct{}{}
	var out []core.IndividualID
	for _, d := range defs {
		for _, id := range d.Assigned {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Evaluate runs an immediate evaluation pass for one individual.
func (s *Service) Evaluate(ctx context.Context, id core.IndividualID) error {
	normalized, err := core.NormalizeIndividualID(id)
	if err != nil {
		return err
	}
	return s.scheduler.Run(ctx, normalized)
}

// EvaluateIndividual evaluates every badge assigned to the individual,
// highest tier first.
func (s *Service) EvaluateIndividual(ctx context.Context, id core.IndividualID, today time.Time) error {
	defs, err := s.assigned(ctx, id)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return nil
	}
	lifetime, err := s.store.LifetimePoints(ctx, id)
	if err != nil {
		return fmt.Errorf("load lifetime points: %w", err)
	}
	progress, err := s.store.GetProgress(ctx, id)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	snap := Snapshot{Definitions: defs, Progress: progress, Lifetime: lifetime, Today: today}
	for _, def := range defs {
		if snap, err = s.EvaluateBadge(ctx, id, def, snap); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateBadge steps one badge until it settles and returns the updated
// snapshot. Each transition is applied before the next step reads state.
func (s *Service) EvaluateBadge(ctx context.Context, id core.IndividualID, def core.BadgeDefinition, snap Snapshot) (Snapshot, error) {
	for i := 0; i < maxSteps; i++ {
		out := Step(snap, def)
		if out.NoOp() {
			if i == 0 {
				s.logger.Debug("badge unchanged", "individual", id, "badge", def.ID)
			}
			return snap, nil
		}
		if err := s.apply(ctx, id, def, snap, out); err != nil {
			return snap, err
		}
		snap.Progress = Apply(snap.Progress, out)
	}
	s.logger.Warn("badge did not settle", "individual", id, "badge", def.ID, "steps", maxSteps)
	return snap, nil
}

// apply performs the effects of one transition: multiplier, then the
// progress write, then events. A failure stops before events so the next
// pass recomputes the same transition.
func (s *Service) apply(ctx context.Context, id core.IndividualID, def core.BadgeDefinition, snap Snapshot, out Outcome) error {
	if out.Recalc {
		m := Multiplier(snap.Definitions, Apply(snap.Progress, out))
		if err := s.store.SetMultiplier(ctx, id, m); err != nil {
			return fmt.Errorf("set multiplier: %w", err)
		}
	}
	if err := s.store.PutProgress(ctx, id, out.Records()...); err != nil {
		return fmt.Errorf("put progress %s: %w", def.ID, err)
	}
	switch out.Emit {
	case EmitAcquired:
		s.bus.Publish(ctx, core.NewBadgeEarned(id, def.ID, def.Reward, core.ReasonAcquired))
	case EmitRenewed:
		s.bus.Publish(ctx, core.NewBadgeEarned(id, def.ID, def.Reward, core.ReasonRenewed))
	case EmitDemoted:
		s.bus.Publish(ctx, core.NewBadgeUpdated(id, def.ID, core.StatusDemoted))
	}
	s.logger.Info("badge transition",
		"individual", id,
		"badge", def.ID,
		"transition", out.Transition,
		"status", out.Record.Status,
		"frozen", len(out.Frozen))
	return nil
}

// GetProgress returns the stored progress of an individual.
func (s *Service) GetProgress(ctx context.Context, id core.IndividualID) (map[core.BadgeID]core.Progress, error) {
	normalized, err := core.NormalizeIndividualID(id)
	if err != nil {
		return nil, err
	}
	return s.store.GetProgress(ctx, normalized)
}

// Summary is the read model of one individual.
type Summary struct {
	Individual     core.IndividualID              `json:"individual_id"`
	LifetimePoints int64                          `json:"lifetime_points"`
	Multiplier     decimal.Decimal                `json:"multiplier"`
	Progress       map[core.BadgeID]core.Progress `json:"progress"`
}

// Summary reads the ledger and progress of an individual.
func (s *Service) Summary(ctx context.Context, id core.IndividualID) (Summary, error) {
	normalized, err := core.NormalizeIndividualID(id)
	if err != nil {
		return Summary{}, err
	}
	lifetime, err := s.store.LifetimePoints(ctx, normalized)
	if err != nil {
		return Summary{}, fmt.Errorf("load lifetime points: %w", err)
	}
	m, err := s.store.Multiplier(ctx, normalized)
	if err != nil {
		return Summary{}, fmt.Errorf("load multiplier: %w", err)
	}
	progress, err := s.store.GetProgress(ctx, normalized)
	if err != nil {
		return Summary{}, fmt.Errorf("load progress: %w", err)
	}
	return Summary{Individual: normalized, LifetimePoints: lifetime, Multiplier: m, Progress: progress}, nil
}

// Definitions returns the badge catalog.
func (s *Service) Definitions(ctx context.Context) ([]core.BadgeDefinition, error) {
	return s.catalog.Definitions(ctx)
}

// Flush evaluates every pending individual now.
func (s *Service) Flush(ctx context.Context) int { return s.scheduler.Flush(ctx) }

func (s *Service) Close() {
	s.scheduler.Close()
	s.bus.Close()
}

// assigned returns the cumulative definitions assigned to id, governing tier first.
func (s *Service) assigned(ctx context.Context, id core.IndividualID) ([]core.BadgeDefinition, error) {
	defs, err := s.catalog.Definitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	out := make([]core.BadgeDefinition, 0, len(defs))
	for _, d := range defs {
		if d.Kind == core.KindCumulative && d.AssignedTo(id) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return outranks(out[i], out[j]) })
	return out, nil
}
