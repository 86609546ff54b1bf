// Package badges assembles a ready-to-use badge engine from optional parts.
package badges

import (
	"context"
	"errors"
	"log/slog"
	"time"

	mem "badgekit/adapters/memory"
	"badgekit/catalog"
	"badgekit/core"
	"badgekit/engine"
	"badgekit/leaderboard"
	"badgekit/realtime"
)

// Option configures the badge engine builder.
type Option func(*config)

type config struct {
	catalog  engine.Catalog
	defs     []core.BadgeDefinition
	storage  engine.Storage
	mode     engine.DispatchMode
	hub      *realtime.Hub
	board    leaderboard.Board
	sinks    []func(context.Context, core.Event)
	logger   *slog.Logger
	clock    func() time.Time
	debounce time.Duration
}

// WithCatalog sets the definition source.
func WithCatalog(c engine.Catalog) Option { return func(cfg *config) { cfg.catalog = c } }

// WithDefinitions builds a static catalog from defs. Ignored when WithCatalog is also given.
func WithDefinitions(defs ...core.BadgeDefinition) Option {
	return func(cfg *config) { cfg.defs = append(cfg.defs, defs...) }
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(cfg *config) { cfg.storage = s } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(cfg *config) { cfg.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(cfg *config) { cfg.hub = h } }

// WithLeaderboard keeps board ranked as balances and badge statuses change.
func WithLeaderboard(b leaderboard.Board) Option { return func(cfg *config) { cfg.board = b } }

// WithSink subscribes an extra handler, such as a webhook sink, to every event.
func WithSink(fn func(context.Context, core.Event)) Option {
	return func(cfg *config) {
		if fn != nil {
			cfg.sinks = append(cfg.sinks, fn)
		}
	}
}

func WithLogger(l *slog.Logger) Option { return func(cfg *config) { cfg.logger = l } }

func WithClock(fn func() time.Time) Option { return func(cfg *config) { cfg.clock = fn } }

// WithDebounce sets the quiet window before pending evaluations run.
func WithDebounce(d time.Duration) Option { return func(cfg *config) { cfg.debounce = d } }

// New builds a configured Service. If not provided, defaults are used:
//   - storage: in-memory
//   - dispatch: async
//
// A catalog, from WithCatalog or WithDefinitions, is required.
func New(opts ...Option) (*engine.Service, error) {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.catalog == nil {
		if len(cfg.defs) == 0 {
			return nil, errors.New("badges: no catalog or definitions given")
		}
		c, err := catalog.New(cfg.defs...)
		if err != nil {
			return nil, err
		}
		cfg.catalog = c
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}

	var svc *engine.Service
	bus := engine.NewEventBus(cfg.mode)
	if cfg.hub != nil {
		bus.SubscribeAll(cfg.hub.Broadcast)
	}
	if cfg.board != nil {
		// events only flow once svc is assigned below
		standing := func(ctx context.Context, id core.IndividualID) (leaderboard.Standing, error) {
			return Standing(svc)(ctx, id)
		}
		bus.SubscribeAll(leaderboard.Feed(cfg.board, standing, cfg.logger))
	}
	for _, fn := range cfg.sinks {
		bus.SubscribeAll(fn)
	}

	var svcOpts []engine.Option
	if cfg.logger != nil {
		svcOpts = append(svcOpts, engine.WithLogger(cfg.logger))
	}
	if cfg.clock != nil {
		svcOpts = append(svcOpts, engine.WithClock(cfg.clock))
	}
	if cfg.debounce > 0 {
		svcOpts = append(svcOpts, engine.WithDebounce(cfg.debounce))
	}
	svc = engine.NewService(cfg.catalog, cfg.storage, bus, svcOpts...)
	return svc, nil
}

// Standing reads an individual's leaderboard standing: lifetime points, the
// current multiplier and the governing badge.
func Standing(svc *engine.Service) leaderboard.StandingFunc {
	return func(ctx context.Context, id core.IndividualID) (leaderboard.Standing, error) {
		sum, err := svc.Summary(ctx, id)
		if err != nil {
			return leaderboard.Standing{}, err
		}
		defs, err := svc.Definitions(ctx)
		if err != nil {
			return leaderboard.Standing{}, err
		}
		st := leaderboard.Standing{Points: sum.LifetimePoints, Multiplier: sum.Multiplier}
		if def, _, ok := engine.ResolveHighest(defs, sum.Progress); ok {
			st.Badge = def.ID
		}
		return st, nil
	}
}
