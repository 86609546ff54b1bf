package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"badgekit/core"
)

// DefaultWindow is the quiet period a burst of triggers must leave before a pass runs.
const DefaultWindow = 3 * time.Second

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWindow sets the debounce quiet window.
func WithWindow(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithSchedulerClock overrides the clock read once per pass.
func WithSchedulerClock(fn func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.clock = fn
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scheduler coalesces triggers into evaluation passes. Every MarkPending
// re-arms a single timer; when it fires, the pending set is drained and each
// individual is evaluated once, sequentially. Passes never overlap.
type Scheduler struct {
	eval    Evaluator
	tracker *Tracker
	window  time.Duration
	clock   func() time.Time
	logger  *slog.Logger

	mu     sync.Mutex // guards timer and closed
	timer  *time.Timer
	closed bool

	passMu sync.Mutex // held for the whole pass
	passes atomic.Int64
}

func NewScheduler(eval Evaluator, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		eval:    eval,
		tracker: NewTracker(),
		window:  DefaultWindow,
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MarkPending records id and re-arms the debounce timer.
func (s *Scheduler) MarkPending(id core.IndividualID) {
	s.tracker.Mark(id)
	s.arm()
}

func (s *Scheduler) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.window, s.fire)
		return
	}
	s.timer.Stop()
	s.timer.Reset(s.window)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.pass(context.Background())
}

// pass drains the tracker and evaluates each id against one "today".
// Failed ids are marked pending again and the timer is re-armed, so they are
// retried one window later without a new trigger.
func (s *Scheduler) pass(ctx context.Context) int {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	ids := s.tracker.Drain()
	if len(ids) == 0 {
		return 0
	}
	today := s.clock()
	var failed []core.IndividualID
	for _, id := range ids {
		if err := s.eval.EvaluateIndividual(ctx, id, today); err != nil {
			s.logger.Error("evaluation failed", "individual", id, "error", err)
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		s.tracker.Mark(id)
	}
	if len(failed) > 0 {
		s.arm()
	}
	s.passes.Add(1)
	s.logger.Debug("evaluation pass complete", "individuals", len(ids), "failed", len(failed))
	return len(ids)
}

// Run evaluates one individual immediately, serialized with timer passes.
func (s *Scheduler) Run(ctx context.Context, id core.IndividualID) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	return s.eval.EvaluateIndividual(ctx, id, s.clock())
}

// Exclusive runs fn while no pass or Run is in progress.
func (s *Scheduler) Exclusive(fn func() error) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	return fn()
}

// Flush cancels the pending timer and runs a pass now. It returns the
// number of individuals evaluated.
func (s *Scheduler) Flush(ctx context.Context) int {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	return s.pass(ctx)
}

// Pending returns how many individuals await evaluation.
func (s *Scheduler) Pending() int { return s.tracker.Len() }

// Passes returns how many non-empty passes have run.
func (s *Scheduler) Passes() int64 { return s.passes.Load() }

// Close stops the timer and waits for an in-flight pass to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	s.passMu.Lock()
	defer s.passMu.Unlock()
}
