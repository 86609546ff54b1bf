package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RolloverTarget receives the daily rollover.
type RolloverTarget interface {
	OnDailyRollover(ctx context.Context) (int, error)
}

// Rollover fires OnDailyRollover once a day at a fixed UTC hour.
type Rollover struct {
	target   RolloverTarget
	hour     int
	interval time.Duration
	clock    func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// RolloverOption configures a Rollover.
type RolloverOption func(*Rollover)

// WithRolloverHour sets the UTC hour (0-23) the rollover fires at.
func WithRolloverHour(h int) RolloverOption {
	return func(r *Rollover) {
		if h >= 0 && h < 24 {
			r.hour = h
		}
	}
}

// WithRolloverInterval replaces the daily cadence with a fixed interval.
func WithRolloverInterval(d time.Duration) RolloverOption {
	return func(r *Rollover) { r.interval = d }
}

func WithRolloverLogger(l *slog.Logger) RolloverOption {
	return func(r *Rollover) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithRolloverClock(fn func() time.Time) RolloverOption {
	return func(r *Rollover) {
		if fn != nil {
			r.clock = fn
		}
	}
}

func NewRollover(target RolloverTarget, opts ...RolloverOption) *Rollover {
	r := &Rollover{target: target, clock: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NextRun returns the first instant strictly after now at the given UTC hour.
func NextRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start begins the background loop. Calling Start twice is a no-op.
func (r *Rollover) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.run(r.stop)
	r.logger.Info("rollover started", "hour", r.hour, "interval", r.interval)
}

// Stop ends the loop and waits for it to exit.
func (r *Rollover) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	close(r.stop)
	r.mu.Unlock()
	r.wg.Wait()
	r.logger.Info("rollover stopped")
}

func (r *Rollover) delay() time.Duration {
	if r.interval > 0 {
		return r.interval
	}
	now := r.clock()
	return NextRun(now, r.hour).Sub(now)
}

func (r *Rollover) run(stop <-chan struct{}) {
	defer r.wg.Done()
	timer := time.NewTimer(r.delay())
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			n, err := r.target.OnDailyRollover(context.Background())
			if err != nil {
				r.logger.Error("rollover failed", "error", err)
			} else {
				r.logger.Info("rollover fired", "individuals", n)
			}
			timer.Reset(r.delay())
		case <-stop:
			return
		}
	}
}
