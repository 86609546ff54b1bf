// Package webhook delivers badge events to external HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"badgekit/core"
)

// Sink posts domain events to configured HTTP endpoints.
// Delivery is synchronous; subscribe it to an async event bus to keep it
// off the evaluation path.
type Sink struct {
	client     *http.Client
	endpoints  []string
	retries    int
	maxElapsed time.Duration
	types      map[core.EventType]struct{}
	logger     *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithRetries sets how many times a failed delivery is retried per endpoint.
func WithRetries(n int) Option {
	return func(s *Sink) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithMaxElapsed bounds the total time spent retrying one delivery.
func WithMaxElapsed(d time.Duration) Option {
	return func(s *Sink) { s.maxElapsed = d }
}

// WithTypes restricts delivery to the given event types.
func WithTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		s.types = make(map[core.EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client:     &http.Client{Timeout: 2 * time.Second},
		retries:    3,
		maxElapsed: 10 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Handle matches the event bus handler signature.
func (s *Sink) Handle(ctx context.Context, e core.Event) {
	_ = s.Deliver(ctx, e)
}

// Deliver posts the event JSON to every endpoint, retrying failures with
// exponential backoff. It returns the joined errors of endpoints that never
// accepted the event.
func (s *Sink) Deliver(ctx context.Context, e core.Event) error {
	if len(s.endpoints) == 0 {
		return nil
	}
	if s.types != nil {
		if _, ok := s.types[e.Type]; !ok {
			return nil
		}
	}
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	var errs []error
	for _, ep := range s.endpoints {
		if err := s.post(ctx, ep, body); err != nil {
			s.logger.Error("webhook delivery failed", "endpoint", ep, "event", e.ID, "type", e.Type, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ep, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Sink) post(ctx context.Context, endpoint string, body []byte) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("endpoint returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("endpoint returned %d", resp.StatusCode))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = s.maxElapsed
	return backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.retries)), ctx),
		func(err error, d time.Duration) {
			s.logger.Warn("webhook attempt failed", "endpoint", endpoint, "error", err, "backoff", d)
		},
	)
}
