// Package ratelimit admits calls to a scarce external capability under a
// hard per-window ceiling. Calls are delayed, never dropped.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finbrain/finbrain/internal/metrics"
)

// DefaultWindow is the sliding window used for per-minute ceilings.
const DefaultWindow = 60 * time.Second

// Stats is a read-only diagnostic snapshot of a Limiter.
type Stats struct {
	TotalCalls           int64 `json:"total_calls"`
	RequestsInLastMinute int   `json:"requests_in_last_minute"`
	MaxRequestsPerMinute int   `json:"max_requests_per_minute"`
}

// Limiter enforces at most max admissions inside the window.
//
// The admission decision (evict, check, record) runs under mu. A caller that
// finds the window full releases mu before sleeping and re-checks on waking,
// so one waiter never blocks other callers or Stats.
type Limiter struct {
	mu     sync.Mutex
	window Window
	max    int
	total  int64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock and the sleep function, used in tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// New creates a Limiter admitting at most max calls per window.
func New(window Window, max int, opts ...Option) *Limiter {
	if max < 1 {
		max = 1
	}
	l := &Limiter{
		window: window,
		max:    max,
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until the caller is admitted or ctx ends. An admission is
// never rolled back, even if the caller later abandons its work.
func (l *Limiter) Wait(ctx context.Context) error {
	var waited time.Duration
	for {
		l.mu.Lock()
		admitted, wait, err := l.window.TryAdmit(ctx, l.now(), l.max)
		if err == nil && admitted {
			l.total++
		}
		l.mu.Unlock()

		if err != nil {
			return fmt.Errorf("checking rate limit window: %w", err)
		}
		if admitted {
			metrics.RateLimitAdmittedTotal.Inc()
			if waited > 0 {
				metrics.RateLimitWaitSeconds.Observe(waited.Seconds())
			}
			return nil
		}

		slog.Info("rate limit reached, waiting", "wait", wait.Round(time.Millisecond), "max_per_minute", l.max)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		waited += wait
	}
}

// Execute admits one call through l and then runs op. The result and error
// of op are returned unchanged.
func Execute[T any](ctx context.Context, l *Limiter, op func(context.Context) (T, error)) (T, error) {
	if err := l.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return op(ctx)
}

// Stats returns a snapshot of the limiter. Window read failures are logged
// and reported as zero current requests.
func (l *Limiter) Stats(ctx context.Context) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.window.Count(ctx, l.now())
	if err != nil {
		slog.Warn("reading rate limit window", "error", err)
	}
	return Stats{
		TotalCalls:           l.total,
		RequestsInLastMinute: n,
		MaxRequestsPerMinute: l.max,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
