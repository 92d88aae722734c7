// Package ratelimit paces calls to an external resource and backs off
// exponentially while that resource keeps failing.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjannette/trahn-signals/internal/clock"
	"github.com/kjannette/trahn-signals/internal/observability"
)

const (
	DefaultMinInterval = time.Second
	DefaultMaxBackoff  = 30 * time.Second
)

// Limiter is a single pacing gate for one resource. Share one instance
// between every caller of that resource.
type Limiter struct {
	name        string
	minInterval time.Duration
	maxBackoff  time.Duration
	clock       clock.Clock
	metrics     *observability.Metrics

	mu       sync.Mutex
	pace     *rate.Limiter
	failures int
	last     time.Time
}

type Option func(*Limiter)

func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

func WithMaxBackoff(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.maxBackoff = d
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func New(name string, minInterval time.Duration, opts ...Option) *Limiter {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	l := &Limiter{
		name:        name,
		minInterval: minInterval,
		maxBackoff:  DefaultMaxBackoff,
		clock:       clock.Real{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.pace = rate.NewLimiter(rate.Every(minInterval), 1)
	return l
}

func (l *Limiter) Name() string { return l.name }

// Wait blocks until at least the minimum interval has passed since the
// previous permitted call.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.wait(ctx, false)
}

// WaitWithBackoff is Wait with the interval stretched to
// minInterval * 2^failures, capped at the max backoff.
func (l *Limiter) WaitWithBackoff(ctx context.Context) error {
	return l.wait(ctx, true)
}

func (l *Limiter) wait(ctx context.Context, backoff bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := l.clock.Now()
	res := l.pace.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if backoff && l.failures > 0 && !l.last.IsZero() {
		if gate := l.last.Add(l.delayLocked()).Sub(now); gate > delay {
			delay = gate
		}
	}
	l.last = now.Add(delay)
	l.mu.Unlock()

	l.metrics.RecordRateLimitWait(l.name, delay)
	if delay <= 0 {
		return nil
	}
	if err := l.clock.Sleep(ctx, delay); err != nil {
		res.CancelAt(l.clock.Now())
		return err
	}
	return nil
}

// Delay is the current backoff interval.
func (l *Limiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delayLocked()
}

func (l *Limiter) delayLocked() time.Duration {
	d := l.minInterval
	for i := 0; i < l.failures; i++ {
		d *= 2
		if d >= l.maxBackoff {
			return l.maxBackoff
		}
	}
	return d
}

func (l *Limiter) Failures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	l.failures = 0
	l.mu.Unlock()
}

func (l *Limiter) RecordFailure() {
	l.mu.Lock()
	l.failures++
	l.mu.Unlock()
	l.metrics.RecordRateLimitFailure(l.name)
}
