package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a manually advanced clock. Sleep returns once Advance has moved
// time past the sleeper's deadline; tickers fire on Advance.
type Fake struct {
	mu       sync.Mutex
	now      time.Time
	sleepers []*sleeper
	tickers  []*fakeTicker
}

type sleeper struct {
	until time.Time
	done  chan struct{}
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	f.mu.Lock()
	s := &sleeper{until: f.now.Add(d), done: make(chan struct{})}
	f.sleepers = append(f.sleepers, s)
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		f.removeSleeper(s)
		return ctx.Err()
	case <-s.done:
		return nil
	}
}

func (f *Fake) removeSleeper(s *sleeper) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, other := range f.sleepers {
		if other == s {
			f.sleepers = append(f.sleepers[:i], f.sleepers[i+1:]...)
			return
		}
	}
}

// Sleepers reports how many goroutines are blocked in Sleep.
func (f *Fake) Sleepers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sleepers)
}

// Advance moves time forward, releasing due sleepers and firing tickers.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now

	pending := f.sleepers[:0]
	for _, s := range f.sleepers {
		if !now.Before(s.until) {
			close(s.done)
			continue
		}
		pending = append(pending, s)
	}
	f.sleepers = pending
	tickers := append([]*fakeTicker(nil), f.tickers...)
	f.mu.Unlock()

	for _, t := range tickers {
		t.advance(now)
	}
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		period: d,
		next:   f.now.Add(d),
		ch:     make(chan time.Time, 1),
	}
	f.tickers = append(f.tickers, t)
	return t
}

type fakeTicker struct {
	mu      sync.Mutex
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) advance(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.next) {
		return
	}
	for !now.Before(t.next) {
		t.next = t.next.Add(t.period)
	}
	// Like time.Ticker, drop ticks the reader has not consumed.
	select {
	case t.ch <- now:
	default:
	}
}
