// Package scheduler runs periodic work on an injectable clock.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-signals/internal/clock"
)

// Task runs fn every interval until stopped. fn receives a context that is
// cancelled by Stop.
type Task struct {
	name      string
	interval  time.Duration
	fn        func(context.Context)
	clock     clock.Clock
	immediate bool
	log       *logrus.Entry

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type Option func(*Task)

func WithClock(c clock.Clock) Option {
	return func(t *Task) { t.clock = c }
}

// RunImmediately runs fn once on Start before the first tick.
func RunImmediately() Option {
	return func(t *Task) { t.immediate = true }
}

func WithLogger(l *logrus.Entry) Option {
	return func(t *Task) { t.log = l }
}

func NewTask(name string, interval time.Duration, fn func(context.Context), opts ...Option) *Task {
	t := &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		clock:    clock.Real{},
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.WithField("task", name)
	return t
}

func (t *Task) Start(parent context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		t.log.Debug("already running")
		return
	}
	ctx, cancel := context.WithCancel(parent)
	t.running = true
	t.cancel = cancel
	t.done = make(chan struct{})
	ticker := t.clock.NewTicker(t.interval)
	done := t.done
	t.mu.Unlock()

	go func() {
		defer close(done)
		defer ticker.Stop()

		if t.immediate {
			t.run(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				t.run(ctx)
			}
		}
	}()

	t.log.WithField("interval", t.interval).Info("started")
}

func (t *Task) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.log.WithField("panic", r).Error("task run panicked")
		}
	}()
	t.fn(ctx)
}

// Stop cancels the loop and waits for an in-progress run to return.
func (t *Task) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.cancel()
	done := t.done
	t.mu.Unlock()

	<-done
	t.log.Info("stopped")
}

func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// RunNow runs fn outside the schedule on the caller's goroutine.
func (t *Task) RunNow(ctx context.Context) {
	t.run(ctx)
}
