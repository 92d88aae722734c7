package signals

import (
	"sync"
	"time"
)

// SignalLog remembers when a signal was last accepted for each token.
type SignalLog struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewSignalLog() *SignalLog {
	return &SignalLog{last: make(map[string]time.Time)}
}

func (l *SignalLog) Record(token string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.last[token]; !ok || at.After(prev) {
		l.last[token] = at
	}
}

// Snapshot returns a copy safe to hand to ShouldExecute.
func (l *SignalLog) Snapshot() map[string]time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]time.Time, len(l.last))
	for k, v := range l.last {
		out[k] = v
	}
	return out
}

// Prune drops tokens whose last acceptance is older than window.
func (l *SignalLog) Prune(now time.Time, window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, v := range l.last {
		if now.Sub(v) >= window {
			delete(l.last, k)
			n++
		}
	}
	return n
}
