package trader

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kjannette/trahn-signals/internal/models"
)

// Book holds open positions and the closed history. A position being closed
// is claimed first so the monitor and a manual sell cannot both close it.
type Book struct {
	mu      sync.RWMutex
	open    map[string]models.Position
	closed  []models.Position
	claimed map[string]bool
}

func NewBook() *Book {
	return &Book{
		open:    make(map[string]models.Position),
		claimed: make(map[string]bool),
	}
}

func (b *Book) Open(p models.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open[p.ID] = p
}

// Restore loads previously persisted open positions, skipping ids already
// present.
func (b *Book) Restore(ps []models.Position) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, p := range ps {
		if p.Status != models.PositionOpen {
			continue
		}
		if _, ok := b.open[p.ID]; ok {
			continue
		}
		b.open[p.ID] = p
		n++
	}
	return n
}

// Claim marks an open position as being closed. It fails when the position
// is gone or already claimed.
func (b *Book) Claim(id string) (models.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.open[id]
	if !ok || b.claimed[id] {
		return models.Position{}, false
	}
	b.claimed[id] = true
	return p, true
}

// ClaimOldestFor claims the earliest opened unclaimed position for token.
func (b *Book) ClaimOldestFor(token string) (models.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		oldest models.Position
		found  bool
	)
	for id, p := range b.open {
		if b.claimed[id] || !strings.EqualFold(p.TokenAddress, token) {
			continue
		}
		if !found || p.OpenedAt.Before(oldest.OpenedAt) {
			oldest, found = p, true
		}
	}
	if found {
		b.claimed[oldest.ID] = true
	}
	return oldest, found
}

func (b *Book) Unclaim(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.claimed, id)
}

// Close moves an open position to the closed history with a terminal status.
func (b *Book) Close(id string, status models.PositionStatus, exitPrice float64, exitTradeID string, at time.Time) (models.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.open[id]
	if !ok || !status.Closed() {
		return models.Position{}, false
	}
	delete(b.open, id)
	delete(b.claimed, id)

	p.Status = status
	p.ClosedAt = &at
	p.ExitPrice = &exitPrice
	p.ExitTradeID = exitTradeID
	b.closed = append(b.closed, p)
	return clonePosition(p), true
}

// OpenPositions returns copies ordered by open time.
func (b *Book) OpenPositions() []models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Position, 0, len(b.open))
	for _, p := range b.open {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, c models.Position) int {
		if n := a.OpenedAt.Compare(c.OpenedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, c.ID)
	})
	return out
}

func (b *Book) ClosedPositions() []models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Position, len(b.closed))
	for i, p := range b.closed {
		out[i] = clonePosition(p)
	}
	return out
}

func (b *Book) OpenCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.open)
}

func (b *Book) OpenCountFor(token string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, p := range b.open {
		if strings.EqualFold(p.TokenAddress, token) {
			n++
		}
	}
	return n
}

func clonePosition(p models.Position) models.Position {
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		p.ClosedAt = &t
	}
	if p.ExitPrice != nil {
		v := *p.ExitPrice
		p.ExitPrice = &v
	}
	return p
}
