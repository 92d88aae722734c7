package trader

import (
	"sync"

	"github.com/kjannette/trahn-signals/internal/models"
)

// Journal is the append-only trade history. Records are copied on the way in
// and out so callers can never mutate a stored record.
type Journal struct {
	mu      sync.RWMutex
	records []models.TradeRecord
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Append(r models.TradeRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, cloneRecord(r))
}

func (j *Journal) Trades() []models.TradeRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]models.TradeRecord, len(j.records))
	for i, r := range j.records {
		out[i] = cloneRecord(r)
	}
	return out
}

func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}

func cloneRecord(r models.TradeRecord) models.TradeRecord {
	if r.Quote != nil {
		q := *r.Quote
		q.Routes = append([]string(nil), q.Routes...)
		r.Quote = &q
	}
	return r
}
