// Package performance derives win/loss statistics from the trade journal.
package performance

import (
	"github.com/shopspring/decimal"

	"github.com/kjannette/trahn-signals/internal/models"
)

// Journal is the read side of the append-only trade history.
type Journal interface {
	Trades() []models.TradeRecord
}

type Tracker struct {
	journal Journal
}

func NewTracker(j Journal) *Tracker {
	return &Tracker{journal: j}
}

// Stats recomputes from the journal on every call.
func (t *Tracker) Stats() models.PerformanceStats {
	return Compute(t.journal.Trades())
}

// Compute considers completed records only. A trade wins when its actual
// output exceeds its quoted input.
func Compute(records []models.TradeRecord) models.PerformanceStats {
	var s models.PerformanceStats
	profit := decimal.Zero

	for _, r := range records {
		if r.Status != models.TradeCompleted {
			continue
		}
		s.TotalTrades++

		in := decimal.NewFromFloat(r.InputAmount())
		out := decimal.NewFromFloat(r.ActualOutput)
		if out.GreaterThan(in) {
			s.WinningTrades++
		}
		profit = profit.Add(out.Sub(in))
	}

	s.LosingTrades = s.TotalTrades - s.WinningTrades
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	}
	s.TotalProfit = profit.InexactFloat64()
	return s
}
