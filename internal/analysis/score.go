// Package analysis scores market snapshots into prediction and technical
// analyses. The heuristics are uncalibrated; every threshold is a named
// default that callers may override.
package analysis

import (
	"math"
	"sort"

	"github.com/kjannette/trahn-signals/internal/models"
)

const (
	// PumpScoreThreshold is the composite score above which a token is
	// treated as a technical buy candidate.
	PumpScoreThreshold = 70.0
	MaxScore           = 100.0
)

// Indicator scores one aspect of a snapshot. Score output is clamped to
// [0, Max] before summing.
type Indicator struct {
	Max   float64
	Score func(models.MarketSnapshot) float64
}

// ScoreTable is keyed by indicator name.
type ScoreTable map[string]Indicator

// Breakdown holds each indicator's clamped contribution.
type Breakdown map[string]float64

// DefaultScoreTable's maxima sum to MaxScore.
func DefaultScoreTable() ScoreTable {
	return ScoreTable{
		"price_momentum": {Max: 30, Score: func(s models.MarketSnapshot) float64 {
			return s.PriceChange24hPct / 2
		}},
		"volume_liquidity_ratio": {Max: 25, Score: func(s models.MarketSnapshot) float64 {
			if s.LiquidityUSD <= 0 {
				return 0
			}
			return s.Volume24h / s.LiquidityUSD * 10
		}},
		"liquidity_depth": {Max: 20, Score: func(s models.MarketSnapshot) float64 {
			if s.LiquidityUSD <= 1 {
				return 0
			}
			// $10k scores 4, $1M scores 12.
			return (math.Log10(s.LiquidityUSD) - 3) * 4
		}},
		"holder_base": {Max: 15, Score: func(s models.MarketSnapshot) float64 {
			return float64(s.HolderCount) / 100
		}},
		"organic_activity": {Max: 10, Score: func(s models.MarketSnapshot) float64 {
			return s.OrganicScore * 10
		}},
	}
}

// Score sums every indicator's clamped contribution and clamps the total to
// [0, MaxScore].
func (t ScoreTable) Score(s models.MarketSnapshot) (float64, Breakdown) {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make(Breakdown, len(t))
	total := 0.0
	for _, name := range names {
		ind := t[name]
		v := clamp(ind.Score(s), 0, ind.Max)
		if math.IsNaN(v) {
			v = 0
		}
		parts[name] = v
		total += v
	}
	return clamp(total, 0, MaxScore), parts
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
