package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/kjannette/trahn-signals/internal/models"
)

const (
	DefaultDumpChangePct  = 15.0
	DefaultMomentumWeight = 0.5
)

type Config struct {
	PumpScoreThreshold float64
	DumpChangePct      float64
	MomentumWeight     float64
}

func DefaultConfig() Config {
	return Config{
		PumpScoreThreshold: PumpScoreThreshold,
		DumpChangePct:      DefaultDumpChangePct,
		MomentumWeight:     DefaultMomentumWeight,
	}
}

// SnapshotAnalyzer derives analyses from a single market snapshot.
type SnapshotAnalyzer struct {
	table ScoreTable
	cfg   Config
}

func NewSnapshotAnalyzer(table ScoreTable, cfg Config) *SnapshotAnalyzer {
	if table == nil {
		table = DefaultScoreTable()
	}
	return &SnapshotAnalyzer{table: table, cfg: cfg}
}

func (a *SnapshotAnalyzer) Analyze(_ context.Context, token string, snap models.MarketSnapshot) ([]models.Analysis, error) {
	if snap.Price <= 0 {
		return nil, fmt.Errorf("analyze %s: no price", token)
	}

	score, _ := a.table.Score(snap)
	var out []models.Analysis

	out = append(out, a.predict(snap))

	if score > a.cfg.PumpScoreThreshold {
		out = append(out, models.TechnicalSignal{
			Indicator:  "pump_score",
			Type:       models.SignalBuy,
			Confidence: score / MaxScore,
			Rationale:  fmt.Sprintf("composite score %.1f above %.0f", score, a.cfg.PumpScoreThreshold),
		})
	}

	if snap.PriceChange24hPct <= -a.cfg.DumpChangePct {
		out = append(out, models.TechnicalSignal{
			Indicator:  "drawdown",
			Type:       models.SignalSell,
			Confidence: clamp(0.5+math.Abs(snap.PriceChange24hPct)/100, 0, 1),
			Rationale:  fmt.Sprintf("24h change %.1f%%", snap.PriceChange24hPct),
		})
	}

	return out, nil
}

// predict extrapolates a damped share of the last 24h move.
func (a *SnapshotAnalyzer) predict(snap models.MarketSnapshot) models.PredictionAnalysis {
	change := snap.PriceChange24hPct * a.cfg.MomentumWeight
	trend := models.TrendSideways
	switch {
	case change > 0:
		trend = models.TrendUp
	case change < 0:
		trend = models.TrendDown
	}
	return models.PredictionAnalysis{
		Trend:      trend,
		ChangePct:  change,
		Confidence: clamp(snap.OrganicScore, 0, 1),
	}
}

// Bundle runs Analyze and wraps the result for the signal generator.
func (a *SnapshotAnalyzer) Bundle(ctx context.Context, token string, snap models.MarketSnapshot) (models.AnalysisBundle, error) {
	analyses, err := a.Analyze(ctx, token, snap)
	if err != nil {
		return models.AnalysisBundle{}, err
	}
	return models.AnalysisBundle{TokenAddress: token, TokenPrice: snap.Price, Analyses: analyses}, nil
}
