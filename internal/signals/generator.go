// Package signals turns analyses into trade candidates and decides which
// candidates may proceed to execution.
package signals

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-signals/internal/clock"
	"github.com/kjannette/trahn-signals/internal/models"
	"github.com/kjannette/trahn-signals/internal/observability"
)

const (
	DefaultMinAnalysisConfidence = 0.7
	DefaultMinMovePct            = 5.0
	DefaultMinSentimentScore     = 0.6
)

type Thresholds struct {
	MinAnalysisConfidence float64
	MinMovePct            float64
	MinSentimentScore     float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinAnalysisConfidence: DefaultMinAnalysisConfidence,
		MinMovePct:            DefaultMinMovePct,
		MinSentimentScore:     DefaultMinSentimentScore,
	}
}

type Generator struct {
	thresholds Thresholds
	sizer      Sizer
	clock      clock.Clock
	metrics    *observability.Metrics
	log        *logrus.Entry
}

func NewGenerator(th Thresholds, sizer Sizer, clk clock.Clock, m *observability.Metrics, log *logrus.Entry) *Generator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Generator{thresholds: th, sizer: sizer, clock: clk, metrics: m, log: log}
}

// Generate emits one Signal per qualifying analysis in the bundle.
func (g *Generator) Generate(b models.AnalysisBundle) []models.Signal {
	amount := g.sizer.ComputeTradeAmount(b.TokenPrice)
	now := g.clock.Now()

	var out []models.Signal
	for _, a := range b.Analyses {
		sig, ok := g.fromAnalysis(a)
		if !ok {
			continue
		}
		sig.TokenAddress = b.TokenAddress
		sig.Amount = amount
		sig.CreatedAt = now
		out = append(out, sig)

		g.metrics.RecordSignal(string(sig.Source), string(sig.Type))
		g.log.WithFields(logrus.Fields{
			"token":      b.TokenAddress,
			"type":       sig.Type,
			"source":     sig.Source,
			"confidence": sig.Confidence,
		}).Debug("signal generated")
	}
	return out
}

func (g *Generator) fromAnalysis(a models.Analysis) (models.Signal, bool) {
	switch a := a.(type) {
	case models.PredictionAnalysis:
		return g.fromPrediction(a)
	case models.TechnicalSignal:
		return g.fromTechnical(a)
	case models.SentimentAnalysis:
		return g.fromSentiment(a)
	default:
		g.log.WithField("kind", fmt.Sprintf("%T", a)).Warn("unknown analysis kind")
		return models.Signal{}, false
	}
}

func (g *Generator) fromPrediction(p models.PredictionAnalysis) (models.Signal, bool) {
	if p.Confidence <= g.thresholds.MinAnalysisConfidence {
		return models.Signal{}, false
	}
	if math.Abs(p.ChangePct) <= g.thresholds.MinMovePct {
		return models.Signal{}, false
	}
	typ := models.SignalBuy
	if p.ChangePct < 0 {
		typ = models.SignalSell
	}
	return models.Signal{
		Type:       typ,
		Confidence: p.Confidence,
		Source:     models.SourcePrediction,
		Reason:     fmt.Sprintf("predicted %s move of %.2f%%", p.Trend, p.ChangePct),
	}, true
}

func (g *Generator) fromTechnical(t models.TechnicalSignal) (models.Signal, bool) {
	if !t.Type.Valid() || t.Confidence <= g.thresholds.MinAnalysisConfidence {
		return models.Signal{}, false
	}
	reason := t.Rationale
	if t.Indicator != "" {
		reason = fmt.Sprintf("%s: %s", t.Indicator, t.Rationale)
	}
	return models.Signal{
		Type:       t.Type,
		Confidence: t.Confidence,
		Source:     models.SourceTechnical,
		Reason:     reason,
	}, true
}

func (g *Generator) fromSentiment(s models.SentimentAnalysis) (models.Signal, bool) {
	if s.Score <= g.thresholds.MinSentimentScore {
		return models.Signal{}, false
	}
	var typ models.SignalType
	switch s.Recommendation {
	case models.StrongBuy:
		typ = models.SignalBuy
	case models.StrongSell:
		typ = models.SignalSell
	default:
		return models.Signal{}, false
	}
	return models.Signal{
		Type:       typ,
		Confidence: s.Score,
		Source:     models.SourceSentiment,
		Reason:     fmt.Sprintf("sentiment %s (score %.2f)", s.Recommendation, s.Score),
	}, true
}
