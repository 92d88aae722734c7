package models

type AnalysisKind string

const (
	KindPrediction AnalysisKind = "prediction"
	KindTechnical  AnalysisKind = "technical"
	KindSentiment  AnalysisKind = "sentiment"
)

// Analysis is one of PredictionAnalysis, TechnicalSignal or
// SentimentAnalysis. The unexported marker keeps the set closed.
type Analysis interface {
	Kind() AnalysisKind
	analysis()
}

type Trend string

const (
	TrendUp       Trend = "up"
	TrendDown     Trend = "down"
	TrendSideways Trend = "sideways"
)

type PredictionAnalysis struct {
	Trend      Trend   `json:"trend"`
	Confidence float64 `json:"confidence"`
	ChangePct  float64 `json:"changePct"`
}

func (PredictionAnalysis) Kind() AnalysisKind { return KindPrediction }
func (PredictionAnalysis) analysis()          {}

// TechnicalSignal is a single indicator's opinion. Type is BUY, SELL or
// empty for hold.
type TechnicalSignal struct {
	Indicator  string     `json:"indicator"`
	Type       SignalType `json:"type"`
	Confidence float64    `json:"confidence"`
	Rationale  string     `json:"rationale"`
}

func (TechnicalSignal) Kind() AnalysisKind { return KindTechnical }
func (TechnicalSignal) analysis()          {}

type Recommendation string

const (
	StrongBuy  Recommendation = "STRONG_BUY"
	Buy        Recommendation = "BUY"
	Neutral    Recommendation = "NEUTRAL"
	Sell       Recommendation = "SELL"
	StrongSell Recommendation = "STRONG_SELL"
)

type SentimentAnalysis struct {
	Score          float64        `json:"score"`
	Recommendation Recommendation `json:"recommendation"`
}

func (SentimentAnalysis) Kind() AnalysisKind { return KindSentiment }
func (SentimentAnalysis) analysis()          {}

// AnalysisBundle groups every analysis produced for one token.
type AnalysisBundle struct {
	TokenAddress string     `json:"tokenAddress"`
	TokenPrice   float64    `json:"tokenPrice"`
	Analyses     []Analysis `json:"-"`
}
