package models

import "time"

type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

func (t SignalType) Valid() bool {
	return t == SignalBuy || t == SignalSell
}

type SignalSource string

const (
	SourcePrediction SignalSource = "prediction"
	SourceTechnical  SignalSource = "technical"
	SourceSentiment  SignalSource = "sentiment"
	SourceMonitor    SignalSource = "position_monitor"
	SourceManual     SignalSource = "manual"
)

// Signal is a trade candidate. Amount is in token units.
type Signal struct {
	TokenAddress string       `json:"tokenAddress"`
	Type         SignalType   `json:"type"`
	Confidence   float64      `json:"confidence"`
	Amount       float64      `json:"amount"`
	Reason       string       `json:"reason"`
	Source       SignalSource `json:"source"`
	CreatedAt    time.Time    `json:"createdAt"`
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}
