package models

import "time"

type TradeStatus string

const (
	TradeCompleted TradeStatus = "completed"
	TradeFailed    TradeStatus = "failed"
)

// TradeRecord is immutable once appended to the journal.
type TradeRecord struct {
	ID           string      `json:"id"`
	TokenAddress string      `json:"tokenAddress"`
	Signal       Signal      `json:"signal"`
	Quote        *Quote      `json:"quote,omitempty"`
	ActualOutput float64     `json:"actualOutput"`
	SlippagePct  float64     `json:"slippagePct"`
	Status       TradeStatus `json:"status"`
	TxID         string      `json:"txId,omitempty"`
	Error        string      `json:"error,omitempty"`
	ErrorKind    string      `json:"errorKind,omitempty"`
	IsPaperTrade bool        `json:"isPaperTrade"`
	Timestamp    time.Time   `json:"timestamp"`
}

// InputAmount is the quoted input, or zero when no quote was obtained.
func (r TradeRecord) InputAmount() float64 {
	if r.Quote == nil {
		return 0
	}
	return r.Quote.InputAmount
}

type PerformanceStats struct {
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinRate       float64 `json:"winRate"`
	TotalProfit   float64 `json:"totalProfit"`
}
