package models

import "time"

type PositionStatus string

const (
	PositionOpen             PositionStatus = "OPEN"
	PositionClosedStopLoss   PositionStatus = "CLOSED_STOP_LOSS"
	PositionClosedTakeProfit PositionStatus = "CLOSED_TAKE_PROFIT"
	PositionClosedManual     PositionStatus = "CLOSED_MANUAL"
)

func (s PositionStatus) Closed() bool {
	return s == PositionClosedStopLoss || s == PositionClosedTakeProfit || s == PositionClosedManual
}

type Position struct {
	ID              string         `json:"id"`
	TokenAddress    string         `json:"tokenAddress"`
	EntryPrice      float64        `json:"entryPrice"`
	Amount          float64        `json:"amount"`
	StopLossPrice   float64        `json:"stopLossPrice"`
	TakeProfitPrice float64        `json:"takeProfitPrice"`
	Status          PositionStatus `json:"status"`
	OpenedAt        time.Time      `json:"openedAt"`
	ClosedAt        *time.Time     `json:"closedAt,omitempty"`
	ExitPrice       *float64       `json:"exitPrice,omitempty"`
	EntryTradeID    string         `json:"entryTradeId"`
	ExitTradeID     string         `json:"exitTradeId,omitempty"`
}

// Trigger returns the terminal status price would move the position to, if
// any. Stop-loss wins when both bounds are crossed.
func (p Position) Trigger(price float64) (PositionStatus, bool) {
	switch {
	case price <= p.StopLossPrice:
		return PositionClosedStopLoss, true
	case price >= p.TakeProfitPrice:
		return PositionClosedTakeProfit, true
	}
	return PositionOpen, false
}
