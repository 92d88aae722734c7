package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosition_Trigger(t *testing.T) {
	p := Position{EntryPrice: 100, StopLossPrice: 90, TakeProfitPrice: 120, Status: PositionOpen}

	cases := []struct {
		price  float64
		want   PositionStatus
		closes bool
	}{
		{89, PositionClosedStopLoss, true},
		{90, PositionClosedStopLoss, true},
		{100, PositionOpen, false},
		{119.99, PositionOpen, false},
		{120, PositionClosedTakeProfit, true},
		{121, PositionClosedTakeProfit, true},
	}
	for _, c := range cases {
		got, closes := p.Trigger(c.price)
		assert.Equal(t, c.want, got, "price %v", c.price)
		assert.Equal(t, c.closes, closes, "price %v", c.price)
	}
}

func TestPositionStatus_Closed(t *testing.T) {
	assert.False(t, PositionOpen.Closed())
	assert.True(t, PositionClosedManual.Closed())
	assert.True(t, PositionClosedStopLoss.Closed())
	assert.True(t, PositionClosedTakeProfit.Closed())
}
