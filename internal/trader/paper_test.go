package trader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/trahn-signals/internal/apperr"
	"github.com/kjannette/trahn-signals/internal/models"
)

func TestPaperVenue_FillsWithSlippage(t *testing.T) {
	v := NewPaperVenue(usdc, 1000, 1, nullLog(), WithRandom(func() float64 { return 0.5 }))

	res, err := v.SubmitSwap(context.Background(), models.Quote{
		InputAsset:     usdc,
		OutputAsset:    tokenA,
		InputAmount:    100,
		ExpectedOutput: 2,
	})
	require.NoError(t, err)
	assert.Contains(t, res.TxID, "paper-")
	assert.InDelta(t, 1.99, res.ActualOutput, 1e-9)

	assert.InDelta(t, 900, v.Balance(usdc), 1e-9)
	assert.InDelta(t, 1.99, v.Balance(tokenA), 1e-9)
	assert.Equal(t, 1, v.Fills())
	assert.Len(t, v.Balances(), 2)
}

func TestPaperVenue_SlippageWithinBounds(t *testing.T) {
	v := NewPaperVenue(usdc, 1e9, 0.5, nullLog())
	for i := 0; i < 50; i++ {
		res, err := v.SubmitSwap(context.Background(), models.Quote{
			InputAsset: usdc, OutputAsset: tokenA, InputAmount: 1, ExpectedOutput: 100,
		})
		require.NoError(t, err)
		assert.LessOrEqual(t, res.ActualOutput, 100.0)
		assert.GreaterOrEqual(t, res.ActualOutput, 99.5)
	}
}

func TestPaperVenue_InsufficientFunds(t *testing.T) {
	v := NewPaperVenue(usdc, 50, 0, nullLog())

	_, err := v.SubmitSwap(context.Background(), models.Quote{
		InputAsset: usdc, OutputAsset: tokenA, InputAmount: 100, ExpectedOutput: 1,
	})
	assert.ErrorIs(t, err, apperr.InsufficientFunds)
	assert.Equal(t, 50.0, v.Balance(usdc))

	_, err = v.SubmitSwap(context.Background(), models.Quote{
		InputAsset: tokenA, OutputAsset: usdc, InputAmount: 1, ExpectedOutput: 100,
	})
	assert.ErrorIs(t, err, apperr.InsufficientFunds, "no token balance to sell")
}

func TestPaperQuotes(t *testing.T) {
	m := newFakeMarket()
	m.setPrice(tokenA, 2)
	q := NewPaperQuotes(usdc, m)

	buy, err := q.GetQuote(context.Background(), usdc, tokenA, 100)
	require.NoError(t, err)
	// $100 against $500k of depth
	assert.InDelta(t, 100.0/500100*100, buy.PriceImpactPct, 1e-9)
	assert.Less(t, buy.ExpectedOutput, 50.0)
	assert.Greater(t, buy.ExpectedOutput, 49.9)
	assert.Equal(t, []string{usdc, tokenA}, buy.Routes)

	sell, err := q.GetQuote(context.Background(), tokenA, usdc, 10)
	require.NoError(t, err)
	assert.Less(t, sell.ExpectedOutput, 20.0)
	assert.Greater(t, sell.ExpectedOutput, 19.99)

	_, err = q.GetQuote(context.Background(), tokenA, tokenB, 1)
	assert.ErrorIs(t, err, apperr.Validation)

	_, err = q.GetQuote(context.Background(), usdc, tokenC, 1)
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestPaperRoundTripThroughExecutor(t *testing.T) {
	m := newFakeMarket()
	m.setPrice(tokenA, 100)
	venue := NewPaperVenue(usdc, 1000, 0, nullLog())
	book := NewBook()

	exec := NewExecutor(ExecutorConfig{
		EnableAutoTrading: true,
		QuoteAsset:        usdc,
		MaxSlippagePct:    1,
		StopLossPct:       0.1,
		TakeProfitPct:     0.2,
		Paper:             true,
	}, ExecutorDeps{Market: m, Quotes: NewPaperQuotes(usdc, m), Venue: venue, Book: book, Log: nullLog()})

	buy := exec.Execute(context.Background(), buySignal(tokenA))
	require.True(t, buy.Executed(), "err: %v", buy.Err)
	assert.True(t, buy.Record.IsPaperTrade)
	assert.InDelta(t, 900, venue.Balance(usdc), 1e-9)
	assert.InDelta(t, buy.Position.Amount, venue.Balance(tokenA), 1e-12)

	sell := buySignal(tokenA)
	sell.Type = models.SignalSell
	res := exec.Execute(context.Background(), sell)
	require.True(t, res.Executed(), "err: %v", res.Err)
	assert.Zero(t, book.OpenCount())
	assert.InDelta(t, 0, venue.Balance(tokenA), 1e-12)
}
