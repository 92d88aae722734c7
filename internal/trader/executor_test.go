package trader

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/trahn-signals/internal/apperr"
	"github.com/kjannette/trahn-signals/internal/clock"
	"github.com/kjannette/trahn-signals/internal/models"
	"github.com/kjannette/trahn-signals/internal/risk"
)

type harness struct {
	exec    *Executor
	market  *fakeMarket
	quotes  *fakeQuotes
	venue   *fakeVenue
	book    *Book
	journal *Journal
	clock   *clock.Fake
	notes   *fakeNotifier
	store   *memStore
}

func newHarness(t *testing.T, tweak func(*ExecutorConfig, *risk.Limits)) *harness {
	t.Helper()
	cfg := ExecutorConfig{
		EnableAutoTrading: true,
		QuoteAsset:        usdc,
		MaxSlippagePct:    1,
		StopLossPct:       0.1,
		TakeProfitPct:     0.2,
	}
	limits := risk.Limits{
		MaxOpenPositions:      5,
		MaxTradeSizeUSD:       100,
		RiskLevel:             models.RiskMedium,
		AllowStackedPositions: true,
	}
	if tweak != nil {
		tweak(&cfg, &limits)
	}

	h := &harness{
		market:  newFakeMarket(),
		venue:   &fakeVenue{},
		book:    NewBook(),
		journal: NewJournal(),
		clock:   clock.NewFake(time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)),
		notes:   &fakeNotifier{},
		store:   newMemStore(),
	}
	h.quotes = &fakeQuotes{market: h.market}
	h.market.setPrice(tokenA, 100)
	h.market.setPrice(tokenB, 100)

	h.exec = NewExecutor(cfg, ExecutorDeps{
		Market:    h.market,
		Quotes:    h.quotes,
		Venue:     h.venue,
		Guardian:  risk.NewGuardian(limits, h.book, nil),
		Journal:   h.journal,
		Book:      h.book,
		Trades:    h.store,
		Positions: h.store,
		Notifier:  h.notes,
		Clock:     h.clock,
		Log:       nullLog(),
	})
	return h
}

func TestExecutor_BuyOpensPosition(t *testing.T) {
	h := newHarness(t, nil)

	res := h.exec.Execute(context.Background(), buySignal(tokenA))
	require.True(t, res.Executed(), "err: %v", res.Err)
	require.NotNil(t, res.Record)
	require.NotNil(t, res.Position)

	rec := res.Record
	assert.Equal(t, models.TradeCompleted, rec.Status)
	assert.Equal(t, 100.0, rec.InputAmount())
	assert.Equal(t, 1.0, rec.ActualOutput)
	assert.Equal(t, 0.0, rec.SlippagePct)
	assert.Equal(t, usdc, rec.Quote.InputAsset)
	assert.Equal(t, tokenA, rec.Quote.OutputAsset)

	pos := res.Position
	assert.Equal(t, models.PositionOpen, pos.Status)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, 90.0, pos.StopLossPrice)
	assert.Equal(t, 120.0, pos.TakeProfitPrice)
	assert.Equal(t, 1.0, pos.Amount)
	assert.Equal(t, rec.ID, pos.EntryTradeID)
	assert.Less(t, pos.StopLossPrice, pos.EntryPrice)
	assert.Less(t, pos.EntryPrice, pos.TakeProfitPrice)

	assert.Equal(t, 1, h.journal.Len())
	assert.Equal(t, 1, h.book.OpenCount())
	assert.Len(t, h.store.trades, 1)
	assert.Len(t, h.store.positions, 1)
	assert.Len(t, h.notes.messages(), 1)
}

func TestExecutor_AutoTradingDisabled(t *testing.T) {
	h := newHarness(t, func(c *ExecutorConfig, _ *risk.Limits) { c.EnableAutoTrading = false })

	res := h.exec.Execute(context.Background(), buySignal(tokenA))
	assert.Equal(t, StatusRejected, res.Status)
	assert.ErrorIs(t, res.Err, apperr.Rejected)
	assert.Zero(t, h.journal.Len())
	assert.Zero(t, h.venue.callCount())
}

func TestExecutor_RevalidatesSignal(t *testing.T) {
	h := newHarness(t, nil)

	sig := buySignal(tokenA)
	sig.Confidence = 0.59
	res := h.exec.Execute(context.Background(), sig)
	assert.Equal(t, StatusRejected, res.Status)
	assert.ErrorIs(t, res.Err, apperr.Validation)

	sig.Confidence = 0.6
	res = h.exec.Execute(context.Background(), sig)
	assert.True(t, res.Executed(), "err: %v", res.Err)
}

func TestExecutor_NaNConfidenceRejected(t *testing.T) {
	h := newHarness(t, nil)

	sig := buySignal(tokenA)
	sig.Confidence = math.NaN()
	res := h.exec.Execute(context.Background(), sig)
	assert.Equal(t, StatusRejected, res.Status)
	assert.ErrorIs(t, res.Err, apperr.Validation)
	assert.Zero(t, h.venue.callCount())
}

func TestExecutor_QuoteFailureRecorded(t *testing.T) {
	h := newHarness(t, nil)
	h.quotes.err = apperr.Newf(apperr.KindRateLimit, "quote", "429")

	res := h.exec.Execute(context.Background(), buySignal(tokenA))
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, apperr.RateLimit)
	require.NotNil(t, res.Record)
	assert.Equal(t, models.TradeFailed, res.Record.Status)
	assert.Equal(t, "rate_limit", res.Record.ErrorKind)
	assert.Nil(t, res.Record.Quote)
	assert.Nil(t, res.Position)

	assert.Equal(t, 1, h.journal.Len())
	assert.Zero(t, h.book.OpenCount())
	assert.Zero(t, h.venue.callCount())
}

func TestExecutor_PriceImpactAboveSlippage(t *testing.T) {
	h := newHarness(t, nil)
	h.quotes.impact = 2.5

	res := h.exec.Execute(context.Background(), buySignal(tokenA))
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, apperr.QuoteUnavailable)
	require.NotNil(t, res.Record.Quote)
	assert.Zero(t, h.venue.callCount())
	assert.Zero(t, h.book.OpenCount())
}

func TestExecutor_ExecutionFailureRecorded(t *testing.T) {
	h := newHarness(t, nil)
	h.venue.err = errors.New("execution reverted")

	res := h.exec.Execute(context.Background(), buySignal(tokenA))
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, apperr.Execution)
	assert.Equal(t, models.TradeFailed, res.Record.Status)
	assert.Equal(t, 1, h.venue.callCount(), "swaps are never retried")
	assert.Zero(t, h.book.OpenCount())

	trades := h.journal.Trades()
	require.Len(t, trades, 1)
	assert.Contains(t, trades[0].Error, "execution reverted")
}

func TestExecutor_InsufficientFundsNotifies(t *testing.T) {
	h := newHarness(t, nil)
	h.venue.err = apperr.Newf(apperr.KindInsufficientFunds, "swap", "balance 10 below 100")

	res := h.exec.Execute(context.Background(), buySignal(tokenA))
	assert.ErrorIs(t, res.Err, apperr.InsufficientFunds)
	assert.Len(t, h.notes.messages(), 1)
}

func TestExecutor_MaxOpenPositions(t *testing.T) {
	h := newHarness(t, func(_ *ExecutorConfig, l *risk.Limits) { l.MaxOpenPositions = 1 })

	require.True(t, h.exec.Execute(context.Background(), buySignal(tokenA)).Executed())
	res := h.exec.Execute(context.Background(), buySignal(tokenB))
	assert.Equal(t, StatusRejected, res.Status)
	assert.ErrorIs(t, res.Err, apperr.Rejected)
	assert.Equal(t, 1, h.journal.Len())
	assert.Equal(t, 1, h.book.OpenCount())
}

func TestExecutor_StackedPositions(t *testing.T) {
	stacked := newHarness(t, nil)
	require.True(t, stacked.exec.Execute(context.Background(), buySignal(tokenA)).Executed())
	require.True(t, stacked.exec.Execute(context.Background(), buySignal(tokenA)).Executed())
	assert.Equal(t, 2, stacked.book.OpenCountFor(tokenA))

	single := newHarness(t, func(_ *ExecutorConfig, l *risk.Limits) { l.AllowStackedPositions = false })
	require.True(t, single.exec.Execute(context.Background(), buySignal(tokenA)).Executed())
	res := single.exec.Execute(context.Background(), buySignal(tokenA))
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, 1, single.book.OpenCountFor(tokenA))
}

func TestExecutor_LowLiquidityRejected(t *testing.T) {
	h := newHarness(t, func(_ *ExecutorConfig, l *risk.Limits) { l.MinLiquidityUSD = 2_000_000 })

	res := h.exec.Execute(context.Background(), buySignal(tokenA))
	assert.Equal(t, StatusRejected, res.Status)
	assert.Zero(t, h.journal.Len())
}

func TestExecutor_PriceMoveAfterSizingIsCapped(t *testing.T) {
	h := newHarness(t, nil)
	// Sized at 100 for the $100 cap, executed at 101.
	h.market.setPrice(tokenA, 101)

	res := h.exec.Execute(context.Background(), buySignal(tokenA))
	require.True(t, res.Executed(), "err: %v", res.Err)
	assert.Equal(t, 100.0, res.Record.InputAmount())
	assert.InDelta(t, 100.0/101.0, res.Position.Amount, 1e-9)
	assert.InDelta(t, 101.0, res.Position.EntryPrice, 1e-9)
}

func TestExecutor_MarketFailureIsNotRecorded(t *testing.T) {
	h := newHarness(t, nil)
	h.market.setErr(tokenA, apperr.Newf(apperr.KindTimeout, "snapshot", "deadline"))

	res := h.exec.Execute(context.Background(), buySignal(tokenA))
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, apperr.Timeout)
	assert.Nil(t, res.Record)
	assert.Zero(t, h.journal.Len())
}

func TestExecutor_SellClosesOldestAsManual(t *testing.T) {
	h := newHarness(t, nil)

	first := h.exec.Execute(context.Background(), buySignal(tokenA))
	require.True(t, first.Executed())
	h.clock.Advance(time.Minute)
	second := h.exec.Execute(context.Background(), buySignal(tokenA))
	require.True(t, second.Executed())

	h.market.setPrice(tokenA, 110)
	sell := buySignal(tokenA)
	sell.Type = models.SignalSell
	sell.Amount = 5 // ignored; the position amount is sold

	res := h.exec.Execute(context.Background(), sell)
	require.True(t, res.Executed(), "err: %v", res.Err)
	require.NotNil(t, res.Position)
	assert.Equal(t, first.Position.ID, res.Position.ID)
	assert.Equal(t, models.PositionClosedManual, res.Position.Status)
	require.NotNil(t, res.Position.ExitPrice)
	assert.InDelta(t, 110.0, *res.Position.ExitPrice, 1e-9)
	assert.Equal(t, res.Record.ID, res.Position.ExitTradeID)
	assert.Equal(t, 1.0, res.Record.InputAmount())
	assert.Equal(t, tokenA, res.Record.Quote.InputAsset)
	assert.Equal(t, usdc, res.Record.Quote.OutputAsset)

	open := h.book.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, second.Position.ID, open[0].ID)
	assert.Len(t, h.book.ClosedPositions(), 1)
	assert.Equal(t, 3, h.journal.Len())
}

func TestExecutor_SellWithoutPosition(t *testing.T) {
	h := newHarness(t, nil)
	sell := buySignal(tokenA)
	sell.Type = models.SignalSell

	res := h.exec.Execute(context.Background(), sell)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Zero(t, h.venue.callCount())
}

func TestExecutor_FailedSellKeepsPositionOpen(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.exec.Execute(context.Background(), buySignal(tokenA)).Executed())

	h.venue.err = errors.New("reverted")
	sell := buySignal(tokenA)
	sell.Type = models.SignalSell
	res := h.exec.Execute(context.Background(), sell)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 1, h.book.OpenCount())

	// the claim is released so a later sell can retry
	_, ok := h.book.ClaimOldestFor(tokenA)
	assert.True(t, ok)
}

func TestJournal_ReturnsCopies(t *testing.T) {
	j := NewJournal()
	j.Append(models.TradeRecord{ID: "t1", Quote: &models.Quote{InputAmount: 100, Routes: []string{"a", "b"}}})

	got := j.Trades()
	got[0].ID = "mutated"
	got[0].Quote.InputAmount = 1
	got[0].Quote.Routes[0] = "x"

	again := j.Trades()
	assert.Equal(t, "t1", again[0].ID)
	assert.Equal(t, 100.0, again[0].Quote.InputAmount)
	assert.Equal(t, "a", again[0].Quote.Routes[0])
}

func TestSlippagePct(t *testing.T) {
	assert.InDelta(t, 2.0, slippagePct(100, 98), 1e-9)
	assert.InDelta(t, -1.0, slippagePct(100, 101), 1e-9)
	assert.Equal(t, 0.0, slippagePct(0, 5))
}
