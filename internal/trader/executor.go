package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-signals/internal/apperr"
	"github.com/kjannette/trahn-signals/internal/clock"
	"github.com/kjannette/trahn-signals/internal/models"
	"github.com/kjannette/trahn-signals/internal/observability"
	"github.com/kjannette/trahn-signals/internal/risk"
	"github.com/kjannette/trahn-signals/internal/signals"
)

const persistTimeout = 5 * time.Second

type ResultStatus string

const (
	StatusExecuted ResultStatus = "executed"
	StatusRejected ResultStatus = "rejected"
	StatusFailed   ResultStatus = "failed"
)

// Result describes what happened to one signal. Record is set whenever a
// trade was attempted against a quote; Position is the opened or closed
// position on success.
type Result struct {
	Status   ResultStatus
	Signal   models.Signal
	Record   *models.TradeRecord
	Position *models.Position
	Err      error
}

func (r Result) Executed() bool { return r.Status == StatusExecuted }

type ExecutorConfig struct {
	EnableAutoTrading bool
	QuoteAsset        string
	MaxSlippagePct    float64
	StopLossPct       float64
	TakeProfitPct     float64
	Paper             bool
}

type ExecutorDeps struct {
	Market    MarketDataProvider
	Quotes    QuoteService
	Venue     ExecutionVenue
	Guardian  *risk.Guardian
	Journal   *Journal
	Book      *Book
	Trades    TradeStore
	Positions PositionStore
	Notifier  Notifier
	Clock     clock.Clock
	Metrics   *observability.Metrics
	Log       *logrus.Entry
}

// Executor runs the trade pipeline: gate, quote, submit, record, and open or
// close a position.
type Executor struct {
	cfg ExecutorConfig
	ExecutorDeps
}

func NewExecutor(cfg ExecutorConfig, d ExecutorDeps) *Executor {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Journal == nil {
		d.Journal = NewJournal()
	}
	if d.Book == nil {
		d.Book = NewBook()
	}
	if d.Log == nil {
		d.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Executor{cfg: cfg, ExecutorDeps: d}
}

// Execute runs a signal through the pipeline. A SELL closes the oldest open
// position for the token as CLOSED_MANUAL.
func (e *Executor) Execute(ctx context.Context, sig models.Signal) Result {
	if err := e.gate(sig); err != nil {
		return e.reject(sig, err)
	}

	if sig.Type == models.SignalBuy {
		return e.buy(ctx, sig)
	}

	pos, ok := e.Book.ClaimOldestFor(sig.TokenAddress)
	if !ok {
		return e.reject(sig, apperr.Newf(apperr.KindRejected, "sell", "no open position for %s", sig.TokenAddress))
	}
	defer e.Book.Unclaim(pos.ID)
	return e.sell(ctx, sig, pos, models.PositionClosedManual)
}

// ClosePosition sells a position the caller has already claimed. Cooldown
// and circuit breaker do not apply; the auto-trading flag and validation do.
func (e *Executor) ClosePosition(ctx context.Context, pos models.Position, status models.PositionStatus, price float64) Result {
	sig := models.Signal{
		TokenAddress: pos.TokenAddress,
		Type:         models.SignalSell,
		Confidence:   1,
		Amount:       pos.Amount,
		Source:       models.SourceMonitor,
		Reason:       fmt.Sprintf("%s at %.8g (entry %.8g)", status, price, pos.EntryPrice),
		CreatedAt:    e.Clock.Now(),
	}
	if err := e.gate(sig); err != nil {
		return e.reject(sig, err)
	}
	return e.sell(ctx, sig, pos, status)
}

func (e *Executor) gate(sig models.Signal) error {
	if !e.cfg.EnableAutoTrading {
		return apperr.Newf(apperr.KindRejected, "execute", "auto trading disabled")
	}
	return signals.Validate(sig)
}

func (e *Executor) buy(ctx context.Context, sig models.Signal) Result {
	log := e.Log.WithFields(logrus.Fields{"token": sig.TokenAddress, "type": sig.Type})

	snap, err := e.Market.GetMarketSnapshot(ctx, sig.TokenAddress)
	if err != nil {
		log.WithError(err).WithField("kind", apperr.KindOf(err)).Warn("market snapshot failed")
		return Result{Status: StatusFailed, Signal: sig, Err: fmt.Errorf("market snapshot: %w", err)}
	}

	spend := decimal.NewFromFloat(sig.Amount).Mul(decimal.NewFromFloat(snap.Price)).InexactFloat64()

	if e.Guardian != nil {
		if capped := e.Guardian.CapSpend(spend); capped < spend {
			log.WithFields(logrus.Fields{"spend": spend, "capped": capped}).Debug("spend capped at max trade size")
			spend = capped
		}
		if err := e.Guardian.PreTradeCheck(snap, spend); err != nil {
			return e.reject(sig, err)
		}
		release, err := e.Guardian.Reserve(sig.TokenAddress)
		if err != nil {
			return e.reject(sig, err)
		}
		defer release()
	}

	q, swap, err := e.trade(ctx, e.cfg.QuoteAsset, sig.TokenAddress, spend)
	rec := e.record(ctx, sig, q, swap, err)
	if err != nil {
		return e.fail(sig, rec, err)
	}

	pos := e.openPosition(sig, rec, spend, swap.ActualOutput)
	e.Book.Open(pos)
	e.persistPosition(ctx, pos)
	e.Metrics.SetOpenPositions(e.Book.OpenCount())

	log.WithFields(logrus.Fields{
		"trade_id":    rec.ID,
		"position_id": pos.ID,
		"entry":       pos.EntryPrice,
		"stop_loss":   pos.StopLossPrice,
		"take_profit": pos.TakeProfitPrice,
		"slippage":    rec.SlippagePct,
	}).Info("position opened")
	e.notify("BUY %s: %.6g tokens @ %.8g (SL %.8g / TP %.8g)%s",
		short(sig.TokenAddress), pos.Amount, pos.EntryPrice, pos.StopLossPrice, pos.TakeProfitPrice, e.paperTag())

	return Result{Status: StatusExecuted, Signal: sig, Record: &rec, Position: &pos}
}

func (e *Executor) sell(ctx context.Context, sig models.Signal, pos models.Position, status models.PositionStatus) Result {
	log := e.Log.WithFields(logrus.Fields{"token": sig.TokenAddress, "type": sig.Type, "position_id": pos.ID})

	q, swap, err := e.trade(ctx, sig.TokenAddress, e.cfg.QuoteAsset, pos.Amount)
	rec := e.record(ctx, sig, q, swap, err)
	if err != nil {
		return e.fail(sig, rec, err)
	}

	exit := decimal.NewFromFloat(swap.ActualOutput).Div(decimal.NewFromFloat(pos.Amount)).InexactFloat64()
	closed, ok := e.Book.Close(pos.ID, status, exit, rec.ID, rec.Timestamp)
	if !ok {
		// The swap went through but the position vanished underneath us.
		log.WithField("trade_id", rec.ID).Error("sold position no longer open")
		return Result{Status: StatusExecuted, Signal: sig, Record: &rec}
	}
	e.persistPosition(ctx, closed)
	e.Metrics.SetOpenPositions(e.Book.OpenCount())
	e.Metrics.RecordPositionClosed(string(status))

	log.WithFields(logrus.Fields{
		"trade_id": rec.ID,
		"status":   status,
		"entry":    pos.EntryPrice,
		"exit":     exit,
	}).Info("position closed")
	e.notify("SELL %s (%s): %.6g tokens @ %.8g, entry %.8g%s",
		short(sig.TokenAddress), status, pos.Amount, exit, pos.EntryPrice, e.paperTag())

	return Result{Status: StatusExecuted, Signal: sig, Record: &rec, Position: &closed}
}

// trade quotes and submits one swap. A quote whose price impact exceeds
// MaxSlippagePct is treated as unavailable.
func (e *Executor) trade(ctx context.Context, in, out string, amount float64) (*models.Quote, models.SwapResult, error) {
	q, err := e.Quotes.GetQuote(ctx, in, out, amount)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.New(apperr.KindQuoteUnavailable, "quote", err)
		}
		return nil, models.SwapResult{}, err
	}
	if e.cfg.MaxSlippagePct > 0 && q.PriceImpactPct > e.cfg.MaxSlippagePct {
		return &q, models.SwapResult{}, apperr.Newf(apperr.KindQuoteUnavailable, "quote",
			"price impact %.2f%% exceeds max slippage %.2f%%", q.PriceImpactPct, e.cfg.MaxSlippagePct)
	}

	swap, err := e.Venue.SubmitSwap(ctx, q)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.New(apperr.KindExecution, "swap", err)
		}
		return &q, models.SwapResult{}, err
	}
	if !(swap.ActualOutput > 0) {
		return &q, swap, apperr.Newf(apperr.KindExecution, "swap", "venue reported output %v", swap.ActualOutput)
	}
	return &q, swap, nil
}

// record appends the attempt to the journal whatever the outcome.
func (e *Executor) record(ctx context.Context, sig models.Signal, q *models.Quote, swap models.SwapResult, err error) models.TradeRecord {
	rec := models.TradeRecord{
		ID:           uuid.NewString(),
		TokenAddress: sig.TokenAddress,
		Signal:       sig,
		Quote:        q,
		Status:       models.TradeCompleted,
		TxID:         swap.TxID,
		IsPaperTrade: e.cfg.Paper,
		Timestamp:    e.Clock.Now(),
	}
	if err != nil {
		rec.Status = models.TradeFailed
		rec.Error = err.Error()
		rec.ErrorKind = string(apperr.KindOf(err))
	} else {
		rec.ActualOutput = swap.ActualOutput
		rec.SlippagePct = slippagePct(q.ExpectedOutput, swap.ActualOutput)
	}

	e.Journal.Append(rec)
	e.Metrics.RecordTrade(string(sig.Type), string(rec.Status), rec.SlippagePct)
	if e.Trades != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if perr := e.Trades.SaveTrade(pctx, rec); perr != nil {
			e.Log.WithError(perr).WithField("trade_id", rec.ID).Error("persist trade failed")
		}
	}
	return rec
}

func (e *Executor) openPosition(sig models.Signal, rec models.TradeRecord, spent, received float64) models.Position {
	entry := decimal.NewFromFloat(spent).Div(decimal.NewFromFloat(received))
	one := decimal.NewFromInt(1)
	sl := entry.Mul(one.Sub(decimal.NewFromFloat(e.cfg.StopLossPct)))
	tp := entry.Mul(one.Add(decimal.NewFromFloat(e.cfg.TakeProfitPct)))

	return models.Position{
		ID:              uuid.NewString(),
		TokenAddress:    sig.TokenAddress,
		EntryPrice:      entry.InexactFloat64(),
		Amount:          received,
		StopLossPrice:   sl.InexactFloat64(),
		TakeProfitPrice: tp.InexactFloat64(),
		Status:          models.PositionOpen,
		OpenedAt:        rec.Timestamp,
		EntryTradeID:    rec.ID,
	}
}

func (e *Executor) persistPosition(ctx context.Context, p models.Position) {
	if e.Positions == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := e.Positions.SavePosition(pctx, p); err != nil {
		e.Log.WithError(err).WithField("position_id", p.ID).Error("persist position failed")
	}
}

func (e *Executor) reject(sig models.Signal, err error) Result {
	kind := apperr.KindOf(err)
	e.Metrics.RecordRejection(string(kind))
	e.Log.WithFields(logrus.Fields{
		"token":  sig.TokenAddress,
		"type":   sig.Type,
		"source": sig.Source,
		"kind":   kind,
	}).Info("signal rejected: " + err.Error())
	return Result{Status: StatusRejected, Signal: sig, Err: err}
}

func (e *Executor) fail(sig models.Signal, rec models.TradeRecord, err error) Result {
	e.Log.WithFields(logrus.Fields{
		"token":    sig.TokenAddress,
		"type":     sig.Type,
		"trade_id": rec.ID,
		"kind":     apperr.KindOf(err),
	}).WithError(err).Warn("trade failed")
	if errors.Is(err, apperr.InsufficientFunds) {
		e.notify("%s %s failed: %v", sig.Type, short(sig.TokenAddress), err)
	}
	return Result{Status: StatusFailed, Signal: sig, Record: &rec, Err: err}
}

func (e *Executor) notify(format string, args ...any) {
	if e.Notifier == nil {
		return
	}
	e.Notifier.Send(fmt.Sprintf(format, args...))
}

func (e *Executor) paperTag() string {
	if e.cfg.Paper {
		return " [PAPER]"
	}
	return ""
}

// slippagePct is (expected - actual) / expected * 100, zero when nothing was
// expected.
func slippagePct(expected, actual float64) float64 {
	if expected <= 0 {
		return 0
	}
	exp := decimal.NewFromFloat(expected)
	return exp.Sub(decimal.NewFromFloat(actual)).Div(exp).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

func short(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
