package trader

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-signals/internal/apperr"
	"github.com/kjannette/trahn-signals/internal/models"
)

// PaperVenue fills swaps against simulated balances. Each fill loses a random
// slippage in [0, maxSlippagePct] of the quoted output.
type PaperVenue struct {
	mu             sync.Mutex
	balances       map[string]float64
	maxSlippagePct float64
	random         func() float64
	fills          int
	log            *logrus.Entry
}

type PaperOption func(*PaperVenue)

// WithRandom replaces the slippage source; r must return values in [0, 1).
func WithRandom(r func() float64) PaperOption {
	return func(v *PaperVenue) { v.random = r }
}

func NewPaperVenue(quoteAsset string, initialQuote, maxSlippagePct float64, log *logrus.Entry, opts ...PaperOption) *PaperVenue {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	v := &PaperVenue{
		balances:       map[string]float64{strings.ToLower(quoteAsset): initialQuote},
		maxSlippagePct: maxSlippagePct,
		random:         rand.Float64,
		log:            log,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log.WithFields(logrus.Fields{
		"quote_asset": quoteAsset,
		"balance":     initialQuote,
	}).Info("starting paper wallet")
	return v
}

func (v *PaperVenue) SubmitSwap(ctx context.Context, q models.Quote) (models.SwapResult, error) {
	if err := ctx.Err(); err != nil {
		return models.SwapResult{}, apperr.New(apperr.KindTimeout, "paper swap", err)
	}

	in, out := strings.ToLower(q.InputAsset), strings.ToLower(q.OutputAsset)

	v.mu.Lock()
	defer v.mu.Unlock()

	have := decimal.NewFromFloat(v.balances[in])
	need := decimal.NewFromFloat(q.InputAmount)
	if have.LessThan(need) {
		return models.SwapResult{}, apperr.Newf(apperr.KindInsufficientFunds, "paper swap",
			"have %s %s, need %s", have.String(), q.InputAsset, need.String())
	}

	slip := decimal.NewFromFloat(v.random() * v.maxSlippagePct / 100)
	actual := decimal.NewFromFloat(q.ExpectedOutput).Mul(decimal.NewFromInt(1).Sub(slip))

	v.balances[in] = have.Sub(need).InexactFloat64()
	v.balances[out] = decimal.NewFromFloat(v.balances[out]).Add(actual).InexactFloat64()
	v.fills++

	res := models.SwapResult{TxID: "paper-" + uuid.NewString(), ActualOutput: actual.InexactFloat64()}
	v.log.WithFields(logrus.Fields{
		"tx":       res.TxID,
		"in":       q.InputAsset,
		"out":      q.OutputAsset,
		"amount":   q.InputAmount,
		"received": res.ActualOutput,
	}).Debug("paper fill")
	return res, nil
}

func (v *PaperVenue) Balance(asset string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[strings.ToLower(asset)]
}

// Balances returns a copy keyed by lowercased asset address.
func (v *PaperVenue) Balances() map[string]float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]float64, len(v.balances))
	for k, b := range v.balances {
		out[k] = b
	}
	return out
}

func (v *PaperVenue) Fills() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fills
}

// PaperQuotes prices swaps between the quote asset and a token from market
// snapshots, with impact estimated against half the pool's liquidity.
type PaperQuotes struct {
	quoteAsset string
	market     MarketDataProvider
}

func NewPaperQuotes(quoteAsset string, market MarketDataProvider) *PaperQuotes {
	return &PaperQuotes{quoteAsset: quoteAsset, market: market}
}

func (p *PaperQuotes) GetQuote(ctx context.Context, inputAsset, outputAsset string, amount float64) (models.Quote, error) {
	buying := strings.EqualFold(inputAsset, p.quoteAsset)
	selling := strings.EqualFold(outputAsset, p.quoteAsset)
	if buying == selling {
		return models.Quote{}, apperr.Newf(apperr.KindValidation, "paper quote",
			"exactly one side must be %s", p.quoteAsset)
	}

	token := outputAsset
	if selling {
		token = inputAsset
	}
	snap, err := p.market.GetMarketSnapshot(ctx, token)
	if err != nil {
		return models.Quote{}, err
	}
	if snap.Price <= 0 {
		return models.Quote{}, apperr.Newf(apperr.KindQuoteUnavailable, "paper quote", "no price for %s", token)
	}

	price := decimal.NewFromFloat(snap.Price)
	amt := decimal.NewFromFloat(amount)

	value, raw := amt, amt.Div(price)
	if selling {
		value, raw = amt.Mul(price), amt.Mul(price)
	}

	impact := decimal.Zero
	if snap.LiquidityUSD > 0 {
		depth := decimal.NewFromFloat(snap.LiquidityUSD / 2)
		impact = value.Div(depth.Add(value)).Mul(decimal.NewFromInt(100))
	}
	expected := raw.Mul(decimal.NewFromInt(1).Sub(impact.Div(decimal.NewFromInt(100))))

	return models.Quote{
		InputAsset:     inputAsset,
		OutputAsset:    outputAsset,
		InputAmount:    amount,
		ExpectedOutput: expected.InexactFloat64(),
		PriceImpactPct: impact.InexactFloat64(),
		Routes:         []string{inputAsset, outputAsset},
	}, nil
}
