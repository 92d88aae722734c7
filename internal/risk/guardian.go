package risk

import (
	"strings"
	"sync"

	"github.com/kjannette/trahn-signals/internal/apperr"
	"github.com/kjannette/trahn-signals/internal/models"
)

// PositionCounter abstracts the open-position book so Guardian can be
// tested without the executor.
type PositionCounter interface {
	OpenCount() int
	OpenCountFor(token string) int
}

// Limits holds the pre-trade thresholds from config.
// A zero MaxTradeSizeUSD or MinLiquidityUSD disables that check.
type Limits struct {
	MaxOpenPositions      int
	MaxTradeSizeUSD       float64
	MinLiquidityUSD       float64
	RiskLevel             models.RiskLevel
	AllowStackedPositions bool
}

type Guardian struct {
	limits    Limits
	positions PositionCounter
	verified  map[string]bool

	mu      sync.Mutex
	pending map[string]int
	total   int
}

func NewGuardian(limits Limits, positions PositionCounter, verifiedTokens []string) *Guardian {
	v := make(map[string]bool, len(verifiedTokens))
	for _, t := range verifiedTokens {
		v[strings.ToLower(t)] = true
	}
	return &Guardian{
		limits:    limits,
		positions: positions,
		verified:  v,
		pending:   make(map[string]int),
	}
}

// Verified reports whether the token is verified by the market feed or the
// configured allowlist.
func (g *Guardian) Verified(snap models.MarketSnapshot) bool {
	return snap.Verified || g.verified[strings.ToLower(snap.TokenAddress)]
}

// CapSpend limits a buy's quote-asset spend to MaxTradeSizeUSD. Signals are
// sized from an earlier price, so a fresh price can push the spend slightly
// over the cap.
func (g *Guardian) CapSpend(usd float64) float64 {
	if g.limits.MaxTradeSizeUSD > 0 && usd > g.limits.MaxTradeSizeUSD {
		return g.limits.MaxTradeSizeUSD
	}
	return usd
}

// PreTradeCheck validates per-token market constraints for a buy.
// Returns nil if the trade is allowed, a Rejected error if blocked.
func (g *Guardian) PreTradeCheck(snap models.MarketSnapshot, tradeUSDValue float64) error {
	if g.limits.MaxTradeSizeUSD > 0 && tradeUSDValue > g.limits.MaxTradeSizeUSD*1.000001 {
		return apperr.Newf(apperr.KindRejected, "risk", "trade size $%.2f exceeds max $%.2f",
			tradeUSDValue, g.limits.MaxTradeSizeUSD)
	}

	if g.limits.MinLiquidityUSD > 0 && snap.LiquidityUSD < g.limits.MinLiquidityUSD {
		return apperr.Newf(apperr.KindRejected, "risk", "liquidity $%.0f below minimum $%.0f",
			snap.LiquidityUSD, g.limits.MinLiquidityUSD)
	}

	if g.limits.RiskLevel == models.RiskLow && !g.Verified(snap) {
		return apperr.Newf(apperr.KindRejected, "risk", "token %s is not verified (risk level low)",
			snap.TokenAddress)
	}

	return nil
}

// Reserve claims an open-position slot for a buy in flight. The slot counts
// against MaxOpenPositions until release is called, which must happen once
// the position is either booked or abandoned.
func (g *Guardian) Reserve(token string) (release func(), err error) {
	key := strings.ToLower(token)

	g.mu.Lock()
	defer g.mu.Unlock()

	open := g.positions.OpenCount()
	if g.limits.MaxOpenPositions > 0 && open+g.total >= g.limits.MaxOpenPositions {
		return nil, apperr.Newf(apperr.KindRejected, "risk", "open positions %d (+%d pending) at max %d",
			open, g.total, g.limits.MaxOpenPositions)
	}

	if !g.limits.AllowStackedPositions {
		if g.positions.OpenCountFor(token) > 0 || g.pending[key] > 0 {
			return nil, apperr.Newf(apperr.KindRejected, "risk", "position already open for %s", token)
		}
	}

	g.pending[key]++
	g.total++

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			g.total--
			if g.pending[key]--; g.pending[key] <= 0 {
				delete(g.pending, key)
			}
		})
	}, nil
}
