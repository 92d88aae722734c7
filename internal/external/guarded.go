package external

import (
	"context"
	"strings"
	"time"

	"github.com/kjannette/trahn-signals/internal/cache"
	"github.com/kjannette/trahn-signals/internal/models"
	"github.com/kjannette/trahn-signals/internal/ratelimit"
)

type SnapshotSource interface {
	GetMarketSnapshot(ctx context.Context, token string) (models.MarketSnapshot, error)
}

type QuoteSource interface {
	GetQuote(ctx context.Context, inputAsset, outputAsset string, amount float64) (models.Quote, error)
}

// GuardedMarket serves snapshots from cache, otherwise fetches through the
// shared limiter with bounded retries and a per-call timeout.
type GuardedMarket struct {
	inner    SnapshotSource
	limiter  *ratelimit.Limiter
	cache    *cache.Store[models.MarketSnapshot]
	attempts int
	timeout  time.Duration
}

func NewGuardedMarket(inner SnapshotSource, l *ratelimit.Limiter, c *cache.Store[models.MarketSnapshot], attempts int, timeout time.Duration) *GuardedMarket {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GuardedMarket{inner: inner, limiter: l, cache: c, attempts: attempts, timeout: timeout}
}

func (g *GuardedMarket) GetMarketSnapshot(ctx context.Context, token string) (models.MarketSnapshot, error) {
	key := strings.ToLower(token)
	load := func(ctx context.Context) (models.MarketSnapshot, error) {
		var snap models.MarketSnapshot
		err := ratelimit.Do(ctx, g.limiter, g.attempts, func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			var err error
			snap, err = g.inner.GetMarketSnapshot(cctx, token)
			return err
		})
		return snap, err
	}

	if g.cache == nil {
		return load(ctx)
	}
	snap, _, err := g.cache.GetOrLoad(ctx, key, load)
	return snap, err
}

// GuardedQuotes paces and retries quote requests. Quotes are never cached.
type GuardedQuotes struct {
	inner    QuoteSource
	limiter  *ratelimit.Limiter
	attempts int
	timeout  time.Duration
}

func NewGuardedQuotes(inner QuoteSource, l *ratelimit.Limiter, attempts int, timeout time.Duration) *GuardedQuotes {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GuardedQuotes{inner: inner, limiter: l, attempts: attempts, timeout: timeout}
}

func (g *GuardedQuotes) GetQuote(ctx context.Context, inputAsset, outputAsset string, amount float64) (models.Quote, error) {
	var q models.Quote
	err := ratelimit.Do(ctx, g.limiter, g.attempts, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		var err error
		q, err = g.inner.GetQuote(cctx, inputAsset, outputAsset, amount)
		return err
	})
	return q, err
}
