// Package trader executes validated signals against a swap venue and tracks
// the positions they open until stop-loss, take-profit or a manual sell
// closes them.
package trader

import (
	"context"

	"github.com/kjannette/trahn-signals/internal/models"
)

type MarketDataProvider interface {
	GetMarketSnapshot(ctx context.Context, token string) (models.MarketSnapshot, error)
}

type QuoteService interface {
	GetQuote(ctx context.Context, inputAsset, outputAsset string, amount float64) (models.Quote, error)
}

// ExecutionVenue submits a quoted swap. Implementations hold their own
// signer; submits are never retried by the caller.
type ExecutionVenue interface {
	SubmitSwap(ctx context.Context, q models.Quote) (models.SwapResult, error)
}

type AnalyticsSource interface {
	Analyze(ctx context.Context, token string, snap models.MarketSnapshot) ([]models.Analysis, error)
}

// TradeStore and PositionStore mirror in-memory state to durable storage.
// Failures are logged and never abort a trade.
type TradeStore interface {
	SaveTrade(ctx context.Context, r models.TradeRecord) error
}

type PositionStore interface {
	SavePosition(ctx context.Context, p models.Position) error
	LoadOpenPositions(ctx context.Context) ([]models.Position, error)
}

type Notifier interface {
	Send(msg string)
}
