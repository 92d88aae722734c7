package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-signals/internal/analysis"
	"github.com/kjannette/trahn-signals/internal/cache"
	"github.com/kjannette/trahn-signals/internal/config"
	"github.com/kjannette/trahn-signals/internal/db"
	"github.com/kjannette/trahn-signals/internal/ethereum"
	"github.com/kjannette/trahn-signals/internal/external"
	"github.com/kjannette/trahn-signals/internal/models"
	"github.com/kjannette/trahn-signals/internal/notifications"
	"github.com/kjannette/trahn-signals/internal/observability"
	"github.com/kjannette/trahn-signals/internal/ratelimit"
	"github.com/kjannette/trahn-signals/internal/repository"
	"github.com/kjannette/trahn-signals/internal/trader"
)

// app is the fully wired process. close releases everything build opened.
type app struct {
	cfg       *config.Config
	log       *logrus.Entry
	metrics   *observability.Metrics
	pool      *pgxpool.Pool
	tradeRepo *repository.TradeRepo
	posRepo   *repository.PositionRepo
	engine    *trader.Engine
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// connectDB opens the pool and applies the schema. It is a no-op when
// persistence is disabled.
func (a *app) connectDB(ctx context.Context) error {
	if !a.cfg.DBEnabled {
		a.log.Info("persistence disabled; running memory only")
		return nil
	}
	dbLog := a.log.WithField("component", "db")
	dbLog.WithFields(logrus.Fields{"host": a.cfg.DBHost, "port": a.cfg.DBPort, "db": a.cfg.DBName}).Info("connecting")

	pool, err := db.Connect(a.cfg.DSN())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, func() {
		pool.Close()
		dbLog.Info("connection pool closed")
	})
	if err := db.TestConnection(pool, dbLog); err != nil {
		return fmt.Errorf("test database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	a.pool = pool
	a.tradeRepo = repository.NewTradeRepo(pool)
	a.posRepo = repository.NewPositionRepo(pool)
	return nil
}

// venue returns the quote service and execution venue for the configured
// mode. Paper mode prices swaps off the guarded market feed.
func (a *app) venue(market trader.MarketDataProvider) (trader.QuoteService, trader.ExecutionVenue, error) {
	cfg := a.cfg
	if cfg.PaperTradingEnabled {
		a.log.WithField("initial_quote", cfg.PaperInitialQuote).Info("paper trading enabled")
		quotes := trader.NewPaperQuotes(cfg.QuoteTokenAddress, market)
		venue := trader.NewPaperVenue(cfg.QuoteTokenAddress, cfg.PaperInitialQuote, cfg.PaperSlippagePct,
			a.log.WithField("component", "paper"))
		return quotes, venue, nil
	}

	client, err := ethereum.NewClient(cfg.EthereumAPIEndpoint, cfg.PrivateKey, int64(cfg.ChainID), cfg.GasLimit, cfg.GasMultiplier)
	if err != nil {
		return nil, nil, fmt.Errorf("ethereum client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.log.WithField("wallet", client.WalletAddress().Hex()).Info("live trading wallet")

	router, err := ethereum.NewUniswapV2(client, cfg.UniswapRouterAddress, cfg.MaxSlippagePct,
		a.log.WithField("component", "uniswap"))
	if err != nil {
		return nil, nil, fmt.Errorf("uniswap router: %w", err)
	}
	quoteLimiter := ratelimit.New("quotes", cfg.QuoteMinInterval,
		ratelimit.WithMaxBackoff(cfg.MaxBackoff), ratelimit.WithMetrics(a.metrics))
	return external.NewGuardedQuotes(router, quoteLimiter, cfg.RetryAttempts, cfg.HTTPTimeout), router, nil
}

func build(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     logrus.NewEntry(log),
		metrics: observability.New(prometheus.NewRegistry(), cfg.MetricsNamespace),
	}
	if err := a.connectDB(ctx); err != nil {
		a.close()
		return nil, err
	}

	snapshots := cache.New[models.MarketSnapshot]("snapshots", cfg.SnapshotCacheTTL, cache.WithMetrics(a.metrics))
	bundles := cache.New[models.AnalysisBundle]("analysis", cfg.BatchCacheTTL, cache.WithMetrics(a.metrics))

	marketLimiter := ratelimit.New("market", cfg.MarketDataMinInterval,
		ratelimit.WithMaxBackoff(cfg.MaxBackoff), ratelimit.WithMetrics(a.metrics))
	analyticsLimiter := ratelimit.New("analytics", cfg.MarketDataMinInterval,
		ratelimit.WithMaxBackoff(cfg.MaxBackoff), ratelimit.WithMetrics(a.metrics))

	market := external.NewGuardedMarket(
		external.NewMarketClient(external.MarketOptions{BaseURL: cfg.MarketDataURL, Timeout: cfg.HTTPTimeout}),
		marketLimiter, snapshots, cfg.RetryAttempts, cfg.HTTPTimeout)

	quotes, venue, err := a.venue(market)
	if err != nil {
		a.close()
		return nil, err
	}

	deps := trader.Deps{
		Market:       market,
		Quotes:       quotes,
		Venue:        venue,
		Analytics:    analysis.NewSnapshotAnalyzer(analysis.DefaultScoreTable(), analysis.DefaultConfig()),
		Notifier:     notifications.NewSender(cfg.WebhookURL, cfg.BotName, a.log.WithField("component", "notify")),
		BatchCache:   bundles,
		BatchLimiter: analyticsLimiter,
		Caches:       []trader.Sweeper{snapshots, bundles},
		Metrics:      a.metrics,
		Log:          a.log,
	}
	// Leave the stores nil rather than wrapping nil repos in the interfaces.
	if a.tradeRepo != nil {
		deps.Trades = a.tradeRepo
		deps.Positions = a.posRepo
	}

	a.engine = trader.NewEngine(trader.OptionsFromConfig(cfg), deps)
	return a, nil
}
