package trader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-signals/internal/batch"
	"github.com/kjannette/trahn-signals/internal/cache"
	"github.com/kjannette/trahn-signals/internal/clock"
	"github.com/kjannette/trahn-signals/internal/config"
	"github.com/kjannette/trahn-signals/internal/models"
	"github.com/kjannette/trahn-signals/internal/observability"
	"github.com/kjannette/trahn-signals/internal/performance"
	"github.com/kjannette/trahn-signals/internal/ratelimit"
	"github.com/kjannette/trahn-signals/internal/risk"
	"github.com/kjannette/trahn-signals/internal/scheduler"
	"github.com/kjannette/trahn-signals/internal/signals"
)

const (
	DefaultScanInterval    = 5 * time.Minute
	DefaultCleanupInterval = time.Minute
)

type Options struct {
	Executor         ExecutorConfig
	Limits           risk.Limits
	VerifiedTokens   []string
	Thresholds       signals.Thresholds
	Policy           signals.Policy
	PollInterval     time.Duration
	ScanInterval     time.Duration
	CleanupInterval  time.Duration
	ConcurrencyLimit int
	Watchlist        []string
}

func OptionsFromConfig(cfg *config.Config) Options {
	th := signals.DefaultThresholds()
	if cfg.MinMovePct > 0 {
		th.MinMovePct = cfg.MinMovePct
	}
	policy := signals.DefaultPolicy()
	if cfg.Cooldown > 0 {
		policy.Cooldown = cfg.Cooldown
	}
	return Options{
		Executor: ExecutorConfig{
			EnableAutoTrading: cfg.EnableAutoTrading,
			QuoteAsset:        cfg.QuoteTokenAddress,
			MaxSlippagePct:    cfg.MaxSlippagePct,
			StopLossPct:       cfg.StopLossPct,
			TakeProfitPct:     cfg.TakeProfitPct,
			Paper:             cfg.PaperTradingEnabled,
		},
		Limits: risk.Limits{
			MaxOpenPositions:      cfg.MaxOpenPositions,
			MaxTradeSizeUSD:       cfg.MaxTradeSizeUSD,
			MinLiquidityUSD:       cfg.MinLiquidityUSD,
			RiskLevel:             cfg.RiskLevel,
			AllowStackedPositions: cfg.AllowStackedPositions,
		},
		VerifiedTokens:   cfg.VerifiedTokens,
		Thresholds:       th,
		Policy:           policy,
		PollInterval:     cfg.PollInterval,
		ScanInterval:     cfg.ScanInterval,
		CleanupInterval:  cfg.CacheCleanupInterval,
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		Watchlist:        cfg.Watchlist,
	}
}

// Sweeper is a cache swept by the cleanup task.
type Sweeper interface {
	Name() string
	Cleanup() int
}

type Deps struct {
	Market       MarketDataProvider
	Quotes       QuoteService
	Venue        ExecutionVenue
	Analytics    AnalyticsSource
	Trades       TradeStore
	Positions    PositionStore
	Notifier     Notifier
	BatchCache   *cache.Store[models.AnalysisBundle]
	BatchLimiter *ratelimit.Limiter
	Caches       []Sweeper
	Clock        clock.Clock
	Metrics      *observability.Metrics
	Log          *logrus.Entry
}

// ScanResult is the outcome of one watchlist token in a Scan.
type ScanResult struct {
	Token   string
	Cached  bool
	Err     error
	Bundle  models.AnalysisBundle
	Results []Result
}

// Engine owns the whole signal-to-position lifecycle for one process.
type Engine struct {
	opts      Options
	deps      Deps
	journal   *Journal
	book      *Book
	generator *signals.Generator
	signalLog *signals.SignalLog
	tracker   *performance.Tracker
	executor  *Executor
	monitor   *PositionManager
	batch     *batch.Orchestrator[models.AnalysisBundle]
	scanTask  *scheduler.Task
	sweepTask *scheduler.Task
	log       *logrus.Entry

	// bundles are processed one at a time so cooldown checks see every
	// acceptance before the next signal is gated.
	processMu   sync.Mutex
	breakerOpen atomic.Bool

	mu      sync.Mutex
	running bool
}

func NewEngine(opts Options, d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Log == nil {
		d.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = DefaultScanInterval
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}

	journal := NewJournal()
	book := NewBook()
	sizer := signals.Sizer{MaxTradeSizeUSD: opts.Limits.MaxTradeSizeUSD, RiskLevel: opts.Limits.RiskLevel}

	e := &Engine{
		opts:      opts,
		deps:      d,
		journal:   journal,
		book:      book,
		generator: signals.NewGenerator(opts.Thresholds, sizer, d.Clock, d.Metrics, d.Log.WithField("component", "signals")),
		signalLog: signals.NewSignalLog(),
		tracker:   performance.NewTracker(journal),
		log:       d.Log.WithField("component", "engine"),
	}
	e.executor = NewExecutor(opts.Executor, ExecutorDeps{
		Market:    d.Market,
		Quotes:    d.Quotes,
		Venue:     d.Venue,
		Guardian:  risk.NewGuardian(opts.Limits, book, opts.VerifiedTokens),
		Journal:   journal,
		Book:      book,
		Trades:    d.Trades,
		Positions: d.Positions,
		Notifier:  d.Notifier,
		Clock:     d.Clock,
		Metrics:   d.Metrics,
		Log:       d.Log.WithField("component", "executor"),
	})
	e.monitor = NewPositionManager(book, d.Market, e.executor, opts.PollInterval, d.Clock, d.Metrics,
		d.Log.WithField("component", "monitor"))
	e.batch = batch.New(d.BatchCache, d.BatchLimiter, opts.ConcurrencyLimit, d.Metrics,
		d.Log.WithField("component", "batch"))

	e.scanTask = scheduler.NewTask("scan", opts.ScanInterval, func(ctx context.Context) {
		e.Scan(ctx, nil)
	}, scheduler.WithClock(d.Clock), scheduler.RunImmediately(), scheduler.WithLogger(e.log))
	e.sweepTask = scheduler.NewTask("cache-cleanup", opts.CleanupInterval, e.sweep,
		scheduler.WithClock(d.Clock), scheduler.WithLogger(e.log))
	return e
}

// Restore reloads open positions from the position store.
func (e *Engine) Restore(ctx context.Context) error {
	if e.deps.Positions == nil {
		return nil
	}
	ps, err := e.deps.Positions.LoadOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}
	n := e.book.Restore(ps)
	e.deps.Metrics.SetOpenPositions(e.book.OpenCount())
	e.log.WithField("positions", n).Info("restored open positions")
	return nil
}

// ProcessBundle turns a bundle into signals and runs each one through
// validation, the execution policy and the executor.
func (e *Engine) ProcessBundle(ctx context.Context, b models.AnalysisBundle) []Result {
	e.processMu.Lock()
	defer e.processMu.Unlock()

	var results []Result
	for _, sig := range e.generator.Generate(b) {
		if ctx.Err() != nil {
			break
		}
		if err := signals.Validate(sig); err != nil {
			results = append(results, e.executor.reject(sig, err))
			continue
		}

		token := strings.ToLower(sig.TokenAddress)
		now := e.deps.Clock.Now()
		d := e.opts.Policy.ShouldExecute(sig, token, e.signalLog.Snapshot(), e.tracker.Stats(), now)
		if !d.Execute {
			if d.Reason == signals.RejectCircuitBreaker {
				e.tripBreaker(d)
			}
			results = append(results, e.executor.reject(sig, d.Err()))
			continue
		}
		e.resetBreaker()

		e.signalLog.Record(token, now)
		results = append(results, e.executor.Execute(ctx, sig))
	}
	return results
}

// Execute sends a signal straight to the executor, skipping cooldown and
// circuit breaker.
func (e *Engine) Execute(ctx context.Context, sig models.Signal) Result {
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = e.deps.Clock.Now()
	}
	return e.executor.Execute(ctx, sig)
}

// Scan analyses tokens (the watchlist when empty) concurrently and processes
// every bundle that came back.
func (e *Engine) Scan(ctx context.Context, tokens []string) []ScanResult {
	if len(tokens) == 0 {
		tokens = e.opts.Watchlist
	}
	if len(tokens) == 0 {
		return nil
	}

	items := e.batch.AnalyzeBatch(ctx, tokens, e.analyze, e.opts.ConcurrencyLimit)

	out := make([]ScanResult, len(items))
	for i, it := range items {
		out[i] = ScanResult{Token: it.Token, Cached: it.Cached, Err: it.Err, Bundle: it.Value}
		if it.OK() {
			out[i].Results = e.ProcessBundle(ctx, it.Value)
		}
	}
	return out
}

func (e *Engine) analyze(ctx context.Context, token string) (models.AnalysisBundle, error) {
	snap, err := e.deps.Market.GetMarketSnapshot(ctx, token)
	if err != nil {
		return models.AnalysisBundle{}, fmt.Errorf("snapshot %s: %w", token, err)
	}
	analyses, err := e.deps.Analytics.Analyze(ctx, token, snap)
	if err != nil {
		return models.AnalysisBundle{}, fmt.Errorf("analyze %s: %w", token, err)
	}
	return models.AnalysisBundle{TokenAddress: token, TokenPrice: snap.Price, Analyses: analyses}, nil
}

func (e *Engine) sweep(context.Context) {
	for _, c := range e.deps.Caches {
		if n := c.Cleanup(); n > 0 {
			e.log.WithFields(logrus.Fields{"cache": c.Name(), "evicted": n}).Debug("cache swept")
		}
	}
	cooldown := e.opts.Policy.Cooldown
	if cooldown <= 0 {
		cooldown = signals.DefaultCooldown
	}
	e.signalLog.Prune(e.deps.Clock.Now(), cooldown)
}

func (e *Engine) tripBreaker(d signals.Decision) {
	if e.breakerOpen.CompareAndSwap(false, true) {
		e.log.WithField("detail", d.Detail).Warn("circuit breaker tripped")
		if e.deps.Notifier != nil {
			e.deps.Notifier.Send("Circuit breaker tripped: " + d.Detail)
		}
	}
}

func (e *Engine) resetBreaker() {
	if e.breakerOpen.CompareAndSwap(true, false) {
		e.log.Info("circuit breaker reset")
	}
}

// Start launches the position monitor, the cache sweeper and, when a
// watchlist is configured, the periodic scan.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true

	e.monitor.Start(ctx)
	e.sweepTask.Start(ctx)
	if len(e.opts.Watchlist) > 0 {
		e.scanTask.Start(ctx)
	}
	e.log.WithFields(logrus.Fields{
		"watchlist":    len(e.opts.Watchlist),
		"auto_trading": e.opts.Executor.EnableAutoTrading,
		"paper":        e.opts.Executor.Paper,
	}).Info("engine started")
}

func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false

	e.scanTask.Stop()
	e.monitor.Stop()
	e.sweepTask.Stop()
	e.log.Info("engine stopped")
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) MonitorPositions(ctx context.Context) []Result {
	return e.monitor.MonitorPositions(ctx)
}

func (e *Engine) Trades() []models.TradeRecord { return e.journal.Trades() }
func (e *Engine) OpenPositions() []models.Position { return e.book.OpenPositions() }
func (e *Engine) ClosedPositions() []models.Position { return e.book.ClosedPositions() }
func (e *Engine) Performance() models.PerformanceStats { return e.tracker.Stats() }
