package trader

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/trahn-signals/internal/apperr"
	"github.com/kjannette/trahn-signals/internal/clock"
	"github.com/kjannette/trahn-signals/internal/observability"
	"github.com/kjannette/trahn-signals/internal/scheduler"
)

const DefaultPollInterval = 60 * time.Second

// PositionManager polls prices for open positions and closes any that cross
// their stop-loss or take-profit bound.
type PositionManager struct {
	book     *Book
	market   MarketDataProvider
	executor *Executor
	metrics  *observability.Metrics
	log      *logrus.Entry

	task   *scheduler.Task
	active atomic.Bool
}

func NewPositionManager(book *Book, market MarketDataProvider, exec *Executor, interval time.Duration, clk clock.Clock, m *observability.Metrics, log *logrus.Entry) *PositionManager {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	pm := &PositionManager{book: book, market: market, executor: exec, metrics: m, log: log}
	pm.task = scheduler.NewTask("position-monitor", interval, func(ctx context.Context) {
		pm.sweep(ctx, pm.active.Load)
	}, scheduler.WithClock(clk), scheduler.WithLogger(log))
	return pm
}

// MonitorPositions checks every open position once and returns the results
// of any closes it attempted.
func (pm *PositionManager) MonitorPositions(ctx context.Context) []Result {
	return pm.sweep(ctx, func() bool { return true })
}

func (pm *PositionManager) Start(ctx context.Context) {
	pm.active.Store(true)
	pm.task.Start(ctx)
}

// Stop halts polling. A sweep still in flight finishes without acting on
// what it fetched.
func (pm *PositionManager) Stop() {
	pm.active.Store(false)
	pm.task.Stop()
}

func (pm *PositionManager) Running() bool {
	return pm.task.Running()
}

func (pm *PositionManager) sweep(ctx context.Context, active func() bool) []Result {
	open := pm.book.OpenPositions()
	if len(open) == 0 {
		return nil
	}

	var results []Result
	checked, failed := 0, 0
	for _, pos := range open {
		if ctx.Err() != nil || !active() {
			break
		}
		log := pm.log.WithFields(logrus.Fields{"position_id": pos.ID, "token": pos.TokenAddress})

		snap, err := pm.market.GetMarketSnapshot(ctx, pos.TokenAddress)
		if err != nil {
			failed++
			pm.metrics.RecordMonitorError()
			log.WithError(err).WithField("kind", apperr.KindOf(err)).Warn("price check failed")
			continue
		}
		checked++

		status, hit := pos.Trigger(snap.Price)
		if !hit {
			continue
		}
		if !active() {
			log.Debug("monitor stopped, discarding trigger")
			break
		}

		claimed, ok := pm.book.Claim(pos.ID)
		if !ok {
			continue
		}
		log.WithFields(logrus.Fields{"price": snap.Price, "status": status}).Info("position bound crossed")
		res := pm.executor.ClosePosition(ctx, claimed, status, snap.Price)
		pm.book.Unclaim(pos.ID)
		results = append(results, res)
	}

	pm.log.WithFields(logrus.Fields{
		"open":    len(open),
		"checked": checked,
		"failed":  failed,
		"closes":  len(results),
	}).Debug("position sweep complete")
	return results
}
