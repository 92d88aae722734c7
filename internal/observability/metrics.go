// Package observability provides Prometheus metrics for the signal engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the engine records into. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Pacing
	RateLimitWait     *prometheus.HistogramVec
	RateLimitFailures *prometheus.CounterVec

	// Cache
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheEvicts *prometheus.CounterVec

	// Signals
	SignalsGenerated *prometheus.CounterVec
	SignalsRejected  *prometheus.CounterVec

	// Execution
	TradesTotal   *prometheus.CounterVec
	TradeSlippage prometheus.Histogram

	// Positions
	OpenPositions   prometheus.Gauge
	PositionsClosed *prometheus.CounterVec
	MonitorErrors   prometheus.Counter

	// Batch
	BatchItems *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. A nil reg uses a private registry,
// which keeps tests from colliding on the default one.
func New(reg *prometheus.Registry, namespace string) *Metrics {
	if namespace == "" {
		namespace = "trahn"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		RateLimitWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a rate limiter permit",
			Buckets:   []float64{0, .05, .1, .25, .5, 1, 2, 5, 10, 30},
		}, []string{"resource"}),
		RateLimitFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "failures_total",
			Help:      "Failures recorded against a rate limiter",
		}, []string{"resource"}),
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits",
		}, []string{"cache"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses, including expired entries",
		}, []string{"cache"}),
		CacheEvicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries removed by expiry",
		}, []string{"cache"}),
		SignalsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "generated_total",
			Help:      "Signals produced by the generator",
		}, []string{"source", "type"}),
		SignalsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "rejected_total",
			Help:      "Signals rejected before execution",
		}, []string{"reason"}),
		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "total",
			Help:      "Trade attempts by side and status",
		}, []string{"type", "status"}),
		TradeSlippage: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "slippage_pct",
			Help:      "Realized slippage of completed trades in percent",
			Buckets:   []float64{-1, 0, .1, .25, .5, 1, 2, 5},
		}),
		OpenPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Currently open positions",
		}),
		PositionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "closed_total",
			Help:      "Closed positions by terminal status",
		}, []string{"status"}),
		MonitorErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "monitor_errors_total",
			Help:      "Per-position failures during monitoring sweeps",
		}),
		BatchItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "items_total",
			Help:      "Batch items by outcome",
		}, []string{"outcome"}),
		gatherer: reg,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRateLimitWait(resource string, d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.WithLabelValues(resource).Observe(d.Seconds())
}

func (m *Metrics) RecordRateLimitFailure(resource string) {
	if m == nil {
		return
	}
	m.RateLimitFailures.WithLabelValues(resource).Inc()
}

func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(cache).Inc()
}

func (m *Metrics) RecordCacheEvictions(cache string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.CacheEvicts.WithLabelValues(cache).Add(float64(n))
}

func (m *Metrics) RecordSignal(source, typ string) {
	if m == nil {
		return
	}
	m.SignalsGenerated.WithLabelValues(source, typ).Inc()
}

func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.SignalsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordTrade(typ, status string, slippagePct float64) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(typ, status).Inc()
	if status == "completed" {
		m.TradeSlippage.Observe(slippagePct)
	}
}

func (m *Metrics) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.OpenPositions.Set(float64(n))
}

func (m *Metrics) RecordPositionClosed(status string) {
	if m == nil {
		return
	}
	m.PositionsClosed.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordMonitorError() {
	if m == nil {
		return
	}
	m.MonitorErrors.Inc()
}

func (m *Metrics) RecordBatchItem(outcome string) {
	if m == nil {
		return
	}
	m.BatchItems.WithLabelValues(outcome).Inc()
}
