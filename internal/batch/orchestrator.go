// Package batch fans analysis out over many tokens with a concurrency cap,
// reusing cached results and pacing uncached calls.
package batch

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kjannette/trahn-signals/internal/apperr"
	"github.com/kjannette/trahn-signals/internal/cache"
	"github.com/kjannette/trahn-signals/internal/observability"
	"github.com/kjannette/trahn-signals/internal/ratelimit"
)

const DefaultConcurrency = 3

// Item is the outcome for one input token. Exactly one of Value or Err is
// meaningful.
type Item[T any] struct {
	Token  string
	Value  T
	Err    error
	Cached bool
}

func (i Item[T]) OK() bool { return i.Err == nil }

type AnalyzeFunc[T any] func(ctx context.Context, token string) (T, error)

type Orchestrator[T any] struct {
	cache   *cache.Store[T]
	limiter *ratelimit.Limiter
	limit   int
	metrics *observability.Metrics
	log     *logrus.Entry
}

// New builds an orchestrator. cache and limiter may be nil.
func New[T any](c *cache.Store[T], l *ratelimit.Limiter, limit int, m *observability.Metrics, log *logrus.Entry) *Orchestrator[T] {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Orchestrator[T]{cache: c, limiter: l, limit: limit, metrics: m, log: log}
}

// AnalyzeBatch runs analyze for every token with at most limit calls in
// flight (the orchestrator default when limit <= 0). Results are in input
// order; one token failing never affects the others.
func (o *Orchestrator[T]) AnalyzeBatch(ctx context.Context, tokens []string, analyze AnalyzeFunc[T], limit int) []Item[T] {
	if limit <= 0 {
		limit = o.limit
	}
	items := make([]Item[T], len(tokens))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, token := range tokens {
		g.Go(func() error {
			items[i] = o.analyzeOne(ctx, token, analyze)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, it := range items {
		if !it.OK() {
			failed++
		}
	}
	o.log.WithFields(logrus.Fields{
		"tokens": len(tokens),
		"failed": failed,
		"limit":  limit,
	}).Info("batch analysis complete")

	return items
}

func (o *Orchestrator[T]) analyzeOne(ctx context.Context, token string, analyze AnalyzeFunc[T]) Item[T] {
	it := Item[T]{Token: token}

	if o.cache != nil {
		if v, ok := o.cache.Get(token); ok {
			it.Value, it.Cached = v, true
			o.metrics.RecordBatchItem("cached")
			return it
		}
	}

	if o.limiter != nil {
		if err := o.limiter.WaitWithBackoff(ctx); err != nil {
			it.Err = apperr.New(apperr.KindTimeout, "batch "+token, err)
			o.record(it)
			return it
		}
	}

	v, err := o.call(ctx, token, analyze)
	if err != nil {
		it.Err = err
		if o.limiter != nil && apperr.Retryable(err) {
			o.limiter.RecordFailure()
		}
		o.record(it)
		return it
	}

	if o.limiter != nil {
		o.limiter.RecordSuccess()
	}
	if o.cache != nil {
		o.cache.Set(token, v)
	}
	it.Value = v
	o.record(it)
	return it
}

// call converts a panic in analyze into an error so one token cannot take
// down the batch.
func (o *Orchestrator[T]) call(ctx context.Context, token string, analyze AnalyzeFunc[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Newf(apperr.KindUnknown, "batch "+token, "panic: %v", r)
		}
	}()
	return analyze(ctx, token)
}

func (o *Orchestrator[T]) record(it Item[T]) {
	if it.OK() {
		o.metrics.RecordBatchItem("ok")
		return
	}
	o.metrics.RecordBatchItem("error")
	o.log.WithFields(logrus.Fields{
		"token": it.Token,
		"kind":  apperr.KindOf(it.Err),
	}).WithError(it.Err).Warn("batch item failed")
}
