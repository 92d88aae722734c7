package ratelimit

import (
	"context"

	"github.com/kjannette/trahn-signals/internal/apperr"
)

// Do paces fn through l, retrying up to attempts times while fn returns a
// retryable error. Non-retryable errors return immediately and do not count
// as limiter failures.
func Do(ctx context.Context, l *Limiter, attempts int, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := l.WaitWithBackoff(ctx); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return apperr.New(apperr.KindTimeout, l.name, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			l.RecordSuccess()
			return nil
		}
		// A caller that gave up says nothing about the resource.
		if ctx.Err() != nil || !apperr.Retryable(lastErr) {
			return lastErr
		}
		l.RecordFailure()
	}
	return lastErr
}
