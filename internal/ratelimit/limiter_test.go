package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/trahn-signals/internal/apperr"
	"github.com/kjannette/trahn-signals/internal/clock"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDelay_MonotoneAndReset(t *testing.T) {
	l := New("market", time.Second, WithMaxBackoff(30*time.Second))

	assert.Equal(t, time.Second, l.Delay())

	prev := l.Delay()
	for i := 0; i < 10; i++ {
		l.RecordFailure()
		d := l.Delay()
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, 30*time.Second)
		prev = d
	}
	assert.Equal(t, 30*time.Second, l.Delay())

	l.RecordSuccess()
	assert.Equal(t, time.Second, l.Delay())
	assert.Equal(t, 0, l.Failures())
}

func TestDelay_Doubles(t *testing.T) {
	l := New("quotes", 500*time.Millisecond)
	l.RecordFailure()
	assert.Equal(t, time.Second, l.Delay())
	l.RecordFailure()
	assert.Equal(t, 2*time.Second, l.Delay())
}

func TestWait_FirstCallImmediate(t *testing.T) {
	fc := clock.NewFake(t0)
	l := New("market", time.Second, WithClock(fc))

	require.NoError(t, l.Wait(context.Background()))
	assert.Equal(t, 0, fc.Sleepers())
}

func TestWait_EnforcesMinInterval(t *testing.T) {
	fc := clock.NewFake(t0)
	l := New("market", time.Second, WithClock(fc))
	require.NoError(t, l.Wait(context.Background()))

	done := make(chan error, 1)
	go func() { done <- l.Wait(context.Background()) }()

	require.Eventually(t, func() bool { return fc.Sleepers() == 1 }, time.Second, time.Millisecond)
	fc.Advance(999 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("second call permitted before min interval")
	case <-time.After(20 * time.Millisecond):
	}

	fc.Advance(time.Millisecond)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second call never permitted")
	}
}

func TestWaitWithBackoff_StretchesInterval(t *testing.T) {
	fc := clock.NewFake(t0)
	l := New("market", time.Second, WithClock(fc))
	require.NoError(t, l.WaitWithBackoff(context.Background()))
	l.RecordFailure()
	l.RecordFailure() // 4s

	done := make(chan error, 1)
	go func() { done <- l.WaitWithBackoff(context.Background()) }()
	require.Eventually(t, func() bool { return fc.Sleepers() == 1 }, time.Second, time.Millisecond)

	fc.Advance(2 * time.Second)
	select {
	case <-done:
		t.Fatal("backoff not applied")
	case <-time.After(20 * time.Millisecond):
	}

	fc.Advance(2 * time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("backoff wait never released")
	}
}

func TestWait_Cancelled(t *testing.T) {
	fc := clock.NewFake(t0)
	l := New("market", time.Minute, WithClock(fc))
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx) }()
	require.Eventually(t, func() bool { return fc.Sleepers() == 1 }, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDo_RetriesRetryable(t *testing.T) {
	l := New("market", time.Millisecond)
	calls := 0

	err := Do(context.Background(), l, 3, func(context.Context) error {
		calls++
		if calls < 3 {
			return apperr.New(apperr.KindRateLimit, "snapshot", errors.New("429"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, l.Failures())
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	l := New("market", time.Millisecond)
	calls := 0

	err := Do(context.Background(), l, 5, func(context.Context) error {
		calls++
		return apperr.New(apperr.KindNotFound, "snapshot", nil)
	})

	assert.ErrorIs(t, err, apperr.NotFound)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, l.Failures())
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	l := New("market", time.Millisecond)
	calls := 0

	err := Do(context.Background(), l, 2, func(context.Context) error {
		calls++
		return apperr.New(apperr.KindTimeout, "snapshot", nil)
	})

	assert.ErrorIs(t, err, apperr.Timeout)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, l.Failures())
}

func TestDo_CancelledCallerIsNotAFailure(t *testing.T) {
	l := New("market", time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, l, 3, func(context.Context) error {
		calls++
		cancel()
		return apperr.New(apperr.KindTimeout, "snapshot", context.Canceled)
	})

	assert.ErrorIs(t, err, apperr.Timeout)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, l.Failures())
}
