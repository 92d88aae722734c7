package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/trahn-signals/internal/clock"
)

func quiet() Option {
	l, _ := test.NewNullLogger()
	return WithLogger(logrus.NewEntry(l))
}

func TestTask_RunsOnTick(t *testing.T) {
	fc := clock.NewFake(time.Now())
	var runs atomic.Int32
	task := NewTask("sweep", time.Minute, func(context.Context) { runs.Add(1) }, WithClock(fc), quiet())

	task.Start(context.Background())
	defer task.Stop()
	assert.True(t, task.Running())

	fc.Advance(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)

	fc.Advance(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
}

func TestTask_RunImmediately(t *testing.T) {
	fc := clock.NewFake(time.Now())
	var runs atomic.Int32
	task := NewTask("scan", time.Hour, func(context.Context) { runs.Add(1) }, WithClock(fc), RunImmediately(), quiet())

	task.Start(context.Background())
	defer task.Stop()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
}

func TestTask_StopCancelsRun(t *testing.T) {
	fc := clock.NewFake(time.Now())
	started := make(chan struct{})
	var cancelled atomic.Bool
	task := NewTask("slow", time.Minute, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}, WithClock(fc), RunImmediately(), quiet())

	task.Start(context.Background())
	<-started
	task.Stop()

	assert.True(t, cancelled.Load())
	assert.False(t, task.Running())

	task.Stop() // no-op
}

func TestTask_NoRunsAfterStop(t *testing.T) {
	fc := clock.NewFake(time.Now())
	var runs atomic.Int32
	task := NewTask("sweep", time.Minute, func(context.Context) { runs.Add(1) }, WithClock(fc), quiet())

	task.Start(context.Background())
	task.Stop()
	fc.Advance(5 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}

func TestTask_PanicDoesNotKillLoop(t *testing.T) {
	fc := clock.NewFake(time.Now())
	var runs atomic.Int32
	task := NewTask("flaky", time.Minute, func(context.Context) {
		if runs.Add(1) == 1 {
			panic("boom")
		}
	}, WithClock(fc), quiet())

	task.Start(context.Background())
	defer task.Stop()

	fc.Advance(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	fc.Advance(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
}
