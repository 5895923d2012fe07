package client

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduler_RunsImmediatelyAndRepeats(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	defer s.StopAll()

	var runs atomic.Int32
	s.Start(context.Background(), "poll", 5*time.Millisecond, func(context.Context) { runs.Add(1) })

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, s.Running("poll"))
}

func TestScheduler_StopCancelsRun(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	defer s.StopAll()

	cancelled := make(chan struct{})
	s.Start(context.Background(), "slow", time.Hour, func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})

	s.Stop("slow")
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("run was not cancelled")
	}
	assert.False(t, s.Running("slow"))
}

func TestScheduler_ReplaceKey(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	defer s.StopAll()

	var first, second atomic.Int32
	firstCancelled := make(chan struct{})
	s.Start(context.Background(), "k", 5*time.Millisecond, func(ctx context.Context) {
		if first.Add(1) == 1 {
			go func() {
				<-ctx.Done()
				close(firstCancelled)
			}()
		}
	})
	require.Eventually(t, func() bool { return first.Load() >= 1 }, time.Second, time.Millisecond)

	s.Start(context.Background(), "k", 5*time.Millisecond, func(context.Context) { second.Add(1) })

	select {
	case <-firstCancelled:
	case <-time.After(time.Second):
		t.Fatal("replaced task was not cancelled")
	}
	require.Eventually(t, func() bool { return second.Load() >= 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"k"}, s.Keys())
}

func TestScheduler_StopPrefixAndStopAll(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	noop := func(context.Context) {}

	s.Start(context.Background(), "detail:XAUUSD", time.Hour, noop)
	s.Start(context.Background(), "detail:EURUSD", time.Hour, noop)
	s.Start(context.Background(), "snapshot", time.Hour, noop)

	s.StopPrefix("detail:")
	assert.ElementsMatch(t, []string{"snapshot"}, s.Keys())

	s.StopAll()
	assert.Empty(t, s.Keys())
}

func TestScheduler_ParentCancellation(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	s.Start(ctx, "poll", time.Hour, func(context.Context) {})
	cancel()

	require.Eventually(t, func() bool { return !s.Running("poll") }, time.Second, time.Millisecond)
	s.StopAll()
}
