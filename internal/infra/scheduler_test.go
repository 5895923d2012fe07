package infra

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduler_RunsJobs(t *testing.T) {
	s := NewScheduler(zap.NewNop(), time.Second)

	var runs, failures atomic.Int32
	require.NoError(t, s.AddJob("counter", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.AddJob("failing", "@every 1s", func(ctx context.Context) error {
		failures.Add(1)
		return errors.New("upstream down")
	}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return runs.Load() >= 1 && failures.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	s := NewScheduler(zap.NewNop(), time.Minute)

	started := make(chan struct{}, 1)
	var cancelled atomic.Bool
	require.NoError(t, s.AddJob("slow", "@every 1s", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))

	s.Start()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	s.Stop()
	assert.True(t, cancelled.Load())
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(zap.NewNop(), 0)
	assert.Error(t, s.AddJob("bad", "not a spec", func(context.Context) error { return nil }))
}
