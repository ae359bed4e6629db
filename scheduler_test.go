package ruletest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunOnce(t *testing.T) {
	var calls atomic.Int32
	s := NewRunScheduler(0, log.NewLogger(log.DiscardHandler()))
	s.RegisterCallback(func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, s.Stop())
	assert.True(t, s.Stopped())
	require.NoError(t, s.WaitForShutdown(context.Background()))
}

func TestSchedulerPeriodic(t *testing.T) {
	calls := make(chan struct{}, 10)
	s := NewRunScheduler(10*time.Millisecond, log.NewLogger(log.DiscardHandler()))
	s.RegisterCallback(func(context.Context) error {
		calls <- struct{}{}
		return nil
	})

	require.NoError(t, s.Start(context.Background()))
	for i := 0; i < 3; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected call %d", i+1)
		}
	}
	assert.False(t, s.Stopped())

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop(), "stopping twice is a no-op")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.WaitForShutdown(ctx))
	assert.True(t, s.Stopped())
}

func TestSchedulerPeriodicErrorsAreNotFatal(t *testing.T) {
	var calls atomic.Int32
	s := NewRunScheduler(5*time.Millisecond, log.NewLogger(log.DiscardHandler()))
	s.RegisterCallback(func(context.Context) error {
		if calls.Add(1) > 1 {
			return errors.New("later run failed")
		}
		return nil
	})

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.WaitForShutdown(context.Background()))
}

func TestSchedulerFirstRunError(t *testing.T) {
	for _, interval := range []time.Duration{0, time.Hour} {
		s := NewRunScheduler(interval, log.NewLogger(log.DiscardHandler()))
		s.RegisterCallback(func(context.Context) error { return errors.New("boom") })
		assert.EqualError(t, s.Start(context.Background()), "boom")
		require.NoError(t, s.Stop())
	}
}

func TestSchedulerContextCancel(t *testing.T) {
	s := NewRunScheduler(time.Hour, log.NewLogger(log.DiscardHandler()))
	s.RegisterCallback(func(context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	require.NoError(t, s.WaitForShutdown(context.Background()))
	assert.True(t, s.Stopped())
}

func TestSchedulerRequiresCallback(t *testing.T) {
	s := NewRunScheduler(0, log.NewLogger(log.DiscardHandler()))
	assert.Error(t, s.Start(context.Background()))
}
