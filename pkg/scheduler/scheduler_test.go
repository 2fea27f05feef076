package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	s := New(Config{}, zerolog.Nop())
	state := s.State()

	assert.Equal(t, time.Second, state.MinDelay)
	assert.Equal(t, 60*time.Second, state.MaxBackoff)
	assert.Equal(t, 1.0, state.Multiplier)
	assert.True(t, state.LastRequestTime.IsZero())
}

func waitForPending(t *testing.T, s *Scheduler, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Pending() == n }, 2*time.Second, time.Millisecond)
}

func TestScheduler_FIFOAndNoOverlap(t *testing.T) {
	s := New(Config{MinDelay: time.Millisecond, MaxBackoff: 10 * time.Millisecond}, zerolog.Nop())

	release := make(chan struct{})
	var inFlight, maxInFlight atomic.Int32
	var mu sync.Mutex
	var order []int

	track := func(id int) Operation {
		return func(context.Context) error {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			if id == 0 {
				<-release
			}
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	const callers = 8
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.ExecuteWithBackoff(context.Background(), track(0), 0))
	}()
	require.Eventually(t, func() bool { return inFlight.Load() == 1 }, 2*time.Second, time.Millisecond)

	// Submit the rest one by one while the first operation blocks, so the
	// submission order is deterministic.
	for id := 1; id < callers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, s.ExecuteWithBackoff(context.Background(), track(id), 0))
		}(id)
		waitForPending(t, s, id)
	}

	close(release)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_PacesDispatches(t *testing.T) {
	minDelay := 20 * time.Millisecond
	s := New(Config{MinDelay: minDelay, MaxBackoff: time.Second}, zerolog.Nop())

	var stamps []time.Time
	for i := 0; i < 3; i++ {
		require.NoError(t, s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
			stamps = append(stamps, time.Now())
			return nil
		}, 0))
	}

	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), minDelay-2*time.Millisecond)
	}
}

func TestScheduler_CancelledWhileQueued(t *testing.T) {
	s := New(Config{MinDelay: time.Millisecond}, zerolog.Nop())

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		}, 0)
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var invoked atomic.Bool
	queued := make(chan error, 1)
	go func() {
		queued <- s.ExecuteWithBackoff(ctx, func(context.Context) error {
			invoked.Store(true)
			return nil
		}, 0)
	}()
	waitForPending(t, s, 1)

	cancel()
	assert.ErrorIs(t, <-queued, context.Canceled)

	close(release)
	require.NoError(t, <-done)

	// The cancelled entry is skipped when it reaches the head.
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, s.ExecuteWithBackoff(context.Background(), func(context.Context) error { return nil }, 0))
	assert.False(t, invoked.Load())
}

func TestDoWithRelease_AbandonedValueIsReleased(t *testing.T) {
	s := New(Config{MinDelay: time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	proceed := make(chan struct{})
	released := make(chan int, 1)

	done := make(chan error, 1)
	go func() {
		_, err := DoWithRelease(ctx, s, func(context.Context) (int, error) {
			close(started)
			<-proceed
			return 42, nil
		}, 0, func(v int) { released <- v })
		done <- err
	}()
	<-started

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(proceed)
	select {
	case v := <-released:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned value was not released")
	}
}

func TestDoWithRelease_DeliveredValueIsNotReleased(t *testing.T) {
	s := New(Config{MinDelay: time.Millisecond}, zerolog.Nop())

	var released atomic.Bool
	v, err := DoWithRelease(context.Background(), s, func(context.Context) (string, error) {
		return "ok", nil
	}, 0, func(string) { released.Store(true) })

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.False(t, released.Load())
}

func TestScheduler_Reset(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	_ = s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
		return secondaryLimitError(nil)
	}, 2)
	require.Greater(t, s.State().Multiplier, 1.0)
	require.False(t, s.State().LastRequestTime.IsZero())

	s.Reset()
	state := s.State()
	assert.Equal(t, 1.0, state.Multiplier)
	assert.True(t, state.LastRequestTime.IsZero())
	assert.Equal(t, time.Second, state.MinDelay)
}

func TestDefault(t *testing.T) {
	ResetDefault()
	t.Cleanup(ResetDefault)

	first := Default()
	require.NotNil(t, first)
	assert.Same(t, first, Default(), "Default returns one shared instance")

	ResetDefault()
	assert.NotSame(t, first, Default(), "ResetDefault discards the shared instance")
}
