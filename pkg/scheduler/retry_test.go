package scheduler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/portal-api-client/pkg/ratelimit"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances instantly on Sleep and records every wait.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// syncBuffer guards log output written from the drain goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeClock, *syncBuffer) {
	t.Helper()
	logs := &syncBuffer{}
	clock := newFakeClock()
	s := New(DefaultConfig(), zerolog.New(logs))
	s.now = clock.Now
	s.sleep = clock.Sleep
	return s, clock, logs
}

func secondaryLimitError(extra map[string]string) *ratelimit.ResponseError {
	h := http.Header{}
	h.Set(ratelimit.HeaderRemaining, "4321")
	for k, v := range extra {
		h.Set(k, v)
	}
	return &ratelimit.ResponseError{
		StatusCode: http.StatusForbidden,
		Status:     "403 Forbidden",
		Header:     h,
		Message:    "You have exceeded a secondary rate limit. Please wait a few minutes before you try again.",
	}
}

func primaryLimitError(reset time.Time) *ratelimit.ResponseError {
	h := http.Header{}
	h.Set(ratelimit.HeaderRemaining, "0")
	h.Set(ratelimit.HeaderReset, strconv.FormatInt(reset.Unix(), 10))
	return &ratelimit.ResponseError{
		StatusCode: http.StatusForbidden,
		Status:     "403 Forbidden",
		Header:     h,
		Message:    "API rate limit exceeded",
	}
}

func TestExecuteWithBackoff_SuccessFirstAttempt(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	calls := 0
	got, err := Do(context.Background(), s, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	}, DefaultMaxRetries)

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1.0, s.State().Multiplier)
}

func TestExecuteWithBackoff_SecondaryThenSuccess(t *testing.T) {
	s, _, logs := newTestScheduler(t)

	calls := 0
	err := s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return secondaryLimitError(nil)
		}
		return nil
	}, 5)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, logs.String(), "Secondary rate limit hit (attempt 1/6)")
	assert.Equal(t, 1.0, s.State().Multiplier, "success resets the multiplier")
}

func TestExecuteWithBackoff_RetryAfterHeader(t *testing.T) {
	s, clock, logs := newTestScheduler(t)

	var dispatched []time.Time
	err := s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
		dispatched = append(dispatched, clock.Now())
		if len(dispatched) == 1 {
			return secondaryLimitError(map[string]string{ratelimit.HeaderRetryAfter: "1"})
		}
		return nil
	}, 5)

	require.NoError(t, err)
	require.Len(t, dispatched, 2)

	sleeps := clock.Sleeps()
	require.NotEmpty(t, sleeps)
	assert.Equal(t, time.Second, sleeps[0])
	assert.Contains(t, logs.String(), "Waiting 1000ms before retry...")
	assert.GreaterOrEqual(t, dispatched[1].Sub(dispatched[0]), time.Second)
}

func TestExecuteWithBackoff_SecondaryExponentialBackoff(t *testing.T) {
	s, clock, _ := newTestScheduler(t)

	calls := 0
	err := s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
		calls++
		if calls <= 3 {
			return secondaryLimitError(nil)
		}
		return nil
	}, 5)
	require.NoError(t, err)

	// Each retry waits for the backoff and then tops up to the grown
	// pacing interval: multiplier 2, 4, 8 against 1s, 2s, 4s of backoff.
	assert.Equal(t, []time.Duration{
		1 * time.Second, 1 * time.Second,
		2 * time.Second, 2 * time.Second,
		4 * time.Second, 4 * time.Second,
	}, clock.Sleeps())
}

func TestExecuteWithBackoff_PrimaryLimitWaitsForReset(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	reset := clock.Now().Add(time.Second)

	var dispatched []time.Time
	err := s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
		dispatched = append(dispatched, clock.Now())
		if len(dispatched) == 1 {
			return primaryLimitError(reset)
		}
		return nil
	}, 5)

	require.NoError(t, err)
	require.Len(t, dispatched, 2)
	assert.False(t, dispatched[1].Before(reset.Add(ratelimit.PrimaryResetBuffer)),
		"retry at %v happened before reset+buffer", dispatched[1])
	assert.Equal(t, 2*time.Second, clock.Sleeps()[0])
	assert.Equal(t, 1.0, s.State().Multiplier, "primary limits do not grow the multiplier")
}

func TestExecuteWithBackoff_PrimaryLimitWithoutResetHeader(t *testing.T) {
	s, clock, _ := newTestScheduler(t)

	limitErr := primaryLimitError(time.Time{})
	limitErr.Header.Del(ratelimit.HeaderReset)

	calls := 0
	err := s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return limitErr
		}
		return nil
	}, 5)

	require.NoError(t, err)
	assert.Equal(t, time.Second, clock.Sleeps()[0])
}

func TestExecuteWithBackoff_Exhausted(t *testing.T) {
	s, _, logs := newTestScheduler(t)

	limitErr := secondaryLimitError(nil)
	calls := 0
	err := s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
		calls++
		return limitErr
	}, 3)

	require.Error(t, err)
	assert.Same(t, limitErr, err, "the original error is returned unwrapped")
	assert.Equal(t, 4, calls)
	assert.Contains(t, logs.String(), "Secondary rate limit hit (attempt 4/4)")
	assert.Contains(t, logs.String(), "Retry attempts exhausted")
}

func TestExecuteWithBackoff_MultiplierPersistsAcrossCalls(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	err := s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
		return secondaryLimitError(nil)
	}, 1)
	require.Error(t, err)
	assert.Equal(t, 4.0, s.State().Multiplier)

	require.NoError(t, s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
		return nil
	}, 1))
	assert.Equal(t, 1.0, s.State().Multiplier)
}

func TestExecuteWithBackoff_GenericErrorNoRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"transport error", errors.New("connection reset by peer")},
		{"not found", &ratelimit.ResponseError{StatusCode: http.StatusNotFound, Header: http.Header{}}},
		{"plain forbidden", &ratelimit.ResponseError{
			StatusCode: http.StatusForbidden,
			Header:     http.Header{"X-Ratelimit-Remaining": []string{"10"}},
			Message:    "Must have admin rights to Repository.",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock, _ := newTestScheduler(t)

			calls := 0
			err := s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
				calls++
				return tt.err
			}, 5)

			assert.Same(t, tt.err, err)
			assert.Equal(t, 1, calls)
			assert.Empty(t, clock.Sleeps())
		})
	}
}

func TestExecuteWithBackoff_NegativeMaxRetriesUsesDefault(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	calls := 0
	_ = s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
		calls++
		return secondaryLimitError(nil)
	}, -1)

	assert.Equal(t, DefaultMaxRetries+1, calls)
}

func TestExecuteWithBackoff_ContextCancelledDuringBackoff(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := s.ExecuteWithBackoff(ctx, func(context.Context) error {
		calls++
		cancel()
		return secondaryLimitError(nil)
	}, 5)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithBackoff_PanicDoesNotStopQueue(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	err := s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
		panic("boom")
	}, 5)
	assert.ErrorIs(t, err, ErrOperationPanicked)

	calls := 0
	err = s.ExecuteWithBackoff(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
