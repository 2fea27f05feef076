// Package scheduler serializes outbound API calls through a single FIFO
// queue and retries them when GitHub reports a primary or secondary rate
// limit.
//
// Every operation submitted to one Scheduler runs strictly after the one
// submitted before it, never concurrently. Between dispatches the scheduler
// keeps at least MinDelay*Multiplier of spacing; the multiplier doubles on
// each secondary limit hit and resets on the next success, so throttling
// seen by one caller slows down every caller sharing the instance.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxRetries is used when a negative maxRetries is passed.
const DefaultMaxRetries = 5

// Config holds the pacing configuration.
type Config struct {
	// MinDelay is the base spacing between dispatched operations.
	MinDelay time.Duration

	// MaxBackoff caps MinDelay*Multiplier.
	MaxBackoff time.Duration
}

// DefaultConfig returns the spacing GitHub recommends for avoiding
// secondary rate limits.
func DefaultConfig() Config {
	return Config{
		MinDelay:   1 * time.Second,
		MaxBackoff: 60 * time.Second,
	}
}

// Operation is one remote call. It is invoked once per attempt.
type Operation func(ctx context.Context) error

type queuedRequest struct {
	ctx        context.Context
	op         Operation
	maxRetries int
	done       chan error
}

// Scheduler runs operations one at a time in submission order.
type Scheduler struct {
	logger zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	pending  []*queuedRequest
	draining bool

	stateMu sync.Mutex
	state   BackoffState
}

// New creates a Scheduler. Zero config fields fall back to DefaultConfig.
func New(cfg Config, logger zerolog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = def.MinDelay
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}

	return &Scheduler{
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
		state:  newBackoffState(cfg.MinDelay, cfg.MaxBackoff),
	}
}

// ExecuteWithBackoff queues op and blocks until its slot has run. The
// operation is retried up to maxRetries times on primary or secondary rate
// limits; any other error is returned after the first attempt. The returned
// error is the operation's own, unwrapped.
//
// If ctx is done before the slot is reached, the operation is skipped and
// ctx.Err() is returned.
func (s *Scheduler) ExecuteWithBackoff(ctx context.Context, op Operation, maxRetries int) error {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	r := &queuedRequest{
		ctx:        ctx,
		op:         op,
		maxRetries: maxRetries,
		done:       make(chan error, 1),
	}
	s.enqueue(r)

	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do is ExecuteWithBackoff for operations that produce a value.
func Do[T any](ctx context.Context, s *Scheduler, op func(ctx context.Context) (T, error), maxRetries int) (T, error) {
	return DoWithRelease(ctx, s, op, maxRetries, nil)
}

// DoWithRelease is Do for values that hold resources, such as an
// *http.Response. If the caller gives up on ctx before the value is
// delivered, release is called with it once the operation finishes.
func DoWithRelease[T any](ctx context.Context, s *Scheduler, op func(ctx context.Context) (T, error), maxRetries int, release func(T)) (T, error) {
	var (
		mu        sync.Mutex
		result    T
		have      bool
		abandoned bool
	)

	err := s.ExecuteWithBackoff(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			if release != nil {
				release(v)
			}
			return nil
		}
		result, have = v, true
		return nil
	}, maxRetries)

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		abandoned = true
		if have && release != nil {
			release(result)
		}
		var zero T
		return zero, err
	}
	return result, nil
}

// State returns a snapshot of the backoff state.
func (s *Scheduler) State() BackoffState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Reset restores the multiplier to 1 and forgets the last dispatch time.
func (s *Scheduler) Reset() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = newBackoffState(s.state.MinDelay, s.state.MaxBackoff)
	schedulerBackoffMultiplier.Set(1)
}

// Pending returns the number of queued operations that have not started.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) enqueue(r *queuedRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, r)
	schedulerQueueDepth.Set(float64(len(s.pending)))

	if !s.draining {
		s.draining = true
		go s.drain()
	}
}

// drain processes queued requests until the queue is empty. At most one
// drain goroutine exists per Scheduler.
func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		r := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		schedulerQueueDepth.Set(float64(len(s.pending)))
		s.mu.Unlock()

		r.done <- s.run(r)
	}
}

func (s *Scheduler) pacingDelay() time.Duration {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state.PacingDelay(s.now())
}

func (s *Scheduler) markDispatched() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state.MarkDispatched(s.now())
}

func (s *Scheduler) resetMultiplier() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state.ResetMultiplier()
	schedulerBackoffMultiplier.Set(1)
}

func (s *Scheduler) growMultiplier() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state.Grow()
	schedulerBackoffMultiplier.Set(s.state.Multiplier)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
