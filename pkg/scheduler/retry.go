package scheduler

import (
	"time"

	"github.com/Sternrassler/portal-api-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for scheduled operations.
var (
	schedulerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portal_scheduler_queue_depth",
		Help: "Number of operations waiting in the scheduler queue",
	})

	schedulerAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_scheduler_attempts_total",
		Help: "Total number of operation invocations, including retries",
	})

	schedulerRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_scheduler_retries_total",
		Help: "Total number of retries by rate limit class",
	}, []string{"class"})

	schedulerBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_scheduler_backoff_seconds",
		Help:    "Wait before a retry by rate limit class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300, 3600},
	}, []string{"class"})

	schedulerExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_scheduler_retry_exhausted_total",
		Help: "Total number of operations that exhausted their retries by rate limit class",
	}, []string{"class"})

	schedulerBackoffMultiplier = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portal_scheduler_backoff_multiplier",
		Help: "Current backoff multiplier applied to the minimum request spacing",
	})
)

// run executes one queued request with pacing, rate limit retries and
// multiplier bookkeeping. It is only called from the drain loop.
func (s *Scheduler) run(r *queuedRequest) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error().Interface("panic", p).Msg("Scheduled operation panicked")
			err = &panicError{value: p}
		}
	}()

	if err := r.ctx.Err(); err != nil {
		return err
	}

	maxAttempts := r.maxRetries + 1
	var lastErr error
	var lastClass ratelimit.Class

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if wait := s.pacingDelay(); wait > 0 {
			if err := s.sleep(r.ctx, wait); err != nil {
				return err
			}
		}

		s.markDispatched()
		schedulerAttemptsTotal.Inc()

		opErr := r.op(r.ctx)
		if opErr == nil {
			s.resetMultiplier()
			if attempt > 0 {
				s.logger.Info().
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = opErr
		lastClass = ratelimit.Classify(opErr)

		var wait time.Duration
		switch lastClass {
		case ratelimit.ClassSecondary:
			s.logger.Warn().
				Int("attempt", attempt+1).
				Int("max_attempts", maxAttempts).
				Msgf("Secondary rate limit hit (attempt %d/%d)", attempt+1, maxAttempts)
			wait = ratelimit.RetryAfter(opErr, attempt)
			s.growMultiplier()

		case ratelimit.ClassPrimary:
			var ok bool
			wait, ok = ratelimit.PrimaryResetWait(opErr, s.now())
			if !ok {
				wait = ratelimit.ExponentialBackoff(attempt)
			}
			s.logger.Warn().
				Int("attempt", attempt+1).
				Int("max_attempts", maxAttempts).
				Msgf("Primary rate limit hit (attempt %d/%d)", attempt+1, maxAttempts)

		default:
			return opErr
		}

		if attempt == r.maxRetries {
			continue
		}

		schedulerRetriesTotal.WithLabelValues(string(lastClass)).Inc()
		schedulerBackoffSeconds.WithLabelValues(string(lastClass)).Observe(wait.Seconds())
		s.logger.Info().
			Dur("wait", wait).
			Msgf("Waiting %dms before retry...", wait.Milliseconds())

		if err := s.sleep(r.ctx, wait); err != nil {
			return err
		}
	}

	schedulerExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	s.logger.Error().
		Err(lastErr).
		Str("class", string(lastClass)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return lastErr
}
