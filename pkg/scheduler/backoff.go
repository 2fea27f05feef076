package scheduler

import (
	"time"
)

// BackoffState is the pacing state of one Scheduler. It is only mutated
// by the scheduler's drain loop.
type BackoffState struct {
	// Multiplier scales MinDelay between dispatches. It is at least 1,
	// doubles on every secondary limit hit up to MaxBackoff/MinDelay and
	// resets to 1 on success.
	Multiplier float64

	// LastRequestTime is when the last operation was dispatched.
	LastRequestTime time.Time

	MinDelay   time.Duration
	MaxBackoff time.Duration
}

func newBackoffState(minDelay, maxBackoff time.Duration) BackoffState {
	return BackoffState{
		Multiplier: 1,
		MinDelay:   minDelay,
		MaxBackoff: maxBackoff,
	}
}

// PacingDelay returns how long to wait at now before the next dispatch:
// max(0, MinDelay*Multiplier - (now - LastRequestTime)).
func (b *BackoffState) PacingDelay(now time.Time) time.Duration {
	spacing := time.Duration(float64(b.MinDelay) * b.Multiplier)
	wait := spacing - now.Sub(b.LastRequestTime)
	if wait < 0 {
		return 0
	}
	return wait
}

// MarkDispatched records a dispatch at now.
func (b *BackoffState) MarkDispatched(now time.Time) {
	b.LastRequestTime = now
}

// Grow doubles the multiplier, capped at MaxBackoff/MinDelay.
func (b *BackoffState) Grow() {
	b.Multiplier *= 2
	if ceiling := b.maxMultiplier(); b.Multiplier > ceiling {
		b.Multiplier = ceiling
	}
}

// ResetMultiplier sets the multiplier back to 1.
func (b *BackoffState) ResetMultiplier() {
	b.Multiplier = 1
}

func (b *BackoffState) maxMultiplier() float64 {
	if b.MinDelay <= 0 {
		return 1
	}
	ceiling := float64(b.MaxBackoff) / float64(b.MinDelay)
	if ceiling < 1 {
		return 1
	}
	return ceiling
}
