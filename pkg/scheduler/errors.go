package scheduler

import (
	"errors"
	"fmt"
)

// ErrOperationPanicked is returned to the caller whose operation panicked.
// The drain loop recovers and continues with the next queued entry.
var ErrOperationPanicked = errors.New("operation panicked")

// panicError carries the recovered value.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("%v: %v", ErrOperationPanicked, e.value)
}

func (e *panicError) Unwrap() error {
	return ErrOperationPanicked
}
