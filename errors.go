package xwait

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled signals that a pending wait was settled by its token
	// transitioning to cancelled. It is expected control flow for the
	// caller, not a crash condition.
	ErrCancelled = errors.New("xwait: operation cancelled")

	// ErrCompleted is returned once the push source has completed and the
	// buffer holds no more matching events.
	ErrCompleted = errors.New("xwait: listener completed")

	// ErrWaitPending reports a WaitFor issued while another WaitFor is
	// still outstanding on the same listener.
	ErrWaitPending = errors.New("xwait: wait already pending")
)

// Cancelled builds a cancellation error carrying reason. Match it with
// errors.Is(err, ErrCancelled). An empty reason yields ErrCancelled itself.
func Cancelled(reason string) error {
	if reason == "" {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %s", ErrCancelled, reason)
}
