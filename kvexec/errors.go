package kvexec

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the executor's own failure modes (spec.md §7
// "Error handling design"), layered on top of the store package's
// sentinels: a caller can errors.Is against either depending on which
// boundary it cares about.
var (
	// ErrCancelled wraps a caller-initiated context cancellation.
	ErrCancelled = errors.New("kvexec: cancelled")
	// ErrDeadlineExceeded wraps an attempt or overall timeout expiring.
	ErrDeadlineExceeded = errors.New("kvexec: deadline exceeded")
	// ErrUnsupportedOperation marks a plan that needs a feature the
	// store deployment doesn't have (spec.md §5 "feature gating").
	ErrUnsupportedOperation = errors.New("kvexec: unsupported operation")
)

// classifyContextError maps a context error to the executor's own
// sentinel so callers never need to know whether a timeout came from
// an attempt deadline or the caller's own context.
func classifyContextError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrDeadlineExceeded, err)
	default:
		return err
	}
}
