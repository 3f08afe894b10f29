package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrElementNotFound is returned when no locator matched an element
	ErrElementNotFound = errors.New("element not found")

	// ErrWaitTimeout is returned when a wait condition was not met in time
	ErrWaitTimeout = errors.New("condition not met before max wait")

	// ErrTabNotFound means no national phase tab strategy matched
	ErrTabNotFound = errors.New("national phase tab not found")

	// ErrTableNotFound means the national phase table never populated
	ErrTableNotFound = errors.New("national phase table not found")

	// ErrNoData marks an attempt that populated no field at all
	ErrNoData = errors.New("no fields extracted")

	// ErrPoolClosed is returned by a pool after Close
	ErrPoolClosed = errors.New("crawler pool closed")
)

// NavigationError wraps a failed page load.
type NavigationError struct {
	URL       string
	Transient bool
	Err       error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is returned once every attempt failed with a
// retryable error.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// IsRetryable reports whether err is worth another attempt: attempt
// timeouts, transient navigation failures, incomplete page loads and
// temporary network errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrWaitTimeout) || errors.Is(err, ErrNoData) {
		return true
	}

	var navErr *NavigationError
	if errors.As(err, &navErr) {
		return navErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection-level failures (refused, reset) are worth another attempt
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
