package pipeline

import "errors"

var (
	// ErrTotalFailure is returned with the report when every layer failed or
	// timed out.
	ErrTotalFailure = errors.New("all pipeline layers failed")

	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid pipeline request")

	// errNotConfigured marks a layer whose lookup service was not wired.
	errNotConfigured = errors.New("lookup service not configured")
)
