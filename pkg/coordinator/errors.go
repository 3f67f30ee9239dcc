package coordinator

import "errors"

// Common errors returned by the coordinator.
var (
	// ErrClosed is returned when using a closed coordinator.
	ErrClosed = errors.New("coordinator is closed")

	// ErrUnknownRoot is returned for a root that is not configured.
	ErrUnknownRoot = errors.New("root is not configured")

	// ErrEmptyWorkDir is returned when no working directory is configured.
	ErrEmptyWorkDir = errors.New("working directory is empty")
)
