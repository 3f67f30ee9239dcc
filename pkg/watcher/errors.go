package watcher

import "errors"

// Common errors returned by the watcher.
var (
	// ErrWatcherClosed is returned when attempting to use a closed watcher.
	ErrWatcherClosed = errors.New("watcher is closed")

	// ErrAlreadyStarted is returned when Start is called on a running watcher.
	ErrAlreadyStarted = errors.New("watcher already started")

	// ErrNotStarted is returned when Stop is called on a non-running watcher.
	ErrNotStarted = errors.New("watcher not started")

	// ErrInvalidPath is returned when the root is not an existing directory.
	ErrInvalidPath = errors.New("invalid watch path")

	// ErrUnavailable is wrapped by every error that disables a session.
	ErrUnavailable = errors.New("watcher unavailable")

	// ErrCircuitBreakerOpen is the cause when too many errors occurred in a row.
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrSetupBudget is the cause when the initial subscription took too long.
	ErrSetupBudget = errors.New("setup budget exceeded")

	// ErrRootRemoved is the cause when the watched root disappeared.
	ErrRootRemoved = errors.New("watched root removed")

	// ErrStopTimeout is returned when the event loop did not exit in time.
	ErrStopTimeout = errors.New("watcher stop timed out")
)
