package scanner

import "errors"

// Common errors returned by the scanner.
var (
	// ErrRootUnavailable is returned when the root is missing, not a
	// directory, or cannot be listed.
	ErrRootUnavailable = errors.New("root unavailable")
)
