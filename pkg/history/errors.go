package history

import "errors"

// Common errors returned by the history package.
var (
	// ErrEmptyDir is returned when no working directory is given.
	ErrEmptyDir = errors.New("history directory not specified")

	// ErrUnknownMethod is returned for a method other than C, M or T.
	ErrUnknownMethod = errors.New("unknown search method")
)
