package pathstore

import "errors"

// Common errors returned by the pathstore package.
var (
	// ErrEmptyPath is returned when an empty path is normalized.
	ErrEmptyPath = errors.New("empty path")

	// ErrInvalidPath is returned when a path cannot be made absolute.
	ErrInvalidPath = errors.New("invalid path")
)
