package index

import "errors"

// Common errors returned by the index.
var (
	// ErrPositionRange is returned when a delta names a position the catalog does not hold.
	ErrPositionRange = errors.New("position out of catalog range")
)
