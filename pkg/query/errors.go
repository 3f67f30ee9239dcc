package query

import "errors"

// Common errors returned by the query package.
var (
	// ErrUnknownMode is returned when a mode name is not recognized.
	ErrUnknownMode = errors.New("unknown search mode")
)
