package eventbus

import "errors"

// Common errors returned by the bus.
var (
	// ErrBusClosed is reported by Publish after Close.
	ErrBusClosed = errors.New("event bus closed")
)
