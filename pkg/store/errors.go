package store

import "errors"

// Common errors returned by the store.
var (
	// ErrCatalogCorrupt is returned when a catalog file fails its length or
	// structure checks. The file has been removed when this is returned.
	ErrCatalogCorrupt = errors.New("catalog file corrupt")

	// ErrStorageFailure is returned when a catalog or state record cannot be written.
	ErrStorageFailure = errors.New("storage failure")

	// ErrStoreClosed is returned when using a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrEmptyDir is returned when the store has no working directory.
	ErrEmptyDir = errors.New("store directory is empty")
)
