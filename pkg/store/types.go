// Package store persists catalogs and per-root state in the working directory.
//
// Each root's catalog lives in its own binary file, cache_<root_hash>.bin.
// Scan bookkeeping for every root is kept in a small bbolt database,
// state.db, and writers from different processes are serialized through
// store.lock.
//
// Example usage:
//
//	st, err := store.New(store.Config{Dir: workDir}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	cat, err := st.Load("/home/me/work")
//	if cat == nil && err == nil {
//	    // nothing persisted yet, rescan
//	}
package store

import (
	"time"

	"github.com/0xmhha/folder-search/pkg/catalog"
)

// WatcherState describes how a root is kept fresh.
type WatcherState string

// Watcher states.
const (
	WatcherIdle        WatcherState = "idle"
	WatcherActive      WatcherState = "active"
	WatcherUnavailable WatcherState = "unavailable"
)

// RootState is the bookkeeping record stored per root.
type RootState struct {
	Path         string        `json:"path"`
	Hash         string        `json:"hash"`
	LastScanned  time.Time     `json:"last_scanned"`
	Total        int           `json:"total"`
	Inaccessible int           `json:"inaccessible"`
	ScanDuration time.Duration `json:"scan_duration"`
	WatcherState WatcherState  `json:"watcher_state,omitempty"`
}

// Store persists catalogs and root state.
type Store interface {
	// Save writes a compacted snapshot of cat to its catalog file.
	Save(cat *catalog.Catalog) error

	// Load reads the catalog file for root.
	//
	// Returns nil, nil when there is no usable file: missing, or written for
	// another format version or root. A damaged file is removed and
	// ErrCatalogCorrupt is returned.
	Load(root string) (*catalog.Catalog, error)

	// Invalidate removes the catalog file and state record for root.
	Invalidate(root string) error

	// CatalogPath returns the catalog file path for root.
	CatalogPath(root string) string

	// State returns the stored record for root.
	State(root string) (RootState, bool, error)

	// PutState stores a record, keyed by its root hash.
	PutState(state RootState) error

	// States returns every stored record.
	States() ([]RootState, error)

	// Close releases the database.
	Close() error
}

// Config contains store configuration.
type Config struct {
	// Dir is the working directory holding catalog files and state.db.
	Dir string

	// Timeout bounds waiting for state.db when another process holds it.
	// Default: 1s.
	Timeout time.Duration
}
