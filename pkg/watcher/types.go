// Package watcher reports directory changes under a root in real time.
//
// It subscribes to every directory of the tree through fsnotify and turns
// raw notifications into catalog.Change records: only directories are
// reported, a rename followed by a create of the same directory becomes a
// single Moved, and repeated attribute changes are debounced.
//
// Example usage:
//
//	w, err := watcher.New(watcher.Config{
//	    SkipFolders: scanner.DefaultSkipFolders,
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	if err := w.Start(ctx, "/home/me/work"); err != nil {
//	    log.Printf("watching disabled: %v", err)
//	}
//
//	for ev := range w.Events() {
//	    if ev.Kind == watcher.EventUnavailable {
//	        break
//	    }
//	    fmt.Println(ev.Change)
//	}
package watcher

import (
	"context"
	"time"

	"github.com/0xmhha/folder-search/pkg/catalog"
)

// EventKind identifies a watcher event.
type EventKind uint8

// Watcher event kinds.
const (
	// EventChange carries a directory change.
	EventChange EventKind = iota + 1

	// EventUnavailable reports that the watcher stopped working. It is
	// the last event of a session.
	EventUnavailable
)

// String returns a human-readable kind name.
func (k EventKind) String() string {
	switch k {
	case EventChange:
		return "CHANGE"
	case EventUnavailable:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// Event is one message from the watcher.
type Event struct {
	Kind EventKind

	// Root is the watched root the event belongs to.
	Root string

	// Change is set for EventChange.
	Change catalog.Change

	// Err is set for EventUnavailable and wraps ErrUnavailable.
	Err error

	// Timestamp is when the event was produced.
	Timestamp time.Time
}

// Watcher watches one root at a time.
type Watcher interface {
	// Start subscribes to root and every directory below it.
	//
	// The session lasts until Stop, Close or ctx is done. When setup
	// fails, one EventUnavailable is sent and the returned error wraps
	// ErrUnavailable.
	Start(ctx context.Context, root string) error

	// Stop ends the current session within StopTimeout. Start may be
	// called again afterwards.
	Stop() error

	// Events returns the event channel. It stays open across sessions
	// and is closed by Close.
	Events() <-chan Event

	// Close stops watching and releases resources.
	Close() error
}

// Config contains watcher configuration.
type Config struct {
	// DebounceInterval coalesces repeated modifications of one path.
	// Default: 100ms.
	DebounceInterval time.Duration

	// PairWindow is how long a rename waits for the matching create
	// before it is reported as a deletion. Default: 100ms.
	PairWindow time.Duration

	// SetupBudget bounds the initial recursive subscription. Default: 1s.
	SetupBudget time.Duration

	// StopTimeout bounds Stop. Default: 1s.
	StopTimeout time.Duration

	// CircuitBreakerThreshold is the number of consecutive fsnotify
	// errors after which the watcher gives up. Default: 5.
	CircuitBreakerThreshold int

	// BufferSize is the capacity of the event channel. Default: 256.
	BufferSize int

	// SkipFolders lists basenames that are neither watched nor reported.
	SkipFolders []string

	// IgnorePatterns are gitignore-style patterns matched on the path
	// relative to the root. Matching directories are neither watched nor
	// reported.
	IgnorePatterns []string
}
