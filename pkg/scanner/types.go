// Package scanner crawls a root breadth-first and streams directory entries.
//
// A scan emits an initial Progress, any number of Batch and Progress events,
// and exactly one terminal event (Finished, Aborted or Failed). The event
// channel is closed after the terminal event.
//
// Example usage:
//
//	s := scanner.New(logger.Default())
//	for ev := range s.Scan(ctx, "/home/me/work", scanner.DefaultOptions()) {
//	    switch ev.Kind {
//	    case scanner.EventBatch:
//	        _ = cat.AppendBatch(ev.Entries)
//	    case scanner.EventFinished:
//	        _ = cat.Seal(ev.Total)
//	    }
//	}
package scanner

import (
	"context"
	"time"

	"github.com/0xmhha/folder-search/pkg/catalog"
)

// EventKind identifies the variant of an Event.
type EventKind uint8

// Scan event kinds.
const (
	EventProgress EventKind = iota + 1
	EventBatch
	EventFinished
	EventAborted
	EventFailed
)

// String returns a human-readable event name.
func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "PROGRESS"
	case EventBatch:
		return "BATCH"
	case EventFinished:
		return "FINISHED"
	case EventAborted:
		return "ABORTED"
	case EventFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the kind ends a scan.
func (k EventKind) Terminal() bool {
	return k == EventFinished || k == EventAborted || k == EventFailed
}

// AbortReason explains an Aborted event.
type AbortReason uint8

// Abort reasons.
const (
	AbortCancelled AbortReason = iota + 1
	AbortTimeBudget
)

// String returns a human-readable reason.
func (r AbortReason) String() string {
	switch r {
	case AbortCancelled:
		return "cancelled"
	case AbortTimeBudget:
		return "time budget"
	default:
		return "unknown"
	}
}

// StopReason explains why a finished scan stopped.
type StopReason uint8

// Stop reasons.
const (
	StopCompleted StopReason = iota
	StopMaxDirectories
	StopMaxDepth
	StopWallTime
)

// String returns a human-readable reason.
func (r StopReason) String() string {
	switch r {
	case StopCompleted:
		return "completed"
	case StopMaxDirectories:
		return "max directories"
	case StopMaxDepth:
		return "max depth"
	case StopWallTime:
		return "wall time"
	default:
		return "unknown"
	}
}

// Progress reports how far a scan has come.
type Progress struct {
	// Processed is the number of directories examined so far.
	Processed int

	// EstimatedTotal is a lower bound on the directory count. It never decreases.
	EstimatedTotal int

	// Rate is directories examined per second.
	Rate float64
}

// Event is one message of a scan stream.
type Event struct {
	Kind EventKind

	// Root is the normalized root being scanned.
	Root string

	// Progress is set for EventProgress.
	Progress Progress

	// Entries is set for EventBatch, in catalog order.
	Entries []catalog.Entry

	// Total, Inaccessible, Truncated and StopReason are set for EventFinished.
	Total        int
	Inaccessible int
	Truncated    bool
	StopReason   StopReason

	// AbortReason is set for EventAborted.
	AbortReason AbortReason

	// Err is set for EventFailed and wraps ErrRootUnavailable.
	Err error

	// Elapsed is the scan duration for terminal events.
	Elapsed time.Duration
}

// Options tunes a scan.
type Options struct {
	// MaxDirectories caps the number of cataloged directories, the root
	// included. Zero or less means unlimited.
	MaxDirectories int

	// MaxDepth caps how deep the scan descends; children of the root are at
	// depth 1. Zero or less means unlimited.
	MaxDepth int

	// MaxWallTime is the time budget. A positive budget that runs out ends
	// the scan with a truncated Finished holding every directory admitted so
	// far. Zero aborts before the first directory; negative means unlimited.
	MaxWallTime time.Duration

	// BatchSize is the number of entries per Batch event. Default: 500.
	BatchSize int

	// SkipFolders lists basenames that are never descended into.
	SkipFolders []string

	// IgnorePatterns are gitignore-style patterns matched on the relative path.
	IgnorePatterns []string
}

// DefaultSkipFolders are the basenames skipped unless overridden.
var DefaultSkipFolders = []string{
	".git",
	"node_modules",
	"__pycache__",
	"$RECYCLE.BIN",
	"System Volume Information",
	".Trash",
	".venv",
	"venv",
	"dist",
	"build",
	".idea",
	".vscode",
	".pytest_cache",
}

// DefaultOptions returns the standard scan options.
func DefaultOptions() Options {
	return Options{
		MaxWallTime: 30 * time.Second,
		BatchSize:   500,
		SkipFolders: append([]string(nil), DefaultSkipFolders...),
	}
}

// Scanner crawls directory trees.
type Scanner interface {
	// Scan starts crawling root and returns the event stream.
	//
	// The stream always ends with exactly one terminal event and is then
	// closed. Cancelling ctx aborts the scan with AbortCancelled.
	Scan(ctx context.Context, root string, opts Options) <-chan Event

	// Cancel aborts every scan started by this scanner.
	Cancel()
}
