// Package eventbus fans engine events out to subscribers.
//
// Each subscriber owns a bounded FIFO queue drained by its own goroutine,
// so a slow sink never blocks the publisher. When a queue is full,
// progress events for the same root collapse into the newest one and
// partial search batches for the same search merge; every other kind is
// still queued so that control events are never lost.
//
// Example usage:
//
//	bus := eventbus.New(eventbus.Config{}, logger.Default())
//	defer bus.Close()
//
//	sub := bus.Subscribe(eventbus.Kinds(eventbus.KindScanProgress, eventbus.KindCatalogReady),
//	    func(ev eventbus.Event) {
//	        fmt.Println(ev.Kind, ev.Root)
//	    })
//	defer sub.Close()
package eventbus

import (
	"time"

	"github.com/0xmhha/folder-search/pkg/query"
	"github.com/0xmhha/folder-search/pkg/scanner"
)

// Kind identifies an event. Kinds are distinct bits so they combine into a KindSet.
type Kind uint16

// Event kinds.
const (
	KindScanProgress Kind = 1 << iota
	KindScanBatch
	KindScanFinished
	KindSearchPartial
	KindSearchFinal
	KindCatalogReady
	KindCatalogInvalidated
	KindResultsStale
	KindWatcherUnavailable
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScanProgress:
		return "scan_progress"
	case KindScanBatch:
		return "scan_batch"
	case KindScanFinished:
		return "scan_finished"
	case KindSearchPartial:
		return "search_partial"
	case KindSearchFinal:
		return "search_final"
	case KindCatalogReady:
		return "catalog_ready"
	case KindCatalogInvalidated:
		return "catalog_invalidated"
	case KindResultsStale:
		return "results_stale"
	case KindWatcherUnavailable:
		return "watcher_unavailable"
	default:
		return "unknown"
	}
}

// KindSet selects the kinds a subscriber receives.
type KindSet uint16

// AllKinds selects every kind.
const AllKinds KindSet = 1<<9 - 1

// Kinds builds a set from individual kinds.
func Kinds(kinds ...Kind) KindSet {
	var set KindSet
	for _, k := range kinds {
		set |= KindSet(k)
	}
	return set
}

// Has reports whether k is in the set.
func (s KindSet) Has(k Kind) bool {
	return s&KindSet(k) != 0
}

// Event is one bus message. Which fields are set depends on Kind.
type Event struct {
	Kind Kind
	Time time.Time

	// Root is set for scan, catalog, staleness and watcher events.
	Root string

	// SearchID is set for search events.
	SearchID string

	// Progress is set for KindScanProgress.
	Progress scanner.Progress

	// Count is the number of entries in a KindScanBatch or the catalog
	// size for KindScanFinished and KindCatalogReady.
	Count int

	// Outcome is the terminal scan event for KindScanFinished.
	Outcome scanner.EventKind

	// Results is set for KindSearchPartial.
	Results []query.Result

	// Final is set for KindSearchFinal.
	Final *query.Final

	// Err describes failures for KindScanFinished, KindCatalogInvalidated
	// and KindWatcherUnavailable.
	Err error
}

// Sink receives events on a subscriber's dispatch goroutine.
type Sink func(Event)

// Config contains bus configuration.
type Config struct {
	// QueueSize bounds each subscriber's queue. Default: 256.
	QueueSize int
}
