package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/folder-search/pkg/logger"
	"github.com/0xmhha/folder-search/pkg/query"
	"github.com/0xmhha/folder-search/pkg/scanner"
)

// recorder is a sink that stores events and can be held closed.
type recorder struct {
	mu     sync.Mutex
	events []Event
	gate   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) sink(ev Event) {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestKindSet(t *testing.T) {
	set := Kinds(KindScanProgress, KindSearchFinal)
	assert.True(t, set.Has(KindScanProgress))
	assert.True(t, set.Has(KindSearchFinal))
	assert.False(t, set.Has(KindScanBatch))
	assert.True(t, AllKinds.Has(KindWatcherUnavailable))
	assert.Equal(t, "results_stale", KindResultsStale.String())
}

func TestPublishFiltersAndOrders(t *testing.T) {
	bus := New(Config{}, logger.Noop())

	rec := newRecorder()
	bus.Subscribe(Kinds(KindCatalogReady, KindResultsStale), rec.sink)

	require.NoError(t, bus.Publish(Event{Kind: KindCatalogReady, Root: "/a"}))
	require.NoError(t, bus.Publish(Event{Kind: KindScanBatch, Root: "/a"}))
	require.NoError(t, bus.Publish(Event{Kind: KindResultsStale, Root: "/a"}))
	require.NoError(t, bus.Publish(Event{Kind: KindCatalogReady, Root: "/b"}))

	bus.Close()

	events := rec.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, KindCatalogReady, events[0].Kind)
	assert.Equal(t, KindResultsStale, events[1].Kind)
	assert.Equal(t, "/b", events[2].Root)
	assert.False(t, events[0].Time.IsZero())

	assert.ErrorIs(t, bus.Publish(Event{Kind: KindCatalogReady}), ErrBusClosed)
}

func TestFullQueueCoalescesProgress(t *testing.T) {
	bus := New(Config{QueueSize: 2}, logger.Noop())

	rec := newRecorder()
	rec.gate = make(chan struct{})
	bus.Subscribe(AllKinds, rec.sink)

	// The first event is taken by the dispatcher and blocks on the gate.
	require.NoError(t, bus.Publish(Event{Kind: KindScanFinished, Root: "/a"}))
	time.Sleep(50 * time.Millisecond)

	for i := 1; i <= 10; i++ {
		require.NoError(t, bus.Publish(Event{
			Kind:     KindScanProgress,
			Root:     "/a",
			Progress: scanner.Progress{Processed: i},
		}))
	}
	require.NoError(t, bus.Publish(Event{Kind: KindCatalogReady, Root: "/a"}))

	close(rec.gate)
	bus.Close()

	events := rec.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, KindScanFinished, events[0].Kind)
	assert.Equal(t, KindCatalogReady, events[len(events)-1].Kind, "control events are never dropped")

	last := 0
	for _, ev := range events {
		if ev.Kind == KindScanProgress {
			assert.Greater(t, ev.Progress.Processed, last, "progress stays in order")
			last = ev.Progress.Processed
		}
	}
	assert.Equal(t, 10, last, "newest progress survives")
	assert.Positive(t, bus.Dropped())
}

func TestCoalescedProgressKeepsOrder(t *testing.T) {
	bus := New(Config{QueueSize: 2}, logger.Noop())

	rec := newRecorder()
	rec.gate = make(chan struct{})
	bus.Subscribe(AllKinds, rec.sink)

	require.NoError(t, bus.Publish(Event{Kind: KindScanFinished, Root: "/a"}))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, bus.Publish(Event{Kind: KindScanProgress, Root: "/a", Progress: scanner.Progress{Processed: 1}}))
	require.NoError(t, bus.Publish(Event{Kind: KindScanBatch, Root: "/a", Count: 7}))
	require.NoError(t, bus.Publish(Event{Kind: KindScanProgress, Root: "/a", Progress: scanner.Progress{Processed: 2}}))

	close(rec.gate)
	bus.Close()

	events := rec.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, KindScanFinished, events[0].Kind)
	assert.Equal(t, KindScanBatch, events[1].Kind, "batch published first is delivered first")
	assert.Equal(t, KindScanProgress, events[2].Kind)
	assert.Equal(t, 2, events[2].Progress.Processed)
	assert.Equal(t, int64(1), bus.Dropped())
}

func TestDiscardSearch(t *testing.T) {
	bus := New(Config{}, logger.Noop())

	rec := newRecorder()
	rec.gate = make(chan struct{})
	bus.Subscribe(AllKinds, rec.sink)

	require.NoError(t, bus.Publish(Event{Kind: KindResultsStale, Root: "/a"}))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, bus.Publish(Event{Kind: KindSearchPartial, SearchID: "s1", Results: []query.Result{{Name: "a"}}}))
	require.NoError(t, bus.Publish(Event{Kind: KindSearchPartial, SearchID: "s2", Results: []query.Result{{Name: "b"}}}))
	require.NoError(t, bus.Publish(Event{Kind: KindSearchFinal, SearchID: "s1", Final: &query.Final{}}))
	require.NoError(t, bus.Publish(Event{Kind: KindCatalogReady, Root: "/a"}))

	bus.DiscardSearch("s1")
	close(rec.gate)
	bus.Close()

	events := rec.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, KindResultsStale, events[0].Kind)
	assert.Equal(t, KindSearchPartial, events[1].Kind)
	assert.Equal(t, "s2", events[1].SearchID)
	assert.Equal(t, KindCatalogReady, events[2].Kind)
}

func TestFullQueueMergesPartials(t *testing.T) {
	bus := New(Config{QueueSize: 1}, logger.Noop())

	rec := newRecorder()
	rec.gate = make(chan struct{})
	bus.Subscribe(AllKinds, rec.sink)

	require.NoError(t, bus.Publish(Event{Kind: KindResultsStale}))
	time.Sleep(50 * time.Millisecond)

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(Event{
			Kind:     KindSearchPartial,
			SearchID: "s1",
			Results:  []query.Result{{Name: name}},
		}))
	}

	close(rec.gate)
	bus.Close()

	var names []string
	for _, ev := range rec.snapshot() {
		if ev.Kind == KindSearchPartial {
			for _, r := range ev.Results {
				names = append(names, r.Name)
			}
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, int64(2), bus.Dropped())
}

func TestSubscriptionClose(t *testing.T) {
	bus := New(Config{}, logger.Noop())
	defer bus.Close()

	rec := newRecorder()
	sub := bus.Subscribe(AllKinds, rec.sink)

	require.NoError(t, bus.Publish(Event{Kind: KindCatalogReady}))
	sub.Close()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatch goroutine did not exit")
	}

	require.NoError(t, bus.Publish(Event{Kind: KindCatalogReady}))
	assert.Len(t, rec.snapshot(), 1)
}

func TestSinkPanicRecovered(t *testing.T) {
	bus := New(Config{}, logger.Noop())

	calls := 0
	bus.Subscribe(AllKinds, func(ev Event) {
		calls++
		if calls == 1 {
			panic("sink failure")
		}
	})

	require.NoError(t, bus.Publish(Event{Kind: KindCatalogReady}))
	require.NoError(t, bus.Publish(Event{Kind: KindCatalogReady}))
	bus.Close()

	assert.Equal(t, 2, calls)
}

func TestSubscribeAfterClose(t *testing.T) {
	bus := New(Config{}, logger.Noop())
	bus.Close()

	sub := bus.Subscribe(AllKinds, func(Event) {})
	select {
	case <-sub.Done():
	default:
		t.Error("subscription on a closed bus should be done")
	}
}
