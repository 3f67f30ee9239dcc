package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xmhha/folder-search/pkg/logger"
	"github.com/0xmhha/folder-search/pkg/query"
)

const defaultQueueSize = 256

// Bus delivers events to subscribers. It is safe for concurrent use.
type Bus struct {
	logger    logger.Logger
	queueSize int

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	dropped atomic.Int64
}

// New creates a bus.
func New(cfg Config, log logger.Logger) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	return &Bus{
		logger:    log.With("component", "eventbus"),
		queueSize: cfg.QueueSize,
		subs:      make(map[*Subscription]struct{}),
	}
}

// Subscribe registers sink for the kinds in set and starts its dispatch goroutine.
func (b *Bus) Subscribe(set KindSet, sink Sink) *Subscription {
	sub := &Subscription{
		bus:    b,
		kinds:  set,
		sink:   sink,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.closed = true
		close(sub.done)
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.dispatch()
	return sub
}

// Publish queues ev for every interested subscriber without blocking.
func (b *Bus) Publish(ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	for sub := range b.subs {
		if sub.kinds.Has(ev.Kind) {
			sub.enqueue(ev, b.queueSize)
		}
	}
	return nil
}

// Dropped returns how many events were coalesced into queued ones.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close drains and stops every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
		<-sub.done
	}
}

// DiscardSearch drops the search events of searchID that are still queued
// for any subscriber. An event already handed to a sink is not recalled.
func (b *Bus) DiscardSearch(searchID string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		sub.discard(searchID)
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Subscription is one registered sink with its private queue.
type Subscription struct {
	bus   *Bus
	kinds KindSet
	sink  Sink

	mu     sync.Mutex
	queue  []Event
	closed bool

	signal chan struct{}
	done   chan struct{}
}

// Close unregisters the subscription. Events already queued are still delivered.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.stop()
}

// Done is closed once the dispatch goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// enqueue appends ev, coalescing when the queue is full.
func (s *Subscription) enqueue(ev Event, limit int) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if len(s.queue) >= limit && s.coalesce(ev) {
		s.mu.Unlock()
		s.bus.dropped.Add(1)
		return
	}

	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.wake()
}

// coalesce folds ev into the newest compatible queued event. A progress
// event replaces the queued one of its root and moves to the tail.
// Caller holds s.mu.
func (s *Subscription) coalesce(ev Event) bool {
	switch ev.Kind {
	case KindScanProgress:
		for i := len(s.queue) - 1; i >= 0; i-- {
			if q := s.queue[i]; q.Kind == KindScanProgress && q.Root == ev.Root {
				// The stale entry leaves its slot so ev keeps FIFO order behind
				// everything published before it.
				copy(s.queue[i:], s.queue[i+1:])
				s.queue[len(s.queue)-1] = ev
				return true
			}
		}
	case KindSearchPartial:
		for i := len(s.queue) - 1; i >= 0; i-- {
			q := &s.queue[i]
			if q.Kind == KindSearchPartial && q.SearchID == ev.SearchID {
				merged := make([]query.Result, 0, len(q.Results)+len(ev.Results))
				merged = append(merged, q.Results...)
				q.Results = append(merged, ev.Results...)
				q.Time = ev.Time
				return true
			}
		}
	}
	return false
}

// discard removes the queued search events of searchID.
func (s *Subscription) discard(searchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.queue[:0]
	for _, ev := range s.queue {
		if ev.SearchID == searchID && (ev.Kind == KindSearchPartial || ev.Kind == KindSearchFinal) {
			continue
		}
		kept = append(kept, ev)
	}
	clear(s.queue[len(kept):])
	s.queue = kept
}

// dispatch drains the queue into the sink until the subscription stops.
func (s *Subscription) dispatch() {
	defer close(s.done)

	for range s.signal {
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				closed := s.closed
				s.mu.Unlock()
				if closed {
					return
				}
				break
			}
			ev := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()

			s.deliver(ev)
		}
	}
}

func (s *Subscription) deliver(ev Event) {
	defer logger.Recover(s.bus.logger, "event sink")
	s.sink(ev)
}
