package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/stream"

	"github.com/0xmhha/folder-search/pkg/catalog"
	"github.com/0xmhha/folder-search/pkg/eventbus"
	"github.com/0xmhha/folder-search/pkg/history"
	"github.com/0xmhha/folder-search/pkg/index"
	"github.com/0xmhha/folder-search/pkg/logger"
	"github.com/0xmhha/folder-search/pkg/query"
	"github.com/0xmhha/folder-search/pkg/scanner"
)

const (
	// searchBuffer is the capacity of a search's event channel.
	searchBuffer = 16

	// liveGrace is how long a live walk may overrun its budget before its
	// context expires.
	liveGrace = 250 * time.Millisecond
)

// Search is the handle of one running search.
type Search struct {
	// ID identifies the search on the event bus.
	ID string

	Query query.Query

	ctx    context.Context
	cancel context.CancelFunc
	events  chan SearchEvent
	bus     func(eventbus.Event)
	discard func(searchID string)

	mu        sync.Mutex
	cancelled bool
}

// Events returns the result stream. It delivers one or more Partial events
// followed by one Final, then closes. A cancelled search closes without a Final.
func (s *Search) Events() <-chan SearchEvent {
	return s.events
}

// Cancel stops the search. Once Cancel returns, nothing more is delivered
// for it, neither on the stream nor on the bus: events still buffered on
// the stream or queued for bus subscribers are dropped, and the stream
// closes without a Final.
func (s *Search) Cancel() {
	s.cancel()

	s.mu.Lock()
	already := s.cancelled
	s.cancelled = true
	s.mu.Unlock()
	if already {
		return
	}

	// deliver no longer sends, so the buffer only shrinks from here.
	for drained := false; !drained; {
		select {
		case _, ok := <-s.events:
			drained = !ok
		default:
			drained = true
		}
	}
	s.discard(s.ID)
}

// deliver sends ev to the stream and the bus unless the search was
// cancelled. It reports whether ev was delivered.
func (s *Search) deliver(ev SearchEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled || s.ctx.Err() != nil {
		return false
	}

	select {
	case s.events <- ev:
	case <-s.ctx.Done():
		return false
	}

	busEv := eventbus.Event{SearchID: s.ID}
	if ev.Final != nil {
		busEv.Kind = eventbus.KindSearchFinal
		busEv.Final = ev.Final
	} else {
		busEv.Kind = eventbus.KindSearchPartial
		busEv.Results = ev.Partial
	}
	s.bus(busEv)
	return true
}

func (s *Search) partial(results []query.Result) bool {
	if results == nil {
		results = []query.Result{}
	}
	return s.deliver(SearchEvent{SearchID: s.ID, Partial: results})
}

// Search starts q and returns its handle. A search already running is
// cancelled first.
func (c *Coordinator) Search(ctx context.Context, q query.Query) *Search {
	if q.MaxResults <= 0 {
		q.MaxResults = c.config.MaxResults
	}
	q = q.Normalize()

	sctx, cancel := context.WithCancel(ctx)
	s := &Search{
		ID:      uuid.NewString(),
		Query:   q,
		ctx:     sctx,
		cancel:  cancel,
		events:  make(chan SearchEvent, searchBuffer),
		bus:     c.publish,
		discard: c.bus.DiscardSearch,
	}

	c.searchMu.Lock()
	prev := c.active
	c.active = s
	c.searchMu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		s.Cancel()
		close(s.events)
		return s
	}

	go c.runSearch(s)
	return s
}

// CancelSearch cancels the active search, if any.
func (c *Coordinator) CancelSearch() {
	c.searchMu.Lock()
	s := c.active
	c.active = nil
	c.searchMu.Unlock()

	if s != nil {
		s.Cancel()
	}
}

// target is a root taking part in a search.
type target struct {
	root  *root
	label string
}

// collector merges per-root results in order, dropping duplicate paths
// and truncating globally.
type collector struct {
	limit     int
	seen      map[string]struct{}
	total     int
	truncated bool
	overlap   bool
}

func newCollector(limit int) *collector {
	return &collector{limit: limit, seen: make(map[string]struct{})}
}

// add keeps the results not seen before, up to the global cap.
func (col *collector) add(results []query.Result) []query.Result {
	kept := make([]query.Result, 0, len(results))
	for _, res := range results {
		if _, dup := col.seen[res.AbsPath]; dup {
			col.overlap = true
			continue
		}
		if col.total >= col.limit {
			col.truncated = true
			break
		}
		col.seen[res.AbsPath] = struct{}{}
		col.total++
		kept = append(kept, res)
	}
	return kept
}

func (col *collector) full() bool {
	return col.total >= col.limit
}

func (c *Coordinator) runSearch(s *Search) {
	defer close(s.events)
	defer logger.Recover(c.logger, "search")
	defer func() {
		c.searchMu.Lock()
		if c.active == s {
			c.active = nil
		}
		c.searchMu.Unlock()
		s.cancel()
	}()

	start := time.Now()
	log := c.logger.With("search", s.ID)

	var cataloged, enabled []target
	var unavailable []string
	for _, r := range c.snapshotRoots() {
		r.mu.RLock()
		on, has, label := r.enabled, r.cat != nil, r.label()
		r.mu.RUnlock()

		if !on {
			continue
		}
		t := target{root: r, label: label}
		enabled = append(enabled, t)
		if has {
			cataloged = append(cataloged, t)
		} else {
			unavailable = append(unavailable, r.path)
		}
	}

	if s.Query.Empty() {
		if s.partial(nil) {
			s.deliver(SearchEvent{SearchID: s.ID, Final: &query.Final{UnavailableRoots: nonNil(unavailable)}})
		}
		return
	}

	var final *query.Final
	var method history.Method
	if len(cataloged) == 0 {
		final = c.searchLive(s, enabled)
		method = history.MethodLive
	} else {
		final = c.searchCatalogs(s, cataloged)
		method = history.MethodCatalog
		if len(cataloged) > 1 {
			method = history.MethodMulti
		}
	}
	if final == nil {
		log.Debug("search cancelled")
		return
	}

	elapsed := time.Since(start)
	final.ElapsedMs = elapsed.Milliseconds()
	final.UnavailableRoots = nonNil(unavailable)

	if !s.deliver(SearchEvent{SearchID: s.ID, Final: final}) {
		log.Debug("search cancelled")
		return
	}

	log.Info("search finished",
		"query", s.Query.Text,
		"mode", s.Query.Mode.String(),
		"used", final.ModeUsed.String(),
		"total", final.Total,
		"truncated", final.Truncated,
		"timed_out", final.TimedOut,
		"elapsed", elapsed)

	if !s.Query.Silent {
		rec := history.NewRecord(s.Query.Text, method, final.Total, elapsed, time.Now())
		if err := c.history.Append(rec); err != nil {
			log.Warn("failed to record search history", "error", err)
		}
	}
}

// searchCatalogs queries each cataloged root concurrently and delivers
// one Partial per root in configuration order. It returns nil when the
// search was cancelled.
func (c *Coordinator) searchCatalogs(s *Search, targets []target) *query.Final {
	bctx, cancel := context.WithTimeout(s.ctx, c.config.CatalogBudget)
	defer cancel()

	col := newCollector(s.Query.MaxResults)
	timedOut := false
	delivered := true

	st := stream.New().WithMaxGoroutines(len(targets))
	for _, t := range targets {
		t := t
		st.Go(func() stream.Callback {
			results, partial := c.queryRoot(bctx, t, s.Query)
			return func() {
				if !delivered {
					return
				}
				if partial {
					timedOut = true
				}
				delivered = s.partial(col.add(results))
			}
		})
	}
	st.Wait()

	if !delivered {
		return nil
	}
	if col.overlap {
		c.logger.Debug("duplicate results from overlapping roots dropped", "search", s.ID)
	}

	return &query.Final{
		Total:     col.total,
		ModeUsed:  query.UsedCatalog,
		Truncated: col.truncated || timedOut,
		TimedOut:  timedOut,
	}
}

// queryRoot runs q against the index of one root. partial is true when
// the budget ran out before the root was fully searched.
func (c *Coordinator) queryRoot(ctx context.Context, t target, q query.Query) (results []query.Result, partial bool) {
	if ctx.Err() != nil {
		return nil, true
	}

	r := t.root
	r.mu.RLock()
	defer r.mu.RUnlock()

	cat, ix := r.cat, r.ix
	if cat == nil || ix == nil {
		return nil, false
	}

	// One extra result tells a full root from a truncated one.
	limit := q.MaxResults + 1

	var positions []int
	switch q.Mode {
	case query.ModeContains:
		budget := c.config.ContainsBudget
		if deadline, ok := ctx.Deadline(); ok {
			budget = min(budget, time.Until(deadline))
		}
		if budget <= 0 {
			return nil, true
		}
		positions, partial = index.QueryContains(cat, q.Folded, limit, budget)
	default:
		positions = ix.QueryPrefix(q.Folded, limit)
	}

	results = make([]query.Result, 0, len(positions))
	for _, pos := range positions {
		e, ok := cat.Entry(pos)
		if !ok || e.Deleted() {
			continue
		}
		results = append(results, toResult(e, t.label))
	}
	return results, partial || ctx.Err() != nil
}

// searchLive walks the enabled roots in order with q applied inline,
// delivering results in batches. It returns nil when the search was
// cancelled.
func (c *Coordinator) searchLive(s *Search, targets []target) *query.Final {
	// Each walk stops itself at the deadline and hands back what it found;
	// the context deadline is a backstop for a walk stuck in a syscall.
	deadline := time.Now().Add(c.config.LiveBudget)
	lctx, cancel := context.WithDeadline(s.ctx, deadline.Add(liveGrace))
	defer cancel()

	opts := c.config.Scan
	opts.MaxDirectories = 0
	opts.BatchSize = c.config.LiveBatch

	col := newCollector(s.Query.MaxResults)
	timedOut := false
	sent := 0
	pending := make([]query.Result, 0, c.config.LiveBatch)

	flush := func() bool {
		if len(pending) == 0 {
			return true
		}
		batch := pending
		pending = make([]query.Result, 0, c.config.LiveBatch)
		sent++
		return s.partial(batch)
	}

	for _, t := range targets {
		if col.full() {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 || lctx.Err() != nil {
			timedOut = s.ctx.Err() == nil
			break
		}
		opts.MaxWallTime = remaining

		rctx, stop := context.WithCancel(lctx)
		events := c.walker.Scan(rctx, t.root.path, opts)

		for ev := range events {
			switch ev.Kind {
			case scanner.EventBatch:
				for _, e := range ev.Entries {
					if e.ParentIndex == catalog.RootParent || !matches(e, s.Query) {
						continue
					}
					pending = append(pending, col.add([]query.Result{toResult(e, t.label)})...)
					if len(pending) >= c.config.LiveBatch && !flush() {
						stop()
						drain(events)
						return nil
					}
					if col.truncated {
						break
					}
				}
				if col.truncated {
					stop()
				}

			case scanner.EventFinished:
				if ev.StopReason == scanner.StopWallTime {
					timedOut = true
				}

			case scanner.EventAborted:
				if ev.AbortReason == scanner.AbortTimeBudget || (lctx.Err() != nil && s.ctx.Err() == nil) {
					timedOut = true
				}

			case scanner.EventFailed:
				c.logger.Debug("live walk skipped root", "root", t.root.path, "error", ev.Err)
			}
		}
		stop()

		if s.ctx.Err() != nil {
			return nil
		}
	}

	if !flush() {
		return nil
	}
	if sent == 0 && !s.partial(nil) {
		return nil
	}

	return &query.Final{
		Total:     col.total,
		ModeUsed:  query.UsedLive,
		Truncated: col.truncated || timedOut,
		TimedOut:  timedOut,
	}
}

// matches applies q to one entry the way the index would.
func matches(e catalog.Entry, q query.Query) bool {
	if q.Mode == query.ModeContains {
		return strings.Contains(e.NameFolded, q.Folded)
	}
	return index.MatchPrefix(e.NameFolded, q.Folded)
}

func toResult(e catalog.Entry, label string) query.Result {
	return query.Result{
		Name:      e.Name,
		RelPath:   e.RelPath,
		AbsPath:   e.AbsPath,
		RootLabel: label,
	}
}

func drain(events <-chan scanner.Event) {
	for range events {
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
