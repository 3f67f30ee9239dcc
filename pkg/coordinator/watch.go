package coordinator

import (
	"errors"
	"time"

	"github.com/0xmhha/folder-search/pkg/catalog"
	"github.com/0xmhha/folder-search/pkg/eventbus"
	"github.com/0xmhha/folder-search/pkg/index"
	"github.com/0xmhha/folder-search/pkg/logger"
	"github.com/0xmhha/folder-search/pkg/store"
	"github.com/0xmhha/folder-search/pkg/watcher"
)

// startWatch (re)starts the watcher session of r on its current catalog.
// A failed start arrives on the watch loop as an Unavailable event.
func (c *Coordinator) startWatch(r *root) {
	if r.watcher == nil || c.ctx.Err() != nil {
		return
	}

	if err := r.watcher.Stop(); err != nil && !errors.Is(err, watcher.ErrNotStarted) {
		r.logger.Warn("failed to stop watcher", "error", err)
	}

	if err := r.watcher.Start(c.ctx, r.path); err != nil {
		if errors.Is(err, watcher.ErrWatcherClosed) {
			return
		}
		r.logger.Warn("watcher unavailable", "error", err)
		return
	}

	c.setWatcherState(r, store.WatcherActive)
}

// watchLoop applies the changes reported by the watcher of r until the
// watcher is closed.
func (c *Coordinator) watchLoop(r *root) {
	defer c.wg.Done()
	defer logger.Recover(r.logger, "watch task")

	for ev := range r.watcher.Events() {
		switch ev.Kind {
		case watcher.EventChange:
			c.applyChange(r, ev.Change)
		case watcher.EventUnavailable:
			c.unwatched(r, ev.Err)
		}
	}

	r.logger.Debug("watch task stopped")
}

// applyChange patches the catalog and index of r with one change.
func (c *Coordinator) applyChange(r *root, ch catalog.Change) {
	r.mu.Lock()
	cat, ix := r.cat, r.ix
	if cat == nil {
		r.mu.Unlock()
		return
	}

	delta, err := cat.Patch(ch)
	if err != nil {
		r.mu.Unlock()
		r.logger.Debug("change not applied", "change", ch.String(), "error", err)
		return
	}
	if delta.Empty() {
		r.mu.Unlock()
		return
	}

	if delta.AffectsIndex() {
		if err := ix.Patch(cat, delta); err != nil {
			r.logger.Warn("index patch failed, rebuilding index", "error", err)
			r.ix, _ = index.Build(cat)
		}
	}

	if stats := cat.Stats(); stats.Total > 0 && float64(stats.Tombstoned)/float64(stats.Total) > c.config.CompactRatio {
		if cat.Compact() {
			var took time.Duration
			r.ix, took = index.Build(cat)
			r.logger.Debug("catalog compacted",
				"dropped", stats.Tombstoned,
				"entries", cat.Len(),
				"index_build", took)
		}
	}

	c.schedulePersist(r)
	r.mu.Unlock()

	r.logger.Debug("change applied", "change", ch.String())
	c.publish(eventbus.Event{Kind: eventbus.KindResultsStale, Root: r.path})
}

// unwatched switches r to periodic rescans after its watcher gave up.
func (c *Coordinator) unwatched(r *root, cause error) {
	if c.ctx.Err() != nil {
		return
	}

	if c.setWatcherState(r, store.WatcherUnavailable) {
		r.logger.Warn("watcher unavailable, falling back to periodic rescans",
			"interval", c.config.RescanInterval,
			"error", cause)
		c.publish(eventbus.Event{Kind: eventbus.KindWatcherUnavailable, Root: r.path, Err: cause})
	}

	r.mu.Lock()
	if r.rescan != nil || r.removed {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	r.rescan = stop
	r.mu.Unlock()

	c.wg.Add(1)
	go c.rescanLoop(r, stop)
}

// rescanLoop rebuilds r every RescanInterval while its watcher is unavailable.
func (c *Coordinator) rescanLoop(r *root, stop chan struct{}) {
	defer c.wg.Done()
	defer func() {
		r.mu.Lock()
		if r.rescan == stop {
			r.rescan = nil
		}
		r.mu.Unlock()
	}()

	ticker := time.NewTicker(c.config.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		r.mu.RLock()
		state := r.state.WatcherState
		r.mu.RUnlock()
		if state != store.WatcherUnavailable {
			r.logger.Debug("watcher recovered, periodic rescans stopped")
			return
		}

		r.logger.Debug("periodic rescan")
		if err := c.schedule(r); err != nil {
			r.logger.Warn("periodic rescan failed to start", "error", err)
		}
	}
}
