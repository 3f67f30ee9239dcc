package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/0xmhha/folder-search/pkg/catalog"
	"github.com/0xmhha/folder-search/pkg/eventbus"
	"github.com/0xmhha/folder-search/pkg/index"
	"github.com/0xmhha/folder-search/pkg/logger"
	"github.com/0xmhha/folder-search/pkg/scanner"
	"github.com/0xmhha/folder-search/pkg/store"
)

// rebuildBuffer is the capacity of the channel returned by Rebuild.
const rebuildBuffer = 64

// Rebuild rescans root and returns the scan's event stream.
//
// A scan already in flight for root is cancelled first. The stream closes
// after the terminal event; when that event is Finished the new catalog is
// installed by the time it is delivered. Callers must drain the stream.
// On Aborted or Failed the previous catalog stays in force.
func (c *Coordinator) Rebuild(ctx context.Context, path string) (<-chan scanner.Event, error) {
	r, err := c.lookup(path)
	if err != nil {
		return nil, err
	}

	out := make(chan scanner.Event, rebuildBuffer)
	if err := c.startScan(ctx, r, out); err != nil {
		close(out)
		return nil, err
	}
	return out, nil
}

// startScan launches the scan task of r, replacing any scan in flight.
// Events are forwarded to out when it is not nil; out is closed at the end.
func (c *Coordinator) startScan(ctx context.Context, r *root, out chan scanner.Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClosed
	}

	scanCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	done := make(chan struct{})

	r.mu.Lock()
	if r.removed {
		r.mu.Unlock()
		stop()
		cancel()
		return ErrUnknownRoot
	}
	prevCancel, prevDone := r.scanCancel, r.scanDone
	r.scanCancel, r.scanDone = cancel, done
	r.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer logger.Recover(r.logger, "scan task")
		defer func() {
			stop()
			cancel()

			r.mu.Lock()
			if r.scanDone == done {
				r.scanCancel, r.scanDone = nil, nil
			}
			r.mu.Unlock()
			close(done)

			if out != nil {
				close(out)
			}
		}()

		if prevDone != nil {
			<-prevDone
		}
		c.scanTask(scanCtx, r, out)
	}()

	return nil
}

// scanTask builds a fresh catalog of r from one scan.
func (c *Coordinator) scanTask(ctx context.Context, r *root, out chan<- scanner.Event) {
	forward := func(ev scanner.Event) {
		if out == nil {
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	cat, err := catalog.New(r.path)
	if err != nil {
		ev := scanner.Event{Kind: scanner.EventFailed, Root: r.path, Err: err}
		c.publish(eventbus.Event{Kind: eventbus.KindScanFinished, Root: r.path, Outcome: ev.Kind, Err: err})
		forward(ev)
		return
	}

	r.logger.Info("rebuild started")

	var buildErr error
	for ev := range c.builder.Scan(ctx, r.path, c.config.Scan) {
		switch ev.Kind {
		case scanner.EventProgress:
			c.publish(eventbus.Event{Kind: eventbus.KindScanProgress, Root: r.path, Progress: ev.Progress})

		case scanner.EventBatch:
			if buildErr == nil {
				buildErr = cat.AppendBatch(ev.Entries)
			}
			c.publish(eventbus.Event{Kind: eventbus.KindScanBatch, Root: r.path, Count: len(ev.Entries)})

		case scanner.EventFinished:
			if buildErr == nil {
				buildErr = c.install(r, cat, ev)
			}
			if buildErr != nil {
				r.logger.Error("failed to build catalog, keeping the previous one", "error", buildErr)
				ev = scanner.Event{Kind: scanner.EventFailed, Root: r.path, Err: buildErr, Elapsed: ev.Elapsed}
			}
			c.publish(eventbus.Event{
				Kind:    eventbus.KindScanFinished,
				Root:    r.path,
				Outcome: ev.Kind,
				Count:   cat.Len(),
				Err:     buildErr,
			})
			if buildErr == nil {
				c.startWatch(r)
				c.publish(eventbus.Event{Kind: eventbus.KindCatalogReady, Root: r.path, Count: cat.Len()})
			}

		case scanner.EventAborted, scanner.EventFailed:
			r.logger.Info("rebuild did not finish, keeping the previous catalog",
				"outcome", ev.Kind.String(),
				"reason", ev.AbortReason.String(),
				"error", ev.Err)
			c.publish(eventbus.Event{Kind: eventbus.KindScanFinished, Root: r.path, Outcome: ev.Kind, Err: ev.Err})
		}

		forward(ev)
	}
}

// install seals cat, saves it, indexes it and swaps it in for r.
func (c *Coordinator) install(r *root, cat *catalog.Catalog, ev scanner.Event) error {
	if err := cat.Seal(ev.Total); err != nil {
		return err
	}

	saveErr := c.store.Save(cat)
	if saveErr != nil {
		r.logger.Error("failed to save catalog, will retry", "error", saveErr)
	}

	ix, took := index.Build(cat)

	r.mu.Lock()
	if r.removed {
		r.mu.Unlock()
		return ErrUnknownRoot
	}
	r.cat, r.ix = cat, ix
	r.dirty = saveErr != nil
	if r.persist != nil {
		r.persist.Stop()
		r.persist = nil
	}
	r.state.Path = r.path
	r.state.Hash = cat.Hash()
	r.state.LastScanned = cat.BuiltAt()
	r.state.Total = cat.Len()
	r.state.Inaccessible = ev.Inaccessible
	r.state.ScanDuration = ev.Elapsed
	state := r.state
	r.mu.Unlock()

	c.putState(r, state)
	if err := c.persistRoots(); err != nil {
		r.logger.Warn("failed to update search locations", "error", err)
	}

	r.logger.Info("catalog installed",
		"entries", cat.Len(),
		"inaccessible", ev.Inaccessible,
		"truncated", ev.Truncated,
		"scan", ev.Elapsed,
		"index_build", took)
	return nil
}

// schedulePersist saves r after the persist debounce, restarting the
// countdown on every call. The caller holds r.mu.
func (c *Coordinator) schedulePersist(r *root) {
	r.dirty = true
	if r.persist != nil {
		r.persist.Reset(c.config.PersistDebounce)
		return
	}
	r.persist = time.AfterFunc(c.config.PersistDebounce, func() {
		r.mu.Lock()
		r.persist = nil
		r.mu.Unlock()
		c.flush(r)
	})
}

// flush saves the catalog of r if it has unsaved changes. A failed save
// leaves r dirty for the next flush.
func (c *Coordinator) flush(r *root) {
	r.mu.Lock()
	cat := r.cat
	if !r.dirty || cat == nil {
		r.mu.Unlock()
		return
	}
	r.dirty = false
	r.mu.Unlock()

	if err := c.store.Save(cat); err != nil {
		if !errors.Is(err, store.ErrStoreClosed) {
			r.logger.Error("failed to save catalog, will retry", "error", err)
		}
		r.mu.Lock()
		if r.cat == cat {
			r.dirty = true
		}
		r.mu.Unlock()
		return
	}

	r.logger.Debug("catalog saved", "entries", cat.Len())
}
