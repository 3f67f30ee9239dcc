// Package coordinator owns the search roots and ties the engine together.
//
// For every configured root the coordinator keeps a sealed catalog and its
// index, one scan task that rebuilds them, and one watch task that patches
// them as the filesystem changes. Searches run against the catalogs, or as
// a bounded live walk when no enabled root is cataloged, and stream their
// results both to the caller and to the event bus.
//
// Example usage:
//
//	c, err := coordinator.New(coordinator.DefaultConfig(workDir), logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	_ = c.ConfigureRoots(ctx, []coordinator.RootSpec{{Path: "~/src", Enabled: true, Primary: true}})
//	s := c.Search(ctx, query.New("proj", query.ModePrefix, 0))
//	for ev := range s.Events() {
//	    ...
//	}
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/0xmhha/folder-search/pkg/catalog"
	"github.com/0xmhha/folder-search/pkg/config"
	"github.com/0xmhha/folder-search/pkg/eventbus"
	"github.com/0xmhha/folder-search/pkg/history"
	"github.com/0xmhha/folder-search/pkg/index"
	"github.com/0xmhha/folder-search/pkg/logger"
	"github.com/0xmhha/folder-search/pkg/pathstore"
	"github.com/0xmhha/folder-search/pkg/scanner"
	"github.com/0xmhha/folder-search/pkg/store"
	"github.com/0xmhha/folder-search/pkg/watcher"
)

// loadConcurrency bounds parallel catalog loads in ConfigureRoots.
const loadConcurrency = 4

// Coordinator manages search roots, their catalogs and searches.
// It is safe for concurrent use.
type Coordinator struct {
	config  Config
	logger  logger.Logger
	store   store.Store
	bus     *eventbus.Bus
	history *history.Log

	// builder runs rebuilds, walker runs live searches.
	builder scanner.Scanner
	walker  scanner.Scanner

	// ctx lives until Close and parents every background task.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	roots  []*root
	byPath map[string]*root
	closed bool

	// settingsMu serializes writes of the settings files.
	settingsMu sync.Mutex

	searchMu sync.Mutex
	active   *Search
}

// root is the in-memory state of one configured root.
type root struct {
	path   string
	logger logger.Logger

	// watcher is nil when watching is disabled.
	watcher watcher.Watcher

	mu      sync.RWMutex
	name    string
	enabled bool
	primary bool
	cat     *catalog.Catalog
	ix      *index.Index
	state   store.RootState
	removed bool

	scanCancel context.CancelFunc
	scanDone   chan struct{}

	dirty   bool
	persist *time.Timer
	rescan  chan struct{}
}

// label names the root in results.
func (r *root) label() string {
	if r.name != "" {
		return r.name
	}
	return filepath.Base(r.path)
}

// New creates a coordinator with no roots configured.
func New(cfg Config, log logger.Logger) (*Coordinator, error) {
	if cfg.WorkDir == "" {
		return nil, ErrEmptyWorkDir
	}
	cfg = cfg.withDefaults()

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	st, err := store.New(store.Config{Dir: cfg.WorkDir, Timeout: cfg.StoreTimeout}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	hist, err := history.New(cfg.WorkDir, log)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		config:  cfg,
		logger:  log.With("component", "coordinator"),
		store:   st,
		bus:     eventbus.New(cfg.Bus, log),
		history: hist,
		builder: scanner.New(log),
		walker:  scanner.New(log.With("mode", "live")),
		ctx:     ctx,
		cancel:  cancel,
		byPath:  make(map[string]*root),
	}

	c.logger.Info("coordinator created",
		"work_dir", cfg.WorkDir,
		"watch", cfg.Watch,
		"max_results", cfg.MaxResults)

	return c, nil
}

// History returns the search history log.
func (c *Coordinator) History() *history.Log {
	return c.history
}

// Subscribe registers sink for the given kinds on the event bus.
func (c *Coordinator) Subscribe(kinds eventbus.KindSet, sink eventbus.Sink) *eventbus.Subscription {
	return c.bus.Subscribe(kinds, sink)
}

// publish stamps and publishes an event. A closed bus is not an error here.
func (c *Coordinator) publish(ev eventbus.Event) {
	ev.Time = time.Now()
	if err := c.bus.Publish(ev); err != nil && !errors.Is(err, eventbus.ErrBusClosed) {
		c.logger.Warn("failed to publish event", "kind", ev.Kind.String(), "error", err)
	}
}

// ConfigureRoots makes specs the configured root list, in order.
//
// Roots already configured keep their catalog; a changed Enabled flag or
// name never triggers a rebuild. New roots load their persisted catalog, or
// get a rebuild scheduled when none is usable. Roots missing from specs
// are torn down. The resulting list is written to the settings files.
func (c *Coordinator) ConfigureRoots(ctx context.Context, specs []RootSpec) error {
	normalized, err := c.normalizeSpecs(specs)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	next := make([]*root, 0, len(normalized))
	byPath := make(map[string]*root, len(normalized))
	var added []*root
	for _, spec := range normalized {
		r, ok := c.byPath[spec.Path]
		if !ok {
			r = c.newRoot(spec.Path)
			added = append(added, r)
		}

		r.mu.Lock()
		r.name, r.enabled, r.primary = spec.Name, spec.Enabled, spec.Primary
		r.mu.Unlock()

		next = append(next, r)
		byPath[spec.Path] = r
	}

	var removed []*root
	for _, r := range c.roots {
		if _, ok := byPath[r.path]; !ok {
			removed = append(removed, r)
		}
	}

	c.roots, c.byPath = next, byPath
	c.mu.Unlock()

	for _, r := range removed {
		c.teardown(r)
	}

	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(loadConcurrency)
	for _, r := range added {
		r := r
		p.Go(func(ctx context.Context) error {
			return c.load(ctx, r)
		})
	}
	loadErr := p.Wait()

	c.logger.Info("roots configured",
		"roots", len(next),
		"added", len(added),
		"removed", len(removed))

	if err := c.persistRoots(); err != nil {
		return err
	}
	c.pruneOrphans(byPath)
	return loadErr
}

// pruneOrphans removes stored catalogs and records of roots that are no
// longer configured.
func (c *Coordinator) pruneOrphans(configured map[string]*root) {
	states, err := c.store.States()
	if err != nil {
		c.logger.Warn("failed to list root states", "error", err)
		return
	}

	for _, state := range states {
		if _, ok := configured[state.Path]; ok {
			continue
		}
		if err := c.store.Invalidate(state.Path); err != nil {
			c.logger.Warn("failed to remove orphaned catalog", "path", state.Path, "error", err)
			continue
		}
		c.logger.Debug("orphaned catalog removed", "path", state.Path)
	}
}

// normalizeSpecs cleans paths, drops duplicates and keeps one primary.
func (c *Coordinator) normalizeSpecs(specs []RootSpec) ([]RootSpec, error) {
	out := make([]RootSpec, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	primary := false

	for _, spec := range specs {
		path, err := pathstore.Normalize(spec.Path)
		if err != nil {
			return nil, fmt.Errorf("invalid root %q: %w", spec.Path, err)
		}
		if seen[path] {
			c.logger.Warn("duplicate root ignored", "path", path)
			continue
		}
		seen[path] = true

		if spec.Primary {
			if primary {
				c.logger.Warn("more than one primary root, keeping the first", "path", path)
				spec.Primary = false
			}
			primary = true
		}

		for _, other := range out {
			if _, inside := pathstore.Rel(other.Path, path); inside {
				c.logger.Warn("overlapping roots, duplicates are dropped from results",
					"root", path, "within", other.Path)
			} else if _, inside := pathstore.Rel(path, other.Path); inside {
				c.logger.Warn("overlapping roots, duplicates are dropped from results",
					"root", other.Path, "within", path)
			}
		}

		spec.Path = path
		out = append(out, spec)
	}
	return out, nil
}

func (c *Coordinator) newRoot(path string) *root {
	r := &root{
		path:   path,
		logger: c.logger.With("root", path),
		state:  store.RootState{Path: path, Hash: pathstore.Hash(path), WatcherState: store.WatcherIdle},
	}

	if state, ok, err := c.store.State(path); err != nil {
		r.logger.Warn("failed to read root state", "error", err)
	} else if ok {
		r.state = state
		r.state.WatcherState = store.WatcherIdle
	}

	if c.config.Watch {
		w, err := watcher.New(c.config.Watcher, r.logger)
		if err != nil {
			r.logger.Warn("watching disabled for root", "error", err)
		} else {
			r.watcher = w
			c.wg.Add(1)
			go c.watchLoop(r)
		}
	}
	return r
}

// load installs the persisted catalog of a new root, or schedules a rebuild.
func (c *Coordinator) load(ctx context.Context, r *root) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cat, err := c.store.Load(r.path)
	switch {
	case errors.Is(err, store.ErrCatalogCorrupt):
		r.logger.Warn("persisted catalog corrupt, rebuilding", "error", err)
		c.publish(eventbus.Event{Kind: eventbus.KindCatalogInvalidated, Root: r.path, Err: err})
		return c.schedule(r)
	case err != nil:
		r.logger.Warn("failed to load persisted catalog, rebuilding", "error", err)
		return c.schedule(r)
	case cat == nil:
		r.logger.Debug("no persisted catalog, rebuilding")
		return c.schedule(r)
	}

	ix, took := index.Build(cat)

	r.mu.Lock()
	if r.removed {
		r.mu.Unlock()
		return nil
	}
	r.cat, r.ix = cat, ix
	r.mu.Unlock()

	r.logger.Info("catalog loaded",
		"entries", cat.Len(),
		"built_at", cat.BuiltAt(),
		"index_build", took)

	c.startWatch(r)
	c.publish(eventbus.Event{Kind: eventbus.KindCatalogReady, Root: r.path, Count: cat.Len()})
	return nil
}

// schedule starts a background rebuild nobody waits on.
func (c *Coordinator) schedule(r *root) error {
	if err := c.startScan(c.ctx, r, nil); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

// lookup returns the configured root for path.
func (c *Coordinator) lookup(path string) (*root, error) {
	norm, err := pathstore.Normalize(path)
	if err != nil {
		return nil, fmt.Errorf("invalid root %q: %w", path, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	r, ok := c.byPath[norm]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoot, norm)
	}
	return r, nil
}

// snapshotRoots returns the configured roots in order.
func (c *Coordinator) snapshotRoots() []*root {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]*root(nil), c.roots...)
}

// Roots describes every configured root, in configuration order.
func (c *Coordinator) Roots() []RootStatus {
	roots := c.snapshotRoots()
	out := make([]RootStatus, 0, len(roots))

	for _, r := range roots {
		r.mu.RLock()
		status := RootStatus{
			Path:         r.path,
			Name:         r.label(),
			Enabled:      r.enabled,
			Primary:      r.primary,
			Cataloged:    r.cat != nil,
			Scanning:     r.scanDone != nil,
			WatcherState: r.state.WatcherState,
			LastScanned:  r.state.LastScanned,
		}
		if r.cat != nil {
			status.Stats = r.cat.Stats()
		}
		r.mu.RUnlock()

		out = append(out, status)
	}
	return out
}

// Invalidate removes the persisted catalog of root and drops its
// in-memory catalog and index until the next rebuild.
func (c *Coordinator) Invalidate(path string) error {
	norm, err := pathstore.Normalize(path)
	if err != nil {
		return fmt.Errorf("invalid root %q: %w", path, err)
	}

	c.mu.RLock()
	r := c.byPath[norm]
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if r != nil {
		r.mu.Lock()
		r.cat, r.ix, r.dirty = nil, nil, false
		if r.persist != nil {
			r.persist.Stop()
			r.persist = nil
		}
		r.mu.Unlock()

		if r.watcher != nil {
			if err := r.watcher.Stop(); err != nil && !errors.Is(err, watcher.ErrNotStarted) {
				r.logger.Warn("failed to stop watcher", "error", err)
			}
		}
		c.setWatcherState(r, store.WatcherIdle)
	}

	if err := c.store.Invalidate(norm); err != nil {
		return err
	}

	c.logger.Info("catalog invalidated", "root", norm)
	c.publish(eventbus.Event{Kind: eventbus.KindCatalogInvalidated, Root: norm})
	return nil
}

// teardown stops everything a removed root is running.
func (c *Coordinator) teardown(r *root) {
	r.mu.Lock()
	r.removed = true
	cancel, done := r.scanCancel, r.scanDone
	if r.persist != nil {
		r.persist.Stop()
		r.persist = nil
	}
	if r.rescan != nil {
		close(r.rescan)
		r.rescan = nil
	}
	r.cat, r.ix, r.dirty = nil, nil, false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if r.watcher != nil {
		if err := r.watcher.Close(); err != nil {
			r.logger.Warn("failed to close watcher", "error", err)
		}
	}

	r.logger.Info("root removed")
}

// setWatcherState records the watcher state of r and stores it.
func (c *Coordinator) setWatcherState(r *root, ws store.WatcherState) bool {
	r.mu.Lock()
	changed := r.state.WatcherState != ws
	r.state.WatcherState = ws
	state := r.state
	r.mu.Unlock()

	if changed {
		c.putState(r, state)
	}
	return changed
}

func (c *Coordinator) putState(r *root, state store.RootState) {
	if err := c.store.PutState(state); err != nil && !errors.Is(err, store.ErrStoreClosed) {
		r.logger.Error("failed to store root state", "error", err)
	}
}

// persistRoots writes the primary root to config.json and the others,
// in order, to search_locations.json.
func (c *Coordinator) persistRoots() error {
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()

	roots := c.snapshotRoots()
	locs := make([]config.Location, 0, len(roots))
	var primary *config.Primary

	for _, r := range roots {
		r.mu.RLock()
		if r.primary {
			primary = &config.Primary{RootPath: r.path, Version: config.SettingsVersion}
		} else {
			loc := config.Location{Path: r.path, Name: r.label(), Enabled: r.enabled}
			if !r.state.LastScanned.IsZero() {
				loc.Scanned(r.state.LastScanned, r.state.Total)
			}
			locs = append(locs, loc)
		}
		r.mu.RUnlock()
	}

	if primary != nil {
		if err := config.SavePrimary(c.config.WorkDir, *primary); err != nil {
			return fmt.Errorf("failed to save primary root: %w", err)
		}
	}
	if err := config.SaveLocations(c.config.WorkDir, locs); err != nil {
		return fmt.Errorf("failed to save search locations: %w", err)
	}
	return nil
}

// LoadRootSpecs reads the configured roots from the settings files in
// workDir: the primary root first, then the additional locations in order.
func LoadRootSpecs(workDir string) ([]RootSpec, error) {
	var specs []RootSpec

	primary, found, err := config.LoadPrimary(workDir)
	if err != nil {
		return nil, err
	}
	if found && primary.RootPath != "" {
		specs = append(specs, RootSpec{Path: primary.RootPath, Enabled: true, Primary: true})
	}

	locs, err := config.LoadLocations(workDir)
	if err != nil {
		return nil, err
	}
	for _, loc := range locs {
		specs = append(specs, RootSpec{Path: loc.Path, Name: loc.Name, Enabled: loc.Enabled})
	}
	return specs, nil
}

// Close cancels scans and the active search, stops watchers, flushes
// dirty catalogs, and closes the store and the bus.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	roots := c.roots
	c.mu.Unlock()

	c.CancelSearch()
	c.cancel()
	c.builder.Cancel()
	c.walker.Cancel()

	for _, r := range roots {
		r.mu.Lock()
		done := r.scanDone
		if r.persist != nil {
			r.persist.Stop()
			r.persist = nil
		}
		if r.rescan != nil {
			close(r.rescan)
			r.rescan = nil
		}
		r.mu.Unlock()

		if done != nil {
			<-done
		}
		if r.watcher != nil {
			if err := r.watcher.Close(); err != nil {
				r.logger.Warn("failed to close watcher", "error", err)
			}
		}
		c.flush(r)
	}

	c.wg.Wait()

	var errs []error
	if err := c.store.Close(); err != nil {
		errs = append(errs, err)
	}
	c.bus.Close()

	c.logger.Info("coordinator closed")
	return errors.Join(errs...)
}
