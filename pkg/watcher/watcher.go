package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/armon/go-radix"
	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/0xmhha/folder-search/pkg/catalog"
	"github.com/0xmhha/folder-search/pkg/fsid"
	"github.com/0xmhha/folder-search/pkg/logger"
	"github.com/0xmhha/folder-search/pkg/pathstore"
)

// watcher implements the Watcher interface using fsnotify.
type watcher struct {
	logger logger.Logger
	config  Config
	skip    map[string]struct{}
	ignorer *ignore.GitIgnore

	events chan Event

	mu      sync.Mutex
	closed  bool
	current *session
}

// New creates a directory watcher.
//
// No fsnotify handle is opened until Start.
func New(cfg Config, log logger.Logger) (Watcher, error) {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 100 * time.Millisecond
	}
	if cfg.PairWindow <= 0 {
		cfg.PairWindow = 100 * time.Millisecond
	}
	if cfg.SetupBudget <= 0 {
		cfg.SetupBudget = time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = time.Second
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}

	skip := make(map[string]struct{}, len(cfg.SkipFolders))
	for _, name := range cfg.SkipFolders {
		skip[name] = struct{}{}
	}

	w := &watcher{
		logger: log.With("component", "watcher"),
		config: cfg,
		skip:   skip,
		events: make(chan Event, cfg.BufferSize),
	}
	if len(cfg.IgnorePatterns) > 0 {
		w.ignorer = ignore.CompileIgnoreLines(cfg.IgnorePatterns...)
	}

	w.logger.Debug("directory watcher created",
		"debounce_interval", cfg.DebounceInterval,
		"pair_window", cfg.PairWindow)

	return w, nil
}

// Start implements Watcher.Start.
func (w *watcher) Start(ctx context.Context, root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.current != nil {
		return ErrAlreadyStarted
	}

	norm, err := pathstore.Normalize(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	info, err := os.Stat(norm)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPath, norm, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, norm)
	}

	log := w.logger.With("root", norm)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return w.setupFailed(ctx, log, norm, nil, fmt.Errorf("failed to create fsnotify watcher: %w", err))
	}

	s := &session{
		w:        w,
		ctx:      ctx,
		root:     norm,
		fsw:      fsw,
		logger:   log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		fires:    make(chan fire, 16),
		tracked:  radix.New(),
		pending:  make(map[string]*token),
		debounce: make(map[string]*token),
	}

	started := time.Now()
	if _, err := s.watchTree(norm, started.Add(w.config.SetupBudget), false); err != nil {
		return w.setupFailed(ctx, log, norm, fsw, fmt.Errorf("failed to watch %s: %w", norm, err))
	}

	w.current = s
	go s.run()

	log.Info("watcher started",
		"directories", s.tracked.Len(),
		"setup", time.Since(started))

	return nil
}

// setupFailed reports a session that never started.
func (w *watcher) setupFailed(ctx context.Context, log logger.Logger, root string, fsw *fsnotify.Watcher, cause error) error {
	if fsw != nil {
		_ = fsw.Close()
	}

	err := fmt.Errorf("%w: %w", ErrUnavailable, cause)
	log.Warn("watcher unavailable", "error", cause)

	select {
	case w.events <- Event{Kind: EventUnavailable, Root: root, Err: err, Timestamp: time.Now()}:
	case <-ctx.Done():
	}
	return err
}

// Stop implements Watcher.Stop.
func (w *watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.current == nil {
		return ErrNotStarted
	}

	err := w.current.shutdown(w.config.StopTimeout)
	w.current = nil
	return err
}

// Events implements Watcher.Events.
func (w *watcher) Events() <-chan Event {
	return w.events
}

// Close implements Watcher.Close.
func (w *watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if w.current != nil {
		err = w.current.shutdown(w.config.StopTimeout)
		w.current = nil
	}

	// A loop that failed to exit may still send.
	if !errors.Is(err, ErrStopTimeout) {
		close(w.events)
	}

	w.logger.Debug("watcher closed")
	return err
}

// token identifies one armed timer; a fire whose token is no longer
// registered is stale.
type token struct {
	id    fsid.ID
	timer *time.Timer
}

type fireKind uint8

const (
	fireRename fireKind = iota + 1
	fireModified
)

type fire struct {
	kind fireKind
	path string
	tok  *token
}

// session is one Start..Stop span. Its maps are owned by the run goroutine
// once Start returns.
type session struct {
	w      *watcher
	ctx    context.Context
	root   string
	fsw    *fsnotify.Watcher
	logger logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	fires    chan fire

	// tracked maps every watched directory to its identity.
	tracked  *radix.Tree
	pending  map[string]*token
	debounce map[string]*token
	failures int
}

func (s *session) shutdown(timeout time.Duration) error {
	s.stopOnce.Do(func() { close(s.stop) })
	_ = s.fsw.Close()

	select {
	case <-s.done:
		s.logger.Info("watcher stopped")
		return nil
	case <-time.After(timeout):
		s.logger.Error("watcher did not stop in time", "timeout", timeout)
		return ErrStopTimeout
	}
}

// run processes fsnotify events until the session ends.
func (s *session) run() {
	defer close(s.done)
	defer s.stopTimers()
	defer logger.Recover(s.logger, "watcher loop")

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("event processing stopped", "reason", "context cancelled")
			return

		case <-s.stop:
			s.logger.Debug("event processing stopped", "reason", "stop signal")
			return

		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.failures = 0
			if s.handleEvent(event) {
				return
			}

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			if s.handleError(err) {
				return
			}

		case f := <-s.fires:
			s.handleFire(f)
		}
	}
}

// handleEvent dispatches one fsnotify event. It reports whether the
// session became unavailable.
func (s *session) handleEvent(event fsnotify.Event) bool {
	path := pathstore.CleanName(filepath.Clean(event.Name))
	if _, ok := pathstore.Rel(s.root, path); !ok {
		return false
	}
	if path != s.root && s.skipped(path) {
		return false
	}

	switch {
	case event.Has(fsnotify.Create):
		s.created(path)

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if path == s.root {
			s.fail(ErrRootRemoved)
			return true
		}
		if event.Has(fsnotify.Rename) {
			s.renamed(path)
		} else {
			s.removed(path)
		}

	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		s.modified(path)
	}
	return false
}

// handleError counts consecutive errors and trips the circuit breaker.
func (s *session) handleError(err error) bool {
	s.failures++

	s.logger.Error("fsnotify error",
		"error", err,
		"failure_count", s.failures)

	if s.failures >= s.w.config.CircuitBreakerThreshold {
		s.logger.Error("circuit breaker opened",
			"threshold", s.w.config.CircuitBreakerThreshold)
		s.fail(fmt.Errorf("%w: %w", ErrCircuitBreakerOpen, err))
		return true
	}
	return false
}

// fail sends the single Unavailable event of the session.
func (s *session) fail(cause error) {
	err := fmt.Errorf("%w: %w", ErrUnavailable, cause)
	s.logger.Warn("watcher unavailable", "error", cause)
	_ = s.fsw.Close()

	s.send(Event{Kind: EventUnavailable, Err: err})
}

func (s *session) emit(change catalog.Change) {
	s.send(Event{Kind: EventChange, Change: change})
}

func (s *session) send(ev Event) {
	ev.Root = s.root
	ev.Timestamp = time.Now()

	select {
	case s.w.events <- ev:
	case <-s.stop:
	case <-s.ctx.Done():
	}
}

// created handles a Create: either the second half of a rename or a new
// directory whose subtree must be watched.
func (s *session) created(path string) {
	id, info, err := fsid.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	mtime := info.ModTime().Unix()

	if from, ok := s.takePending(id); ok {
		if _, err := s.watchTree(path, time.Time{}, false); err != nil {
			s.logger.Warn("failed to watch moved directory", "path", path, "error", err)
		}
		s.emit(catalog.Moved(from, path, mtime))
		return
	}

	changes, err := s.watchTree(path, time.Time{}, true)
	if err != nil {
		s.logger.Warn("failed to watch new directory", "path", path, "error", err)
		return
	}
	for _, c := range changes {
		s.emit(c)
	}
}

// renamed holds a tracked directory's rename until its create arrives or
// the pairing window closes.
func (s *session) renamed(path string) {
	v, ok := s.tracked.Get(path)
	if !ok {
		return
	}
	s.untrack(path, true)

	tok := &token{id: v.(fsid.ID)}
	tok.timer = time.AfterFunc(s.w.config.PairWindow, func() {
		s.post(fire{kind: fireRename, path: path, tok: tok})
	})
	if old, exists := s.pending[path]; exists {
		old.timer.Stop()
	}
	s.pending[path] = tok
}

func (s *session) removed(path string) {
	if _, ok := s.tracked.Get(path); !ok {
		return
	}
	s.untrack(path, false)
	s.emit(catalog.Deleted(path))
}

// modified debounces attribute changes of a tracked directory.
func (s *session) modified(path string) {
	if _, ok := s.tracked.Get(path); !ok {
		return
	}

	if old, exists := s.debounce[path]; exists {
		old.timer.Stop()
	}
	tok := &token{}
	tok.timer = time.AfterFunc(s.w.config.DebounceInterval, func() {
		s.post(fire{kind: fireModified, path: path, tok: tok})
	})
	s.debounce[path] = tok
}

// post hands a timer expiry to the run goroutine.
func (s *session) post(f fire) {
	select {
	case s.fires <- f:
	case <-s.stop:
	case <-s.done:
	}
}

func (s *session) handleFire(f fire) {
	switch f.kind {
	case fireRename:
		if s.pending[f.path] != f.tok {
			return
		}
		delete(s.pending, f.path)
		s.emit(catalog.Deleted(f.path))

	case fireModified:
		if s.debounce[f.path] != f.tok {
			return
		}
		delete(s.debounce, f.path)
		if _, ok := s.tracked.Get(f.path); !ok {
			return
		}
		info, err := os.Stat(f.path)
		if err != nil || !info.IsDir() {
			return
		}
		s.emit(catalog.Modified(f.path, info.ModTime().Unix()))
	}
}

// takePending claims the held rename whose directory has identity id.
func (s *session) takePending(id fsid.ID) (string, bool) {
	if id == "" {
		return "", false
	}
	for from, tok := range s.pending {
		if tok.id == id {
			tok.timer.Stop()
			delete(s.pending, from)
			return from, true
		}
	}
	return "", false
}

// watchTree subscribes to dir and every non-skipped directory below it.
// With emit set it returns a Created change per directory in walk order.
// A non-zero deadline aborts the walk with ErrSetupBudget.
func (s *session) watchTree(dir string, deadline time.Time, emit bool) ([]catalog.Change, error) {
	var changes []catalog.Change

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d == nil {
				return err
			}
			s.logger.Warn("skipping unreadable directory", "path", p, "error", err)
			return nil
		}
		if p != dir {
			if !d.IsDir() {
				return nil
			}
			if s.skipped(p) {
				return filepath.SkipDir
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrSetupBudget
		}

		if err := s.fsw.Add(p); err != nil {
			if p == dir {
				return err
			}
			s.logger.Warn("failed to add subdirectory", "path", p, "error", err)
			return filepath.SkipDir
		}

		// The walk root may be a symlink, so it is stat'ed rather than lstat'ed.
		var info os.FileInfo
		if p == dir {
			info, err = os.Stat(p)
		} else {
			info, err = d.Info()
		}
		if err != nil {
			return nil
		}

		key := pathstore.CleanName(p)
		id, _ := fsid.Of(key, info)
		s.tracked.Insert(key, id)
		if emit {
			changes = append(changes, catalog.Created(key, info.ModTime().Unix()))
		}
		return nil
	})

	return changes, err
}

// untrack forgets path and its descendants. With unwatch set, their
// fsnotify watches are removed as well; a deleted directory's watches are
// dropped by the kernel.
func (s *session) untrack(path string, unwatch bool) {
	keys := []string{path}
	s.tracked.WalkPrefix(path+string(filepath.Separator), func(k string, _ interface{}) bool {
		keys = append(keys, k)
		return false
	})

	for _, k := range keys {
		s.tracked.Delete(k)
		if unwatch {
			_ = s.fsw.Remove(k)
		}
	}
}

// skipped reports whether path is excluded by name or by an ignore
// pattern on its path relative to the root, the way a scan excludes it.
func (s *session) skipped(path string) bool {
	if _, ok := s.w.skip[pathstore.CleanName(filepath.Base(path))]; ok {
		return true
	}
	if s.w.ignorer == nil {
		return false
	}
	rel, ok := pathstore.Rel(s.root, path)
	return ok && rel != "" && s.w.ignorer.MatchesPath(rel+"/")
}

func (s *session) stopTimers() {
	for _, tok := range s.pending {
		tok.timer.Stop()
	}
	for _, tok := range s.debounce {
		tok.timer.Stop()
	}
	s.pending = nil
	s.debounce = nil
}
