package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/0xmhha/folder-search/pkg/catalog"
	"github.com/0xmhha/folder-search/pkg/fsid"
	"github.com/0xmhha/folder-search/pkg/logger"
	"github.com/0xmhha/folder-search/pkg/pathstore"
)

const (
	// estimateFactor scales the top-level directory count into a first
	// lower bound for the total.
	estimateFactor = 50

	// progressInterval is the minimum time between two Progress events.
	progressInterval = 100 * time.Millisecond

	// eventBuffer is the capacity of a scan's event channel.
	eventBuffer = 64

	// terminalTimeout bounds how long a terminal event waits for a reader.
	terminalTimeout = time.Second
)

// scanner implements the Scanner interface.
type scanner struct {
	logger logger.Logger

	mu      sync.Mutex
	nextID  uint64
	cancels map[uint64]context.CancelFunc
}

// New creates a scanner.
func New(log logger.Logger) Scanner {
	return &scanner{
		logger:  log.With("component", "scanner"),
		cancels: make(map[uint64]context.CancelFunc),
	}
}

// Scan implements Scanner.Scan.
func (s *scanner) Scan(ctx context.Context, root string, opts Options) <-chan Event {
	out := make(chan Event, eventBuffer)

	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.cancels[id] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()
			cancel()
			close(out)
		}()

		r := newRun(ctx, root, opts, out, s.logger)
		r.finish(r.walk())
	}()

	return out
}

// Cancel implements Scanner.Cancel.
func (s *scanner) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cancel := range s.cancels {
		cancel()
	}
}

// item is a directory waiting in the breadth-first queue.
type item struct {
	abs   string
	rel   string
	pos   int32
	depth int
}

// run holds the state of one scan.
type run struct {
	ctx    context.Context
	root   string
	opts   Options
	out    chan<- Event
	logger logger.Logger

	start        time.Time
	lastProgress time.Time

	skip    map[string]struct{}
	ignorer *ignore.GitIgnore
	seen    map[fsid.ID]struct{}

	queue   []item
	pending []catalog.Entry

	total        int
	processed    int
	inaccessible int
	estimate     int
	depthCut     bool
}

func newRun(ctx context.Context, root string, opts Options, out chan<- Event, log logger.Logger) *run {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}

	r := &run{
		ctx:    ctx,
		root:   root,
		opts:   opts,
		out:    out,
		logger: log,
		start:  time.Now(),
		skip:   make(map[string]struct{}, len(opts.SkipFolders)),
		seen:   make(map[fsid.ID]struct{}),
	}

	for _, name := range opts.SkipFolders {
		r.skip[name] = struct{}{}
	}
	if len(opts.IgnorePatterns) > 0 {
		r.ignorer = ignore.CompileIgnoreLines(opts.IgnorePatterns...)
	}

	return r
}

// walk performs the scan and returns the terminal event.
func (r *run) walk() Event {
	root, err := pathstore.Normalize(r.root)
	if err != nil {
		return r.failed(err)
	}
	r.root = root
	r.logger = r.logger.With("root", root)

	info, err := os.Stat(root)
	if err != nil {
		return r.failed(err)
	}
	if !info.IsDir() {
		return r.failed(fmt.Errorf("%s is not a directory", root))
	}

	top, err := os.ReadDir(root)
	if err != nil {
		return r.failed(err)
	}

	for _, d := range top {
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			r.estimate++
		}
	}
	r.estimate *= estimateFactor

	if !r.progress() {
		return r.aborted()
	}

	if id, ok := fsid.Of(root, info); ok {
		r.seen[id] = struct{}{}
	}
	r.pending = append(r.pending, catalog.MakeEntry(filepath.Base(root), "", root, catalog.RootParent, info.ModTime().Unix()))
	r.total = 1
	r.queue = append(r.queue, item{abs: root, pos: 0})

	for head := 0; head < len(r.queue); head++ {
		if r.ctx.Err() != nil {
			return r.aborted()
		}
		if r.budgetSpent() {
			if r.opts.MaxWallTime == 0 {
				return r.aborted()
			}
			return r.finished(StopWallTime)
		}

		it := r.queue[head]
		r.processed++

		if r.opts.MaxDepth > 0 && it.depth >= r.opts.MaxDepth {
			r.depthCut = true
			continue
		}

		var children []os.DirEntry
		if it.pos == 0 {
			children = top
		} else {
			children, err = os.ReadDir(it.abs)
			if err != nil {
				r.inaccessible++
				r.logger.Warn("skipping inaccessible directory", "path", it.abs, "error", err)
				continue
			}
		}

		limitHit, ok := r.admit(it, children)
		if !ok {
			return r.aborted()
		}
		if limitHit {
			return r.finished(StopMaxDirectories)
		}

		if time.Since(r.lastProgress) >= progressInterval && !r.progress() {
			return r.aborted()
		}

		// Release the consumed prefix of the queue now and then.
		if head > 4096 && head*2 > len(r.queue) {
			r.queue = append([]item(nil), r.queue[head+1:]...)
			head = -1
		}
	}

	if r.depthCut {
		return r.finished(StopMaxDepth)
	}
	return r.finished(StopCompleted)
}

// admit catalogs the subdirectories of it. It reports whether the
// directory limit was reached, and false if the scan was cancelled.
func (r *run) admit(it item, children []os.DirEntry) (bool, bool) {
	type child struct {
		name   string
		folded string
	}

	names := make([]child, 0, len(children))
	for _, d := range children {
		if !d.IsDir() && d.Type()&fs.ModeSymlink == 0 {
			continue
		}
		name := pathstore.CleanName(d.Name())
		if _, skipped := r.skip[name]; skipped {
			continue
		}
		names = append(names, child{name: name, folded: pathstore.Fold(name)})
	}

	sort.Slice(names, func(i, j int) bool {
		if names[i].folded != names[j].folded {
			return names[i].folded < names[j].folded
		}
		return names[i].name < names[j].name
	})

	for _, c := range names {
		rel := pathstore.Join(it.rel, c.name)
		if r.ignorer != nil && r.ignorer.MatchesPath(rel+"/") {
			continue
		}

		abs := filepath.Join(it.abs, c.name)
		id, info, err := fsid.Stat(abs)
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				r.inaccessible++
			}
			r.logger.Debug("skipping unreadable entry", "path", abs, "error", err)
			continue
		}
		if !info.IsDir() {
			continue
		}
		if id != "" {
			if _, dup := r.seen[id]; dup {
				r.logger.Debug("skipping already visited directory", "path", abs)
				continue
			}
			r.seen[id] = struct{}{}
		}

		if r.opts.MaxDirectories > 0 && r.total >= r.opts.MaxDirectories {
			return true, true
		}

		pos := int32(r.total)
		r.total++
		r.pending = append(r.pending, catalog.MakeEntry(c.name, rel, abs, it.pos, info.ModTime().Unix()))
		r.queue = append(r.queue, item{abs: abs, rel: rel, pos: pos, depth: it.depth + 1})

		if r.total > r.estimate {
			r.estimate = r.total
		}

		if len(r.pending) >= r.opts.BatchSize {
			if !r.flush() || !r.progress() {
				return false, false
			}
		}
	}

	return false, true
}

// budgetSpent reports whether the wall-time budget is exhausted.
func (r *run) budgetSpent() bool {
	if r.opts.MaxWallTime < 0 {
		return false
	}
	return time.Since(r.start) >= r.opts.MaxWallTime
}

// flush emits the pending entries as one batch.
func (r *run) flush() bool {
	if len(r.pending) == 0 {
		return true
	}
	batch := r.pending
	r.pending = make([]catalog.Entry, 0, r.opts.BatchSize)
	return r.send(Event{Kind: EventBatch, Root: r.root, Entries: batch})
}

// progress emits a Progress event.
func (r *run) progress() bool {
	r.lastProgress = time.Now()

	var rate float64
	if elapsed := time.Since(r.start).Seconds(); elapsed > 0 {
		rate = float64(r.processed) / elapsed
	}

	return r.send(Event{
		Kind: EventProgress,
		Root: r.root,
		Progress: Progress{
			Processed:      r.processed,
			EstimatedTotal: r.estimate,
			Rate:           rate,
		},
	})
}

// send delivers ev unless the scan is cancelled first.
func (r *run) send(ev Event) bool {
	select {
	case r.out <- ev:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *run) finished(reason StopReason) Event {
	if !r.flush() || !r.progress() {
		return r.aborted()
	}

	r.logger.Info("scan finished",
		"total", r.total,
		"inaccessible", r.inaccessible,
		"stop_reason", reason.String(),
		"elapsed", time.Since(r.start))

	return Event{
		Kind:         EventFinished,
		Root:         r.root,
		Total:        r.total,
		Inaccessible: r.inaccessible,
		Truncated:    reason != StopCompleted,
		StopReason:   reason,
	}
}

func (r *run) aborted() Event {
	reason := AbortCancelled
	if r.ctx.Err() == nil || errors.Is(r.ctx.Err(), context.DeadlineExceeded) {
		reason = AbortTimeBudget
	}

	r.logger.Info("scan aborted", "reason", reason.String(), "processed", r.processed)

	return Event{Kind: EventAborted, Root: r.root, AbortReason: reason}
}

func (r *run) failed(err error) Event {
	r.logger.Warn("scan failed", "error", err)
	return Event{Kind: EventFailed, Root: r.root, Err: fmt.Errorf("%w: %v", ErrRootUnavailable, err)}
}

// finish delivers the terminal event, giving a slow reader a bounded grace.
func (r *run) finish(ev Event) {
	ev.Elapsed = time.Since(r.start)

	timer := time.NewTimer(terminalTimeout)
	defer timer.Stop()

	select {
	case r.out <- ev:
	case <-timer.C:
		r.logger.Warn("dropping terminal scan event, no reader", "kind", ev.Kind.String())
	}
}
