package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/folder-search/pkg/catalog"
	"github.com/0xmhha/folder-search/pkg/logger"
)

func mkdirs(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(rel)), 0o755))
	}
}

// collect drains a scan and returns its entries, events and terminal event.
func collect(t *testing.T, ch <-chan Event) ([]catalog.Entry, []Event, Event) {
	t.Helper()

	var (
		entries  []catalog.Entry
		events   []Event
		terminal Event
	)

	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return entries, events, terminal
			}
			events = append(events, ev)
			if ev.Kind == EventBatch {
				entries = append(entries, ev.Entries...)
			}
			if ev.Kind.Terminal() {
				terminal = ev
			}
		case <-timeout:
			t.Fatal("scan did not finish")
		}
	}
}

func relPaths(entries []catalog.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.RelPath)
	}
	return out
}

func TestScanBreadthFirstSorted(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "alpha", "Alpha-Two", "beta/alpha-nested")
	require.NoError(t, os.WriteFile(filepath.Join(root, "file.txt"), []byte("x"), 0o644))

	s := New(logger.Noop())
	entries, events, terminal := collect(t, s.Scan(context.Background(), root, DefaultOptions()))

	require.Equal(t, EventFinished, terminal.Kind)
	assert.Equal(t, 5, terminal.Total)
	assert.False(t, terminal.Truncated)
	assert.Equal(t, StopCompleted, terminal.StopReason)
	assert.Equal(t, []string{"", "alpha", "Alpha-Two", "beta", "beta/alpha-nested"}, relPaths(entries))

	require.NotEmpty(t, events)
	assert.Equal(t, EventProgress, events[0].Kind)
	assert.Equal(t, 0, events[0].Progress.Processed)

	cat, err := catalog.New(root)
	require.NoError(t, err)
	require.NoError(t, cat.AppendBatch(entries))
	require.NoError(t, cat.Seal(terminal.Total))
	assert.NoError(t, cat.Validate())
}

func TestScanSkipsFoldersAndPatterns(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "src", "node_modules/pkg", ".git/objects", "tmp-cache", "docs/generated")

	opts := DefaultOptions()
	opts.IgnorePatterns = []string{"tmp-*", "docs/generated/"}

	entries, _, terminal := collect(t, New(logger.Noop()).Scan(context.Background(), root, opts))

	require.Equal(t, EventFinished, terminal.Kind)
	assert.Equal(t, []string{"", "docs", "src"}, relPaths(entries))
}

func TestScanLimits(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a/b/c", "d/e")

	t.Run("max depth", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxDepth = 1

		entries, _, terminal := collect(t, New(logger.Noop()).Scan(context.Background(), root, opts))
		require.Equal(t, EventFinished, terminal.Kind)
		assert.Equal(t, StopMaxDepth, terminal.StopReason)
		assert.True(t, terminal.Truncated)
		assert.Equal(t, []string{"", "a", "d"}, relPaths(entries))
	})

	t.Run("max directories", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxDirectories = 3

		entries, _, terminal := collect(t, New(logger.Noop()).Scan(context.Background(), root, opts))
		require.Equal(t, EventFinished, terminal.Kind)
		assert.Equal(t, StopMaxDirectories, terminal.StopReason)
		assert.Equal(t, 3, terminal.Total)
		assert.Len(t, entries, 3)
	})
}

func TestScanZeroBudget(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a")

	opts := DefaultOptions()
	opts.MaxWallTime = 0

	_, events, terminal := collect(t, New(logger.Noop()).Scan(context.Background(), root, opts))

	require.Len(t, events, 2)
	assert.Equal(t, EventProgress, events[0].Kind)
	assert.Equal(t, 0, events[0].Progress.Processed)
	assert.Equal(t, EventAborted, terminal.Kind)
	assert.Equal(t, AbortTimeBudget, terminal.AbortReason)
}

func TestScanWallTimeKeepsPartialCatalog(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a/b", "c")

	opts := DefaultOptions()
	opts.MaxWallTime = time.Nanosecond

	entries, _, terminal := collect(t, New(logger.Noop()).Scan(context.Background(), root, opts))

	require.Equal(t, EventFinished, terminal.Kind)
	assert.True(t, terminal.Truncated)
	assert.Equal(t, StopWallTime, terminal.StopReason)
	assert.Equal(t, len(entries), terminal.Total)
	require.NotEmpty(t, entries)
	assert.Equal(t, "", entries[0].RelPath)

	cat, err := catalog.New(root)
	require.NoError(t, err)
	require.NoError(t, cat.AppendBatch(entries))
	require.NoError(t, cat.Seal(terminal.Total))
}

func TestScanInaccessibleSubtree(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}

	root := t.TempDir()
	mkdirs(t, root, "alpha/inner", "locked/hidden", "zeta/inner")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	entries, _, terminal := collect(t, New(logger.Noop()).Scan(context.Background(), root, DefaultOptions()))

	require.Equal(t, EventFinished, terminal.Kind)
	assert.Equal(t, 1, terminal.Inaccessible)
	assert.False(t, terminal.Truncated)
	assert.Equal(t, []string{"", "alpha", "locked", "zeta", "alpha/inner", "zeta/inner"}, relPaths(entries))
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entries, _, terminal := collect(t, New(logger.Noop()).Scan(ctx, root, DefaultOptions()))
	assert.Equal(t, EventAborted, terminal.Kind)
	assert.Equal(t, AbortCancelled, terminal.AbortReason)
	assert.Empty(t, entries)
}

func TestScanRootUnavailable(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := []struct {
		name string
		root string
	}{
		{name: "missing", root: filepath.Join(dir, "missing")},
		{name: "not a directory", root: file},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, events, terminal := collect(t, New(logger.Noop()).Scan(context.Background(), tt.root, DefaultOptions()))
			assert.Equal(t, EventFailed, terminal.Kind)
			assert.ErrorIs(t, terminal.Err, ErrRootUnavailable)
			assert.Empty(t, entries)
			assert.Len(t, events, 1)
		})
	}
}

func TestScanSymlinkCycle(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a/b")
	if err := os.Symlink(filepath.Join(root, "a"), filepath.Join(root, "a", "b", "loop")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	entries, _, terminal := collect(t, New(logger.Noop()).Scan(context.Background(), root, DefaultOptions()))
	require.Equal(t, EventFinished, terminal.Kind)
	assert.Equal(t, []string{"", "a", "a/b"}, relPaths(entries))
}

func TestScanBatchesAndEstimate(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 12; i++ {
		mkdirs(t, root, filepath.Join("top", string(rune('a'+i))))
	}

	opts := DefaultOptions()
	opts.BatchSize = 5

	entries, events, terminal := collect(t, New(logger.Noop()).Scan(context.Background(), root, opts))
	require.Equal(t, EventFinished, terminal.Kind)
	assert.Len(t, entries, 14)

	batches := 0
	last := 0
	for _, ev := range events {
		switch ev.Kind {
		case EventBatch:
			batches++
			assert.LessOrEqual(t, len(ev.Entries), 5)
		case EventProgress:
			assert.GreaterOrEqual(t, ev.Progress.EstimatedTotal, last, "estimate must not decrease")
			last = ev.Progress.EstimatedTotal
		}
	}
	assert.Equal(t, 3, batches)
	assert.GreaterOrEqual(t, last, 50)
}

func TestScannerCancel(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a")

	s := New(logger.Noop())
	s.Cancel()

	_, _, terminal := collect(t, s.Scan(context.Background(), root, DefaultOptions()))
	assert.True(t, terminal.Kind.Terminal())
}
