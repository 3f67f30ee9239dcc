package store

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/folder-search/pkg/catalog"
	"github.com/0xmhha/folder-search/pkg/logger"
)

func newStore(t *testing.T) (Store, string) {
	t.Helper()

	dir := t.TempDir()
	st, err := New(Config{Dir: dir}, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return st, dir
}

func sampleCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	cat, err := catalog.New(t.TempDir())
	require.NoError(t, err)
	root := cat.Root()

	j := func(rel string) string { return filepath.Join(root, filepath.FromSlash(rel)) }
	batch := []catalog.Entry{
		catalog.MakeEntry(filepath.Base(root), "", root, catalog.RootParent, 100),
		catalog.MakeEntry("alpha", "alpha", j("alpha"), 0, 101),
		catalog.MakeEntry("Alpha-Two", "Alpha-Two", j("Alpha-Two"), 0, 102),
		catalog.MakeEntry("beta", "beta", j("beta"), 0, 103),
		catalog.MakeEntry("alpha-nested", "beta/alpha-nested", j("beta/alpha-nested"), 3, 104),
		catalog.MakeEntry("café", "beta/café", j("beta/café"), 3, 105),
	}
	require.NoError(t, cat.AppendBatch(batch))
	require.NoError(t, cat.Seal(len(batch)))

	return cat
}

func entriesOf(cat *catalog.Catalog) []catalog.Entry {
	_, entries := cat.Snapshot()
	return entries
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(Config{}, logger.Noop())
	assert.ErrorIs(t, err, ErrEmptyDir)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st, dir := newStore(t)
	cat := sampleCatalog(t)

	require.NoError(t, st.Save(cat))

	path := st.CatalogPath(cat.Root())
	assert.Equal(t, filepath.Join(dir, "cache_"+cat.Hash()+".bin"), path)
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file left behind")

	loaded, err := st.Load(cat.Root())
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, cat.BuiltAt(), loaded.BuiltAt())
	assert.Equal(t, entriesOf(cat), entriesOf(loaded))
	assert.True(t, loaded.Sealed())
	assert.NoError(t, loaded.Validate())
}

func TestSaveCompactsTombstones(t *testing.T) {
	st, _ := newStore(t)
	cat := sampleCatalog(t)

	_, err := cat.Patch(catalog.Deleted(filepath.Join(cat.Root(), "alpha")))
	require.NoError(t, err)
	require.NoError(t, st.Save(cat))

	loaded, err := st.Load(cat.Root())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 5, loaded.Stats().Total)
	assert.Equal(t, 0, loaded.Stats().Tombstoned)
}

func TestSaveReproducible(t *testing.T) {
	st, _ := newStore(t)
	cat := sampleCatalog(t)

	require.NoError(t, st.Save(cat))
	first, err := os.ReadFile(st.CatalogPath(cat.Root()))
	require.NoError(t, err)

	require.NoError(t, st.Save(cat))
	second, err := os.ReadFile(st.CatalogPath(cat.Root()))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []byte("BRFC"), first[:4])
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(first[4:6]))
	assert.Equal(t, uint32(len(cat.Root())), binary.LittleEndian.Uint32(first[6:10]))
}

func TestLoadMissing(t *testing.T) {
	st, _ := newStore(t)

	cat, err := st.Load(t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, cat)
}

func TestLoadMismatchTreatedAsAbsent(t *testing.T) {
	st, _ := newStore(t)
	cat := sampleCatalog(t)
	require.NoError(t, st.Save(cat))
	path := st.CatalogPath(cat.Root())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{name: "magic", mutate: func(b []byte) []byte { b[0] = 'X'; return b }},
		{name: "version", mutate: func(b []byte) []byte { binary.LittleEndian.PutUint16(b[4:6], 2); return b }},
		{name: "root", mutate: func(b []byte) []byte { b[10] ^= 0x01; return b }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, tt.mutate(bytes.Clone(data)), 0o644))

			loaded, err := st.Load(cat.Root())
			assert.NoError(t, err)
			assert.Nil(t, loaded)
			_, statErr := os.Stat(path)
			assert.NoError(t, statErr, "mismatched file must be kept")
		})
	}
}

func TestLoadCorruptRemovesFile(t *testing.T) {
	st, _ := newStore(t)
	cat := sampleCatalog(t)
	require.NoError(t, st.Save(cat))
	path := st.CatalogPath(cat.Root())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	header := 4 + 2 + 4 + len(cat.Root()) + 8 + 4

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{name: "truncated", mutate: func(b []byte) []byte { return b[:len(b)-3] }},
		{name: "trailing bytes", mutate: func(b []byte) []byte { return append(b, 0) }},
		{name: "total too large", mutate: func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[header-4:header], 1000)
			return b
		}},
		{name: "broken root record", mutate: func(b []byte) []byte {
			// Record 0's rel_len follows its name; make it non-zero.
			nameLen := int(binary.LittleEndian.Uint16(b[header : header+2]))
			binary.LittleEndian.PutUint16(b[header+2+nameLen:], 1)
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, tt.mutate(bytes.Clone(data)), 0o644))

			loaded, err := st.Load(cat.Root())
			assert.ErrorIs(t, err, ErrCatalogCorrupt)
			assert.Nil(t, loaded)
			_, statErr := os.Stat(path)
			assert.True(t, os.IsNotExist(statErr), "corrupt file must be removed")
		})
	}
}

func TestSaveUnsealed(t *testing.T) {
	st, _ := newStore(t)
	cat, err := catalog.New(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, st.Save(cat), ErrStorageFailure)
}

func TestRootState(t *testing.T) {
	st, _ := newStore(t)
	root := t.TempDir()

	_, found, err := st.State(root)
	require.NoError(t, err)
	assert.False(t, found)

	want := RootState{
		Path:         root,
		LastScanned:  time.Unix(1700000000, 0).UTC(),
		Total:        42,
		Inaccessible: 2,
		ScanDuration: 1500 * time.Millisecond,
		WatcherState: WatcherActive,
	}
	require.NoError(t, st.PutState(want))

	got, found, err := st.State(root)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 42, got.Total)
	assert.Equal(t, WatcherActive, got.WatcherState)
	assert.Equal(t, 1500*time.Millisecond, got.ScanDuration)
	assert.True(t, want.LastScanned.Equal(got.LastScanned))
	assert.Len(t, got.Hash, 8)

	states, err := st.States()
	require.NoError(t, err)
	assert.Len(t, states, 1)
}

func TestInvalidate(t *testing.T) {
	st, _ := newStore(t)
	cat := sampleCatalog(t)
	require.NoError(t, st.Save(cat))
	require.NoError(t, st.PutState(RootState{Path: cat.Root(), Total: 6}))

	require.NoError(t, st.Invalidate(cat.Root()))

	_, err := os.Stat(st.CatalogPath(cat.Root()))
	assert.True(t, os.IsNotExist(err))

	_, found, err := st.State(cat.Root())
	require.NoError(t, err)
	assert.False(t, found)

	// Invalidating twice is harmless.
	assert.NoError(t, st.Invalidate(cat.Root()))
}

func TestClosedStore(t *testing.T) {
	st, err := New(Config{Dir: t.TempDir()}, logger.Noop())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	_, err = st.Load(t.TempDir())
	assert.ErrorIs(t, err, ErrStoreClosed)
}
