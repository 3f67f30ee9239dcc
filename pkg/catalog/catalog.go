package catalog

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/0xmhha/folder-search/pkg/pathstore"
)

// Catalog is the ordered directory snapshot of one root.
//
// Thread-safety: all methods are safe for concurrent use. Writers (the scan
// task while building, the watch task after sealing) take the write lock;
// readers observe the catalog only between AppendBatch, Seal and Patch calls.
type Catalog struct {
	mu sync.RWMutex

	root    string
	hash    string
	builtAt time.Time
	sealed  bool

	entries    []Entry
	tombstoned int
	paths      *pathstore.Tree
}

// New creates an empty, unsealed catalog for root.
func New(root string) (*Catalog, error) {
	normalized, err := pathstore.Normalize(root)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog root: %w", err)
	}

	return &Catalog{
		root:  normalized,
		hash:  pathstore.Hash(normalized),
		paths: pathstore.NewTree(),
	}, nil
}

// MakeEntry builds an entry, folding and interning its name.
func MakeEntry(name, relPath, absPath string, parent int32, mtime int64) Entry {
	name = pathstore.Intern(name)
	return Entry{
		Name:        name,
		NameFolded:  pathstore.Intern(pathstore.Fold(name)),
		RelPath:     relPath,
		AbsPath:     absPath,
		ParentIndex: parent,
		Mtime:       mtime,
	}
}

// Root returns the normalized root path.
func (c *Catalog) Root() string {
	return c.root
}

// Hash returns the root hash used for the persisted file name.
func (c *Catalog) Hash() string {
	return c.hash
}

// AppendBatch extends the entry sequence while the catalog is building.
func (c *Catalog) AppendBatch(entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return ErrSealed
	}

	for _, e := range entries {
		if err := c.checkNext(e); err != nil {
			return err
		}
		c.paths.Insert(e.RelPath, len(c.entries))
		c.entries = append(c.entries, e)
	}

	return nil
}

// Seal finalizes the catalog. total must equal the number of entries.
func (c *Catalog) Seal(total int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return ErrSealed
	}
	if total != len(c.entries) {
		return fmt.Errorf("%w: total %d, entries %d", ErrTotalMismatch, total, len(c.entries))
	}

	c.sealed = true
	c.builtAt = time.Unix(time.Now().Unix(), 0)
	return nil
}

// Restore replaces the content with persisted entries and seals the catalog.
//
// Every entry is checked against the catalog invariants; a violation leaves
// the catalog untouched and returns the offending error.
func (c *Catalog) Restore(builtAt time.Time, entries []Entry) error {
	restored := &Catalog{root: c.root, hash: c.hash, paths: pathstore.NewTree()}
	for i := range entries {
		entries[i].Name = pathstore.Intern(entries[i].Name)
		entries[i].NameFolded = pathstore.Intern(entries[i].NameFolded)
		if err := restored.checkNext(entries[i]); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		restored.paths.Insert(entries[i].RelPath, len(restored.entries))
		restored.entries = append(restored.entries, entries[i])
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = restored.entries
	c.paths = restored.paths
	c.tombstoned = 0
	c.builtAt = builtAt
	c.sealed = true
	return nil
}

// checkNext validates e as the entry about to be appended.
// Caller must hold the write lock (or own c exclusively).
func (c *Catalog) checkNext(e Entry) error {
	pos := len(c.entries)

	if pos == 0 {
		if e.ParentIndex != RootParent || e.RelPath != "" {
			return ErrBadRoot
		}
		return nil
	}

	if e.ParentIndex < 0 || int(e.ParentIndex) >= pos {
		return fmt.Errorf("%w: entry %d has parent %d", ErrBadParent, pos, e.ParentIndex)
	}

	parent := c.entries[e.ParentIndex]
	if e.RelPath != pathstore.Join(parent.RelPath, e.Name) {
		return fmt.Errorf("%w: %q under %q", ErrBadPath, e.RelPath, parent.RelPath)
	}
	if e.AbsPath != c.absFor(e.RelPath) {
		return fmt.Errorf("%w: %q", ErrBadPath, e.AbsPath)
	}

	return nil
}

// absFor returns the absolute path of a relative catalog path.
func (c *Catalog) absFor(rel string) string {
	if rel == "" {
		return c.root
	}
	return filepath.Join(c.root, filepath.FromSlash(rel))
}

// Sealed reports whether the catalog has been finalized.
func (c *Catalog) Sealed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sealed
}

// BuiltAt returns the time the catalog was sealed.
func (c *Catalog) BuiltAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.builtAt
}

// Len returns the number of slots, tombstones included.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entry returns the entry at pos.
func (c *Catalog) Entry(pos int) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if pos < 0 || pos >= len(c.entries) {
		return Entry{}, false
	}
	return c.entries[pos], true
}

// Lookup returns the position of the live entry at abs.
func (c *Catalog) Lookup(abs string) (int, bool) {
	rel, ok := pathstore.Rel(c.root, pathstore.MustNormalize(abs))
	if !ok {
		return 0, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	pos, ok := c.paths.Get(rel)
	if !ok || c.entries[pos].deleted {
		return 0, false
	}
	return pos, true
}

// View calls fn with the entry slice under the read lock.
// fn must not retain or modify the slice.
func (c *Catalog) View(fn func(entries []Entry)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c.entries)
}

// Stats returns a summary of the catalog.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		RootAbsPath: c.root,
		RootHash:    c.hash,
		BuiltAt:     c.builtAt,
		Total:       len(c.entries),
		Live:        len(c.entries) - c.tombstoned,
		Tombstoned:  c.tombstoned,
		Sealed:      c.sealed,
	}
}

// Snapshot returns a compacted copy of the entries suitable for persisting.
func (c *Catalog) Snapshot() (time.Time, []Entry) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, _ := compactEntries(c.entries)
	return c.builtAt, entries
}

// Compact drops tombstoned slots and renumbers the survivors.
//
// Returns true if any slot was removed. Positions change, so any index
// built over the catalog must be rebuilt afterwards.
func (c *Catalog) Compact() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tombstoned == 0 {
		return false
	}

	entries, _ := compactEntries(c.entries)
	c.entries = entries
	c.tombstoned = 0

	c.paths = pathstore.NewTree()
	for i, e := range c.entries {
		c.paths.Insert(e.RelPath, i)
	}

	return true
}

// compactEntries copies the live entries, remapping parent indices.
// The root slot is always kept so that entry 0 stays the root.
func compactEntries(entries []Entry) ([]Entry, []int) {
	remap := make([]int, len(entries))
	out := make([]Entry, 0, len(entries))

	for i, e := range entries {
		if e.deleted && i != 0 {
			remap[i] = -1
			continue
		}
		if e.ParentIndex >= 0 {
			e.ParentIndex = int32(remap[e.ParentIndex])
		}
		remap[i] = len(out)
		out = append(out, e)
	}

	return out, remap
}

// Validate checks the structural invariants of the catalog.
//
// Every parent index must precede its entry, and every live relative path
// must equal the names joined along the parent chain. Tombstoned slots may
// carry stale paths.
func (c *Catalog) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	check := &Catalog{root: c.root, paths: pathstore.NewTree()}
	for i, e := range c.entries {
		if e.deleted && i > 0 {
			if e.ParentIndex < 0 || int(e.ParentIndex) >= i {
				return fmt.Errorf("entry %d: %w", i, ErrBadParent)
			}
			check.entries = append(check.entries, e)
			continue
		}
		if err := check.checkNext(e); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if e.NameFolded != pathstore.Fold(e.Name) {
			return fmt.Errorf("entry %d: folded name %q does not match %q", i, e.NameFolded, e.Name)
		}
		check.entries = append(check.entries, e)
	}

	return nil
}
