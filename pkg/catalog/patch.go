package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/0xmhha/folder-search/pkg/pathstore"
)

// Patch applies a filesystem change to a sealed catalog.
//
// Applying the same change twice leaves the catalog as if it was applied
// once; the second Delta is empty.
func (c *Catalog) Patch(ch Change) (Delta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sealed {
		return Delta{}, ErrNotSealed
	}

	switch ch.Kind {
	case ChangeCreated:
		return c.created(ch.Path, ch.ModTime)
	case ChangeDeleted:
		return c.deleted(ch.Path)
	case ChangeModified:
		return c.modified(ch.Path, ch.ModTime)
	case ChangeMoved:
		return c.moved(ch.From, ch.Path, ch.ModTime)
	default:
		return Delta{}, fmt.Errorf("%w: kind %d", ErrInvalidChange, ch.Kind)
	}
}

// relOf maps an absolute path onto the catalog.
func (c *Catalog) relOf(path string) (string, bool) {
	return pathstore.Rel(c.root, pathstore.MustNormalize(path))
}

// live returns the position of the non-tombstoned entry at rel.
func (c *Catalog) live(rel string) (int, bool) {
	pos, ok := c.paths.Get(rel)
	if !ok || c.entries[pos].deleted {
		return 0, false
	}
	return pos, true
}

func (c *Catalog) created(path string, mtime int64) (Delta, error) {
	rel, ok := c.relOf(path)
	if !ok {
		return Delta{}, fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if rel == "" {
		return Delta{}, nil
	}

	parentPos, ok := c.live(pathstore.Parent(rel))
	if !ok {
		return Delta{}, fmt.Errorf("%w: %s", ErrUnknownParent, path)
	}

	if pos, ok := c.paths.Get(rel); ok {
		e := &c.entries[pos]
		if !e.deleted {
			return Delta{}, nil
		}
		if int(e.ParentIndex) == parentPos {
			e.deleted = false
			if mtime != 0 {
				e.Mtime = mtime
			}
			c.tombstoned--
			return Delta{Revived: []int{pos}}, nil
		}
	}

	pos := c.appendLocked(rel, int32(parentPos), mtime)
	return Delta{Added: []int{pos}}, nil
}

func (c *Catalog) deleted(path string) (Delta, error) {
	rel, ok := c.relOf(path)
	if !ok {
		return Delta{}, fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}

	if _, ok := c.live(rel); !ok {
		return Delta{}, nil
	}

	return Delta{Removed: c.tombstoneSubtree(rel)}, nil
}

func (c *Catalog) modified(path string, mtime int64) (Delta, error) {
	rel, ok := c.relOf(path)
	if !ok {
		return Delta{}, fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}

	pos, ok := c.live(rel)
	if !ok || mtime == 0 || c.entries[pos].Mtime == mtime {
		return Delta{}, nil
	}

	c.entries[pos].Mtime = mtime
	return Delta{Touched: []int{pos}}, nil
}

func (c *Catalog) moved(from, to string, mtime int64) (Delta, error) {
	fromRel, fromInside := c.relOf(from)
	toRel, toInside := c.relOf(to)

	switch {
	case !fromInside && !toInside:
		return Delta{}, fmt.Errorf("%w: %s -> %s", ErrOutsideRoot, from, to)
	case !fromInside:
		return c.created(to, mtime)
	}

	srcPos, ok := c.live(fromRel)
	if !ok {
		if !toInside {
			return Delta{}, nil
		}
		return c.created(to, mtime)
	}

	if fromRel == "" || (toInside && pathstore.IsWithin(fromRel, toRel)) {
		return Delta{}, fmt.Errorf("%w: cannot move %s into %s", ErrInvalidChange, from, to)
	}

	if !toInside {
		return c.deleted(from)
	}
	if _, exists := c.live(toRel); exists {
		return c.deleted(from)
	}

	parentPos, ok := c.live(pathstore.Parent(toRel))
	if !ok {
		return c.deleted(from)
	}

	if parentPos < srcPos {
		return c.moveInPlace(srcPos, fromRel, toRel, parentPos, mtime), nil
	}
	return c.moveAppend(srcPos, fromRel, toRel, parentPos, mtime), nil
}

// moveInPlace rewrites the moved subtree without changing positions.
func (c *Catalog) moveInPlace(srcPos int, fromRel, toRel string, parentPos int, mtime int64) Delta {
	var delta Delta

	type slot struct {
		pos int
		rel string
	}
	var subtree []slot
	c.paths.WalkSubtree(fromRel, func(rel string, pos int) bool {
		subtree = append(subtree, slot{pos: pos, rel: rel})
		return true
	})

	for _, s := range subtree {
		c.paths.Delete(s.rel)
	}

	for _, s := range subtree {
		e := &c.entries[s.pos]
		if e.deleted {
			// Stale tombstones under the old path can no longer be revived.
			continue
		}

		newRel := toRel + strings.TrimPrefix(s.rel, fromRel)
		e.RelPath = newRel
		e.AbsPath = c.absFor(newRel)
		c.paths.Insert(newRel, s.pos)
		delta.Relocated = append(delta.Relocated, s.pos)
	}

	src := &c.entries[srcPos]
	oldFolded := src.NameFolded
	src.Name = pathstore.Intern(pathstore.Base(toRel))
	src.NameFolded = pathstore.Intern(pathstore.Fold(src.Name))
	src.ParentIndex = int32(parentPos)
	if mtime != 0 {
		src.Mtime = mtime
	}
	if src.NameFolded != oldFolded {
		delta.Renamed = []Rename{{Pos: srcPos, OldFolded: oldFolded}}
	}

	sort.Ints(delta.Relocated)
	return delta
}

// moveAppend tombstones the moved subtree and re-appends it after the new
// parent, preserving the original relative order.
func (c *Catalog) moveAppend(srcPos int, fromRel, toRel string, parentPos int, mtime int64) Delta {
	var delta Delta

	olds := c.tombstoneSubtree(fromRel)
	delta.Removed = olds

	remap := make(map[int]int32, len(olds))
	for _, old := range olds {
		e := c.entries[old]
		newRel := toRel + strings.TrimPrefix(e.RelPath, fromRel)

		parent := int32(parentPos)
		entryMtime := e.Mtime
		if old == srcPos {
			if mtime != 0 {
				entryMtime = mtime
			}
		} else {
			parent = remap[int(e.ParentIndex)]
		}

		pos := c.appendLocked(newRel, parent, entryMtime)
		remap[old] = int32(pos)
		delta.Added = append(delta.Added, pos)
	}

	return delta
}

// tombstoneSubtree marks rel and its live descendants deleted and returns
// their positions in ascending order.
func (c *Catalog) tombstoneSubtree(rel string) []int {
	var removed []int
	c.paths.WalkSubtree(rel, func(_ string, pos int) bool {
		if pos != 0 && !c.entries[pos].deleted {
			removed = append(removed, pos)
		}
		return true
	})

	for _, pos := range removed {
		c.entries[pos].deleted = true
	}
	c.tombstoned += len(removed)

	sort.Ints(removed)
	return removed
}

// appendLocked adds a new entry for rel. Caller holds the write lock.
func (c *Catalog) appendLocked(rel string, parent int32, mtime int64) int {
	pos := len(c.entries)
	c.entries = append(c.entries, MakeEntry(pathstore.Base(rel), rel, c.absFor(rel), parent, mtime))
	c.paths.Insert(rel, pos)
	return pos
}
