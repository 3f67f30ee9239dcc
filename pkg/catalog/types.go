// Package catalog holds the ordered snapshot of every directory under a root.
//
// A Catalog is filled by the scanner through AppendBatch, frozen with Seal,
// and from then on changed only through Patch. Entry 0 is always the root
// directory itself: it has ParentIndex -1 and an empty RelPath. Every other
// entry's parent sits at a lower position than the entry.
//
// Example usage:
//
//	cat, err := catalog.New("/home/me/work")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = cat.AppendBatch(batch)
//	_ = cat.Seal(len(batch))
//
//	delta, err := cat.Patch(catalog.Deleted("/home/me/work/old"))
package catalog

import (
	"fmt"
	"time"
)

// RootParent is the ParentIndex sentinel carried by the root entry.
const RootParent int32 = -1

// Entry is one directory record.
type Entry struct {
	// Name is the last path component in its original case.
	Name string

	// NameFolded is the lowercased form of Name used for matching.
	NameFolded string

	// RelPath is the forward-slash path relative to the root ("" for the root).
	RelPath string

	// AbsPath is the full normalized path.
	AbsPath string

	// ParentIndex is the position of the parent entry, or RootParent.
	ParentIndex int32

	// Mtime is the last modification time in seconds since the epoch.
	Mtime int64

	deleted bool
}

// Deleted reports whether the entry's slot is tombstoned.
func (e Entry) Deleted() bool {
	return e.deleted
}

// ChangeKind identifies the variant of a Change.
type ChangeKind uint8

// Change kinds.
const (
	ChangeCreated ChangeKind = iota + 1
	ChangeDeleted
	ChangeModified
	ChangeMoved
)

// String returns a human-readable change name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "CREATED"
	case ChangeDeleted:
		return "DELETED"
	case ChangeModified:
		return "MODIFIED"
	case ChangeMoved:
		return "MOVED"
	default:
		return "UNKNOWN"
	}
}

// Change is a normalized filesystem change on a directory.
type Change struct {
	Kind ChangeKind

	// Path is the affected directory; for ChangeMoved it is the destination.
	Path string

	// From is the source path of a ChangeMoved.
	From string

	// ModTime is the directory's mtime in seconds when known, else 0.
	ModTime int64
}

// Created returns a Created change.
func Created(path string, modTime int64) Change {
	return Change{Kind: ChangeCreated, Path: path, ModTime: modTime}
}

// Deleted returns a Deleted change.
func Deleted(path string) Change {
	return Change{Kind: ChangeDeleted, Path: path}
}

// Modified returns a Modified change.
func Modified(path string, modTime int64) Change {
	return Change{Kind: ChangeModified, Path: path, ModTime: modTime}
}

// Moved returns a Moved change.
func Moved(from, to string, modTime int64) Change {
	return Change{Kind: ChangeMoved, From: from, Path: to, ModTime: modTime}
}

// String implements fmt.Stringer.
func (c Change) String() string {
	if c.Kind == ChangeMoved {
		return fmt.Sprintf("%s %s -> %s", c.Kind, c.From, c.Path)
	}
	return fmt.Sprintf("%s %s", c.Kind, c.Path)
}

// Rename records an entry whose folded name changed in place.
type Rename struct {
	Pos       int
	OldFolded string
}

// Delta describes what a Patch did, in terms the index can replay.
type Delta struct {
	// Added lists new positions, ascending.
	Added []int

	// Removed lists positions that were tombstoned, ascending.
	Removed []int

	// Revived lists tombstoned positions brought back to life.
	Revived []int

	// Renamed lists positions whose folded name changed without moving.
	Renamed []Rename

	// Relocated lists positions whose paths changed (moved subtrees).
	Relocated []int

	// Touched lists positions whose mtime was refreshed.
	Touched []int
}

// Empty reports whether the patch left the catalog unchanged.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Revived) == 0 &&
		len(d.Renamed) == 0 && len(d.Relocated) == 0 && len(d.Touched) == 0
}

// AffectsIndex reports whether the index must replay this delta.
func (d Delta) AffectsIndex() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Revived) > 0 || len(d.Renamed) > 0
}

// Stats summarizes a catalog.
type Stats struct {
	RootAbsPath string
	RootHash    string
	BuiltAt     time.Time
	Total       int
	Live        int
	Tombstoned  int
	Sealed      bool
}
