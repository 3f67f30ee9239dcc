package pathstore

import (
	"strings"

	"github.com/armon/go-radix"
)

// Tree maps forward-slash relative paths to catalog positions.
//
// It is a patricia tree, so looking up a path costs O(len(path)) and a whole
// subtree can be visited without scanning unrelated entries.
//
// Tree is not safe for concurrent use; the owning catalog guards it.
type Tree struct {
	tree *radix.Tree
}

// NewTree creates an empty path tree.
func NewTree() *Tree {
	return &Tree{tree: radix.New()}
}

// Insert maps rel to pos, replacing any previous mapping.
func (t *Tree) Insert(rel string, pos int) {
	t.tree.Insert(rel, pos)
}

// Get returns the position stored for rel.
func (t *Tree) Get(rel string) (int, bool) {
	v, ok := t.tree.Get(rel)
	if !ok {
		return 0, false
	}
	return v.(int), true
}

// Delete removes rel from the tree.
func (t *Tree) Delete(rel string) {
	t.tree.Delete(rel)
}

// Len returns the number of stored paths.
func (t *Tree) Len() int {
	return t.tree.Len()
}

// WalkSubtree calls fn for rel and every path below it, in lexical order.
// Returning false from fn stops the walk. An empty rel visits everything.
func (t *Tree) WalkSubtree(rel string, fn func(rel string, pos int) bool) {
	if rel == "" {
		t.tree.Walk(func(k string, v interface{}) bool {
			return !fn(k, v.(int))
		})
		return
	}

	if pos, ok := t.Get(rel); ok {
		if !fn(rel, pos) {
			return
		}
	}

	t.tree.WalkPrefix(rel+"/", func(k string, v interface{}) bool {
		return !fn(k, v.(int))
	})
}

// Subtree returns the positions of rel and all its descendants.
func (t *Tree) Subtree(rel string) []int {
	var out []int
	t.WalkSubtree(rel, func(_ string, pos int) bool {
		out = append(out, pos)
		return true
	})
	return out
}

// IsWithin reports whether rel equals base or lies below it.
func IsWithin(base, rel string) bool {
	if base == "" {
		return true
	}
	return rel == base || strings.HasPrefix(rel, base+"/")
}
