// Package index provides prefix and substring lookup over a catalog's
// folded directory names.
//
// The index is a trie keyed by runes. Every node holds the ascending set of
// catalog positions whose folded name, or one of its whitespace separated
// words, passes through that node. Deleted positions are tombstoned and
// skipped at query time rather than removed.
//
// Example usage:
//
//	ix, took := index.Build(cat)
//	positions := ix.QueryPrefix("alp", 10)
package index

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring"

	"github.com/0xmhha/folder-search/pkg/catalog"
	"github.com/0xmhha/folder-search/pkg/pathstore"
)

const (
	// MinWordLength is the shortest word inside a name that gets its own chain.
	MinWordLength = 3

	// DefaultContainsBudget bounds a single substring scan.
	DefaultContainsBudget = 50 * time.Millisecond

	// budgetCheckEvery is how many entries a substring scan visits between clock reads.
	budgetCheckEvery = 256
)

type node struct {
	children map[rune]*node
	occ      *roaring.Bitmap
}

func newNode() *node {
	return &node{children: make(map[rune]*node), occ: roaring.New()}
}

// Index is the in-memory trie over one catalog. It is safe for concurrent use.
type Index struct {
	mu         sync.RWMutex
	root       *node
	nodes      int
	indexed    *roaring.Bitmap
	tombstones *roaring.Bitmap
}

// Stats summarizes an index.
type Stats struct {
	Nodes      int
	Indexed    int
	Tombstones int
}

// New returns an empty index.
func New() *Index {
	return &Index{
		root:       newNode(),
		indexed:    roaring.New(),
		tombstones: roaring.New(),
	}
}

// Build indexes every live entry of cat except the root and reports how
// long it took.
func Build(cat *catalog.Catalog) (*Index, time.Duration) {
	start := time.Now()
	ix := New()

	cat.View(func(entries []catalog.Entry) {
		for i := 1; i < len(entries); i++ {
			if entries[i].Deleted() {
				continue
			}
			ix.insert(uint32(i), entries[i].NameFolded)
		}
	})

	return ix, time.Since(start)
}

// Keys returns the trie keys a folded name is inserted under.
func Keys(folded string) []string {
	keys := []string{folded}
	if !pathstore.HasSpace(folded) {
		return keys
	}
	for _, w := range pathstore.Words(folded) {
		if utf8.RuneCountInString(w) >= MinWordLength && w != folded {
			keys = append(keys, w)
		}
	}
	return keys
}

// MatchPrefix reports whether q is a prefix of folded or of one of its
// indexed words.
func MatchPrefix(folded, q string) bool {
	for _, k := range Keys(folded) {
		if strings.HasPrefix(k, q) {
			return true
		}
	}
	return false
}

// insert adds pos under every key of folded. Caller holds the write lock.
func (ix *Index) insert(pos uint32, folded string) {
	for _, key := range Keys(folded) {
		n := ix.root
		for _, r := range key {
			child, ok := n.children[r]
			if !ok {
				child = newNode()
				n.children[r] = child
				ix.nodes++
			}
			child.occ.Add(pos)
			n = child
		}
	}
	ix.indexed.Add(pos)
}

// remove drops pos from every chain of folded. Caller holds the write lock.
func (ix *Index) remove(pos uint32, folded string) {
	for _, key := range Keys(folded) {
		n := ix.root
		for _, r := range key {
			child, ok := n.children[r]
			if !ok {
				break
			}
			child.occ.Remove(pos)
			n = child
		}
	}
}

// find walks the trie along q.
func (ix *Index) find(q string) *node {
	n := ix.root
	for _, r := range q {
		child, ok := n.children[r]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

// QueryPrefix returns up to limit live positions, ascending, whose name or
// word starts with folded. A limit of zero or less is unlimited.
func (ix *Index) QueryPrefix(folded string, limit int) []int {
	if folded == "" {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := ix.find(folded)
	if n == nil {
		return nil
	}

	var out []int
	it := n.occ.Iterator()
	for it.HasNext() {
		pos := it.Next()
		if ix.tombstones.Contains(pos) {
			continue
		}
		out = append(out, int(pos))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// QueryContains scans cat for live names containing folded.
//
// It returns at most limit positions in catalog order. partial is true when
// budget ran out before the scan completed. A budget of zero or less uses
// DefaultContainsBudget.
func QueryContains(cat *catalog.Catalog, folded string, limit int, budget time.Duration) (positions []int, partial bool) {
	if folded == "" {
		return nil, false
	}
	if budget <= 0 {
		budget = DefaultContainsBudget
	}
	deadline := time.Now().Add(budget)

	cat.View(func(entries []catalog.Entry) {
		for i := 1; i < len(entries); i++ {
			if i%budgetCheckEvery == 0 && time.Now().After(deadline) {
				partial = true
				return
			}
			e := entries[i]
			if e.Deleted() || !strings.Contains(e.NameFolded, folded) {
				continue
			}
			positions = append(positions, i)
			if limit > 0 && len(positions) >= limit {
				return
			}
		}
	})

	return positions, partial
}

// Patch replays a catalog delta.
func (ix *Index) Patch(cat *catalog.Catalog, delta catalog.Delta) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, pos := range delta.Removed {
		ix.tombstones.Add(uint32(pos))
	}

	for _, rn := range delta.Renamed {
		e, ok := cat.Entry(rn.Pos)
		if !ok {
			return fmt.Errorf("%w: %d", ErrPositionRange, rn.Pos)
		}
		ix.remove(uint32(rn.Pos), rn.OldFolded)
		ix.insert(uint32(rn.Pos), e.NameFolded)
	}

	for _, group := range [][]int{delta.Added, delta.Revived} {
		for _, pos := range group {
			e, ok := cat.Entry(pos)
			if !ok {
				return fmt.Errorf("%w: %d", ErrPositionRange, pos)
			}
			if pos == 0 {
				continue
			}
			ix.insert(uint32(pos), e.NameFolded)
			ix.tombstones.Remove(uint32(pos))
		}
	}

	return nil
}

// Stats returns the index size.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return Stats{
		Nodes:      ix.nodes,
		Indexed:    int(ix.indexed.GetCardinality()),
		Tombstones: int(ix.tombstones.GetCardinality()),
	}
}
