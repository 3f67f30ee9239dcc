// Package query defines search requests and results shared by the
// coordinator, the event bus and the embedding shell.
package query

import (
	"fmt"
	"strings"

	"github.com/0xmhha/folder-search/pkg/pathstore"
)

// DefaultMaxResults caps a search when the request leaves MaxResults unset.
const DefaultMaxResults = 2000

// Mode selects how the query text is matched against folder names.
type Mode uint8

// Match modes.
const (
	// ModePrefix matches the start of a name or of a whitespace separated word.
	ModePrefix Mode = iota

	// ModeContains matches anywhere in a name.
	ModeContains
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModePrefix:
		return "prefix"
	case ModeContains:
		return "contains"
	default:
		return "unknown"
	}
}

// ParseMode converts a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prefix", "":
		return ModePrefix, nil
	case "contains":
		return ModeContains, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Query is one search request.
type Query struct {
	// Text is the raw user input.
	Text string

	// Folded is the trimmed, folded text used for matching.
	Folded string

	// MaxResults bounds the merged result list. Default: 2000.
	MaxResults int

	Mode Mode

	// Silent suppresses the history record.
	Silent bool
}

// New builds a normalized query.
func New(text string, mode Mode, maxResults int) Query {
	return Query{Text: text, Mode: mode, MaxResults: maxResults}.Normalize()
}

// Normalize fills Folded and applies defaults.
func (q Query) Normalize() Query {
	q.Folded = pathstore.Fold(strings.TrimSpace(q.Text))
	if q.MaxResults <= 0 {
		q.MaxResults = DefaultMaxResults
	}
	return q
}

// Empty reports whether the query has nothing to match.
func (q Query) Empty() bool {
	return q.Folded == ""
}

// Result is one matching directory.
type Result struct {
	Name      string `json:"name"`
	RelPath   string `json:"rel_path"`
	AbsPath   string `json:"abs_path"`
	RootLabel string `json:"root"`
}

// ModeUsed tells how a search was answered.
type ModeUsed uint8

// Search strategies.
const (
	UsedCatalog ModeUsed = iota + 1
	UsedLive
)

// String returns the strategy name.
func (m ModeUsed) String() string {
	switch m {
	case UsedCatalog:
		return "catalog"
	case UsedLive:
		return "live"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m ModeUsed) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Final closes a search stream.
type Final struct {
	Total            int      `json:"total"`
	ElapsedMs        int64    `json:"elapsed_ms"`
	ModeUsed         ModeUsed `json:"mode_used"`
	Truncated        bool     `json:"truncated"`
	TimedOut         bool     `json:"timed_out"`
	UnavailableRoots []string `json:"unavailable_roots"`
}
