// Package display renders search results, roots and history for the shell.
//
// It supports multiple output formats (table, JSON, simple text). The
// table and simple formats highlight the matched part of each name when
// color is enabled.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/0xmhha/folder-search/pkg/coordinator"
	"github.com/0xmhha/folder-search/pkg/history"
	"github.com/0xmhha/folder-search/pkg/query"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays output in a formatted table.
	FormatTable Format = "table"

	// FormatJSON displays output as JSON.
	FormatJSON Format = "json"

	// FormatSimple displays output one item per line.
	FormatSimple Format = "simple"
)

// ParseFormat returns the format named s.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatSimple:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Formatter renders engine output.
type Formatter interface {
	// FormatResults renders a finished search.
	FormatResults(w io.Writer, report SearchReport) error

	// FormatRoots renders the configured roots.
	FormatRoots(w io.Writer, roots []coordinator.RootStatus) error

	// FormatHistory renders history records, newest first.
	FormatHistory(w io.Writer, records []history.Record) error
}

// SearchReport is a finished search as shown to the user.
type SearchReport struct {
	Query   query.Query
	Results []query.Result

	// Final is nil for a cancelled search.
	Final *query.Final
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// ColorEnabled highlights matches. Color is still dropped when the
	// output is not a terminal.
	ColorEnabled bool

	// ShowAbsolute prints absolute paths instead of root-relative ones.
	ShowAbsolute bool

	// Compact enables compact output (less whitespace).
	// Default: false.
	Compact bool
}
