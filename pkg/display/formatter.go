package display

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/0xmhha/folder-search/pkg/pathstore"
	"github.com/0xmhha/folder-search/pkg/query"
)

// New creates a new formatter based on configuration.
func New(cfg Config) Formatter {
	// Set defaults.
	if cfg.Format == "" {
		cfg.Format = FormatTable
	}

	match := color.New(color.FgGreen, color.Bold)
	dim := color.New(color.Faint)
	warn := color.New(color.FgYellow)
	if !cfg.ColorEnabled {
		match.DisableColor()
		dim.DisableColor()
		warn.DisableColor()
	}
	p := palette{match: match, dim: dim, warn: warn}

	switch cfg.Format {
	case FormatJSON:
		return &jsonFormatter{config: cfg}
	case FormatSimple:
		return &simpleFormatter{config: cfg, palette: p}
	case FormatTable:
		fallthrough
	default:
		return &tableFormatter{config: cfg, palette: p}
	}
}

// palette holds the colors of the text formats.
type palette struct {
	match *color.Color
	dim   *color.Color
	warn  *color.Color
}

// highlight colors the part of name that q matched.
func (p palette) highlight(name string, q query.Query) string {
	start, end := matchSpan(name, q)
	if start == end {
		return name
	}
	return name[:start] + p.match.Sprint(name[start:end]) + name[end:]
}

// matchSpan returns the byte range of name matched by q, or an empty range
// when it cannot be located in the original spelling.
func matchSpan(name string, q query.Query) (int, int) {
	folded := pathstore.Fold(name)
	if q.Folded == "" || len(folded) != len(name) {
		return 0, 0
	}

	if q.Mode == query.ModeContains {
		if i := strings.Index(folded, q.Folded); i >= 0 {
			return i, i + len(q.Folded)
		}
		return 0, 0
	}

	if strings.HasPrefix(folded, q.Folded) {
		return 0, len(q.Folded)
	}
	for i := 1; i < len(folded); i++ {
		if folded[i-1] == ' ' && strings.HasPrefix(folded[i:], q.Folded) {
			return i, i + len(q.Folded)
		}
	}
	return 0, 0
}

// resultPath is the path column of a result.
func resultPath(r query.Result, absolute bool) string {
	if absolute || r.RelPath == "" {
		return r.AbsPath
	}
	return r.RelPath
}

// summary describes a Final in one line.
func summary(f *query.Final) string {
	if f == nil {
		return "search cancelled"
	}

	noun := "results"
	if f.Total == 1 {
		noun = "result"
	}
	s := fmt.Sprintf("%s %s in %dms (%s)", formatNumber(f.Total), noun, f.ElapsedMs, f.ModeUsed)
	if f.TimedOut {
		s += ", timed out"
	}
	if f.Truncated {
		s += ", truncated"
	}
	return s
}

// formatNumber formats a number with thousand separators.
func formatNumber(n int) string {
	return humanize.Comma(int64(n))
}

// formatWhen formats a past time relative to now.
func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// width is the display width of a raw cell.
func width(s string) int {
	return utf8.RuneCountInString(s)
}

// writeHeader writes a section header.
func writeHeader(w io.Writer, title string, compact bool) error {
	if compact {
		_, err := fmt.Fprintf(w, "%s\n", title)
		return err
	}

	separator := strings.Repeat("=", width(title))

	_, err := fmt.Fprintf(w, "\n%s\n%s\n\n", title, separator)
	return err
}
