package display

import (
	"fmt"
	"io"

	"github.com/0xmhha/folder-search/pkg/coordinator"
	"github.com/0xmhha/folder-search/pkg/history"
)

// simpleFormatter formats output as simple text, one item per line.
type simpleFormatter struct {
	config  Config
	palette palette
}

// FormatResults implements Formatter.FormatResults.
//
// Only paths are printed, so the output can be piped.
func (f *simpleFormatter) FormatResults(w io.Writer, report SearchReport) error {
	for _, r := range report.Results {
		path := resultPath(r, f.config.ShowAbsolute)
		start := len(path) - len(r.Name)
		if start < 0 || path[start:] != r.Name {
			if _, err := fmt.Fprintln(w, path); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintln(w, path[:start]+f.palette.highlight(r.Name, report.Query)); err != nil {
			return err
		}
	}
	return nil
}

// FormatRoots implements Formatter.FormatRoots.
func (f *simpleFormatter) FormatRoots(w io.Writer, roots []coordinator.RootStatus) error {
	for _, r := range roots {
		state := "disabled"
		if r.Enabled {
			state = "enabled"
		}
		if _, err := fmt.Fprintf(w, "%s (%s) %s, watcher %s, %s directories\n",
			r.Path,
			r.Name,
			state,
			r.WatcherState,
			formatNumber(r.Stats.Live)); err != nil {
			return err
		}
	}

	return nil
}

// FormatHistory implements Formatter.FormatHistory.
func (f *simpleFormatter) FormatHistory(w io.Writer, records []history.Record) error {
	for _, r := range records {
		if _, err := fmt.Fprintf(w, "%s %s %q %d %s\n",
			r.Clock,
			r.Method,
			r.Query,
			r.Results,
			r.Elapsed); err != nil {
			return err
		}
	}

	return nil
}
