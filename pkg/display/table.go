package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/0xmhha/folder-search/pkg/coordinator"
	"github.com/0xmhha/folder-search/pkg/history"
	"github.com/0xmhha/folder-search/pkg/store"
)

// tableFormatter formats output as tables.
type tableFormatter struct {
	config  Config
	palette palette
}

// decorate colors a padded cell of column col.
type decorate func(row, col int, cell string) string

// FormatResults implements Formatter.FormatResults.
func (f *tableFormatter) FormatResults(w io.Writer, report SearchReport) error {
	title := fmt.Sprintf("Results for %q", report.Query.Text)
	if err := writeHeader(w, title, f.config.Compact); err != nil {
		return err
	}

	header := []string{"#", "Name", "Path", "Root"}
	rows := make([][]string, len(report.Results))
	for i, r := range report.Results {
		rows[i] = []string{
			fmt.Sprintf("%d", i+1),
			r.Name,
			resultPath(r, f.config.ShowAbsolute),
			r.RootLabel,
		}
	}

	err := f.writeTable(w, header, rows, func(row, col int, cell string) string {
		switch col {
		case 1:
			return f.palette.highlight(cell, report.Query)
		case 3:
			return f.palette.dim.Sprint(cell)
		default:
			return cell
		}
	})
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w, summary(report.Final)); err != nil {
		return err
	}
	if report.Final != nil && len(report.Final.UnavailableRoots) > 0 {
		line := "not cataloged: " + strings.Join(report.Final.UnavailableRoots, ", ")
		if _, err := fmt.Fprintln(w, f.palette.warn.Sprint(line)); err != nil {
			return err
		}
	}
	return nil
}

// FormatRoots implements Formatter.FormatRoots.
func (f *tableFormatter) FormatRoots(w io.Writer, roots []coordinator.RootStatus) error {
	if err := writeHeader(w, "Search Roots", f.config.Compact); err != nil {
		return err
	}

	header := []string{"Path", "Name", "Enabled", "Watcher", "Directories", "Last Scanned"}
	rows := make([][]string, len(roots))
	for i, r := range roots {
		path := r.Path
		if r.Primary {
			path += " *"
		}
		enabled := "no"
		if r.Enabled {
			enabled = "yes"
		}
		dirs := "-"
		if r.Cataloged {
			dirs = formatNumber(r.Stats.Live)
		}
		if r.Scanning {
			dirs += " (scanning)"
		}
		rows[i] = []string{path, r.Name, enabled, string(r.WatcherState), dirs, formatWhen(r.LastScanned)}
	}

	return f.writeTable(w, header, rows, func(row, col int, cell string) string {
		if col == 3 && roots[row].WatcherState == store.WatcherUnavailable {
			return f.palette.warn.Sprint(cell)
		}
		return cell
	})
}

// FormatHistory implements Formatter.FormatHistory.
func (f *tableFormatter) FormatHistory(w io.Writer, records []history.Record) error {
	if err := writeHeader(w, "Search History", f.config.Compact); err != nil {
		return err
	}

	header := []string{"When", "Query", "Method", "Results", "Time"}
	rows := make([][]string, len(records))
	for i, r := range records {
		when := r.Clock
		if t := r.Time(); !t.IsZero() {
			when = t.Local().Format("2006-01-02 15:04:05")
		}
		rows[i] = []string{when, r.Query, string(r.Method), formatNumber(r.Results), r.Elapsed}
	}

	return f.writeTable(w, header, rows, nil)
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string, deco decorate) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	// Calculate column widths.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = width(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && width(cell) > widths[i] {
				widths[i] = width(cell)
			}
		}
	}

	// Write header.
	if err := f.writeRow(w, header, widths, nil, -1); err != nil {
		return err
	}

	// Write separator.
	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, n := range widths {
			separator[i] = strings.Repeat("-", n)
		}
		if err := f.writeRow(w, separator, widths, nil, -1); err != nil {
			return err
		}
	}

	// Write rows.
	for i, row := range rows {
		if err := f.writeRow(w, row, widths, deco, i); err != nil {
			return err
		}
	}

	// Add spacing.
	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// writeRow writes a single table row. Cells are padded on their raw width
// so that color codes do not break the alignment.
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int, deco decorate, row int) error {
	gap := "  "
	if f.config.Compact {
		gap = " "
	}

	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString(gap)
		}

		text := cell
		if deco != nil {
			text = deco(row, i, cell)
		}
		b.WriteString(text)

		if i < len(cells)-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-width(cell)))
		}
	}

	_, err := fmt.Fprintln(w, b.String())
	return err
}
