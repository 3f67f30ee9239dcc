package display

import (
	"encoding/json"
	"io"
	"time"

	"github.com/0xmhha/folder-search/pkg/coordinator"
	"github.com/0xmhha/folder-search/pkg/history"
	"github.com/0xmhha/folder-search/pkg/query"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

// searchJSON is the JSON shape of a finished search.
type searchJSON struct {
	Query   string         `json:"query"`
	Mode    string         `json:"mode"`
	Results []query.Result `json:"results"`
	Final   *query.Final   `json:"final"`
}

// rootJSON is the JSON shape of a root.
type rootJSON struct {
	Path         string     `json:"path"`
	Name         string     `json:"name"`
	Enabled      bool       `json:"enabled"`
	Primary      bool       `json:"primary"`
	Cataloged    bool       `json:"cataloged"`
	Scanning     bool       `json:"scanning"`
	WatcherState string     `json:"watcher_state"`
	Directories  int        `json:"directories"`
	Tombstoned   int        `json:"tombstoned"`
	LastScanned  *time.Time `json:"last_scanned"`
}

// FormatResults implements Formatter.FormatResults.
func (f *jsonFormatter) FormatResults(w io.Writer, report SearchReport) error {
	results := report.Results
	if results == nil {
		results = []query.Result{}
	}

	return f.encode(w, searchJSON{
		Query:   report.Query.Text,
		Mode:    report.Query.Mode.String(),
		Results: results,
		Final:   report.Final,
	})
}

// FormatRoots implements Formatter.FormatRoots.
func (f *jsonFormatter) FormatRoots(w io.Writer, roots []coordinator.RootStatus) error {
	out := make([]rootJSON, len(roots))
	for i, r := range roots {
		out[i] = rootJSON{
			Path:         r.Path,
			Name:         r.Name,
			Enabled:      r.Enabled,
			Primary:      r.Primary,
			Cataloged:    r.Cataloged,
			Scanning:     r.Scanning,
			WatcherState: string(r.WatcherState),
			Directories:  r.Stats.Live,
			Tombstoned:   r.Stats.Tombstoned,
		}
		if !r.LastScanned.IsZero() {
			at := r.LastScanned
			out[i].LastScanned = &at
		}
	}

	return f.encode(w, out)
}

// FormatHistory implements Formatter.FormatHistory.
func (f *jsonFormatter) FormatHistory(w io.Writer, records []history.Record) error {
	if records == nil {
		records = []history.Record{}
	}
	return f.encode(w, records)
}

func (f *jsonFormatter) encode(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}

	return encoder.Encode(v)
}
