// Package history keeps the log of completed searches.
//
// The log is historial_busquedas.json in the working directory: a JSON
// array, newest record first, capped at MaxRecords. The file is shared
// with other tools, so reading is tolerant (a missing or corrupt file is
// an empty log, and unreadable records are skipped) and every write
// replaces the file atomically under an inter-process lock.
//
// Example usage:
//
//	h, err := history.New(workDir, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = h.Append(history.NewRecord("proj", history.MethodCatalog, 12, elapsed, time.Now()))
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/0xmhha/folder-search/pkg/filelock"
	"github.com/0xmhha/folder-search/pkg/logger"
)

const (
	// FileName is the log file inside the working directory.
	FileName = "historial_busquedas.json"

	// MaxRecords caps the log length.
	MaxRecords = 1000

	clockLayout = "15:04:05"
)

// Method tells how a search was answered.
type Method string

// Search methods as stored in the log.
const (
	// MethodCatalog is a cataloged search over a single root.
	MethodCatalog Method = "C"

	// MethodMulti is a cataloged search over several roots.
	MethodMulti Method = "M"

	// MethodLive is a live walk.
	MethodLive Method = "T"
)

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool {
	switch m {
	case MethodCatalog, MethodMulti, MethodLive:
		return true
	default:
		return false
	}
}

// Record is one completed search.
type Record struct {
	// Query is the text as typed.
	Query string `json:"criterio"`

	Method Method `json:"metodo"`

	// Results is the number of results delivered.
	Results int `json:"resultados"`

	// Elapsed is the duration in seconds, e.g. "0.042s".
	Elapsed string `json:"tiempo"`

	// Clock is the local time of day, "HH:MM:SS".
	Clock string `json:"fecha"`

	// Timestamp is the RFC 3339 completion time.
	Timestamp string `json:"timestamp"`
}

// NewRecord builds a record for a search that finished at at.
func NewRecord(query string, method Method, results int, elapsed time.Duration, at time.Time) Record {
	return Record{
		Query:     query,
		Method:    method,
		Results:   results,
		Elapsed:   fmt.Sprintf("%.3fs", elapsed.Seconds()),
		Clock:     at.Format(clockLayout),
		Timestamp: at.Format(time.RFC3339),
	}
}

// Time parses Timestamp. It returns the zero time when the field is
// missing or malformed.
func (r Record) Time() time.Time {
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Log is the search history of one working directory.
// It is safe for concurrent use.
type Log struct {
	path   string
	lock   *filelock.FileLock
	logger logger.Logger

	mu sync.Mutex
}

// New opens the history log in dir. The file is created on first Append.
func New(dir string, log logger.Logger) (*Log, error) {
	if dir == "" {
		return nil, ErrEmptyDir
	}

	path := filepath.Join(dir, FileName)
	return &Log{
		path:   path,
		lock:   filelock.NewFileLock(path + ".lock"),
		logger: log.With("component", "history"),
	}, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append puts r at the front of the log and drops records beyond MaxRecords.
func (l *Log) Append(r Record) error {
	if !r.Method.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMethod, r.Method)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := l.lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = l.lock.Unlock() }()

	records := l.read()

	next := make([]Record, 0, min(len(records)+1, MaxRecords))
	next = append(next, r)
	for _, old := range records {
		if len(next) == MaxRecords {
			break
		}
		next = append(next, old)
	}

	return l.write(next)
}

// List returns the log, newest first.
func (l *Log) List() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.read(), nil
}

// Clear empties the log.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = l.lock.Unlock() }()

	return l.write([]Record{})
}

// read loads the log, skipping anything that does not decode.
func (l *Log) read() []Record {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("failed to read history", "path", l.path, "error", err)
		}
		return []Record{}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		l.logger.Warn("history file is corrupt, starting over", "path", l.path, "error", err)
		return []Record{}
	}

	records := make([]Record, 0, len(raw))
	for i, item := range raw {
		var r Record
		if err := json.Unmarshal(item, &r); err != nil {
			l.logger.Debug("skipping unreadable history record", "index", i, "error", err)
			continue
		}
		records = append(records, r)
	}
	return records
}

func (l *Log) write(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := filelock.AtomicWrite(l.path, data); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}
