package coordinator

import (
	"time"

	"github.com/0xmhha/folder-search/pkg/catalog"
	"github.com/0xmhha/folder-search/pkg/config"
	"github.com/0xmhha/folder-search/pkg/eventbus"
	"github.com/0xmhha/folder-search/pkg/query"
	"github.com/0xmhha/folder-search/pkg/scanner"
	"github.com/0xmhha/folder-search/pkg/store"
	"github.com/0xmhha/folder-search/pkg/watcher"
)

// Config holds the coordinator configuration.
type Config struct {
	// WorkDir holds catalogs, state, settings and history.
	WorkDir string

	// Scan is used for every rebuild. It is taken as is, so a zero
	// MaxWallTime aborts rebuilds immediately.
	Scan scanner.Options

	// RescanInterval is the rescan period of a root whose watcher is
	// unavailable. Default: 60s.
	RescanInterval time.Duration

	// MaxResults is the default result cap. Default: 2000.
	MaxResults int

	// CatalogBudget bounds a cataloged search. Default: 200ms.
	CatalogBudget time.Duration

	// LiveBudget bounds a live walk. Default: 2s.
	LiveBudget time.Duration

	// LiveBatch is the number of results per live Partial. Default: 25.
	LiveBatch int

	// ContainsBudget bounds the linear scan of one root in contains mode.
	// Default: 50ms.
	ContainsBudget time.Duration

	// Watch enables filesystem watchers on cataloged roots.
	Watch bool

	// Watcher configures each root's watcher.
	Watcher watcher.Config

	// PersistDebounce delays saving a patched catalog. Default: 5s.
	PersistDebounce time.Duration

	// CompactRatio is the tombstone share that triggers compaction.
	// Default: 0.25.
	CompactRatio float64

	// Bus configures the event bus.
	Bus eventbus.Config

	// StoreTimeout bounds waiting for the state database. Default: 1s.
	StoreTimeout time.Duration
}

// DefaultConfig returns the standard configuration rooted at workDir.
func DefaultConfig(workDir string) Config {
	return Config{
		WorkDir:         workDir,
		Scan:            scanner.DefaultOptions(),
		RescanInterval:  60 * time.Second,
		MaxResults:      query.DefaultMaxResults,
		CatalogBudget:   200 * time.Millisecond,
		LiveBudget:      2 * time.Second,
		LiveBatch:       25,
		ContainsBudget:  50 * time.Millisecond,
		Watch:           true,
		PersistDebounce: 5 * time.Second,
		CompactRatio:    0.25,
	}
}

// ConfigFrom maps the engine configuration onto a coordinator Config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		WorkDir: cfg.WorkDir,
		Scan: scanner.Options{
			MaxDirectories: cfg.Scan.MaxDirectories,
			MaxDepth:       cfg.Scan.MaxDepth,
			MaxWallTime:    cfg.Scan.MaxWallTime,
			BatchSize:      cfg.Scan.BatchSize,
			SkipFolders:    append([]string(nil), cfg.Scan.SkipFolders...),
			IgnorePatterns: append([]string(nil), cfg.Scan.IgnorePatterns...),
		},
		RescanInterval: cfg.Scan.RescanInterval,
		MaxResults:     cfg.Search.MaxResults,
		CatalogBudget:  cfg.Search.CatalogBudget,
		LiveBudget:     cfg.Search.LiveBudget,
		LiveBatch:      cfg.Search.LiveBatch,
		ContainsBudget: cfg.Search.ContainsBudget,
		Watch:          cfg.Watch.Enabled,
		Watcher: watcher.Config{
			DebounceInterval:        cfg.Watch.DebounceInterval,
			PairWindow:              cfg.Watch.PairWindow,
			SetupBudget:             cfg.Watch.SetupBudget,
			CircuitBreakerThreshold: cfg.Watch.CircuitBreakerThreshold,
			SkipFolders:             append([]string(nil), cfg.Scan.SkipFolders...),
			IgnorePatterns:          append([]string(nil), cfg.Scan.IgnorePatterns...),
		},
		PersistDebounce: cfg.Watch.PersistDebounce,
		CompactRatio:    cfg.Watch.CompactRatio,
		Bus:             eventbus.Config{QueueSize: cfg.Bus.QueueSize},
	}
}

// withDefaults fills zero values that have no meaningful zero.
func (c Config) withDefaults() Config {
	def := DefaultConfig(c.WorkDir)

	if c.RescanInterval <= 0 {
		c.RescanInterval = def.RescanInterval
	}
	if c.MaxResults <= 0 {
		c.MaxResults = def.MaxResults
	}
	if c.CatalogBudget <= 0 {
		c.CatalogBudget = def.CatalogBudget
	}
	if c.LiveBudget <= 0 {
		c.LiveBudget = def.LiveBudget
	}
	if c.LiveBatch <= 0 {
		c.LiveBatch = def.LiveBatch
	}
	if c.ContainsBudget <= 0 {
		c.ContainsBudget = def.ContainsBudget
	}
	if c.PersistDebounce <= 0 {
		c.PersistDebounce = def.PersistDebounce
	}
	if c.CompactRatio <= 0 || c.CompactRatio > 1 {
		c.CompactRatio = def.CompactRatio
	}
	if c.Watcher.SkipFolders == nil {
		c.Watcher.SkipFolders = c.Scan.SkipFolders
	}
	if c.Watcher.IgnorePatterns == nil {
		c.Watcher.IgnorePatterns = c.Scan.IgnorePatterns
	}
	return c
}

// RootSpec configures one search root.
type RootSpec struct {
	// Path is the root directory. It is normalized on use.
	Path string

	// Name labels the root's results. Default: the base name of Path.
	Name string

	Enabled bool

	// Primary marks the root kept in config.json. At most one root is primary.
	Primary bool
}

// RootStatus describes a configured root.
type RootStatus struct {
	Path    string
	Name    string
	Enabled bool
	Primary bool

	// Cataloged is true when a sealed catalog is loaded.
	Cataloged bool

	// Scanning is true while a rebuild is in flight.
	Scanning bool

	WatcherState store.WatcherState

	// LastScanned is the time of the last finished scan, zero if never.
	LastScanned time.Time

	Stats catalog.Stats
}

// SearchEvent is one message of a search stream. Exactly one of Partial
// and Final is set.
type SearchEvent struct {
	SearchID string
	Partial  []query.Result
	Final    *query.Final
}

// IsFinal reports whether the event closes the stream.
func (e SearchEvent) IsFinal() bool {
	return e.Final != nil
}
