// Package config provides configuration management for folder-search.
//
// Engine settings come from a YAML file (folder-search.yaml) merged over
// built-in defaults; nothing is read from the environment. The JSON
// settings shared with other tools (config.json and
// search_locations.json) are handled in settings.go.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("catalogs live in %s\n", cfg.WorkDir)
package config

import (
	"time"

	"github.com/0xmhha/folder-search/pkg/query"
)

// Config represents the complete engine configuration.
//
// Invariants:
// - WorkDir is not empty
// - Scan.BatchSize, Search.MaxResults and Bus.QueueSize are > 0
// - every search and watch duration is > 0
// - Watch.CompactRatio is in (0, 1].
type Config struct {
	// Directory holding catalogs, state, settings and history
	WorkDir string `yaml:"work_dir"`

	// Scanner settings
	Scan ScanConfig `yaml:"scan"`

	// Search settings
	Search SearchConfig `yaml:"search"`

	// Watcher and persistence settings
	Watch WatchConfig `yaml:"watch"`

	// Event bus settings
	Bus BusConfig `yaml:"bus"`

	// Display settings for the command line
	Display DisplayConfig `yaml:"display"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// ScanConfig contains crawler settings.
type ScanConfig struct {
	// Cap on cataloged directories per root, <= 0 for unlimited
	MaxDirectories int `yaml:"max_directories"`

	// Cap on depth below the root, <= 0 for unlimited
	MaxDepth int `yaml:"max_depth"`

	// Time budget per scan; a truncated catalog is kept when it runs out.
	// Zero aborts at once, negative is unlimited
	MaxWallTime time.Duration `yaml:"max_wall_time"`

	// Entries per batch event
	BatchSize int `yaml:"batch_size"`

	// Basenames never descended into
	SkipFolders []string `yaml:"skip_folders"`

	// Gitignore-style patterns matched on the relative path
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// Rescan period for roots whose watcher is unavailable
	RescanInterval time.Duration `yaml:"rescan_interval"`
}

// SearchConfig contains query settings.
type SearchConfig struct {
	// Default mode (prefix, contains)
	DefaultMode string `yaml:"default_mode"`

	// Default global result cap
	MaxResults int `yaml:"max_results"`

	// Budget for answering from catalogs
	CatalogBudget time.Duration `yaml:"catalog_budget"`

	// Budget for the live walk fallback
	LiveBudget time.Duration `yaml:"live_budget"`

	// Results per partial batch during a live walk
	LiveBatch int `yaml:"live_batch"`

	// Budget for a contains scan over one catalog
	ContainsBudget time.Duration `yaml:"contains_budget"`
}

// WatchConfig contains watcher and persistence settings.
type WatchConfig struct {
	// Watch roots after a successful scan
	Enabled bool `yaml:"enabled"`

	// Quiet period before a modification is reported
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// Window in which a rename waits for its create
	PairWindow time.Duration `yaml:"pair_window"`

	// Bound on the initial recursive subscription
	SetupBudget time.Duration `yaml:"setup_budget"`

	// Consecutive errors before the watcher gives up
	CircuitBreakerThreshold int `yaml:"circuit_breaker_threshold"`

	// Quiet period before a patched catalog is written back
	PersistDebounce time.Duration `yaml:"persist_debounce"`

	// Tombstone share above which a catalog is compacted
	CompactRatio float64 `yaml:"compact_ratio"`
}

// BusConfig contains event bus settings.
type BusConfig struct {
	// Per-subscriber queue capacity
	QueueSize int `yaml:"queue_size"`
}

// DisplayConfig contains display-related settings.
type DisplayConfig struct {
	// Default output format (table, json, simple)
	DefaultMode string `yaml:"default_mode"`

	// Enable colored output
	ColorEnabled bool `yaml:"color_enabled"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// Validate checks if the configuration satisfies all invariants.
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return ErrNoWorkDir
	}

	if c.Scan.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Scan.RescanInterval <= 0 {
		return ErrInvalidRescanInterval
	}

	if _, err := query.ParseMode(c.Search.DefaultMode); err != nil {
		return ErrInvalidSearchMode
	}
	if c.Search.MaxResults <= 0 {
		return ErrInvalidMaxResults
	}
	if c.Search.CatalogBudget <= 0 || c.Search.LiveBudget <= 0 || c.Search.ContainsBudget <= 0 {
		return ErrInvalidBudget
	}
	if c.Search.LiveBatch <= 0 {
		return ErrInvalidLiveBatch
	}

	if c.Watch.DebounceInterval <= 0 || c.Watch.PairWindow <= 0 ||
		c.Watch.SetupBudget <= 0 || c.Watch.PersistDebounce <= 0 {
		return ErrInvalidWatchTiming
	}
	if c.Watch.CircuitBreakerThreshold <= 0 {
		return ErrInvalidCircuitBreaker
	}
	if c.Watch.CompactRatio <= 0 || c.Watch.CompactRatio > 1 {
		return ErrInvalidCompactRatio
	}

	if c.Bus.QueueSize <= 0 {
		return ErrInvalidQueueSize
	}

	validModes := map[string]bool{
		"table":  true,
		"json":   true,
		"simple": true,
	}
	if !validModes[c.Display.DefaultMode] {
		return ErrInvalidDisplayMode
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

// Default returns a configuration with the standard engine settings.
func Default() *Config {
	return &Config{
		WorkDir: defaultWorkDir(),
		Scan: ScanConfig{
			MaxWallTime:    30 * time.Second,
			BatchSize:      500,
			SkipFolders:    defaultSkipFolders(),
			RescanInterval: 60 * time.Second,
		},
		Search: SearchConfig{
			DefaultMode:    "prefix",
			MaxResults:     query.DefaultMaxResults,
			CatalogBudget:  200 * time.Millisecond,
			LiveBudget:     2 * time.Second,
			LiveBatch:      25,
			ContainsBudget: 50 * time.Millisecond,
		},
		Watch: WatchConfig{
			Enabled:                 true,
			DebounceInterval:        100 * time.Millisecond,
			PairWindow:              100 * time.Millisecond,
			SetupBudget:             time.Second,
			CircuitBreakerThreshold: 5,
			PersistDebounce:         5 * time.Second,
			CompactRatio:            0.25,
		},
		Bus: BusConfig{
			QueueSize: 256,
		},
		Display: DisplayConfig{
			DefaultMode:  "table",
			ColorEnabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}
