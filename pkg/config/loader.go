package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/0xmhha/folder-search/pkg/filelock"
)

const configFileName = "folder-search.yaml"

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Configuration file
	// 2. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile loads configuration from a specific file.
	LoadFromFile(path string) (*Config, error)
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, searches for config file in:
// 1. ./folder-search.yaml (current directory)
// 2. ~/.config/folder-search/folder-search.yaml.
func NewLoader(configPath string) Loader {
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	// Start with default configuration
	cfg := Default()

	// Find config file path
	configPath := l.configPath
	if configPath == "" {
		configPath = l.findConfigFile()
	}

	// Load from file if it exists
	if configPath != "" {
		fileCfg, present, err := l.readFile(configPath)
		if err != nil {
			// If file is specified but can't be loaded, return error
			if l.configPath != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
			// Otherwise, just use defaults
		} else {
			cfg = l.mergeConfigs(cfg, fileCfg, present)
		}
	}

	// Validate final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	cfg, _, err := l.readFile(path)
	return cfg, err
}

// presence records which keys a file sets, per section.
type presence map[string]map[string]interface{}

func (p presence) has(section, key string) bool {
	_, ok := p[section][key]
	return ok
}

// readFile decodes a config file and notes which keys it sets, so that an
// explicit false or empty list is told apart from an absent key.
func (l *loader) readFile(path string) (*Config, presence, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	present := presence{}
	for section, v := range raw {
		if m, ok := v.(map[string]interface{}); ok {
			present[section] = m
		}
	}

	return &cfg, present, nil
}

// findConfigFile searches for a config file in standard locations.
//
// Returns empty string if no config file is found.
func (l *loader) findConfigFile() string {
	candidates := []string{
		"./" + configFileName,
		defaultConfigPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// mergeConfigs merges file configuration into default configuration.
//
// File values override defaults when they are non-zero, or, for booleans
// and lists, when the file sets the key.
func (l *loader) mergeConfigs(base, override *Config, present presence) *Config {
	result := *base

	if override.WorkDir != "" {
		result.WorkDir = override.WorkDir
	}

	// Merge scan config. Negative limits mean unlimited and are kept.
	if override.Scan.MaxDirectories != 0 {
		result.Scan.MaxDirectories = override.Scan.MaxDirectories
	}
	if override.Scan.MaxDepth != 0 {
		result.Scan.MaxDepth = override.Scan.MaxDepth
	}
	if override.Scan.MaxWallTime != 0 {
		result.Scan.MaxWallTime = override.Scan.MaxWallTime
	}
	if override.Scan.BatchSize > 0 {
		result.Scan.BatchSize = override.Scan.BatchSize
	}
	if present.has("scan", "skip_folders") {
		result.Scan.SkipFolders = override.Scan.SkipFolders
	}
	if len(override.Scan.IgnorePatterns) > 0 {
		result.Scan.IgnorePatterns = override.Scan.IgnorePatterns
	}
	if override.Scan.RescanInterval > 0 {
		result.Scan.RescanInterval = override.Scan.RescanInterval
	}

	// Merge search config
	if override.Search.DefaultMode != "" {
		result.Search.DefaultMode = override.Search.DefaultMode
	}
	if override.Search.MaxResults > 0 {
		result.Search.MaxResults = override.Search.MaxResults
	}
	if override.Search.CatalogBudget > 0 {
		result.Search.CatalogBudget = override.Search.CatalogBudget
	}
	if override.Search.LiveBudget > 0 {
		result.Search.LiveBudget = override.Search.LiveBudget
	}
	if override.Search.LiveBatch > 0 {
		result.Search.LiveBatch = override.Search.LiveBatch
	}
	if override.Search.ContainsBudget > 0 {
		result.Search.ContainsBudget = override.Search.ContainsBudget
	}

	// Merge watch config
	if present.has("watch", "enabled") {
		result.Watch.Enabled = override.Watch.Enabled
	}
	if override.Watch.DebounceInterval > 0 {
		result.Watch.DebounceInterval = override.Watch.DebounceInterval
	}
	if override.Watch.PairWindow > 0 {
		result.Watch.PairWindow = override.Watch.PairWindow
	}
	if override.Watch.SetupBudget > 0 {
		result.Watch.SetupBudget = override.Watch.SetupBudget
	}
	if override.Watch.CircuitBreakerThreshold > 0 {
		result.Watch.CircuitBreakerThreshold = override.Watch.CircuitBreakerThreshold
	}
	if override.Watch.PersistDebounce > 0 {
		result.Watch.PersistDebounce = override.Watch.PersistDebounce
	}
	if override.Watch.CompactRatio != 0 {
		result.Watch.CompactRatio = override.Watch.CompactRatio
	}

	// Merge bus config
	if override.Bus.QueueSize > 0 {
		result.Bus.QueueSize = override.Bus.QueueSize
	}

	// Merge display config
	if override.Display.DefaultMode != "" {
		result.Display.DefaultMode = override.Display.DefaultMode
	}
	if present.has("display", "color_enabled") {
		result.Display.ColorEnabled = override.Display.ColorEnabled
	}

	// Merge logging config
	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Output != "" {
		result.Logging.Output = override.Logging.Output
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	return &result
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	loader := NewLoader("")
//	return loader.Load()
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
//
// Equivalent to:
//
//	loader := NewLoader(path)
//	return loader.Load()
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to a YAML file atomically.
//
// Creates parent directories if they don't exist.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := filelock.AtomicWrite(path, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Path returns the config file Load would read: explicit when set,
// otherwise the first existing standard location. It returns "" when
// defaults alone are in effect.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return (&loader{}).findConfigFile()
}
