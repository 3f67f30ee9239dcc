package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.WorkDir == "" {
		t.Error("WorkDir is empty")
	}
	if cfg.Scan.MaxWallTime != 30*time.Second {
		t.Errorf("MaxWallTime = %v, want 30s", cfg.Scan.MaxWallTime)
	}
	if len(cfg.Scan.SkipFolders) != 13 {
		t.Errorf("got %d skip folders, want 13", len(cfg.Scan.SkipFolders))
	}
	if cfg.Search.MaxResults != 2000 {
		t.Errorf("MaxResults = %d, want 2000", cfg.Search.MaxResults)
	}
	if cfg.Search.CatalogBudget != 200*time.Millisecond || cfg.Search.LiveBudget != 2*time.Second {
		t.Error("search budgets not set")
	}
	if !cfg.Watch.Enabled || cfg.Watch.PersistDebounce != 5*time.Second {
		t.Error("watch defaults not set")
	}
	if cfg.Logging.Level == "" {
		t.Error("Log level not set")
	}

	// The skip list is a copy.
	cfg.Scan.SkipFolders[0] = "changed"
	if Default().Scan.SkipFolders[0] == "changed" {
		t.Error("Default() shares the skip list")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "valid default config", mutate: func(c *Config) {}},
		{name: "no work dir", mutate: func(c *Config) { c.WorkDir = "" }, wantErr: ErrNoWorkDir},
		{name: "zero batch size", mutate: func(c *Config) { c.Scan.BatchSize = 0 }, wantErr: ErrInvalidBatchSize},
		{name: "zero rescan interval", mutate: func(c *Config) { c.Scan.RescanInterval = 0 }, wantErr: ErrInvalidRescanInterval},
		{name: "unknown search mode", mutate: func(c *Config) { c.Search.DefaultMode = "fuzzy" }, wantErr: ErrInvalidSearchMode},
		{name: "zero max results", mutate: func(c *Config) { c.Search.MaxResults = 0 }, wantErr: ErrInvalidMaxResults},
		{name: "zero catalog budget", mutate: func(c *Config) { c.Search.CatalogBudget = 0 }, wantErr: ErrInvalidBudget},
		{name: "zero live batch", mutate: func(c *Config) { c.Search.LiveBatch = 0 }, wantErr: ErrInvalidLiveBatch},
		{name: "zero pair window", mutate: func(c *Config) { c.Watch.PairWindow = 0 }, wantErr: ErrInvalidWatchTiming},
		{name: "zero breaker", mutate: func(c *Config) { c.Watch.CircuitBreakerThreshold = 0 }, wantErr: ErrInvalidCircuitBreaker},
		{name: "compact ratio above one", mutate: func(c *Config) { c.Watch.CompactRatio = 1.5 }, wantErr: ErrInvalidCompactRatio},
		{name: "zero queue", mutate: func(c *Config) { c.Bus.QueueSize = 0 }, wantErr: ErrInvalidQueueSize},
		{name: "unknown display mode", mutate: func(c *Config) { c.Display.DefaultMode = "live" }, wantErr: ErrInvalidDisplayMode},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: ErrInvalidLogLevel},
		{name: "unknown log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: ErrInvalidLogFormat},
		{name: "unlimited wall time is valid", mutate: func(c *Config) { c.Scan.MaxWallTime = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid config file",
			content: `
work_dir: /tmp/fs-work
scan:
  max_directories: 10000
  max_wall_time: 5s
  batch_size: 100
  ignore_patterns:
    - "*.tmp"
search:
  default_mode: contains
  max_results: 50
  live_budget: 1s
watch:
  enabled: false
  pair_window: 250ms
display:
  default_mode: json
  color_enabled: false
logging:
  level: debug
  output: stdout
  format: json
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.WorkDir != "/tmp/fs-work" {
					t.Errorf("WorkDir = %s, want /tmp/fs-work", cfg.WorkDir)
				}
				if cfg.Scan.MaxDirectories != 10000 || cfg.Scan.BatchSize != 100 {
					t.Errorf("scan limits = %+v", cfg.Scan)
				}
				if cfg.Scan.MaxWallTime != 5*time.Second {
					t.Errorf("MaxWallTime = %v, want 5s", cfg.Scan.MaxWallTime)
				}
				if len(cfg.Scan.SkipFolders) != 13 {
					t.Error("absent skip_folders should keep the defaults")
				}
				if cfg.Search.DefaultMode != "contains" || cfg.Search.MaxResults != 50 {
					t.Errorf("search = %+v", cfg.Search)
				}
				if cfg.Search.CatalogBudget != 200*time.Millisecond {
					t.Error("unset catalog budget should keep the default")
				}
				if cfg.Watch.Enabled {
					t.Error("Watch.Enabled = true, want false")
				}
				if cfg.Watch.PairWindow != 250*time.Millisecond {
					t.Errorf("PairWindow = %v", cfg.Watch.PairWindow)
				}
				if cfg.Display.ColorEnabled {
					t.Error("ColorEnabled = true, want false")
				}
				if cfg.Logging.Level != "debug" {
					t.Errorf("LogLevel = %s, want debug", cfg.Logging.Level)
				}
			},
		},
		{
			name: "bools absent keep defaults",
			content: `
watch:
  pair_window: 150ms
scan:
  skip_folders: []
`,
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Watch.Enabled || !cfg.Display.ColorEnabled {
					t.Error("absent booleans should keep their defaults")
				}
				if len(cfg.Scan.SkipFolders) != 0 {
					t.Errorf("explicit empty skip list = %v, want empty", cfg.Scan.SkipFolders)
				}
			},
		},
		{
			name:    "invalid values",
			content: "search:\n  default_mode: regex\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			content: `invalid: yaml: content: [`,
			wantErr: true,
		},
		{
			name:    "non-existent file",
			content: "", // Will not create file
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var filePath string

			if tt.name != "non-existent file" {
				filePath = filepath.Join(tmpDir, tt.name+".yaml")
				if err := os.WriteFile(filePath, []byte(tt.content), 0600); err != nil {
					t.Fatalf("Failed to create test file: %v", err)
				}
			} else {
				filePath = filepath.Join(tmpDir, "nonexistent.yaml")
			}

			loader := NewLoader(filePath)
			cfg, err := loader.Load()

			if tt.wantErr {
				if err == nil {
					t.Error("Load() error = nil, wantErr = true")
				}
				return
			}

			if err != nil {
				t.Errorf("Load() error = %v, wantErr = false", err)
				return
			}

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	// Test default loading (no config file)
	cfg, err := Load()
	if err != nil {
		t.Errorf("Load() error = %v, want nil", err)
	}

	if cfg == nil {
		t.Fatal("Load() returned nil")
	}
	if cfg.WorkDir == "" {
		t.Error("Load() returned config with no work dir")
	}
}

func TestLoadIgnoresEnvironment(t *testing.T) {
	t.Setenv("FOLDER_SEARCH_WORK_DIR", "/env/dir")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WorkDir == "/env/dir" {
		t.Error("configuration must not come from the environment")
	}
}

func TestSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", configFileName)

	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.Watch.Enabled = false

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loadedCfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if loadedCfg.Logging.Level != "debug" {
		t.Errorf("Loaded config LogLevel = %s, want debug", loadedCfg.Logging.Level)
	}
	if loadedCfg.Watch.Enabled {
		t.Error("Watch.Enabled should round-trip as false")
	}

	invalid := Default()
	invalid.WorkDir = ""
	if err := Save(invalid, configPath); !errors.Is(err, ErrNoWorkDir) {
		t.Errorf("Save(invalid) error = %v, want ErrNoWorkDir", err)
	}
}

func TestPrimarySettings(t *testing.T) {
	dir := t.TempDir()

	_, found, err := LoadPrimary(dir)
	if err != nil || found {
		t.Fatalf("LoadPrimary() on empty dir = %v, %v", found, err)
	}

	if err := SavePrimary(dir, Primary{RootPath: "/home/me/work"}); err != nil {
		t.Fatalf("SavePrimary() error = %v", err)
	}

	p, found, err := LoadPrimary(dir)
	if err != nil || !found {
		t.Fatalf("LoadPrimary() = %v, %v", found, err)
	}
	if p.RootPath != "/home/me/work" || p.Version != SettingsVersion {
		t.Errorf("Primary = %+v", p)
	}

	data, err := os.ReadFile(filepath.Join(dir, PrimaryFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"root_path": "/home/me/work"`) {
		t.Errorf("config.json = %s", data)
	}
}

func TestLocationsSettings(t *testing.T) {
	dir := t.TempDir()

	locs, err := LoadLocations(dir)
	if err != nil {
		t.Fatalf("LoadLocations() error = %v", err)
	}
	if locs == nil || len(locs) != 0 {
		t.Errorf("missing file should give an empty list, got %v", locs)
	}

	work := Location{Path: "/data/work", Name: "work", Enabled: true}
	work.Scanned(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 420)
	archive := Location{Path: "/data/archive", Name: "archive"}

	if err := SaveLocations(dir, []Location{work, archive}); err != nil {
		t.Fatalf("SaveLocations() error = %v", err)
	}

	locs, err = LoadLocations(dir)
	if err != nil {
		t.Fatalf("LoadLocations() error = %v", err)
	}
	if len(locs) != 2 || locs[0].Name != "work" || locs[1].Name != "archive" {
		t.Fatalf("order not kept: %+v", locs)
	}
	if locs[0].CacheSize != 420 || locs[0].LastScanned == nil || *locs[0].LastScanned != "2026-01-02T03:04:05Z" {
		t.Errorf("scan info = %+v", locs[0])
	}
	if locs[1].Enabled || locs[1].LastScanned != nil {
		t.Errorf("archive = %+v", locs[1])
	}

	data, err := os.ReadFile(filepath.Join(dir, LocationsFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"last_scanned": null`) {
		t.Errorf("unscanned location should store null: %s", data)
	}
}

func TestLocationsTolerateMissingEnabled(t *testing.T) {
	dir := t.TempDir()
	content := `[{"path": "/a", "name": "a"}, {"path": "/b", "name": "b", "enabled": false}]`
	if err := os.WriteFile(filepath.Join(dir, LocationsFile), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	locs, err := LoadLocations(dir)
	if err != nil {
		t.Fatalf("LoadLocations() error = %v", err)
	}
	if !locs[0].Enabled || locs[1].Enabled {
		t.Errorf("Enabled = %v, %v; want true, false", locs[0].Enabled, locs[1].Enabled)
	}
}

func TestLocationsCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LocationsFile), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadLocations(dir); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("LoadLocations() error = %v, want ErrInvalidSettings", err)
	}
}

func BenchmarkValidate(b *testing.B) {
	cfg := Default()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cfg.Validate(); err != nil {
			b.Fatal(err)
		}
	}
}
