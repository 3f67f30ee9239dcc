package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/0xmhha/folder-search/pkg/filelock"
)

// Settings file names inside the working directory.
const (
	PrimaryFile   = "config.json"
	LocationsFile = "search_locations.json"

	// SettingsVersion is written into config.json.
	SettingsVersion = "1.0"
)

// Primary is the content of config.json: the main search root.
type Primary struct {
	RootPath string `json:"root_path"`
	Version  string `json:"version"`
}

// Location is one additional root from search_locations.json.
type Location struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`

	// CacheSize is the number of cataloged directories at the last scan.
	CacheSize int `json:"cache_size"`

	// LastScanned is an RFC 3339 timestamp, or nil if never scanned.
	LastScanned *string `json:"last_scanned"`
}

// UnmarshalJSON treats a missing "enabled" as true.
func (l *Location) UnmarshalJSON(data []byte) error {
	type plain Location
	loc := plain{Enabled: true}
	if err := json.Unmarshal(data, &loc); err != nil {
		return err
	}
	*l = Location(loc)
	return nil
}

// Scanned records a completed scan of the location.
func (l *Location) Scanned(at time.Time, size int) {
	stamp := at.UTC().Format(time.RFC3339)
	l.LastScanned = &stamp
	l.CacheSize = size
}

// LoadPrimary reads config.json from dir. The second result is false when
// the file does not exist.
func LoadPrimary(dir string) (Primary, bool, error) {
	var p Primary
	found, err := readJSON(filepath.Join(dir, PrimaryFile), &p)
	return p, found, err
}

// SavePrimary writes config.json to dir atomically.
func SavePrimary(dir string, p Primary) error {
	if p.Version == "" {
		p.Version = SettingsVersion
	}
	return writeJSON(filepath.Join(dir, PrimaryFile), p)
}

// LoadLocations reads search_locations.json from dir. A missing file
// yields an empty list.
func LoadLocations(dir string) ([]Location, error) {
	var locs []Location
	if _, err := readJSON(filepath.Join(dir, LocationsFile), &locs); err != nil {
		return nil, err
	}
	if locs == nil {
		locs = []Location{}
	}
	return locs, nil
}

// SaveLocations writes search_locations.json to dir atomically, keeping
// the given order.
func SaveLocations(dir string, locs []Location) error {
	if locs == nil {
		locs = []Location{}
	}
	return writeJSON(filepath.Join(dir, LocationsFile), locs)
}

func readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrInvalidSettings, path, err)
	}
	return true, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	if err := filelock.LockAndWrite(path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
