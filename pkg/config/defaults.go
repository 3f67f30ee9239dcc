package config

import (
	"os"
	"path/filepath"

	"github.com/0xmhha/folder-search/pkg/scanner"
)

// defaultWorkDir returns the default working directory.
//
// Returns: ~/.config/folder-search.
func defaultWorkDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./folder-search"
	}

	return filepath.Join(homeDir, ".config", "folder-search")
}

// defaultSkipFolders returns a private copy of the scanner's skip list.
func defaultSkipFolders() []string {
	return append([]string(nil), scanner.DefaultSkipFolders...)
}

// defaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/folder-search/folder-search.yaml.
func defaultConfigPath() string {
	return filepath.Join(defaultWorkDir(), configFileName)
}
