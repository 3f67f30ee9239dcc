//go:build !unix

package fsid

import (
	"os"
	"path/filepath"
)

// identity falls back to the canonical path where no inode is exposed.
func identity(path string, _ os.FileInfo) (ID, bool) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", false
	}
	return ID(resolved), true
}
