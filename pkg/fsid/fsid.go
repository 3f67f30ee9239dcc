// Package fsid identifies directories by their filesystem identity.
//
// Two paths with the same identity are the same directory on disk, which is
// how the scanner detects symlink cycles and the watcher pairs a rename with
// the create event that follows it.
package fsid

import "os"

// ID is an opaque directory identity. The zero value means unknown.
type ID string

// Of returns the identity of the directory described by info.
// path is used on platforms without device and inode numbers.
func Of(path string, info os.FileInfo) (ID, bool) {
	if info == nil {
		return "", false
	}
	return identity(path, info)
}

// Stat follows symlinks and returns the identity of path.
func Stat(path string) (ID, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}
	id, _ := Of(path, info)
	return id, info, nil
}
