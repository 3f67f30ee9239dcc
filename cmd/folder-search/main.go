// Package main provides the folder-search CLI application.
//
// folder-search finds directories by name across a set of search roots.
// Each root is crawled once into a catalog, kept fresh by a filesystem
// watcher, and answered from an in-memory index. Roots that have no
// catalog yet are searched by a bounded live walk.
package main

import (
	"errors"
	"fmt"
	"os"
)

// version is set during build time.
var version = "dev"

// watchLockName is the lock file held by a running watch.
const watchLockName = "watch.lock"

var (
	// errInterrupted reports a command stopped by the user.
	errInterrupted = errors.New("interrupted")

	// errWatchRunning reports a watch lock held by another process.
	errWatchRunning = errors.New("another watch is running")
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
