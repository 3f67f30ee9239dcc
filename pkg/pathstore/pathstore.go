// Package pathstore normalizes, folds and interns directory paths.
//
// Every path that enters a catalog goes through Normalize first, so two
// spellings of the same directory (relative vs absolute, NFD vs NFC,
// trailing separators) map to the same key.
//
// Example usage:
//
//	root, err := pathstore.Normalize("~/projects/../work")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rel, ok := pathstore.Rel(root, filepath.Join(root, "alpha", "beta"))
//	// rel == "alpha/beta", ok == true
package pathstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unique"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// Normalize converts path to its canonical absolute form.
//
// The result is absolute, cleaned, NFC-normalized and carries no trailing
// separator (except for the filesystem root itself). A leading "~" is
// expanded to the user's home directory.
func Normalize(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrEmptyPath
	}

	expanded := expandHome(path)

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, path, err)
	}

	return norm.NFC.String(filepath.Clean(abs)), nil
}

// MustNormalize is Normalize for paths already known to be valid.
// It falls back to filepath.Clean instead of failing.
func MustNormalize(path string) string {
	n, err := Normalize(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return n
}

// Rel returns the forward-slash path of abs relative to root.
//
// The root itself maps to "". The second return value is false when abs
// does not live under root.
func Rel(root, abs string) (string, bool) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Join appends name to a forward-slash relative path.
func Join(rel, name string) string {
	if rel == "" {
		return name
	}
	return rel + "/" + name
}

// Parent returns the relative path of rel's parent directory.
// The parent of a top-level entry is "" (the root).
func Parent(rel string) string {
	i := strings.LastIndexByte(rel, '/')
	if i < 0 {
		return ""
	}
	return rel[:i]
}

// Base returns the last component of a forward-slash relative path.
func Base(rel string) string {
	return rel[strings.LastIndexByte(rel, '/')+1:]
}

// Fold returns the matching form of a directory name.
//
// Folding is Unicode simple lowercase applied rune by rune, independent of
// locale, on the NFC form of the name.
func Fold(name string) string {
	return strings.ToLower(norm.NFC.String(name))
}

// CleanName returns the NFC form of a single path component read from disk.
func CleanName(name string) string {
	return norm.NFC.String(name)
}

// Words splits a folded name on Unicode whitespace.
//
// Only whitespace separates words; "-", "_" and "." are part of a word.
func Words(folded string) []string {
	return strings.FieldsFunc(folded, unicode.IsSpace)
}

// HasSpace reports whether s contains any Unicode whitespace.
func HasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}

// Intern returns the canonical copy of a path component.
//
// Directory names repeat heavily across a tree ("src", "node_modules",
// "2024"), so entries share one backing string per distinct name.
func Intern(name string) string {
	return unique.Make(name).Value()
}

// Hash returns the stable 8-hex digest identifying a root on disk.
func Hash(root string) string {
	return fmt.Sprintf("%08x", uint32(xxhash.Sum64String(root)))
}

// expandHome expands a leading ~ or ~/ to the user's home directory.
// Other forms such as ~user are left as is.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
