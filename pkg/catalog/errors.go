package catalog

import "errors"

// Common errors returned by the catalog.
var (
	// ErrSealed is returned when appending to a sealed catalog.
	ErrSealed = errors.New("catalog is sealed")

	// ErrNotSealed is returned when patching a catalog that is still building.
	ErrNotSealed = errors.New("catalog is not sealed")

	// ErrBadRoot is returned when entry 0 is not the root directory.
	ErrBadRoot = errors.New("entry 0 must be the root directory")

	// ErrBadParent is returned when a parent index does not precede its entry.
	ErrBadParent = errors.New("parent index must precede entry")

	// ErrBadPath is returned when an entry's paths disagree with its parent chain.
	ErrBadPath = errors.New("entry path does not match parent chain")

	// ErrTotalMismatch is returned when Seal's total differs from the entry count.
	ErrTotalMismatch = errors.New("total does not match entry count")

	// ErrOutsideRoot is returned when a change refers to a path outside the root.
	ErrOutsideRoot = errors.New("path is outside the catalog root")

	// ErrUnknownParent is returned when a created directory has no live parent entry.
	ErrUnknownParent = errors.New("parent directory is not cataloged")

	// ErrInvalidChange is returned for a change with an unknown kind.
	ErrInvalidChange = errors.New("invalid change")
)
