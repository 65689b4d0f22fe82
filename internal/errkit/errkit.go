// Package errkit holds the sentinel errors shared by ridgekv's internal
// storage packages (walio, sstable) and the top-level Engine.
//
// Keeping them here, rather than in the root package, lets the internal
// packages return errors.Is-comparable sentinels without importing the
// root package (which in turn imports them) — the root package re-exports
// these under its own names so callers never need to import errkit
// directly.
package errkit

import "errors"

var (
	// ErrCorruption means an on-disk structure disagrees with itself: a
	// CRC mismatch, a malformed footer, an index entry pointing somewhere
	// inconsistent.
	ErrCorruption = errors.New("ridgekv: corruption detected")

	// ErrUnsupportedVersion means a footer's magic does not match any
	// known SSTable version.
	ErrUnsupportedVersion = errors.New("ridgekv: unsupported sstable version")
)
