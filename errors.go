package ridgekv

import (
	"errors"

	"github.com/aalhour/ridgekv/internal/errkit"
	"github.com/aalhour/ridgekv/internal/sstable"
)

// Sentinel errors returned by the engine. Callers should compare against
// these with errors.Is rather than string-matching; wrapped context (paths,
// offsets, sizes) is added via fmt.Errorf("...: %w", ...) at the call site.
var (
	// ErrKeyEmpty is returned by Set/Delete/Get when the supplied key has
	// zero length.
	ErrKeyEmpty = errors.New("ridgekv: key must not be empty")

	// ErrKeyTooLarge is returned when a key exceeds Options.MaxKeySize.
	ErrKeyTooLarge = errors.New("ridgekv: key exceeds maximum key size")

	// ErrValueTooLarge is returned when a value exceeds Options.MaxValueSize.
	ErrValueTooLarge = errors.New("ridgekv: value exceeds maximum value size")

	// ErrSeqOverflow is returned by a mutation that would advance the
	// sequence counter past math.MaxUint64. The mutation is not applied.
	ErrSeqOverflow = errors.New("ridgekv: sequence number overflow")

	// ErrCorruption is returned when a CRC check fails, a footer is
	// malformed, or an on-disk structure otherwise disagrees with itself.
	ErrCorruption = errkit.ErrCorruption

	// ErrUnsupportedVersion is returned when an SSTable's footer magic does
	// not match any version this reader understands.
	ErrUnsupportedVersion = errkit.ErrUnsupportedVersion

	// ErrClosed is returned by any Engine method called after Close.
	ErrClosed = errors.New("ridgekv: engine is closed")

	// ErrEmptyMemtable is returned by the sstable writer when asked to
	// flush a memtable with no entries; the engine treats this as a no-op
	// rather than surfacing it to its own caller.
	ErrEmptyMemtable = sstable.ErrEmptyInput
)
