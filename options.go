package ridgekv

import (
	"fmt"

	"github.com/aalhour/ridgekv/internal/logging"
)

// Logger is an alias for the logging.Logger interface, letting callers
// supply their own implementation without importing the internal package.
type Logger = logging.Logger

const (
	defaultFlushThreshold      = 4 * 1024 * 1024 // 4 MiB
	defaultL0CompactionTrigger = 4
	defaultBloomFPRate         = 0.01
	defaultMaxKeySize          = 64 * 1024        // 64 KiB
	defaultMaxValueSize        = 10 * 1024 * 1024 // 10 MiB
)

// Options configures Open.
type Options struct {
	// WALPath is the write-ahead log file's path. It is created if it
	// does not exist.
	WALPath string

	// SSTDir is the directory holding SSTables and the MANIFEST file. It
	// is created if it does not exist.
	SSTDir string

	// FlushThreshold is the memtable's approximate byte size, in the
	// sense of memtable.ApproxSize, at which a write triggers a flush.
	// Zero is treated as 1 (flush after every write) rather than as
	// "never flush". Open does not replace a zero with a default.
	//
	// DefaultOptions sets 4 MiB.
	FlushThreshold int

	// L0CompactionTrigger is the number of L0 SSTables at which a write
	// triggers a compaction. Zero disables automatic compaction. Open does
	// not replace a zero with a default.
	//
	// DefaultOptions sets 4.
	L0CompactionTrigger int

	// WalSync, when true, fsyncs the WAL file after every Append. When
	// false, durability is at the operating system's discretion.
	//
	// Default: false.
	WalSync bool

	// BloomFalsePositiveRate is the target false-positive rate for each
	// SSTable's bloom filter.
	//
	// Default: 0.01.
	BloomFalsePositiveRate float64

	// MaxKeySize and MaxValueSize bound the size of any single key or
	// value accepted by Set/Delete, protecting the bloom filter, index,
	// and in-memory key caches from unbounded allocation.
	//
	// Defaults: 64 KiB keys, 10 MiB values.
	MaxKeySize   int
	MaxValueSize int

	// Logger receives the engine's diagnostic output. If nil, a default
	// logger writing WARN-and-above to stderr is used.
	Logger Logger
}

// DefaultOptions returns Options with every field set to its documented
// default, for callers who want sane defaults for everything except
// WALPath/SSTDir.
func DefaultOptions(walPath, sstDir string) Options {
	return Options{
		WALPath:                walPath,
		SSTDir:                 sstDir,
		FlushThreshold:         defaultFlushThreshold,
		L0CompactionTrigger:    defaultL0CompactionTrigger,
		BloomFalsePositiveRate: defaultBloomFPRate,
		MaxKeySize:             defaultMaxKeySize,
		MaxValueSize:           defaultMaxValueSize,
	}
}

// withDefaults returns a copy of o with zero-valued fields replaced by
// their defaults, EXCEPT FlushThreshold and L0CompactionTrigger: those two
// have spec-defined meaning for a literal zero (flush on every write;
// disable automatic compaction, respectively) and so a caller's explicit
// zero is honored rather than silently promoted to a nonzero default.
func (o Options) withDefaults() Options {
	if o.BloomFalsePositiveRate == 0 {
		o.BloomFalsePositiveRate = defaultBloomFPRate
	}
	if o.MaxKeySize == 0 {
		o.MaxKeySize = defaultMaxKeySize
	}
	if o.MaxValueSize == 0 {
		o.MaxValueSize = defaultMaxValueSize
	}
	o.Logger = logging.OrDefault(o.Logger)
	return o
}

// validate checks the fields that cannot be defaulted.
func (o Options) validate() error {
	if o.WALPath == "" {
		return fmt.Errorf("ridgekv: Options.WALPath must not be empty")
	}
	if o.SSTDir == "" {
		return fmt.Errorf("ridgekv: Options.SSTDir must not be empty")
	}
	if o.BloomFalsePositiveRate < 0 || o.BloomFalsePositiveRate >= 1 {
		return fmt.Errorf("ridgekv: Options.BloomFalsePositiveRate must be in [0, 1)")
	}
	return nil
}
