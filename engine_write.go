package ridgekv

import (
	"fmt"
	"math"

	"github.com/aalhour/ridgekv/internal/walio"
)

// effectiveFlushThreshold returns the byte threshold used to decide when to
// flush. A configured value of zero means "flush after every write" (see
// Options.FlushThreshold), so it is floored at 1 here rather than in
// Options itself.
func (e *Engine) effectiveFlushThreshold() int {
	if e.opts.FlushThreshold <= 0 {
		return 1
	}
	return e.opts.FlushThreshold
}

// Set durably writes key=value, visible to subsequent Get/Scan calls
// immediately.
//
// The write is first appended to the WAL (fsynced if Options.WalSync), then
// applied to the memtable. If the memtable's approximate size then reaches
// Options.FlushThreshold, a flush runs synchronously before Set returns; if
// the resulting L0 table count then reaches Options.L0CompactionTrigger, a
// compaction runs synchronously as well.
func (e *Engine) Set(key, value []byte) error {
	if e.closed {
		return ErrClosed
	}
	if err := e.validateKey(key); err != nil {
		return err
	}
	if len(value) > e.opts.MaxValueSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrValueTooLarge, len(value), e.opts.MaxValueSize)
	}

	seq, err := e.nextSeq()
	if err != nil {
		return err
	}

	if err := e.wal.Append(walio.Record{Seq: seq, Op: walio.OpPut, Key: key, Value: value}); err != nil {
		e.seq--
		return fmt.Errorf("ridgekv: set %q: %w", key, err)
	}
	e.mem.Put(key, value, seq)

	return e.maybeFlushAndCompact()
}

// Delete records a tombstone for key, shadowing any existing version in the
// memtable and in L0/L1 SSTables until a later compaction garbage-collects
// it. Deleting an absent key is not an error.
//
// The same durability and automatic-flush/compaction behavior as Set
// applies.
func (e *Engine) Delete(key []byte) error {
	if e.closed {
		return ErrClosed
	}
	if err := e.validateKey(key); err != nil {
		return err
	}

	seq, err := e.nextSeq()
	if err != nil {
		return err
	}

	if err := e.wal.Append(walio.Record{Seq: seq, Op: walio.OpDel, Key: key}); err != nil {
		e.seq--
		return fmt.Errorf("ridgekv: delete %q: %w", key, err)
	}
	e.mem.Delete(key, seq)

	return e.maybeFlushAndCompact()
}

func (e *Engine) validateKey(key []byte) error {
	if len(key) == 0 {
		return ErrKeyEmpty
	}
	if len(key) > e.opts.MaxKeySize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrKeyTooLarge, len(key), e.opts.MaxKeySize)
	}
	return nil
}

// nextSeq increments and returns the engine's sequence counter, or
// ErrSeqOverflow if doing so would overflow uint64. The counter is left
// unmodified in the overflow case.
func (e *Engine) nextSeq() (uint64, error) {
	if e.seq == math.MaxUint64 {
		return 0, ErrSeqOverflow
	}
	e.seq++
	return e.seq, nil
}

func (e *Engine) maybeFlushAndCompact() error {
	if e.mem.ApproxSize() >= e.effectiveFlushThreshold() {
		if err := e.flush(); err != nil {
			return fmt.Errorf("ridgekv: auto-flush: %w", err)
		}
	}
	if e.opts.L0CompactionTrigger > 0 && len(e.l0.readers) >= e.opts.L0CompactionTrigger {
		if err := e.compact(); err != nil {
			return fmt.Errorf("ridgekv: auto-compact: %w", err)
		}
	}
	return nil
}
