package ridgekv

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/aalhour/ridgekv/internal/logging"
	"github.com/aalhour/ridgekv/internal/sstable"
)

// ForceFlush writes the current memtable to a new L0 SSTable immediately,
// regardless of Options.FlushThreshold. It is a no-op if the memtable is
// empty.
func (e *Engine) ForceFlush() error {
	if e.closed {
		return ErrClosed
	}
	return e.flush()
}

// flush implements §4.7.6: write the memtable to a new SSTable, register
// it as the newest L0 table, then truncate the WAL. The SSTable must exist
// (durably, via atomic rename) and the manifest must record it before the
// WAL is truncated — otherwise a crash between truncation and either of
// those steps would lose data.
func (e *Engine) flush() error {
	if e.mem.IsEmpty() {
		return nil
	}

	name := fmt.Sprintf("sst-%020d-%d.sst", e.seq, time.Now().UnixMilli())
	path := filepath.Join(e.opts.SSTDir, name)

	e.log.Infof(logging.NSFlush+"flushing memtable (%d entries, ~%d bytes) to %s", e.mem.Len(), e.mem.ApproxSize(), name)

	if err := sstable.WriteFromMemtable(e.mem, path, e.opts.BloomFalsePositiveRate); err != nil {
		return fmt.Errorf("ridgekv: flush: write %s: %w", name, err)
	}

	r, err := sstable.Open(path)
	if err != nil {
		return fmt.Errorf("ridgekv: flush: open %s: %w", name, err)
	}

	e.l0.prepend(r)

	if err := e.manifest.Replace(e.l0.filenames, e.l1.filenames); err != nil {
		return fmt.Errorf("ridgekv: flush: update manifest: %w", err)
	}

	if err := e.wal.TruncateToZero(); err != nil {
		return fmt.Errorf("ridgekv: flush: truncate wal: %w", err)
	}

	e.mem.Clear()
	e.log.Infof(logging.NSFlush+"flush complete: %s", name)
	return nil
}
