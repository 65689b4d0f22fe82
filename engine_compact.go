package ridgekv

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aalhour/ridgekv/internal/logging"
	"github.com/aalhour/ridgekv/internal/sstable"
)

// Compact merges all L0 and L1 SSTables into a single new L1 SSTable,
// dropping any tombstone whose key the memtable no longer references. It
// is a no-op if there is at most one SSTable total.
func (e *Engine) Compact() error {
	if e.closed {
		return ErrClosed
	}
	return e.compact()
}

// compact implements §4.7.7.
func (e *Engine) compact() error {
	total := len(e.l0.readers) + len(e.l1.readers)
	if total <= 1 {
		return nil
	}

	oldReaders := make([]*sstable.Reader, 0, total)
	oldReaders = append(oldReaders, e.l0.readers...)
	oldReaders = append(oldReaders, e.l1.readers...)

	// Record the .sst filenames actually present in sstDir right now,
	// rather than trusting only e.l0/e.l1's in-memory bookkeeping, so
	// cleanup below removes exactly the files that existed going in even
	// if that bookkeeping were ever to drift from the filesystem.
	oldFilenames, err := listSSTFiles(e.opts.SSTDir)
	if err != nil {
		return fmt.Errorf("ridgekv: compact: list %s: %w", e.opts.SSTDir, err)
	}

	e.log.Infof(logging.NSCompact+"compacting %d L0 + %d L1 tables", len(e.l0.readers), len(e.l1.readers))

	expectedCount := 0
	sources := make([]sstable.Source, 0, total)
	for _, r := range oldReaders {
		expectedCount += r.Len()
		sources = append(sources, r.Source())
	}

	merged, err := sstable.NewMergeIterator(sources)
	if err != nil {
		return fmt.Errorf("ridgekv: compact: build merge iterator: %w", err)
	}

	filtered := &tombstoneFilterSource{src: merged, mem: e.mem}

	// Drain the filtered stream, tracking the output's max seq so the
	// output filename (per §4.7.7 step 4) reflects the data actually
	// written rather than the engine's running seq counter.
	var staged []sstable.Entry
	var maxSeq uint64
	for {
		ent, ok, err := filtered.Next()
		if err != nil {
			return fmt.Errorf("ridgekv: compact: merge: %w", err)
		}
		if !ok {
			break
		}
		if ent.Seq > maxSeq {
			maxSeq = ent.Seq
		}
		staged = append(staged, ent)
	}

	if len(staged) == 0 {
		if err := e.manifest.Replace(nil, nil); err != nil {
			return fmt.Errorf("ridgekv: compact: clear manifest: %w", err)
		}
		if err := closeAll(oldReaders); err != nil {
			return fmt.Errorf("ridgekv: compact: close old readers: %w", err)
		}
		e.l0.clear()
		e.l1.clear()
		deleteFiles(e.opts.SSTDir, oldFilenames, e.log)
		e.log.Infof(logging.NSCompact + "compaction produced no output; all inputs were empty after tombstone gc")
		return nil
	}

	name := fmt.Sprintf("sst-%020d-%d.sst", maxSeq, time.Now().UnixMilli())
	path := filepath.Join(e.opts.SSTDir, name)
	if err := sstable.WriteFromIterator(path, expectedCount, sstable.NewSliceSource(staged), e.opts.BloomFalsePositiveRate); err != nil {
		return fmt.Errorf("ridgekv: compact: write %s: %w", name, err)
	}

	newReader, err := sstable.Open(path)
	if err != nil {
		return fmt.Errorf("ridgekv: compact: open %s: %w", name, err)
	}

	if err := e.manifest.Replace(nil, []string{name}); err != nil {
		newReader.Close()
		return fmt.Errorf("ridgekv: compact: update manifest: %w", err)
	}

	if err := closeAll(oldReaders); err != nil {
		return fmt.Errorf("ridgekv: compact: close old readers: %w", err)
	}

	e.l0.clear()
	e.l1.replace(newReader)

	deleteFiles(e.opts.SSTDir, oldFilenames, e.log)

	e.log.Infof(logging.NSCompact+"compaction complete: %s (%d entries)", name, len(staged))
	return nil
}

// tombstoneFilterSource wraps a merged Source, dropping any tombstone whose
// key the memtable no longer references. The memtable is not itself part
// of compaction's inputs, so this is the only place that rule is applied.
type tombstoneFilterSource struct {
	src sstable.Source
	mem interface{ ContainsKey([]byte) bool }
}

func (f *tombstoneFilterSource) Next() (sstable.Entry, bool, error) {
	for {
		e, ok, err := f.src.Next()
		if err != nil || !ok {
			return e, ok, err
		}
		if !e.Present && !f.mem.ContainsKey(e.Key) {
			continue
		}
		return e, true, nil
	}
}

func closeAll(readers []*sstable.Reader) error {
	var firstErr error
	for _, r := range readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// listSSTFiles returns the base names of every completed (non-".tmp") .sst
// file in dir.
func listSSTFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".sst" {
			out = append(out, name)
		}
	}
	return out, nil
}

func deleteFiles(dir string, filenames []string, log logging.Logger) {
	for _, fn := range filenames {
		if err := os.Remove(filepath.Join(dir, fn)); err != nil {
			log.Warnf(logging.NSCompact+"remove old sstable %s: %v", fn, err)
		}
	}
}
