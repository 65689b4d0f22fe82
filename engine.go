package ridgekv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aalhour/ridgekv/internal/logging"
	"github.com/aalhour/ridgekv/internal/manifestio"
	"github.com/aalhour/ridgekv/internal/memtable"
	"github.com/aalhour/ridgekv/internal/sstable"
	"github.com/aalhour/ridgekv/internal/walio"
)

const manifestFilename = "MANIFEST"

// level holds one level's readers and the filenames tracked in parallel
// for persistence into the manifest, always newest-first.
type level struct {
	readers   []*sstable.Reader
	filenames []string
}

func (l *level) prepend(r *sstable.Reader) {
	l.readers = append([]*sstable.Reader{r}, l.readers...)
	l.filenames = append([]string{filepath.Base(r.Path())}, l.filenames...)
}

func (l *level) replace(r *sstable.Reader) {
	l.readers = []*sstable.Reader{r}
	l.filenames = []string{filepath.Base(r.Path())}
}

func (l *level) clear() {
	l.readers = nil
	l.filenames = nil
}

// Engine is the LSM-tree storage engine: one memtable, one WAL, two
// ordered lists of SSTables (L0, L1), a manifest, and a monotonic
// sequence counter.
//
// An Engine is not safe for concurrent use by multiple goroutines; callers
// must serialize their own access to it.
type Engine struct {
	opts Options
	log  logging.Logger

	mem *memtable.Memtable
	wal *walio.Writer

	l0, l1   level
	manifest *manifestio.Manifest

	seq    uint64
	closed bool
}

// Open creates or recovers an Engine at the paths named in opts.
//
// ctx is honored only during the recovery scan (WAL replay, SSTable
// directory listing); once Open returns, individual calls are not
// context-aware, matching the engine's run-to-completion contract.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	if err := os.MkdirAll(opts.SSTDir, 0o755); err != nil {
		return nil, fmt.Errorf("ridgekv: create sst dir %s: %w", opts.SSTDir, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := removeTmpFiles(opts.SSTDir); err != nil {
		return nil, err
	}

	mem := memtable.New()
	var walMaxSeq uint64
	opts.Logger.Infof(logging.NSRecovery+"replaying WAL %s", opts.WALPath)
	err := walio.Replay(opts.WALPath, func(r walio.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch r.Op {
		case walio.OpPut:
			mem.Put(r.Key, r.Value, r.Seq)
		case walio.OpDel:
			mem.Delete(r.Key, r.Seq)
		}
		if r.Seq > walMaxSeq {
			walMaxSeq = r.Seq
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ridgekv: recover from WAL: %w", err)
	}

	wal, err := walio.Open(opts.WALPath, opts.WalSync)
	if err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(opts.SSTDir, manifestFilename)
	manifest, err := manifestio.LoadOrCreate(manifestPath)
	if err != nil {
		wal.Close()
		return nil, fmt.Errorf("ridgekv: load manifest: %w", err)
	}

	eng := &Engine{opts: opts, log: opts.Logger, mem: mem, wal: wal, manifest: manifest}

	var sstMaxSeq uint64
	openLevel := func(filenames []string, lvl *level) error {
		for _, fn := range filenames {
			r, err := sstable.Open(filepath.Join(opts.SSTDir, fn))
			if err != nil {
				eng.closeReaders()
				wal.Close()
				return fmt.Errorf("ridgekv: open sstable %s: %w", fn, err)
			}
			lvl.readers = append(lvl.readers, r)
			lvl.filenames = append(lvl.filenames, fn)
			if s, ok := r.MaxSeq(); ok && s > sstMaxSeq {
				sstMaxSeq = s
			}
		}
		return nil
	}
	if err := openLevel(manifest.L0Filenames(), &eng.l0); err != nil {
		return nil, err
	}
	if err := openLevel(manifest.L1Filenames(), &eng.l1); err != nil {
		return nil, err
	}

	eng.seq = max64(walMaxSeq, sstMaxSeq)
	opts.Logger.Infof(logging.NSRecovery+"recovered: seq=%d l0=%d l1=%d memtableLen=%d",
		eng.seq, len(eng.l0.readers), len(eng.l1.readers), mem.Len())

	return eng, nil
}

// removeTmpFiles deletes any "*.sst.tmp" file left behind by a writer that
// crashed before completing its atomic rename.
func removeTmpFiles(sstDir string) error {
	entries, err := os.ReadDir(sstDir)
	if err != nil {
		return fmt.Errorf("ridgekv: list sst dir %s: %w", sstDir, err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sst.tmp") {
			if err := os.Remove(filepath.Join(sstDir, e.Name())); err != nil {
				return fmt.Errorf("ridgekv: remove stale %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

// Close runs a best-effort final flush (if the memtable is non-empty),
// then closes the WAL file and every SSTable reader.
//
// The final flush's error, if any, is logged and swallowed: the data is
// already durable in the WAL, and the next Open will recover it via
// replay.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	if !e.mem.IsEmpty() {
		if err := e.flush(); err != nil {
			e.log.Warnf(logging.NSRecovery+"best-effort flush on close failed (data remains in WAL): %v", err)
		}
	}

	var firstErr error
	if err := e.wal.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("ridgekv: close wal: %w", err)
	}
	if err := e.closeReaders(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (e *Engine) closeReaders() error {
	var firstErr error
	for _, r := range e.l0.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("ridgekv: close sstable %s: %w", r.Path(), err)
		}
	}
	for _, r := range e.l1.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("ridgekv: close sstable %s: %w", r.Path(), err)
		}
	}
	return firstErr
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
