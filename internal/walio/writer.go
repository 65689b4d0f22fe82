package walio

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Writer appends records to a WAL file.
//
// A Writer is not safe for concurrent use; ridgekv's Engine guarantees
// exclusive access, matching the single-writer contract of the engine as a
// whole.
type Writer struct {
	path         string
	file         *os.File
	syncOnAppend bool
	scratch      []byte // reused across Append calls to avoid a per-call allocation
}

// Open creates path if it does not exist and opens it for appending.
func Open(path string, syncOnAppend bool) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("walio: open %s: %w", path, err)
	}
	return &Writer{path: path, file: f, syncOnAppend: syncOnAppend}, nil
}

// Append serializes record and writes one frame:
//
//	record_len:u32le | crc32:u32le | body
//
// record_len counts the crc32 field plus the body. The frame is written
// with a single Write call so a crash mid-append either leaves the prior
// frame intact or leaves a torn tail, never an interleaving of two frames.
func (w *Writer) Append(r Record) error {
	body := encodeBody(r)
	crc := checksumOf(body)

	total := 4 + 4 + len(body)
	if cap(w.scratch) < total {
		w.scratch = make([]byte, total)
	}
	frame := w.scratch[:total]
	binary.LittleEndian.PutUint32(frame[0:4], uint32(4+len(body)))
	binary.LittleEndian.PutUint32(frame[4:8], crc)
	copy(frame[8:], body)

	if _, err := w.file.Write(frame); err != nil {
		return fmt.Errorf("walio: append to %s: %w", w.path, err)
	}
	if w.syncOnAppend {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("walio: sync %s: %w", w.path, err)
		}
	}
	return nil
}

// Sync fsyncs the WAL file, for callers that batch appends and sync
// periodically rather than on every Append.
func (w *Writer) Sync() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("walio: sync %s: %w", w.path, err)
	}
	return nil
}

// TruncateToZero discards all previously written records. It is called
// after a successful flush, once the memtable's contents are durably on
// disk in an SSTable.
func (w *Writer) TruncateToZero() error {
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("walio: truncate %s: %w", w.path, err)
	}
	if _, err := w.file.Seek(0, 0); err != nil {
		return fmt.Errorf("walio: seek %s: %w", w.path, err)
	}
	if w.syncOnAppend {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("walio: sync %s: %w", w.path, err)
		}
	}
	return nil
}

// Close closes the underlying file handle.
func (w *Writer) Close() error {
	return w.file.Close()
}
