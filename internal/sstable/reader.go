package sstable

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/aalhour/ridgekv/internal/bloom"
	"github.com/aalhour/ridgekv/internal/checksum"
	"github.com/aalhour/ridgekv/internal/errkit"
)

// maxIndexKeySize caps any single index key read from disk; an index entry
// can never legitimately hold a key larger than the engine's own
// MaxKeySize, so a larger one is a corruption, not a valid edge case.
const maxIndexKeySize = 64 * 1024

// Reader opens an immutable SSTable for point lookups and ordered
// iteration. The full key→offset index is resident in memory; data records
// are read from disk on demand.
type Reader struct {
	path    string
	f       *os.File
	version Version
	hasCRC  bool // true only for SST3

	index    map[string]uint64 // key -> data_offset
	sortedKeys [][]byte        // ascending, for Keys()/iteration

	bloom *bloom.Filter // nil for SST1

	maxSeq    uint64
	hasMaxSeq bool
}

// Open opens path read-only and loads its index (and bloom filter, if
// present) into memory.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	ok := false
	defer func() {
		if !ok {
			f.Close()
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("sstable: stat %s: %w", path, err)
	}
	size := info.Size()
	if size < int64(minFooterSize) {
		return nil, fmt.Errorf("sstable: %s: %w: file too small (%d bytes)", path, errkit.ErrCorruption, size)
	}

	// Identify the version from the trailing 4 bytes (the magic is always
	// the final field of every footer version), then re-read the
	// version-appropriate footer size.
	var magic [4]byte
	if _, err := f.ReadAt(magic[:], size-4); err != nil {
		return nil, fmt.Errorf("sstable: read magic %s: %w", path, err)
	}
	version, ok2 := versionFromMagic(magic)
	if !ok2 {
		return nil, fmt.Errorf("sstable: %s: %w: unrecognized magic %q", path, errkit.ErrUnsupportedVersion, magic)
	}

	fsz := footerSize(version)
	if size < int64(fsz) {
		return nil, fmt.Errorf("sstable: %s: %w: file too small for %d footer", path, errkit.ErrCorruption, fsz)
	}
	tail := make([]byte, fsz)
	if _, err := f.ReadAt(tail, size-int64(fsz)); err != nil {
		return nil, fmt.Errorf("sstable: read footer %s: %w", path, err)
	}
	ft, err := parseFooter(version, tail)
	if err != nil {
		return nil, fmt.Errorf("sstable: %s: %w", path, err)
	}

	if int64(ft.indexOffset) < 0 || int64(ft.indexOffset) >= size {
		return nil, fmt.Errorf("sstable: %s: %w: index_offset %d out of bounds (size %d)", path, errkit.ErrCorruption, ft.indexOffset, size)
	}

	r := &Reader{
		path:      path,
		f:         f,
		version:   version,
		hasCRC:    version == VersionSST3,
		index:     make(map[string]uint64),
		maxSeq:    ft.maxSeq,
		hasMaxSeq: ft.hasMaxSeq,
	}

	indexEnd := size - int64(fsz)
	if err := r.loadIndex(ft.indexOffset, indexEnd); err != nil {
		return nil, fmt.Errorf("sstable: %s: %w", path, err)
	}

	if ft.hasBloom {
		if _, err := f.Seek(int64(ft.bloomOffset), io.SeekStart); err != nil {
			return nil, fmt.Errorf("sstable: seek bloom %s: %w", path, err)
		}
		filt, err := bloom.ReadFrom(f)
		if err != nil {
			return nil, fmt.Errorf("sstable: %s: %w: bloom: %v", path, errkit.ErrCorruption, err)
		}
		r.bloom = filt
	}

	if !ft.hasMaxSeq {
		// SST1/SST2 have no footer field for this; scan all data records.
		maxSeq, err := r.scanMaxSeq()
		if err != nil {
			return nil, fmt.Errorf("sstable: %s: %w", path, err)
		}
		r.maxSeq = maxSeq
		r.hasMaxSeq = true
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("sstable: rewind %s: %w", path, err)
	}

	ok = true
	return r, nil
}

func (r *Reader) loadIndex(indexOffset uint64, indexEnd int64) error {
	if _, err := r.f.Seek(int64(indexOffset), io.SeekStart); err != nil {
		return fmt.Errorf("seek index: %w", err)
	}
	remaining := indexEnd - int64(indexOffset)
	buf := make([]byte, remaining)
	if _, err := io.ReadFull(r.f, buf); err != nil {
		return fmt.Errorf("read index: %w", err)
	}

	pos := 0
	for pos < len(buf) {
		if pos+4 > len(buf) {
			return fmt.Errorf("%w: truncated index entry", errkit.ErrCorruption)
		}
		keyLen := binary.LittleEndian.Uint32(buf[pos : pos+4])
		pos += 4
		if keyLen > maxIndexKeySize {
			return fmt.Errorf("%w: index key length %d exceeds max", errkit.ErrCorruption, keyLen)
		}
		if pos+int(keyLen)+8 > len(buf) {
			return fmt.Errorf("%w: truncated index entry", errkit.ErrCorruption)
		}
		key := make([]byte, keyLen)
		copy(key, buf[pos:pos+int(keyLen)])
		pos += int(keyLen)
		off := binary.LittleEndian.Uint64(buf[pos : pos+8])
		pos += 8

		r.index[string(key)] = off
		r.sortedKeys = append(r.sortedKeys, key)
	}

	sort.Slice(r.sortedKeys, func(i, j int) bool {
		return string(r.sortedKeys[i]) < string(r.sortedKeys[j])
	})
	return nil
}

func (r *Reader) scanMaxSeq() (uint64, error) {
	var max uint64
	for _, k := range r.sortedKeys {
		e, err := r.readRecordAt(r.index[string(k)])
		if err != nil {
			return 0, err
		}
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max, nil
}

// MaxSeq returns the largest sequence number stored in the file. ok is
// always true: SST3 carries max_seq in its footer directly, and for
// SST1/SST2 — which have no such field — Open itself scans every data
// record once at load time and caches the result, so by the time a caller
// can hold a *Reader the value is already known.
func (r *Reader) MaxSeq() (seq uint64, ok bool) {
	return r.maxSeq, r.hasMaxSeq
}

// Len returns the number of distinct keys in the file.
func (r *Reader) Len() int { return len(r.sortedKeys) }

// HasBloom reports whether the file carries a bloom filter (SST2+).
func (r *Reader) HasBloom() bool { return r.bloom != nil }

// HasChecksums reports whether data records carry a per-record CRC (SST3).
func (r *Reader) HasChecksums() bool { return r.hasCRC }

// Version returns the file's footer version.
func (r *Reader) Version() Version { return r.version }

// Get looks up key. A nil entry with a nil error means key is definitely
// absent (either per the bloom filter or the index).
func (r *Reader) Get(key []byte) (*Entry, error) {
	if r.bloom != nil && !r.bloom.MayContain(key) {
		return nil, nil
	}
	off, ok := r.index[string(key)]
	if !ok {
		return nil, nil
	}
	e, err := r.readRecordAt(off)
	if err != nil {
		return nil, fmt.Errorf("sstable: get %s: %w", r.path, err)
	}
	if string(e.Key) != string(key) {
		return nil, fmt.Errorf("sstable: get %s: %w: index pointed at key %q, wanted %q", r.path, errkit.ErrCorruption, e.Key, key)
	}
	return &e, nil
}

// readRecordAt decodes the data record at byte offset off, verifying its
// CRC when the file format carries one (SST3).
func (r *Reader) readRecordAt(off uint64) (Entry, error) {
	if _, err := r.f.Seek(int64(off), io.SeekStart); err != nil {
		return Entry{}, fmt.Errorf("seek data record at %d: %w", off, err)
	}

	var crcBuf [4]byte
	var storedCRC uint32
	haveCRC := r.version == VersionSST3
	if haveCRC {
		if _, err := io.ReadFull(r.f, crcBuf[:]); err != nil {
			return Entry{}, fmt.Errorf("read record crc at %d: %w", off, err)
		}
		storedCRC = binary.LittleEndian.Uint32(crcBuf[:])
	}

	var keyLenBuf [4]byte
	if _, err := io.ReadFull(r.f, keyLenBuf[:]); err != nil {
		return Entry{}, fmt.Errorf("read key len at %d: %w", off, err)
	}
	keyLen := binary.LittleEndian.Uint32(keyLenBuf[:])
	if keyLen > maxIndexKeySize {
		return Entry{}, fmt.Errorf("%w: key length %d exceeds max at offset %d", errkit.ErrCorruption, keyLen, off)
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r.f, key); err != nil {
		return Entry{}, fmt.Errorf("read key at %d: %w", off, err)
	}

	var seqBuf [8]byte
	if _, err := io.ReadFull(r.f, seqBuf[:]); err != nil {
		return Entry{}, fmt.Errorf("read seq at %d: %w", off, err)
	}
	seq := binary.LittleEndian.Uint64(seqBuf[:])

	var presentBuf [1]byte
	if _, err := io.ReadFull(r.f, presentBuf[:]); err != nil {
		return Entry{}, fmt.Errorf("read present at %d: %w", off, err)
	}
	present := presentBuf[0] == 1

	var value []byte
	if present {
		var valLenBuf [4]byte
		if _, err := io.ReadFull(r.f, valLenBuf[:]); err != nil {
			return Entry{}, fmt.Errorf("read val len at %d: %w", off, err)
		}
		valLen := binary.LittleEndian.Uint32(valLenBuf[:])
		value = make([]byte, valLen)
		if _, err := io.ReadFull(r.f, value); err != nil {
			return Entry{}, fmt.Errorf("read val at %d: %w", off, err)
		}
	}

	if haveCRC {
		body := encodeDataBody(Entry{Key: key, Seq: seq, Present: present, Value: value})
		if checksum.Value(body) != storedCRC {
			return Entry{}, fmt.Errorf("%w: crc mismatch at offset %d", errkit.ErrCorruption, off)
		}
	}

	return Entry{Key: key, Seq: seq, Present: present, Value: value}, nil
}

// Keys returns all keys in the file, ascending, backed by the already
// resident index — no disk I/O.
func (r *Reader) Keys() [][]byte { return r.sortedKeys }

// Close closes the underlying file handle.
func (r *Reader) Close() error { return r.f.Close() }

// Path returns the file path this reader was opened from.
func (r *Reader) Path() string { return r.path }

// Source returns a Source that streams every entry in the file, in
// ascending key order, each read from disk on demand.
func (r *Reader) Source() Source { return &readerSource{r: r} }

type readerSource struct {
	r   *Reader
	pos int
}

func (s *readerSource) Next() (Entry, bool, error) {
	if s.pos >= len(s.r.sortedKeys) {
		return Entry{}, false, nil
	}
	k := s.r.sortedKeys[s.pos]
	s.pos++
	e, err := s.r.readRecordAt(s.r.index[string(k)])
	if err != nil {
		return Entry{}, false, fmt.Errorf("sstable: source read %s: %w", s.r.path, err)
	}
	return e, true, nil
}
