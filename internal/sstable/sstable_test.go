package sstable

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aalhour/ridgekv/internal/bloom"
	"github.com/aalhour/ridgekv/internal/errkit"
	"github.com/aalhour/ridgekv/internal/memtable"
)

func buildSST(t *testing.T, entries []Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.sst")
	if err := WriteFromIterator(path, len(entries), NewSliceSource(entries), 0); err != nil {
		t.Fatalf("WriteFromIterator: %v", err)
	}
	return path
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	entries := []Entry{
		{Key: []byte("a"), Seq: 1, Present: true, Value: []byte("1")},
		{Key: []byte("b"), Seq: 2, Present: true, Value: []byte("")},
		{Key: []byte("c"), Seq: 3, Present: false},
	}
	path := buildSST(t, entries)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Version() != VersionSST3 {
		t.Errorf("version = %v, want SST3", r.Version())
	}
	if !r.HasBloom() || !r.HasChecksums() {
		t.Errorf("expected bloom and checksums on a freshly written SST3 file")
	}
	if seq, ok := r.MaxSeq(); !ok || seq != 3 {
		t.Errorf("MaxSeq() = (%d, %v), want (3, true)", seq, ok)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}

	for _, want := range entries {
		got, err := r.Get(want.Key)
		if err != nil {
			t.Fatalf("Get(%q): %v", want.Key, err)
		}
		if got == nil {
			t.Fatalf("Get(%q) = nil, want an entry", want.Key)
		}
		if got.Seq != want.Seq || got.Present != want.Present || !bytes.Equal(got.Value, want.Value) {
			t.Errorf("Get(%q) = %+v, want %+v", want.Key, got, want)
		}
	}

	got, err := r.Get([]byte("nonexistent"))
	if err != nil || got != nil {
		t.Errorf("Get(nonexistent) = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestWriteFromMemtable(t *testing.T) {
	mem := memtable.New()
	mem.Put([]byte("x"), []byte("1"), 1)
	mem.Put([]byte("y"), []byte("2"), 2)
	mem.Delete([]byte("x"), 3)

	path := filepath.Join(t.TempDir(), "mem.sst")
	if err := WriteFromMemtable(mem, path, 0); err != nil {
		t.Fatalf("WriteFromMemtable: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	e, err := r.Get([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || e.Present || e.Seq != 3 {
		t.Errorf("Get(x) = %+v, want tombstone at seq 3", e)
	}

	e, err = r.Get([]byte("y"))
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || !e.Present || string(e.Value) != "2" {
		t.Errorf("Get(y) = %+v, want live value \"2\"", e)
	}
}

func TestWriteEmptyMemtableIsError(t *testing.T) {
	mem := memtable.New()
	path := filepath.Join(t.TempDir(), "empty.sst")
	err := WriteFromMemtable(mem, path, 0)
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("got err %v, want ErrEmptyInput", err)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		t.Errorf("expected no output file for an empty memtable write")
	}
	if _, statErr := os.Stat(path + ".tmp"); statErr == nil {
		t.Errorf("expected no leftover .tmp file")
	}
}

func TestDataCRCMismatchDetected(t *testing.T) {
	entries := []Entry{
		{Key: []byte("a"), Seq: 1, Present: true, Value: []byte("1")},
		{Key: []byte("b"), Seq: 2, Present: true, Value: []byte("2")},
	}
	path := buildSST(t, entries)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a byte inside the first data record's body (just past its
	// leading crc32 field).
	if _, err := f.WriteAt([]byte{0xFF}, 6); err != nil {
		t.Fatal(err)
	}
	f.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open should still succeed (index/footer untouched): %v", err)
	}
	defer r.Close()

	_, err = r.Get([]byte("a"))
	if !errors.Is(err, errkit.ErrCorruption) {
		t.Fatalf("Get(a) err = %v, want ErrCorruption", err)
	}

	// The other key remains readable.
	e, err := r.Get([]byte("b"))
	if err != nil {
		t.Fatalf("Get(b) should succeed: %v", err)
	}
	if e == nil || string(e.Value) != "2" {
		t.Errorf("Get(b) = %+v, want live value \"2\"", e)
	}
}

func TestMergeIteratorSingleSource(t *testing.T) {
	entries := []Entry{
		{Key: []byte("a"), Seq: 1, Present: true, Value: []byte("1")},
		{Key: []byte("b"), Seq: 2, Present: true, Value: []byte("2")},
	}
	mi, err := NewMergeIterator([]Source{NewSliceSource(entries)})
	if err != nil {
		t.Fatal(err)
	}
	var got []Entry
	for {
		e, ok, err := mi.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, e)
	}
	if len(got) != 2 || string(got[0].Key) != "a" || string(got[1].Key) != "b" {
		t.Errorf("merge of single source = %+v, want entries unchanged", got)
	}
}

func TestMergeIteratorPicksHighestSeq(t *testing.T) {
	a := NewSliceSource([]Entry{
		{Key: []byte("k"), Seq: 5, Present: true, Value: []byte("old")},
	})
	b := NewSliceSource([]Entry{
		{Key: []byte("k"), Seq: 9, Present: true, Value: []byte("new")},
	})
	mi, err := NewMergeIterator([]Source{a, b})
	if err != nil {
		t.Fatal(err)
	}
	e, ok, err := mi.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = (_, %v, %v)", ok, err)
	}
	if e.Seq != 9 || string(e.Value) != "new" {
		t.Errorf("winner = %+v, want seq 9 value \"new\"", e)
	}
	_, ok, err = mi.Next()
	if err != nil || ok {
		t.Fatalf("expected exhausted merge after one distinct key, got ok=%v err=%v", ok, err)
	}
}

func TestMergeIteratorMultiKeyOrdering(t *testing.T) {
	a := NewSliceSource([]Entry{
		{Key: []byte("a"), Seq: 1, Present: true, Value: []byte("1")},
		{Key: []byte("c"), Seq: 3, Present: true, Value: []byte("3")},
	})
	b := NewSliceSource([]Entry{
		{Key: []byte("b"), Seq: 2, Present: true, Value: []byte("2")},
		{Key: []byte("d"), Seq: 4, Present: true, Value: []byte("4")},
	})
	mi, err := NewMergeIterator([]Source{a, b})
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for {
		e, ok, err := mi.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		keys = append(keys, string(e.Key))
	}
	want := []string{"a", "b", "c", "d"}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestOpenRejectsTooSmallFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.sst")
	if err := os.WriteFile(path, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if !errors.Is(err, errkit.ErrCorruption) {
		t.Fatalf("got err %v, want ErrCorruption", err)
	}
}

// writeRawDataSection appends entries (in order, no per-record CRC — SST1
// and SST2 carry no checksum field) to w, returning each entry's byte
// offset within the section for the index to reference.
func writeRawDataSection(t *testing.T, w *os.File, entries []Entry) []uint64 {
	t.Helper()
	offsets := make([]uint64, len(entries))
	var offset uint64
	for i, e := range entries {
		body := encodeDataBody(e)
		if _, err := w.Write(body); err != nil {
			t.Fatalf("write data record: %v", err)
		}
		offsets[i] = offset
		offset += uint64(len(body))
	}
	return offsets
}

// writeRawIndexSection appends one "key_len | key | data_offset" entry per
// entries[i] at offsets[i].
func writeRawIndexSection(t *testing.T, w *os.File, entries []Entry, offsets []uint64) {
	t.Helper()
	for i, e := range entries {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.Key)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			t.Fatalf("write index key len: %v", err)
		}
		if _, err := w.Write(e.Key); err != nil {
			t.Fatalf("write index key: %v", err)
		}
		var offBuf [8]byte
		binary.LittleEndian.PutUint64(offBuf[:], offsets[i])
		if _, err := w.Write(offBuf[:]); err != nil {
			t.Fatalf("write index offset: %v", err)
		}
	}
}

// buildSST1 hand-constructs a version-1 SSTable (no bloom, no per-record
// CRC, no max_seq footer field; 12-byte footer) to exercise the reader's
// version-compatibility path that TestWriteAndReadRoundTrip, which only
// ever produces SST3 via the real Writer, cannot reach.
func buildSST1(t *testing.T, entries []Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "v1.sst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	offsets := writeRawDataSection(t, f, entries)
	indexOffset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	writeRawIndexSection(t, f, entries, offsets)

	footer := make([]byte, footerSize(VersionSST1))
	binary.LittleEndian.PutUint64(footer[0:8], uint64(indexOffset))
	m := magicBytes[VersionSST1]
	copy(footer[8:12], m[:])
	if _, err := f.Write(footer); err != nil {
		t.Fatalf("write footer: %v", err)
	}
	return path
}

// buildSST2 hand-constructs a version-2 SSTable (adds a bloom filter but
// still no per-record CRC or max_seq footer field; 20-byte footer).
func buildSST2(t *testing.T, entries []Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "v2.sst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	offsets := writeRawDataSection(t, f, entries)

	bloomOffset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	filt := bloom.New(len(entries), 0.01)
	for _, e := range entries {
		filt.Insert(e.Key)
	}
	if _, err := filt.WriteTo(f); err != nil {
		t.Fatalf("write bloom: %v", err)
	}

	indexOffset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	writeRawIndexSection(t, f, entries, offsets)

	footer := make([]byte, footerSize(VersionSST2))
	binary.LittleEndian.PutUint64(footer[0:8], uint64(bloomOffset))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(indexOffset))
	m := magicBytes[VersionSST2]
	copy(footer[16:20], m[:])
	if _, err := f.Write(footer); err != nil {
		t.Fatalf("write footer: %v", err)
	}
	return path
}

func TestOpenAcceptsSST1(t *testing.T) {
	entries := []Entry{
		{Key: []byte("a"), Seq: 1, Present: true, Value: []byte("1")},
		{Key: []byte("b"), Seq: 7, Present: true, Value: []byte("2")},
		{Key: []byte("c"), Seq: 3, Present: false},
	}
	path := buildSST1(t, entries)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Version() != VersionSST1 {
		t.Errorf("Version() = %v, want SST1", r.Version())
	}
	if r.HasBloom() {
		t.Error("HasBloom() = true, want false for SST1")
	}
	if r.HasChecksums() {
		t.Error("HasChecksums() = true, want false for SST1")
	}
	if seq, ok := r.MaxSeq(); !ok || seq != 7 {
		t.Errorf("MaxSeq() = (%d, %v), want (7, true) via the startup scan fallback", seq, ok)
	}

	for _, want := range entries {
		got, err := r.Get(want.Key)
		if err != nil {
			t.Fatalf("Get(%q): %v", want.Key, err)
		}
		if got == nil || got.Seq != want.Seq || got.Present != want.Present || !bytes.Equal(got.Value, want.Value) {
			t.Errorf("Get(%q) = %+v, want %+v", want.Key, got, want)
		}
	}

	// No bloom filter present, so a lookup miss must fall through to the
	// index rather than being short-circuited by a (nonexistent) filter.
	got, err := r.Get([]byte("nonexistent"))
	if err != nil || got != nil {
		t.Errorf("Get(nonexistent) = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestOpenAcceptsSST2(t *testing.T) {
	entries := []Entry{
		{Key: []byte("a"), Seq: 2, Present: true, Value: []byte("1")},
		{Key: []byte("b"), Seq: 9, Present: true, Value: []byte("2")},
	}
	path := buildSST2(t, entries)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Version() != VersionSST2 {
		t.Errorf("Version() = %v, want SST2", r.Version())
	}
	if !r.HasBloom() {
		t.Error("HasBloom() = false, want true for SST2")
	}
	if r.HasChecksums() {
		t.Error("HasChecksums() = true, want false for SST2")
	}
	if seq, ok := r.MaxSeq(); !ok || seq != 9 {
		t.Errorf("MaxSeq() = (%d, %v), want (9, true) via the startup scan fallback", seq, ok)
	}

	for _, want := range entries {
		got, err := r.Get(want.Key)
		if err != nil {
			t.Fatalf("Get(%q): %v", want.Key, err)
		}
		if got == nil || got.Seq != want.Seq || got.Present != want.Present || !bytes.Equal(got.Value, want.Value) {
			t.Errorf("Get(%q) = %+v, want %+v", want.Key, got, want)
		}
	}
}

func TestOpenRejectsUnknownMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad-magic.sst")
	footer := encodeFooterSST3(0, 0, 0)
	copy(footer[24:28], []byte("XXXX"))
	if err := os.WriteFile(path, footer, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if !errors.Is(err, errkit.ErrUnsupportedVersion) {
		t.Fatalf("got err %v, want ErrUnsupportedVersion", err)
	}
}
