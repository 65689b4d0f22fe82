package sstable

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aalhour/ridgekv/internal/bloom"
	"github.com/aalhour/ridgekv/internal/checksum"
	"github.com/aalhour/ridgekv/internal/memtable"
)

// DefaultFalsePositiveRate is the bloom filter target used when a caller
// does not have a configured rate of their own.
const DefaultFalsePositiveRate = 0.01

// WriteFromMemtable writes mem's entries, in ascending key order, to a new
// SSTable at path, with a bloom filter targeting fpRate (0 selects
// DefaultFalsePositiveRate). It is an error to call this on an empty
// memtable; the caller (the engine) is responsible for skipping flush()
// entirely in that case.
func WriteFromMemtable(mem *memtable.Memtable, path string, fpRate float64) error {
	if mem.IsEmpty() {
		return ErrEmptyInput
	}
	kvs := mem.Iter()
	entries := make([]Entry, len(kvs))
	for i, kv := range kvs {
		entries[i] = Entry{
			Key:     kv.Key,
			Seq:     kv.Entry.Seq,
			Present: kv.Entry.Live(),
			Value:   kv.Entry.Value,
		}
	}
	return WriteFromIterator(path, len(entries), NewSliceSource(entries), fpRate)
}

// WriteFromIterator streams src to a new SSTable at path, with a bloom
// filter targeting fpRate (0 selects DefaultFalsePositiveRate). The caller
// guarantees src yields entries in strictly increasing key order.
// expectedCount sizes the bloom filter and is floored at 1.
func WriteFromIterator(path string, expectedCount int, src Source, fpRate float64) error {
	if expectedCount < 1 {
		expectedCount = 1
	}
	if fpRate <= 0 {
		fpRate = DefaultFalsePositiveRate
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sstable: create %s: %w", tmpPath, err)
	}

	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	filter := bloom.New(expectedCount, fpRate)

	var offset uint64
	var maxSeq uint64
	type idxEntry struct {
		key    []byte
		offset uint64
	}
	var index []idxEntry

	for {
		e, more, err := src.Next()
		if err != nil {
			return fmt.Errorf("sstable: read source: %w", err)
		}
		if !more {
			break
		}

		recBody := encodeDataBody(e)
		crc := checksum.Value(recBody)

		var crcBuf [4]byte
		binary.LittleEndian.PutUint32(crcBuf[:], crc)

		n1, err := f.Write(crcBuf[:])
		if err != nil {
			return fmt.Errorf("sstable: write %s: %w", tmpPath, err)
		}
		n2, err := f.Write(recBody)
		if err != nil {
			return fmt.Errorf("sstable: write %s: %w", tmpPath, err)
		}

		index = append(index, idxEntry{key: e.Key, offset: offset})
		offset += uint64(n1 + n2)

		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
		filter.Insert(e.Key)
	}

	if len(index) == 0 {
		return ErrEmptyInput
	}

	bloomOffset := offset
	n, err := filter.WriteTo(f)
	if err != nil {
		return fmt.Errorf("sstable: write bloom %s: %w", tmpPath, err)
	}
	offset += uint64(n)

	indexOffset := offset
	for _, ie := range index {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(ie.key)))
		if _, err := f.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("sstable: write index %s: %w", tmpPath, err)
		}
		if _, err := f.Write(ie.key); err != nil {
			return fmt.Errorf("sstable: write index %s: %w", tmpPath, err)
		}
		var offBuf [8]byte
		binary.LittleEndian.PutUint64(offBuf[:], ie.offset)
		if _, err := f.Write(offBuf[:]); err != nil {
			return fmt.Errorf("sstable: write index %s: %w", tmpPath, err)
		}
	}

	if _, err := f.Write(encodeFooterSST3(maxSeq, bloomOffset, indexOffset)); err != nil {
		return fmt.Errorf("sstable: write footer %s: %w", tmpPath, err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("sstable: fsync %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("sstable: close %s: %w", tmpPath, err)
	}
	ok = true

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sstable: rename %s to %s: %w", tmpPath, path, err)
	}

	if dir, derr := os.Open(filepath.Dir(path)); derr == nil {
		dir.Sync() // best-effort; not all filesystems support fsync on directories
		dir.Close()
	}

	return nil
}

// encodeDataBody serializes everything a data record's CRC covers:
//
//	key_len:u32le | key | seq:u64le | present:u8 | [val_len:u32le | val]
func encodeDataBody(e Entry) []byte {
	size := 4 + len(e.Key) + 8 + 1
	if e.Present {
		size += 4 + len(e.Value)
	}
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(e.Key)))
	off := 4
	copy(buf[off:], e.Key)
	off += len(e.Key)

	binary.LittleEndian.PutUint64(buf[off:off+8], e.Seq)
	off += 8

	if e.Present {
		buf[off] = 1
		off++
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(e.Value)))
		off += 4
		copy(buf[off:], e.Value)
	} else {
		buf[off] = 0
	}
	return buf
}
