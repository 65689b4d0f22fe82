package walio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Replay reads every complete frame in path, in order, calling fn for each
// decoded record. A torn tail — fewer than record_len bytes remaining, or a
// clean EOF exactly at a frame boundary — ends replay silently; it is the
// expected shape of a crash mid-append, not an error. A CRC mismatch on an
// otherwise complete frame is a genuine corruption error and is returned.
//
// If path does not exist, Replay is a no-op (a fresh engine has no WAL
// yet).
func Replay(path string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("walio: open %s: %w", path, err)
	}
	defer f.Close()

	r := &frameReader{f: f}
	for {
		rec, ok, err := r.next()
		if err != nil {
			return fmt.Errorf("walio: replay %s: %w", path, err)
		}
		if !ok {
			return nil
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

type frameReader struct {
	f *os.File
}

// next reads one frame. ok is false (with a nil error) on a clean end of
// log, including a torn tail.
func (r *frameReader) next() (rec Record, ok bool, err error) {
	var lenBuf [4]byte
	n, err := io.ReadFull(r.f, lenBuf[:])
	if err == io.EOF && n == 0 {
		return Record{}, false, nil
	}
	if err != nil {
		// Fewer than 4 bytes remain for the length prefix itself: torn tail.
		return Record{}, false, nil
	}

	recordLen := binary.LittleEndian.Uint32(lenBuf[:])
	rest := make([]byte, recordLen)
	if _, err := io.ReadFull(r.f, rest); err != nil {
		// Fewer than record_len bytes remain: torn tail, not an error.
		return Record{}, false, nil
	}

	if len(rest) < 4 {
		// record_len smaller than the crc field itself: torn/garbage tail.
		return Record{}, false, nil
	}
	crc := binary.LittleEndian.Uint32(rest[0:4])
	body := rest[4:]

	if checksumOf(body) != crc {
		return Record{}, false, fmt.Errorf("%w: crc mismatch", ErrCorruption)
	}

	rec, err = decodeBody(body)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}
