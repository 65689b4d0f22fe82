package sstable

import (
	"encoding/binary"
	"fmt"

	"github.com/aalhour/ridgekv/internal/errkit"
)

// Version identifies an SSTable footer format. Readers accept all three;
// this package's Writer produces only VersionSST3.
type Version int

const (
	VersionSST1 Version = iota + 1 // no bloom, no per-record CRC, no max_seq
	VersionSST2                    // adds bloom
	VersionSST3                    // adds max_seq and per-record CRC
)

var magicBytes = map[Version][4]byte{
	VersionSST1: {'S', 'S', 'T', '1'},
	VersionSST2: {'S', 'S', 'T', '2'},
	VersionSST3: {'S', 'S', 'T', '3'},
}

// footerSize returns the on-disk size of v's footer.
func footerSize(v Version) int {
	switch v {
	case VersionSST1:
		return 12 // index_offset:u64le | magic:u32le
	case VersionSST2:
		return 20 // bloom_offset:u64le | index_offset:u64le | magic:u32le
	case VersionSST3:
		return 28 // max_seq:u64le | bloom_offset:u64le | index_offset:u64le | magic:u32le
	default:
		return 0
	}
}

// minFooterSize is the smallest footer this reader must be able to parse
// (SST1's), used as the file-size sanity floor on Open.
const minFooterSize = 12

// footer is the decoded trailer of an SSTable file, normalized across
// versions (fields absent in older versions are zero-valued).
type footer struct {
	version     Version
	maxSeq      uint64 // only meaningful if hasMaxSeq
	hasMaxSeq   bool
	bloomOffset uint64
	hasBloom    bool
	indexOffset uint64
}

// versionFromMagic maps a raw 4-byte magic to a Version, or reports false
// for an unrecognized magic.
func versionFromMagic(magic [4]byte) (Version, bool) {
	for v, m := range magicBytes {
		if m == magic {
			return v, true
		}
	}
	return 0, false
}

// parseFooter decodes the trailing footerSize(v) bytes of tail, where tail
// is exactly that many bytes read from the end of the file and magic has
// already been identified as belonging to version v.
func parseFooter(v Version, tail []byte) (footer, error) {
	want := footerSize(v)
	if len(tail) != want {
		return footer{}, fmt.Errorf("sstable: %w: footer size %d, want %d", errkit.ErrCorruption, len(tail), want)
	}

	switch v {
	case VersionSST1:
		return footer{
			version:     v,
			indexOffset: binary.LittleEndian.Uint64(tail[0:8]),
		}, nil
	case VersionSST2:
		return footer{
			version:     v,
			bloomOffset: binary.LittleEndian.Uint64(tail[0:8]),
			hasBloom:    true,
			indexOffset: binary.LittleEndian.Uint64(tail[8:16]),
		}, nil
	case VersionSST3:
		return footer{
			version:     v,
			maxSeq:      binary.LittleEndian.Uint64(tail[0:8]),
			hasMaxSeq:   true,
			bloomOffset: binary.LittleEndian.Uint64(tail[8:16]),
			hasBloom:    true,
			indexOffset: binary.LittleEndian.Uint64(tail[16:24]),
		}, nil
	default:
		return footer{}, fmt.Errorf("sstable: %w: version %d", errkit.ErrUnsupportedVersion, v)
	}
}

// encodeFooterSST3 serializes the SST3 footer this package's Writer always
// produces: max_seq | bloom_offset | index_offset | magic.
func encodeFooterSST3(maxSeq, bloomOffset, indexOffset uint64) []byte {
	buf := make([]byte, footerSize(VersionSST3))
	binary.LittleEndian.PutUint64(buf[0:8], maxSeq)
	binary.LittleEndian.PutUint64(buf[8:16], bloomOffset)
	binary.LittleEndian.PutUint64(buf[16:24], indexOffset)
	m := magicBytes[VersionSST3]
	copy(buf[24:28], m[:])
	return buf
}
