// Command sstdump opens a single ridgekv SSTable and prints its footer
// version, entry count, key range, and a content fingerprint to stdout.
//
// Usage:
//
//	sstdump <path-to.sst>
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/aalhour/ridgekv/internal/sstable"
	"github.com/zeebo/xxh3"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: sstdump <path-to.sst>")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "sstdump: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	r, err := sstable.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	keys := r.Keys()

	fmt.Printf("file:        %s\n", path)
	fmt.Printf("version:     SST%d\n", r.Version())
	fmt.Printf("entries:     %d\n", r.Len())
	fmt.Printf("bloom:       %v\n", r.HasBloom())
	fmt.Printf("checksums:   %v\n", r.HasChecksums())
	if seq, ok := r.MaxSeq(); ok {
		fmt.Printf("max_seq:     %d\n", seq)
	} else {
		fmt.Printf("max_seq:     unknown\n")
	}

	if len(keys) == 0 {
		fmt.Println("key_range:   (empty)")
		fmt.Println("fingerprint: " + fmt.Sprintf("%016x", xxh3.Hash(nil)))
		return nil
	}
	fmt.Printf("key_range:   [%q, %q]\n", keys[0], keys[len(keys)-1])

	fingerprint, err := fingerprintOf(r, keys)
	if err != nil {
		return err
	}
	fmt.Printf("fingerprint: %016x\n", fingerprint)
	return nil
}

// fingerprintOf hashes the concatenation of every (key, seq, present,
// value) tuple in the file, in ascending key order, via XXH3-64 — a cheap
// way to detect whether two SSTables hold identical content without a
// byte-for-byte diff of their (differently laid out) files.
func fingerprintOf(r *sstable.Reader, keys [][]byte) (uint64, error) {
	var buf bytes.Buffer
	for _, k := range keys {
		e, err := r.Get(k)
		if err != nil {
			return 0, fmt.Errorf("read %q: %w", k, err)
		}
		if e == nil {
			continue
		}
		buf.Write(e.Key)
		fmt.Fprintf(&buf, "|%d|%v|", e.Seq, e.Present)
		buf.Write(e.Value)
		buf.WriteByte('\n')
	}
	return xxh3.Hash(buf.Bytes()), nil
}
