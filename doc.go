/*
Package ridgekv is an embedded, single-writer key-value storage engine
organized as a log-structured merge (LSM) tree.

It persists ordered byte-string keys to byte-string values with
at-most-one-version-visible semantics, survives process crashes via a
write-ahead log, and bounds read cost through bloom-filtered immutable
sorted files (SSTables) and two-level compaction (L0 → L1).

# Usage

	eng, err := ridgekv.Open(context.Background(), ridgekv.Options{
		WALPath: "db.wal",
		SSTDir:  "db-sst",
	})
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	if err := eng.Set([]byte("k"), []byte("v")); err != nil {
		log.Fatal(err)
	}
	v, found, err := eng.Get([]byte("k"))

# Concurrency

An Engine is not safe for concurrent use by multiple goroutines. The
contract is exclusive, single-writer mutation: callers must serialize their
own access, matching the spec this engine implements.

# Durability

With Options.WalSync set, every Set/Delete fsyncs the WAL before returning.
Without it, durability is at the operating system's discretion, though
write ordering is preserved either way.
*/
package ridgekv
