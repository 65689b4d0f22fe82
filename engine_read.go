package ridgekv

import (
	"bytes"
	"fmt"

	"github.com/aalhour/ridgekv/internal/sstable"
)

// KV is one (key, value) pair returned by Scan.
type KV struct {
	Key   []byte
	Value []byte
}

// Get returns key's current live value. found is false both when key has
// never been written and when its most recent write was a Delete.
func (e *Engine) Get(key []byte) (value []byte, found bool, err error) {
	if e.closed {
		return nil, false, ErrClosed
	}
	if len(key) == 0 {
		return nil, false, ErrKeyEmpty
	}

	if entry, ok := e.mem.GetEntry(key); ok {
		return entry.Value, entry.Live(), nil
	}

	for _, r := range e.l0.readers {
		hit, present, value, err := getFromReader(r, key)
		if err != nil {
			return nil, false, err
		}
		if hit {
			return value, present, nil
		}
	}
	for _, r := range e.l1.readers {
		hit, present, value, err := getFromReader(r, key)
		if err != nil {
			return nil, false, err
		}
		if hit {
			return value, present, nil
		}
	}

	return nil, false, nil
}

// getFromReader looks key up in r. hit reports whether key has any record
// at all in r (live or tombstoned) — a tombstone hit must stop the search
// at higher levels rather than fall through, so it is reported distinctly
// from "absent".
func getFromReader(r *sstable.Reader, key []byte) (hit, present bool, value []byte, err error) {
	e, err := r.Get(key)
	if err != nil {
		return false, false, nil, fmt.Errorf("ridgekv: get %q: %w", key, err)
	}
	if e == nil {
		return false, false, nil, nil
	}
	return true, e.Present, e.Value, nil
}

// Scan returns every live key in [start, end), sorted ascending, with no
// duplicates. A nil/empty start means "from the beginning"; a nil/empty end
// means "to the end".
func (e *Engine) Scan(start, end []byte) ([]KV, error) {
	if e.closed {
		return nil, ErrClosed
	}

	type winner struct {
		seq     uint64
		present bool
		value   []byte
	}
	best := make(map[string]winner)

	consider := func(key []byte, seq uint64, present bool, value []byte) {
		if !inRange(key, start, end) {
			return
		}
		k := string(key)
		if cur, ok := best[k]; ok && cur.seq >= seq {
			return
		}
		best[k] = winner{seq: seq, present: present, value: value}
	}

	for _, kv := range e.mem.Iter() {
		consider(kv.Key, kv.Entry.Seq, kv.Entry.Live(), kv.Entry.Value)
	}

	for _, lvl := range [][]*sstable.Reader{e.l0.readers, e.l1.readers} {
		for _, r := range lvl {
			for _, key := range r.Keys() {
				if !inRange(key, start, end) {
					continue
				}
				ent, err := r.Get(key)
				if err != nil {
					return nil, fmt.Errorf("ridgekv: scan: %w", err)
				}
				if ent == nil {
					continue
				}
				consider(ent.Key, ent.Seq, ent.Present, ent.Value)
			}
		}
	}

	out := make([]KV, 0, len(best))
	for k, w := range best {
		if !w.present {
			continue
		}
		out = append(out, KV{Key: []byte(k), Value: w.value})
	}
	sortKVs(out)
	return out, nil
}

func inRange(key, start, end []byte) bool {
	if len(start) > 0 && bytes.Compare(key, start) < 0 {
		return false
	}
	if len(end) > 0 && bytes.Compare(key, end) >= 0 {
		return false
	}
	return true
}

func sortKVs(kvs []KV) {
	// Plain insertion sort; the winners are collected by ranging over a
	// map, so they arrive in no particular order.
	for i := 1; i < len(kvs); i++ {
		for j := i; j > 0 && bytes.Compare(kvs[j-1].Key, kvs[j].Key) > 0; j-- {
			kvs[j-1], kvs[j] = kvs[j], kvs[j-1]
		}
	}
}
