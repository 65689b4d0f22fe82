package sstable

import (
	"bytes"
	"container/heap"
	"fmt"
)

// MergeIterator performs a streaming k-way merge over a set of Sources,
// each assumed to yield entries in strictly ascending key order. For every
// distinct key across all sources it yields exactly one entry — the one
// with the largest sequence number — and silently drains every other
// source's entry for that same key. It does not itself drop tombstones;
// callers decide whether a tombstone survives (scan filters it out,
// compaction's tombstone GC rule is a separate decision made by the
// engine).
//
// MergeIterator itself satisfies Source, so its output can be fed directly
// into WriteFromIterator.
type MergeIterator struct {
	h *mergeHeap
}

type mergeHeapItem struct {
	entry     Entry
	sourceIdx int
	source    Source
}

type mergeHeap []*mergeHeapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	c := bytes.Compare(h[i].entry.Key, h[j].entry.Key)
	if c != 0 {
		return c < 0
	}
	// Ties should not occur (sequence numbers are globally unique), but
	// keep the heap's total order well-defined regardless: input order.
	return h[i].sourceIdx < h[j].sourceIdx
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)        { *h = append(*h, x.(*mergeHeapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// NewMergeIterator builds a merge over sources. Each source is primed with
// its first entry immediately (I/O may happen here).
func NewMergeIterator(sources []Source) (*MergeIterator, error) {
	h := &mergeHeap{}
	heap.Init(h)
	for i, s := range sources {
		e, ok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("sstable: merge: prime source %d: %w", i, err)
		}
		if ok {
			heap.Push(h, &mergeHeapItem{entry: e, sourceIdx: i, source: s})
		}
	}
	return &MergeIterator{h: h}, nil
}

// Next implements Source: the winning entry (highest seq) for the next
// distinct key, draining every other source's entry sharing that key.
func (m *MergeIterator) Next() (Entry, bool, error) {
	if m.h.Len() == 0 {
		return Entry{}, false, nil
	}

	top := heap.Pop(m.h).(*mergeHeapItem)
	winner := top.entry
	if err := m.advance(top); err != nil {
		return Entry{}, false, err
	}

	for m.h.Len() > 0 && bytes.Equal((*m.h)[0].entry.Key, winner.Key) {
		dup := heap.Pop(m.h).(*mergeHeapItem)
		if dup.entry.Seq > winner.Seq {
			winner = dup.entry
		}
		if err := m.advance(dup); err != nil {
			return Entry{}, false, err
		}
	}

	return winner, true, nil
}

func (m *MergeIterator) advance(item *mergeHeapItem) error {
	e, ok, err := item.source.Next()
	if err != nil {
		return fmt.Errorf("sstable: merge: advance source %d: %w", item.sourceIdx, err)
	}
	if ok {
		item.entry = e
		heap.Push(m.h, item)
	}
	return nil
}
