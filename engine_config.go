package ridgekv

// Seq returns the engine's current sequence counter, the sequence number
// of the most recent successful Set or Delete (0 if none has occurred).
func (e *Engine) Seq() uint64 { return e.seq }

// L0Count returns the number of L0 SSTables.
func (e *Engine) L0Count() int { return len(e.l0.readers) }

// L1Count returns the number of L1 SSTables.
func (e *Engine) L1Count() int { return len(e.l1.readers) }

// FlushThreshold returns the currently configured flush threshold, in
// bytes, as set by Options or SetFlushThreshold.
func (e *Engine) FlushThreshold() int { return e.opts.FlushThreshold }

// L0CompactionTrigger returns the currently configured L0 compaction
// trigger count, as set by Options or SetL0CompactionTrigger.
func (e *Engine) L0CompactionTrigger() int { return e.opts.L0CompactionTrigger }

// SetFlushThreshold changes the memtable byte size at which a write
// triggers a flush. It takes effect on the next write; it does not itself
// trigger a flush.
func (e *Engine) SetFlushThreshold(bytes int) { e.opts.FlushThreshold = bytes }

// SetL0CompactionTrigger changes the L0 table count at which a write
// triggers a compaction. A value of 0 disables automatic compaction. It
// takes effect on the next write; it does not itself trigger a compaction.
func (e *Engine) SetL0CompactionTrigger(count int) { e.opts.L0CompactionTrigger = count }
