package reassemble

// Pruner is C7 (spec.md §4.7): reclaims segments from the head of a
// Stream's Segment List once they are no longer needed by any consumer,
// returning them to the Pool.
//
// A segment at the head of the list is eligible for reclamation once its
// entire byte range is behind every cursor that still needs it: the
// app-layer cursor, the raw-matcher cursor, and the oldest sequence number
// still sitting unread in that direction's raw-matcher output queue (a
// segment's bytes may have been copied into a StreamMsg already, but the
// Pruner is conservative and also waits for that queue to drain past the
// segment's end, matching spec.md's "third bullet" rule so a slow raw
// consumer cannot be handed a StreamMsg whose backing segment has already
// been recycled into a different stream's data).
type Pruner struct {
	pool *Pool
}

// NewPruner constructs a Pruner returning segments to pool.
func NewPruner(pool *Pool) *Pruner {
	return &Pruner{pool: pool}
}

// Prune reclaims as many leading segments of s.List as are behind every
// relevant cursor, returning the count reclaimed.
func (p *Pruner) Prune(s *Stream, outQueue *streamMsgQueue) int {
	safe := SeqMin(s.AppBaseSeq, s.RawBaseSeq)

	if outQueue != nil {
		if oldest, ok := outQueue.oldest(); ok {
			safe = SeqMin(safe, oldest)
		}
	}

	n := 0

	for {
		seg := s.List.Head()
		if seg == nil || !SeqLEQ(seg.End(), safe) {
			return n
		}

		s.List.PopFront()
		p.pool.Put(seg)
		n++
	}
}
