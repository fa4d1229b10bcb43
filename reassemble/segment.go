package reassemble

// SegmentFlags is a bit set carried on each Segment (spec.md §3).
type SegmentFlags uint8

const (
	// SegAppLayerProcessed marks that the App-Layer Reassembler (C5) has
	// fully consumed this segment's bytes.
	SegAppLayerProcessed SegmentFlags = 1 << iota

	// SegRawProcessed marks that the Raw Reassembler (C6) has fully
	// consumed this segment's bytes.
	SegRawProcessed
)

// Segment is an immutable-once-inserted record of bytes observed at a
// given sequence position (spec.md §3). Segments are allocated from a
// Pool and returned to it once both consumers have passed them and the
// Pruner decides they can go.
type Segment struct {
	Seq        Sequence
	PayloadLen uint16
	Flags      SegmentFlags

	// buf is the pool-class-sized backing array; Payload is buf sliced to
	// PayloadLen. buf is what goes back to the pool's free list.
	buf     []byte
	Payload []byte

	class int

	next, prev *Segment
}

// End returns the exclusive end of the segment's byte range: Seq + PayloadLen.
func (s *Segment) End() Sequence {
	return s.Seq.Add(uint32(s.PayloadLen))
}

// Contains reports whether seq falls within [s.Seq, s.End()).
func (s *Segment) Contains(seq Sequence) bool {
	return SeqGEQ(seq, s.Seq) && SeqLT(seq, s.End())
}

// reset clears a segment for return to the pool: flags, linkage, and the
// logical length (the backing buffer itself is reused verbatim, its
// content becomes irrelevant once PayloadLen is zero and Payload is
// re-sliced on the next Get).
func (s *Segment) reset() {
	s.Flags = 0
	s.next = nil
	s.prev = nil
	s.Seq = 0
	s.PayloadLen = 0
	s.Payload = s.buf[:0]
}
