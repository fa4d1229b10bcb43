package reassemble

import (
	"bytes"

	"go.uber.org/zap"
)

// SegList is the C2 Segment List: a per-direction doubly-linked list of
// Segments ordered by ascending sequence number modulo wrap (spec.md §3,
// §4.2).
type SegList struct {
	head, tail *Segment
	length     int
}

// Len returns the number of segments currently retained.
func (l *SegList) Len() int { return l.length }

// Head returns the first segment in sequence order, or nil if the list is
// empty.
func (l *SegList) Head() *Segment { return l.head }

// Tail returns the last segment in sequence order, or nil if empty.
func (l *SegList) Tail() *Segment { return l.tail }

// PopFront unlinks and returns the head segment. It does not return it to
// a Pool — the caller (the Pruner) does that.
func (l *SegList) PopFront() *Segment {
	seg := l.head
	if seg == nil {
		return nil
	}

	l.unlink(seg)

	return seg
}

func (l *SegList) linkAfter(after *Segment, seg *Segment) {
	if after == nil {
		seg.prev = nil
		seg.next = l.head

		if l.head != nil {
			l.head.prev = seg
		} else {
			l.tail = seg
		}

		l.head = seg
	} else {
		seg.prev = after
		seg.next = after.next

		if after.next != nil {
			after.next.prev = seg
		} else {
			l.tail = seg
		}

		after.next = seg
	}

	l.length++
}

func (l *SegList) unlink(seg *Segment) {
	if seg.prev != nil {
		seg.prev.next = seg.next
	} else {
		l.head = seg.next
	}

	if seg.next != nil {
		seg.next.prev = seg.prev
	} else {
		l.tail = seg.prev
	}

	seg.next = nil
	seg.prev = nil
	l.length--
}

// isOrdered reports whether the list's ascending-sequence invariant holds.
// OnDataSegment calls it after every insert, whatever DebugInvariants is
// set to, at the cost of an O(n) walk; Insert's fast paths and resolveOverlap are trusted to preserve order on
// every call, so a violation here means a real bug in one of them rather
// than an expected runtime condition.
func (l *SegList) isOrdered() bool {
	for seg := l.head; seg != nil && seg.next != nil; seg = seg.next {
		if SeqGT(seg.End(), seg.next.Seq) {
			return false
		}
	}

	return true
}

// replace swaps old for neu at the same list position, without touching
// old's own next/prev (the caller returns old to the pool separately).
func (l *SegList) replace(neu, old *Segment) {
	neu.prev = old.prev
	neu.next = old.next

	if old.prev != nil {
		old.prev.next = neu
	} else {
		l.head = neu
	}

	if old.next != nil {
		old.next.prev = neu
	} else {
		l.tail = neu
	}
}

// inboundData is a not-yet-allocated run of bytes awaiting insertion: the
// byte-level payload of a packet, still just a Go slice, before the
// Overlap Resolver decides how much of it (and whose bytes, where it
// overlaps something already stored) survives as a pool Segment.
type inboundData struct {
	Seq  Sequence
	Data []byte
}

// End returns the exclusive end of the inbound range.
func (d inboundData) End() Sequence { return d.Seq.Add(uint32(len(d.Data))) }

// Insert is C2's entry point, delegating overlap reconciliation to the
// Overlap Resolver (C3) when the fast paths don't apply. rabase is the
// relevant consumer cursor: segments wholly before it are stale
// retransmissions and are rejected per spec.md §4.3's fail mode.
//
// Returns the number of bytes that ended up retained from in (which may
// be less than len(in.Data) if pool exhaustion dropped a fabricated
// replacement partway through). A range wholly before rabase returns -1
// with ErrBeforeBaseSeq; pool exhaustion returns ErrNoSegment together
// with the count of bytes retained before the failed allocation.
func (l *SegList) Insert(in inboundData, rabase Sequence, pool *Pool, policy OSPolicy, checkDiff bool, sink EventSink, log *zap.Logger) (int, error) {
	sink = sinkOrDiscard(sink)
	if log == nil {
		log = zap.NewNop()
	}

	if len(in.Data) == 0 {
		return 0, nil
	}

	if SeqLEQ(in.End(), rabase) {
		sink.RaiseEvent(EventSegmentBeforeBaseSeq)
		return -1, ErrBeforeBaseSeq
	}

	// Fast path: empty list.
	if l.head == nil {
		return l.insertStandalone(nil, in, pool, sink, log)
	}

	// Fast path: strictly after the current tail.
	if SeqGEQ(in.Seq, l.tail.End()) {
		return l.insertStandalone(l.tail, in, pool, sink, log)
	}

	// General case: find the first existing segment L whose end is at or
	// past in's start, and resolve overlap from there.
	var prev *Segment

	cur := l.head
	for cur != nil && SeqLT(cur.End(), in.Seq) {
		prev = cur
		cur = cur.next
	}

	return l.resolveOverlap(prev, cur, in, rabase, pool, policy, checkDiff, sink, log)
}

// insertStandalone allocates a pool segment for in verbatim (no overlap)
// and links it immediately after prev (nil meaning "at the head").
func (l *SegList) insertStandalone(prev *Segment, in inboundData, pool *Pool, sink EventSink, log *zap.Logger) (int, error) {
	seg, ok := pool.Get(len(in.Data))
	if !ok {
		sink.RaiseEvent(EventNoSegment)
		log.Debug("dropping segment, pool exhausted", zap.Uint32("seq", uint32(in.Seq)), zap.Int("len", len(in.Data)))

		return 0, ErrNoSegment
	}

	seg.Seq = in.Seq
	seg.PayloadLen = uint16(len(in.Data))
	copy(seg.buf[:len(in.Data)], in.Data)
	seg.Payload = seg.buf[:len(in.Data)]

	l.linkAfter(prev, seg)

	return len(in.Data), nil
}

// resolveOverlap is the C3 Overlap Resolver's core loop. It walks forward
// from cur, consuming in's range: any leading portion of in that falls in
// a gap before cur is inserted standalone, and any portion overlapping cur
// is merged into a freshly fabricated replacement segment per the OS
// policy, extending through cur's successors as long as in's tail still
// reaches past the fabricated segment's end ("handle_beyond" in spec.md
// §4.3 step 1).
func (l *SegList) resolveOverlap(prev, cur *Segment, in inboundData, rabase Sequence, pool *Pool, policy OSPolicy, checkDiff bool, sink EventSink, log *zap.Logger) (int, error) {
	total := 0

	for {
		if len(in.Data) == 0 {
			return total, nil
		}

		if cur == nil || SeqLEQ(in.End(), cur.Seq) {
			n, err := l.insertStandalone(prev, in, pool, sink, log)
			return total + n, err
		}

		if SeqLT(in.Seq, cur.Seq) {
			// Leading non-overlapping portion: insert it standalone
			// ahead of cur, then continue with the overlapping remainder.
			leadLen := int(Distance(in.Seq, cur.Seq))
			lead := inboundData{Seq: in.Seq, Data: in.Data[:leadLen]}

			n, err := l.insertStandalone(prev, lead, pool, sink, log)
			total += n

			if err != nil {
				return total, err
			}

			// the segment just inserted is now cur.prev; advance prev to it.
			prev = cur.prev

			in = inboundData{Seq: cur.Seq, Data: in.Data[leadLen:]}

			continue
		}

		// in.Seq >= cur.Seq and in overlaps cur: fabricate the merged
		// replacement.
		merged, diff := mergeOverlap(cur, in, policy, checkDiff)

		if diff {
			sink.RaiseEvent(EventOverlapDifferentData)
		}

		newSeg, ok := pool.Get(len(merged))
		if !ok {
			sink.RaiseEvent(EventNoSegment)
			log.Debug("dropping segment during overlap fabrication, pool exhausted",
				zap.Uint32("seq", uint32(cur.Seq)), zap.Int("len", len(merged)))

			return total, ErrNoSegment
		}

		newSeg.Seq = cur.Seq
		newSeg.PayloadLen = uint16(len(merged))
		copy(newSeg.buf[:len(merged)], merged)
		newSeg.Payload = newSeg.buf[:len(merged)]
		newSeg.Flags = cur.Flags

		next := cur.next
		l.replace(newSeg, cur)
		pool.Put(cur)

		consumed := int(Distance(in.Seq, SeqMin(in.End(), newSeg.End())))
		total += consumed

		if SeqLEQ(in.End(), newSeg.End()) {
			return total, nil
		}

		// in's tail still extends past the fabricated segment: continue
		// against the next list member.
		remainderStart := newSeg.End()
		in = inboundData{Seq: remainderStart, Data: in.Data[int(Distance(in.Seq, remainderStart)):]}
		prev = newSeg
		cur = next
	}
}

// mergeOverlap fabricates the union of cur's stored bytes and in's bytes:
// it copies cur's bytes verbatim, then overlays the overlap region with
// whichever side the OS policy selects, then appends any portion of in
// that extends beyond cur's end outright (not an overlap, pure
// extension), stopping at the start of cur's successor so the rest of in
// is left for resolveOverlap to merge into that successor. It reports whether the overlap region's bytes actually
// differed between old and new, for REASSEMBLY_OVERLAP_DIFFERENT_DATA.
func mergeOverlap(cur *Segment, in inboundData, policy OSPolicy, checkDiff bool) (merged []byte, diff bool) {
	mergedEnd := SeqMax(cur.End(), in.End())
	if cur.next != nil && SeqGT(mergedEnd, cur.next.Seq) {
		mergedEnd = SeqMax(cur.End(), cur.next.Seq)
	}
	mergedLen := int(Distance(cur.Seq, mergedEnd))

	merged = make([]byte, mergedLen)
	copy(merged, cur.Payload)

	overlapStart := SeqMax(cur.Seq, in.Seq)
	overlapEnd := SeqMin(cur.End(), in.End())

	if SeqLT(overlapStart, overlapEnd) {
		oldOff := int(Distance(cur.Seq, overlapStart))
		oldEndOff := int(Distance(cur.Seq, overlapEnd))
		newOff := int(Distance(in.Seq, overlapStart))
		newEndOff := int(Distance(in.Seq, overlapEnd))

		oldSlice := cur.Payload[oldOff:oldEndOff]
		newSlice := in.Data[newOff:newEndOff]

		if checkDiff && !bytes.Equal(oldSlice, newSlice) {
			diff = true
		}

		start := classifyStart(in.Seq, cur.Seq)
		end := classifyEnd(in.End(), cur.End())

		if keepNewBytes(policy, start, end) {
			copy(merged[oldOff:oldEndOff], newSlice)
		}
	}

	if SeqGT(in.End(), cur.End()) {
		extOff := int(Distance(cur.Seq, cur.End()))
		newExtOff := int(Distance(in.Seq, cur.End()))
		copy(merged[extOff:], in.Data[newExtOff:])
	}

	return merged, diff
}
