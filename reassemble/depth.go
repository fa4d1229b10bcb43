package reassemble

// DepthGate implements C4 (spec.md §4.4): once a direction has delivered
// reassembly_depth bytes past its initial sequence number, further bytes on
// that direction are rejected outright rather than buffered, bounding
// per-stream memory against a hostile peer that keeps a connection open
// and simply never stops sending.
type DepthGate struct {
	// Depth is reassembly_depth in bytes. Zero disables the gate: every
	// byte is accepted regardless of how far the stream has run.
	Depth uint32
}

// depthLimitSeq returns the first sequence number the gate will reject,
// i.e. isn + Depth. Only meaningful when Depth != 0.
func (g DepthGate) depthLimitSeq(isn Sequence) Sequence {
	return isn.Add(g.Depth)
}

// Admit applies the gate to an inbound range [seq, seq+n). It reports the
// portion of the range that should be handed to the Segment List — which
// may be a truncated prefix of the original range — and whether the
// stream should be marked DEPTH_REACHED as a result of this call.
//
// Per spec.md §4.4: if the gate is disabled, admit everything. Otherwise,
// if the stream has already consumed the entire depth budget, reject the
// whole range and mark DEPTH_REACHED. Otherwise admit the portion that
// falls within [isn, isn+Depth), truncating any tail that would cross the
// boundary, and mark DEPTH_REACHED only when this call's range crosses the
// boundary; a range ending exactly at isn+Depth is admitted whole and does
// not mark it.
func (g DepthGate) Admit(isn, seq Sequence, n int) (admitted int, reachedNow bool) {
	if g.Depth == 0 || n == 0 {
		return n, false
	}

	limit := g.depthLimitSeq(isn)

	if SeqGEQ(seq, limit) {
		return 0, true
	}

	end := seq.Add(uint32(n))

	if SeqLEQ(end, limit) {
		return n, false
	}

	truncated := int(Distance(seq, limit))

	return truncated, true
}
