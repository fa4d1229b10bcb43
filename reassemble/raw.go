package reassemble

import "go.uber.org/zap"

// StreamMsg is one chunk of raw-matcher output (spec.md §4.6, §6.3): a
// contiguous, gap-tolerant run of bytes queued for the raw pattern
// matcher, independent of whatever the App-Layer Reassembler has or
// hasn't delivered for the same bytes.
type StreamMsg struct {
	Seq  Sequence
	Data []byte
	Dir  Direction

	// Start marks the very first StreamMsg ever emitted for this
	// direction (RawBaseSeq was still at ISN when it was built).
	Start bool

	// GapSize is the number of bytes skipped immediately before this
	// message's Seq — zero when it continues contiguously from the
	// previous message delivered for this direction.
	GapSize uint32

	// FlowRef identifies the session this message belongs to, so a
	// single-consumer matcher goroutine draining several sessions' queues
	// can tell them apart (spec.md §6.3 flow_ref).
	FlowRef *Session
}

// streamMsgQueue is a small FIFO of pending StreamMsg values, consulted by
// the Pruner to know the oldest sequence number still owed to a consumer
// (spec.md §4.7).
type streamMsgQueue struct {
	msgs []*StreamMsg
}

func (q *streamMsgQueue) push(m *StreamMsg) {
	q.msgs = append(q.msgs, m)
}

// oldest returns the sequence number of the earliest queued message, and
// false if the queue is empty.
func (q *streamMsgQueue) oldest() (Sequence, bool) {
	if len(q.msgs) == 0 {
		return 0, false
	}

	return q.msgs[0].Seq, true
}

func (q *streamMsgQueue) drain() []*StreamMsg {
	out := q.msgs
	q.msgs = nil

	return out
}

// rawWindowFactor scales the per-direction chunk size into the sliding
// window's permissible lag (spec.md §4.6: "left_edge = right_edge -
// chunk_size"). Using chunk_size directly as that lag bound would force
// RawBaseSeq to jump forward on almost every call — chunk_size also names
// the per-message split size, which is typically far smaller than a
// realistic backlog budget. Scaling it up keeps the window doing its
// documented job (bounding pathological lag) without fighting the
// per-message chunking on ordinary, modestly-buffered streams. See
// DESIGN.md.
const rawWindowFactor = 64

// rawCheckLimit implements spec.md §4.6's ra_raw_check_limit: an
// ACK-driven C6 pass only fires when one of these holds. ModeInline
// bypasses it entirely, since the Inline variant is defined to trigger on
// every data packet rather than being gated at all.
func rawCheckLimit(sess *Session, s *Stream, dir Direction, minChunk int) bool {
	if sess.Flags&FlagTriggerRawReassembly != 0 {
		return true
	}

	if sess.State >= StateTimeWait {
		return true
	}

	if s.Flags&FlagCloseInitiated != 0 {
		return true
	}

	opp := sess.StreamFor(dir.Opposite())
	if minChunk > 0 && int(Distance(opp.LastAck, opp.NextSeq)) > minChunk {
		return true
	}

	return false
}

// RawReassembler is C6 (spec.md §4.6): delivers bytes to the raw pattern
// matcher in a fixed-size sliding window, tolerating gaps by skipping
// straight to the next stored segment instead of stalling like C5. Window
// size is configured per direction (reassembly_toserver_chunk_size /
// reassembly_toclient_chunk_size).
type RawReassembler struct {
	log *zap.Logger
}

// NewRawReassembler constructs a C6 instance.
func NewRawReassembler(log *zap.Logger) *RawReassembler {
	if log == nil {
		log = zap.NewNop()
	}

	return &RawReassembler{log: log}
}

// Run advances raw-matcher delivery on s, splitting each gap-free run of
// available bytes into StreamMsg values of at most the configured chunk
// size and appending them to queue. It returns the number of bytes queued.
//
// The sliding window (spec.md §4.6) is anchored on the current packet's
// position — NextSeq already tracks that, since OnDataSegment advances it
// on every insert. right_edge is NextSeq; left_edge is right_edge minus
// the window span, shifted right to the list head (or RawBaseSeq,
// whichever is further along) if the naive left_edge would sit before
// data actually buffered. When left_edge lands ahead of RawBaseSeq, the
// backlog between them is permanently skipped rather than delivered —
// the matcher accepts bounded lag, not unbounded growth.
//
// Unlike AppLayerReassembler.Run, an ordinary mid-stream gap does not stop
// delivery: Run jumps RawBaseSeq forward to the next stored segment's
// start and continues, recording the skipped byte count on the resulting
// message's GapSize.
func (r *RawReassembler) Run(sess *Session, s *Stream, dir Direction, mode Mode, queue *streamMsgQueue) int {
	if s.Flags&FlagNoReassembly != 0 {
		return 0
	}

	chunkSize := s.rawChunkSize
	if chunkSize <= 0 {
		chunkSize = 4096
	}

	if mode != ModeInline && !rawCheckLimit(sess, s, dir, chunkSize) {
		return 0
	}

	firstMsg := s.RawBaseSeq == s.ISN

	rightEdge := s.NextSeq
	leftEdge := rightEdge.Sub(uint32(chunkSize) * rawWindowFactor)

	if head := s.List.Head(); head != nil && SeqLT(leftEdge, head.Seq) {
		leftEdge = head.Seq
	}

	if SeqLT(leftEdge, s.RawBaseSeq) {
		leftEdge = s.RawBaseSeq
	}

	var shiftGap uint32
	if SeqGT(leftEdge, s.RawBaseSeq) {
		shiftGap = Distance(s.RawBaseSeq, leftEdge)
		s.RawBaseSeq = leftEdge
	}

	total := 0

	for seg := s.List.Head(); seg != nil; seg = seg.next {
		if !inlineGate(mode, seg, s) {
			break
		}

		if SeqLEQ(seg.End(), s.RawBaseSeq) {
			continue
		}

		var gapSize uint32
		if SeqGT(seg.Seq, s.RawBaseSeq) {
			gapSize = Distance(s.RawBaseSeq, seg.Seq)
			s.RawBaseSeq = seg.Seq
		}

		if shiftGap > 0 {
			gapSize += shiftGap
			shiftGap = 0
		}

		off := Distance(seg.Seq, s.RawBaseSeq)

		avail := seg.Payload
		if off > 0 {
			avail = avail[off:]
		}

		for len(avail) > 0 {
			n := len(avail)
			if n > chunkSize {
				n = chunkSize
			}

			msg := &StreamMsg{
				Seq:     s.RawBaseSeq,
				Data:    append([]byte(nil), avail[:n]...),
				Dir:     dir,
				Start:   firstMsg,
				GapSize: gapSize,
				FlowRef: sess,
			}
			queue.push(msg)

			firstMsg = false
			gapSize = 0

			total += n
			s.RawBaseSeq = s.RawBaseSeq.Add(uint32(n))
			avail = avail[n:]
		}

		seg.Flags |= SegRawProcessed
	}

	return total
}
