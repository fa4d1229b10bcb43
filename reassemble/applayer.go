package reassemble

import "go.uber.org/zap"

// DataFlags composes the delivery-context bits handed to the app-layer
// parser alongside each run of bytes (spec.md §6.2's handle_tcp_data
// flags: START, EOF, TOSERVER, TOCLIENT, GAP, DEPTH).
type DataFlags uint8

const (
	// DataStart marks deliveries made before app-proto detection has
	// completed on the session (spec.md §4.5 "App-proto detection gate").
	DataStart DataFlags = 1 << iota

	// DataEOF marks the final delivery for a direction once the
	// connection state has moved past ESTABLISHED.
	DataEOF

	// DataToServer / DataToClient name the direction the bytes travelled
	// in, carried as flag bits (rather than forcing every caller to also
	// thread a Direction) so a parser can test composed flags with one
	// mask.
	DataToServer
	DataToClient

	// DataGap marks a zero-length delivery announcing a permanent gap.
	DataGap

	// DataDepth marks deliveries made after reassembly_depth has been
	// reached on this direction (spec.md §4.4).
	DataDepth
)

// appChunkSize is the fixed accumulator size spec.md §4.5 hands the
// app-layer parser: bytes consumed from segments are copied in here and
// flushed in full chunks, plus whatever remains when Run reaches a gap or
// the end of the stored data, rather than handed over raw per segment.
const appChunkSize = 4096

// AppLayerReassembler is C5 (spec.md §4.5): walks a Stream's Segment List
// from ra_app_base_seq forward, accumulating contiguous bytes into a
// fixed-size buffer and handing the app-layer parser full (or final
// partial) chunks, stopping the instant it finds a gap it cannot yet
// classify as permanent.
type AppLayerReassembler struct {
	log *zap.Logger
}

// NewAppLayerReassembler constructs a C5 instance.
func NewAppLayerReassembler(log *zap.Logger) *AppLayerReassembler {
	if log == nil {
		log = zap.NewNop()
	}

	return &AppLayerReassembler{log: log}
}

// AppDataFunc receives a run of bytes for the app-layer parser, tagged
// with the flags describing its place in the stream (spec.md §6.2). data
// is nil for the zero-length EOF/GAP announcements.
type AppDataFunc func(dir Direction, data []byte, flags DataFlags)

// GapFunc is invoked once, the first time a *permanent* gap is declared on
// a direction; afterwards FlagGap is set and Run becomes a no-op for that
// direction until the caller clears it (which spec.md does not provide a
// path for — a gap is permanent for the stream's lifetime, per §4.5). A
// gap that is not yet permanent does not call this — Run simply stops and
// leaves the segments in place for a later call to resolve.
type GapFunc func(dir Direction)

// dirFlag returns the DataToServer/DataToClient bit for dir.
func dirFlag(dir Direction) DataFlags {
	if dir == ToServer {
		return DataToServer
	}

	return DataToClient
}

// Run advances app-layer delivery on s as far as contiguous stored data
// allows, invoking deliver for each accumulated chunk and for a permanent
// gap's announcement. It returns the number of bytes consumed from
// segments (which may run ahead of what has actually been flushed to
// deliver, since up to appChunkSize-1 bytes can stay in the accumulator
// when the inline gate stops the walk).
//
// sess carries the connection-wide state the gap-permanence rule and the
// flag composition need: last_ack/window live on s itself, but the TCP
// connection state and the app-proto-detection-completed flag are
// session-wide, not per-direction.
func (r *AppLayerReassembler) Run(sess *Session, s *Stream, dir Direction, mode Mode, sink EventSink, deliver AppDataFunc, onGap GapFunc) int {
	sink = sinkOrDiscard(sink)

	if s.Flags&FlagGap != 0 {
		return 0
	}

	detecting := sess.Flags&FlagAppProtoDetectionCompleted == 0

	// App-proto detection gate (spec.md §4.5): ra_app_base_seq stays
	// pinned at isn while detection is pending. pendingAppSeq tracks the
	// real walking progress in the meantime, so once detection completes
	// AppBaseSeq can jump straight to it instead of re-delivering
	// everything pendingAppSeq already consumed.
	if !detecting && SeqLT(s.AppBaseSeq, s.pendingAppSeq) {
		s.AppBaseSeq = s.pendingAppSeq
	}

	cursor := &s.AppBaseSeq
	if detecting {
		cursor = &s.pendingAppSeq
	}

	if s.List.Head() == nil {
		if sess.State > StateEstablished {
			deliver(dir, nil, DataEOF|dirFlag(dir))
		}

		return 0
	}

	flushFlags := func(closing bool) DataFlags {
		flags := dirFlag(dir)
		if detecting {
			flags |= DataStart
		}
		if s.Flags&FlagDepthReached != 0 {
			flags |= DataDepth
		}
		if closing {
			flags |= DataEOF
		}

		return flags
	}

	flushChunk := func(closing bool) {
		if len(s.chunk) == 0 && !closing {
			return
		}

		deliver(dir, s.chunk, flushFlags(closing))
		s.chunk = s.chunk[:0]
	}

	total := 0
	reachedEnd := true

	for seg := s.List.Head(); seg != nil; seg = seg.next {
		if !inlineGate(mode, seg, s) {
			reachedEnd = false
			break
		}

		if SeqLEQ(seg.End(), *cursor) {
			continue
		}

		if SeqGT(seg.Seq, *cursor) {
			// Gap: flush whatever is already accumulated as an ordinary
			// chunk before deciding whether the gap is permanent.
			flushChunk(false)

			permanent := SeqGT(s.LastAck.Sub(s.Window), *cursor) || sess.State > StateEstablished
			if !permanent {
				// Wait: leave segments in place. A later call — after an
				// out-of-order packet fills the hole — may close it and
				// deliver contiguously from here.
				reachedEnd = false
				break
			}

			*cursor = seg.Seq.Sub(1)
			s.Flags |= FlagGap
			sink.RaiseEvent(EventSeqGap)
			deliver(dir, nil, dirFlag(dir)|DataGap)

			if onGap != nil {
				onGap(dir)
			}

			return total
		}

		// seg.Seq <= *cursor < seg.End(): consume the not-yet-seen tail.
		off := Distance(seg.Seq, *cursor)

		chunk := seg.Payload
		if off > 0 {
			chunk = chunk[off:]
		}

		*cursor = seg.End()
		seg.Flags |= SegAppLayerProcessed

		if len(chunk) > 0 {
			s.chunk = append(s.chunk, chunk...)
			total += len(chunk)
		}

		for len(s.chunk) >= appChunkSize {
			piece := append([]byte(nil), s.chunk[:appChunkSize]...)
			s.chunk = s.chunk[appChunkSize:]
			deliver(dir, piece, flushFlags(false))
		}
	}

	if reachedEnd {
		flushChunk(sess.State > StateEstablished)
	}

	return total
}
