package reassemble

// Config bundles the per-engine parameters spec.md §6 exposes as
// configuration keys rather than per-call arguments.
type Config struct {
	// Depth is the reassembly_depth gate (C4), applied identically on
	// both directions of every session. Zero disables it.
	Depth uint32

	// CheckOverlapDifferentData enables the REASSEMBLY_OVERLAP_DIFFERENT_DATA
	// comparison in C3's overlap resolver (spec.md §4.3 step 3). Off by
	// default since it costs a byte-compare on every overlapping segment.
	CheckOverlapDifferentData bool

	// ToServerChunkSize / ToClientChunkSize are the raw-matcher sliding
	// window sizes per direction (spec.md §4.6). Zero picks the package
	// default (4096).
	ToServerChunkSize int
	ToClientChunkSize int
}

// Assembler is the top-level entry point implementing spec.md §6.1. It
// holds only engine-wide configuration; all allocation happens through
// the caller-supplied ThreadCtx so that concurrent workers never share a
// Pool.
type Assembler struct {
	cfg Config
}

// NewAssembler constructs an Assembler from cfg.
func NewAssembler(cfg Config) *Assembler {
	return &Assembler{cfg: cfg}
}

// applyChunkSizes stamps the configured raw-matcher window sizes onto a
// freshly created Session's two Streams.
func (a *Assembler) applyChunkSizes(sess *Session) {
	sess.Client.rawChunkSize = a.cfg.ToServerChunkSize
	sess.Server.rawChunkSize = a.cfg.ToClientChunkSize
}

// NewSession constructs a Session with isn recorded on both directions
// and the configured chunk sizes applied. The caller is responsible for
// placing the Session under whatever per-flow exclusive lock it already
// holds; the Assembler itself never locks (spec.md §5: "locking is the
// caller's responsibility").
func (a *Assembler) NewSession(clientISN, serverISN Sequence, osPolicy OSPolicy) *Session {
	sess := &Session{}

	sess.Client.ISN = clientISN
	sess.Client.NextSeq = clientISN
	sess.Client.AppBaseSeq = clientISN
	sess.Client.RawBaseSeq = clientISN
	sess.Client.pendingAppSeq = clientISN
	sess.Client.OSPolicy = osPolicy
	sess.Client.Direction = ToServer

	sess.Server.ISN = serverISN
	sess.Server.NextSeq = serverISN
	sess.Server.AppBaseSeq = serverISN
	sess.Server.RawBaseSeq = serverISN
	sess.Server.pendingAppSeq = serverISN
	sess.Server.OSPolicy = osPolicy
	sess.Server.Direction = ToClient

	sess.outQueues[ToServer] = &streamMsgQueue{}
	sess.outQueues[ToClient] = &streamMsgQueue{}

	a.applyChunkSizes(sess)

	return sess
}

// OnDataSegment is C1-C4's entry point: it runs the depth gate, then
// inserts the (possibly truncated) bytes into the direction's Segment
// List via C2/C3. It does not itself advance either consumer cursor —
// delivery happens in OnAck, matching the ACK-driven flow of spec.md
// §6.1.
func (a *Assembler) OnDataSegment(tctx *ThreadCtx, sess *Session, dir Direction, seq Sequence, payload []byte, sink EventSink) (int, error) {
	if len(payload) == 0 {
		return 0, nil
	}

	s := sess.StreamFor(dir)

	if s.Flags&FlagNoReassembly != 0 {
		return 0, nil
	}

	if s.Flags&FlagDepthReached != 0 {
		return 0, ErrDepthReached
	}

	n, reached := tctx.Depth.Admit(s.ISN, seq, len(payload))
	if reached {
		s.Flags |= FlagDepthReached
		tctx.Metrics.observeDepthReached(dir)
	}

	if n == 0 {
		return 0, nil
	}

	in := inboundData{Seq: seq, Data: payload[:n]}

	wrapped := metricsSink{metrics: tctx.Metrics, next: sink}

	stored, err := s.List.Insert(in, s.RaBaseSeq(), tctx.Pool, s.OSPolicy, a.cfg.CheckOverlapDifferentData, wrapped, tctx.Log)

	if SeqGT(seq.Add(uint32(n)), s.NextSeq) {
		s.NextSeq = seq.Add(uint32(n))
	}

	// Checked unconditionally, not just under DebugInvariants: spec.md §7
	// requires release builds to still detect and log a programming
	// invariant violation, just not abort on it. dumpInvariant itself
	// decides debug-vs-release behavior.
	if !s.List.isOrdered() {
		dumpInvariant(tctx.Log, "segment list out of order after insert", s)
		return stored, ErrInvariant
	}

	return stored, err
}

// OnAck is the ACK-driven delivery entry point (spec.md §6.1): an ACK
// observed travelling in dir confirms bytes the peer sent in the
// opposite direction, so it is that opposite Stream's consumers — the
// App-Layer Reassembler and the Raw Reassembler — that get a chance to
// advance. window is the TCP receive window advertised alongside the ACK,
// needed by C5's gap-permanence predicate (spec.md §4.5: "SEQ_GT(last_ack
// - window, ra_base_seq)"). Newly freed leading segments are then handed
// to the Pruner.
func (a *Assembler) OnAck(tctx *ThreadCtx, sess *Session, dir Direction, ack Sequence, window uint32, sink EventSink, deliver AppDataFunc, onGap GapFunc) {
	opp := sess.Opposite(dir)
	oppDir := dir.Opposite()

	// ack arrived on a packet travelling in dir, so it acknowledges bytes
	// the opposite direction sent — it is opp.LastAck/opp.Window that
	// advance.
	if SeqGT(ack, opp.LastAck) {
		opp.LastAck = ack
	}
	opp.Window = window

	wrapped := metricsSink{metrics: tctx.Metrics, next: sink}

	appN := tctx.AppRA.Run(sess, opp, oppDir, sess.Mode, wrapped, deliver, func(d Direction) {
		tctx.Metrics.observeGap(d)
		if onGap != nil {
			onGap(d)
		}
	})
	tctx.Metrics.observeAppBytes(oppDir, appN)

	queue := sess.outQueues[oppDir]
	rawN := tctx.RawRA.Run(sess, opp, oppDir, sess.Mode, queue)
	tctx.Metrics.observeRawBytes(oppDir, rawN)

	tctx.Pruner.Prune(opp, queue)
}

// OnTriggerRaw forces an immediate raw-reassembly pass on dir without
// waiting for the next ACK, consuming the FlagTriggerRawReassembly
// request (spec.md §4.6 "an external consumer... may request an
// out-of-band pass"). It sets FlagTriggerRawReassembly before the pass and
// clears it only after the pass runs, so rawCheckLimit — which treats
// FlagTriggerRawReassembly as one of the conditions that admits an
// ACK-driven pass too — sees it set during this call.
func (a *Assembler) OnTriggerRaw(tctx *ThreadCtx, sess *Session, dir Direction) int {
	s := sess.StreamFor(dir)
	queue := sess.outQueues[dir]

	sess.Flags |= FlagTriggerRawReassembly
	n := tctx.RawRA.Run(sess, s, dir, sess.Mode, queue)
	tctx.Metrics.observeRawBytes(dir, n)

	sess.Flags &^= FlagTriggerRawReassembly

	tctx.Pruner.Prune(s, queue)

	return n
}

// OnInlineData triggers C5-Inline/C6-Inline immediately after
// OnDataSegment, for dir's own stream rather than the opposite one
// (spec.md §4.6 "Inline variant"): an in-path deployment must decide
// whether to forward the packet that just arrived instead of waiting for
// the peer's ACK, so reassembly runs against the direction that just
// received bytes, gated by inlineGate's ack-eligibility check. A no-op
// outside ModeInline.
func (a *Assembler) OnInlineData(tctx *ThreadCtx, sess *Session, dir Direction, sink EventSink, deliver AppDataFunc, onGap GapFunc) []*StreamMsg {
	if sess.Mode != ModeInline {
		return nil
	}

	s := sess.StreamFor(dir)
	wrapped := metricsSink{metrics: tctx.Metrics, next: sink}

	appN := tctx.AppRA.Run(sess, s, dir, sess.Mode, wrapped, deliver, func(d Direction) {
		tctx.Metrics.observeGap(d)
		if onGap != nil {
			onGap(d)
		}
	})
	tctx.Metrics.observeAppBytes(dir, appN)

	queue := sess.outQueues[dir]
	rawN := tctx.RawRA.Run(sess, s, dir, sess.Mode, queue)
	tctx.Metrics.observeRawBytes(dir, rawN)

	tctx.Pruner.Prune(s, queue)

	return queue.drain()
}

// DrainRaw removes and returns every StreamMsg queued for dir since the
// last drain. Callers should call this once per OnAck/OnTriggerRaw so the
// raw pattern matcher sees bytes as they become available, rather than
// only at OnSessionDestroy — the Pruner treats anything left undrained in
// the queue as still owed to the raw matcher and withholds the backing
// segments accordingly (spec.md §4.7 "third bullet").
func (a *Assembler) DrainRaw(sess *Session, dir Direction) []*StreamMsg {
	return sess.outQueues[dir].drain()
}

// OnSessionDestroy tears a Session down: it drains any still-queued
// StreamMsg values into the returned slices (so the caller can hand a
// final, possibly short, message to the raw matcher instead of silently
// dropping trailing bytes) and returns every remaining Segment to the
// pool.
func (a *Assembler) OnSessionDestroy(tctx *ThreadCtx, sess *Session) (clientMsgs, serverMsgs []*StreamMsg) {
	for _, dir := range [...]Direction{ToServer, ToClient} {
		s := sess.StreamFor(dir)

		for {
			seg := s.List.PopFront()
			if seg == nil {
				break
			}

			tctx.Pool.Put(seg)
		}
	}

	clientMsgs = sess.outQueues[ToServer].drain()
	serverMsgs = sess.outQueues[ToClient].drain()

	return clientMsgs, serverMsgs
}
