package reassemble

// Mode selects between IDS (passive, gap-tolerant) and inline (IPS,
// in-line blocking) delivery semantics for a Session (spec.md §4.6
// "Inline variant").
type Mode int

const (
	// ModeIDS is the default passive mode: C5 delivers whatever is
	// contiguous from the base sequence forward and otherwise waits, while
	// C6 skips over gaps; bytes already on the wire cannot be recalled.
	ModeIDS Mode = iota

	// ModeInline additionally requires that a segment be acknowledged by
	// the receiving peer before either reassembler advances past it — an
	// inline deployment sits in the forwarding path and can still choose
	// not to forward a segment the detection engine flags, so delivery
	// must not run ahead of what has actually left the wire.
	ModeInline
)

// inlineGate is the window-placement half of the Inline variant (spec.md
// §4.6): which stored segments are eligible once reached. The trigger-mode
// half — running on every data packet instead of waiting for an ACK — is
// Assembler.OnInlineData, called against dir's own stream rather than the
// opposite one.
//
// inlineGate reports whether a stored segment is eligible for delivery
// under mode, given the LastAck recorded on the segment's own Stream (the
// peer's acknowledgement of that stream's bytes). In IDS mode
// every stored segment is eligible (ack has already happened by
// definition, the packet is a copy off a tap). In inline mode a segment
// is eligible only once its end is at or before the peer's last
// acknowledged sequence, i.e. the peer has actually taken delivery — both
// the App-Layer Reassembler and the Raw Reassembler call this through the
// same check rather than each re-implementing it, per spec.md §9 ("Express
// once parameterized by the OS-policy and inline/IDS mode tables; do not
// duplicate the traversal logic").
func inlineGate(mode Mode, seg *Segment, ackStream *Stream) bool {
	if mode == ModeIDS {
		return true
	}

	return SeqLEQ(seg.End(), ackStream.LastAck)
}
