package reassemble

import "github.com/dreadl0ck/gopacket"

// StreamFlags is a per-direction bit set (spec.md §3).
type StreamFlags uint16

const (
	// FlagGap marks that a permanent gap has been declared on this
	// direction; app-layer delivery is over for its lifetime (spec.md §4.5,
	// §4.6, P6).
	FlagGap StreamFlags = 1 << iota

	// FlagDepthReached marks that reassembly_depth has been hit; further
	// segments on this direction are silently rejected (spec.md §4.4).
	FlagDepthReached

	// FlagNoReassembly disables reassembly entirely for this direction
	// (e.g. set by the caller for streams the detection engine has
	// decided to stop inspecting).
	FlagNoReassembly

	// FlagCloseInitiated marks that a FIN/RST has been observed for this
	// direction by the external TCP state tracker.
	FlagCloseInitiated
)

// SessionFlags is a bit set carried on the Session as a whole (spec.md §3).
type SessionFlags uint16

const (
	// FlagAppProtoDetectionCompleted is set by the app-layer parser once
	// it has determined the protocol; until then ra_app_base_seq stays
	// pinned at isn (spec.md §4.5 "App-proto detection gate").
	FlagAppProtoDetectionCompleted SessionFlags = 1 << iota

	// FlagTriggerRawReassembly is set by an external consumer to force an
	// immediate raw-reassembly pass; cleared on consumption (spec.md §4.6).
	FlagTriggerRawReassembly
)

// ConnState mirrors the connection-lifecycle tag maintained by the
// external TCP state-machine tracker (spec.md §3). The reassembler only
// reads this value; it never changes it.
type ConnState int

const (
	StateEstablished ConnState = iota
	StateFinWait
	StateClosing
	StateTimeWait
	StateClosed
)

// Direction names which side of a Session a Stream represents.
type Direction int

const (
	ToServer Direction = iota
	ToClient
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == ToServer {
		return "to_server"
	}

	return "to_client"
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == ToServer {
		return ToClient
	}

	return ToServer
}

// Stream holds the per-direction reassembly state (spec.md §3).
type Stream struct {
	ISN     Sequence // initial sequence number, set at SYN time
	LastAck Sequence // highest sequence acknowledged by the peer
	Window  uint32   // peer's advertised receive window
	NextSeq Sequence // one past the highest byte stored so far, in order or not

	AppBaseSeq Sequence // ra_app_base_seq: next byte to deliver to the app-layer parser (one past the last delivered)
	RawBaseSeq Sequence // ra_raw_base_seq: next byte to deliver to the raw matcher (one past the last delivered)

	// pendingAppSeq tracks real app-layer walking progress while
	// app-proto detection is still pending on the session and AppBaseSeq
	// itself stays pinned at ISN (spec.md §4.5 "App-proto detection
	// gate"); see applayer.go.
	pendingAppSeq Sequence

	OSPolicy OSPolicy
	Flags    StreamFlags

	Direction Direction

	List SegList

	// chunk accumulates bytes for the App-Layer Reassembler between
	// deliveries; see applayer.go.
	chunk []byte

	// rawChunkSize is the configured sliding-window size for the Raw
	// Reassembler on this direction (spec.md §6.4
	// reassembly_toserver_chunk_size / reassembly_toclient_chunk_size).
	rawChunkSize int
}

// RaBaseSeq returns the more conservative of the two consumer cursors: a
// segment is only safe to reject as "before base" (spec.md §4.3's fail
// mode) if it is behind *both* the app-layer and the raw cursor, since
// either consumer might still need it. This is the documented resolution
// for spec.md §3's invariant I2, which names a single "relevant consumer
// cursor" without pinning down which one when the two diverge.
func (s *Stream) RaBaseSeq() Sequence {
	return SeqMin(s.AppBaseSeq, s.RawBaseSeq)
}

// Session is a pair of Streams plus tracker-owned state (spec.md §3).
type Session struct {
	Client Stream // client-to-server direction
	Server Stream // server-to-client direction

	Net       gopacket.Flow
	Transport gopacket.Flow

	State ConnState
	Flags SessionFlags
	Mode  Mode

	Vars FlowVarStore

	// outQueues holds, per direction, the raw-matcher output queue; the
	// Pruner consults the sequence number of its oldest message (spec.md
	// §4.7 third bullet), and an empty queue reports ok=false.
	outQueues [2]*streamMsgQueue
}

// StreamFor returns the Stream carrying bytes travelling in dir.
func (s *Session) StreamFor(dir Direction) *Stream {
	if dir == ToServer {
		return &s.Client
	}

	return &s.Server
}

// Opposite returns the Stream for the direction opposite dir — the one an
// ACK travelling in dir advances delivery for (spec.md §2: "Payload calls
// traverse... ACK calls traverse C5 and C6 on the opposite direction").
func (s *Session) Opposite(dir Direction) *Stream {
	if dir == ToServer {
		return &s.Server
	}

	return &s.Client
}
