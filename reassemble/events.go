package reassemble

// Event is one of the rule-engine-visible events the reassembler can raise
// against the packet currently being processed (spec.md §6.5).
type Event string

const (
	// EventSegmentBeforeBaseSeq fires when an inbound segment lies wholly
	// before the consuming cursor and is rejected outright (§4.3).
	EventSegmentBeforeBaseSeq Event = "REASSEMBLY_SEGMENT_BEFORE_BASE_SEQ"

	// EventNoSegment fires when the Segment Pool could not satisfy an
	// allocation because the memcap would be exceeded (§4.1, §4.3).
	EventNoSegment Event = "REASSEMBLY_NO_SEGMENT"

	// EventSeqGap fires when a gap is declared permanent during app-layer
	// delivery (§4.5).
	EventSeqGap Event = "REASSEMBLY_SEQ_GAP"

	// EventOverlapDifferentData fires when check_overlap_different_data is
	// enabled and the bytes in an overlap region differ between the
	// incoming and already-stored segment (§4.3 step 3).
	EventOverlapDifferentData Event = "REASSEMBLY_OVERLAP_DIFFERENT_DATA"
)

// EventSink receives events raised while processing a single call into the
// assembler. Implementations attach the event to whatever "current packet"
// concept the caller maintains; the reassembler itself has no notion of a
// packet beyond the call it is currently servicing.
type EventSink interface {
	RaiseEvent(ev Event)
}

// EventSinkFunc adapts a function to an EventSink.
type EventSinkFunc func(Event)

// RaiseEvent implements EventSink.
func (f EventSinkFunc) RaiseEvent(ev Event) {
	if f != nil {
		f(ev)
	}
}

// discardSink drops every event; used where the caller passed a nil sink.
type discardSink struct{}

func (discardSink) RaiseEvent(Event) {}

func sinkOrDiscard(s EventSink) EventSink {
	if s == nil {
		return discardSink{}
	}
	return s
}
