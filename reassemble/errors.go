package reassemble

import "github.com/pkg/errors"

// Sentinel errors for the benign-and-expected and resource-exhausted
// outcomes of spec.md §7. None of these are ever raised as panics on the
// hot path; every reassembler entry point returns them as ordinary values.
var (
	// ErrBeforeBaseSeq is returned when an inbound segment lies wholly
	// before the relevant consumer cursor — a retransmission or
	// duplicate, silently dropped by the caller.
	ErrBeforeBaseSeq = errors.New("reassemble: segment before base sequence")

	// ErrNoSegment is returned when the Segment Pool could not satisfy
	// an allocation because the memory cap would be exceeded.
	ErrNoSegment = errors.New("reassemble: segment pool exhausted (memcap)")

	// ErrDepthReached is returned when a stream has already been marked
	// DEPTH_REACHED and the caller submits more bytes for that direction.
	ErrDepthReached = errors.New("reassemble: reassembly depth reached")

	// ErrGapClosed names the state in which app-layer delivery has ended
	// for a direction because a permanent gap was declared. No function in
	// this package returns it: AppLayerReassembler.Run reports that state
	// by returning 0.
	ErrGapClosed = errors.New("reassemble: stream gap already closed delivery")

	// ErrInvariant marks a programming-invariant violation (list
	// inconsistency, cursor underflow, out-of-order segment after
	// insert). In debug builds these abort with a diagnostic dump; in
	// release builds they are logged and the caller continues
	// best-effort, per spec.md §7.
	ErrInvariant = errors.New("reassemble: internal invariant violated")
)
