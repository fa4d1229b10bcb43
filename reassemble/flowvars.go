package reassemble

// FlowVarKind distinguishes the value held by a FlowVar.
type FlowVarKind int

const (
	FlowVarString FlowVarKind = iota
	FlowVarInt
)

// FlowVar is one named value attached to a Session by the rule engine —
// e.g. a substring captured from one packet and checked against in a
// later one on the same connection. Grounded on Suricata's FlowVar
// (flow-var.c/.h): a flow can carry an arbitrary number of these, indexed
// by a small integer the rule compiler assigns per variable name rather
// than by the name itself.
type FlowVar struct {
	Kind FlowVarKind
	Str  []byte
	Int  uint32
}

// FlowVarStore holds the FlowVars attached to a single Session. The
// original keeps these as a singly-linked list walked linearly
// (GenericVarAppend / FlowVarGet); a live session rarely holds more than
// a handful of variables, but a map keyed by idx is the direct idiomatic
// substitute and avoids the linear rescan on every update.
type FlowVarStore struct {
	vars map[uint16]*FlowVar
}

// Get returns the variable at idx, or nil if unset.
func (s *FlowVarStore) Get(idx uint16) *FlowVar {
	if s.vars == nil {
		return nil
	}

	return s.vars[idx]
}

// SetStr adds or updates a string-valued variable at idx. The store takes
// an owned copy of value rather than aliasing the caller's slice (spec.md
// §4.8: "String values are owned copies; the store frees them on
// replacement or flow teardown") — callers in this package reuse packet
// buffers across packets, so aliasing would let a later packet silently
// mutate an already-stored variable.
func (s *FlowVarStore) SetStr(idx uint16, value []byte) {
	if s.vars == nil {
		s.vars = make(map[uint16]*FlowVar)
	}

	owned := append([]byte(nil), value...)

	if fv, ok := s.vars[idx]; ok {
		fv.Kind = FlowVarString
		fv.Str = owned
		fv.Int = 0

		return
	}

	s.vars[idx] = &FlowVar{Kind: FlowVarString, Str: owned}
}

// SetInt adds or updates an integer-valued variable at idx.
func (s *FlowVarStore) SetInt(idx uint16, value uint32) {
	if s.vars == nil {
		s.vars = make(map[uint16]*FlowVar)
	}

	if fv, ok := s.vars[idx]; ok {
		fv.Kind = FlowVarInt
		fv.Int = value
		fv.Str = nil

		return
	}

	s.vars[idx] = &FlowVar{Kind: FlowVarInt, Int: value}
}

// Len returns the number of variables currently set.
func (s *FlowVarStore) Len() int {
	return len(s.vars)
}
