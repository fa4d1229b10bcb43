package reassemble

import (
	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"
)

// DebugInvariants gates the expensive invariant dumps below. It is false
// by default; set it (e.g. from a build tag or an env-checked init in the
// consuming binary) to get a full spew.Sdump of the offending Stream, and
// a panic, wherever ErrInvariant would otherwise be logged with only the
// two cursors and returned. Grounded on
// util-debug.c's SCLogDebugEnabled() gate around the cost of formatting
// debug output that is usually compiled out entirely.
var DebugInvariants = false

// dumpInvariant logs a programming-invariant violation and, in debug
// builds, aborts (spec.md §7: "fatal in debug builds (abort with
// diagnostic dump), in release builds a warning event and best-effort
// continue"). Callers that reach this with DebugInvariants == false always
// return afterward with ErrInvariant and keep running; callers never see
// DebugInvariants == true return at all.
func dumpInvariant(log *zap.Logger, msg string, s *Stream) {
	if !DebugInvariants {
		log.Error(msg, zap.Uint32("app_base_seq", uint32(s.AppBaseSeq)), zap.Uint32("raw_base_seq", uint32(s.RawBaseSeq)))
		return
	}

	dump := spew.Sdump(s)
	log.Error(msg, zap.String("stream", dump))
	panic(msg + ": " + dump)
}
