package reassemble

// OSPolicy selects the target end-host TCP stack's overlap-resolution
// behavior (spec.md §4.3). The reassembler must reproduce each stack's
// choice of surviving bytes in an overlap region exactly, or an attacker
// who knows the target's OS can smuggle bytes past detection by relying on
// the wrong resolution.
type OSPolicy int

const (
	// PolicyBSD is the default: for an overlap where the new segment
	// starts at or before the old one, keep the new bytes; otherwise
	// keep the old bytes.
	PolicyBSD OSPolicy = iota
	PolicyHPUX10
	PolicyIRIX
	PolicyWindows
	PolicyWindows2K3
	PolicyOldLinux
	PolicyLinux
	PolicyMacOS
	PolicyLast
	PolicyFirst
	PolicyVista
	PolicySolaris
	PolicyHPUX11
)

// String implements fmt.Stringer for log output and the os_policy config key.
func (p OSPolicy) String() string {
	switch p {
	case PolicyBSD:
		return "bsd"
	case PolicyHPUX10:
		return "hpux10"
	case PolicyIRIX:
		return "irix"
	case PolicyWindows:
		return "windows"
	case PolicyWindows2K3:
		return "windows2k3"
	case PolicyOldLinux:
		return "old-linux"
	case PolicyLinux:
		return "linux"
	case PolicyMacOS:
		return "macos"
	case PolicyLast:
		return "last"
	case PolicyFirst:
		return "first"
	case PolicyVista:
		return "vista"
	case PolicySolaris:
		return "solaris"
	case PolicyHPUX11:
		return "hpux11"
	default:
		return "unknown"
	}
}

// startCase classifies where the incoming segment's start falls relative
// to the existing segment it overlaps.
type startCase int

const (
	startBefore startCase = iota // new starts before old
	startSame                    // new starts at the same position as old
	startAfter                   // new starts strictly inside old
)

// endCase classifies where the incoming segment's end falls relative to
// the existing segment's end.
type endCase int

const (
	endBefore endCase = iota // new ends before old ends
	endSame                  // new ends exactly where old ends
	endAfter                 // new ends after old ends
)

func classifyStart(newSeq, oldSeq Sequence) startCase {
	switch {
	case SeqLT(newSeq, oldSeq):
		return startBefore
	case newSeq == oldSeq:
		return startSame
	default:
		return startAfter
	}
}

func classifyEnd(newEnd, oldEnd Sequence) endCase {
	switch {
	case SeqLT(newEnd, oldEnd):
		return endBefore
	case newEnd == oldEnd:
		return endSame
	default:
		return endAfter
	}
}

// keepNewBytes implements the dense policy table of spec.md §4.3: given
// the target OS policy and the classified position of the incoming
// segment relative to the one it overlaps, decide whether the surviving
// bytes in the overlap region come from the new segment (true) or the
// old, already-stored one (false).
//
// Expressed as one switch over policy, each case a short expression over
// (start, end), with no nesting beyond the same-start special cases of
// LINUX and OLD_LINUX.
func keepNewBytes(policy OSPolicy, start startCase, end endCase) bool {
	switch policy {
	case PolicyLast:
		// LAST: always keep new.
		return true

	case PolicyFirst, PolicyVista:
		// FIRST, VISTA: always keep old.
		return false

	case PolicySolaris, PolicyHPUX11:
		// SOLARIS, HPUX11: keep new iff the new segment's interval
		// extends to or past the old one's end, regardless of where it
		// starts.
		return end != endBefore

	case PolicyLinux:
		// LINUX: default rule, except when the new segment starts at
		// exactly the same position as the old one, where new bytes are
		// kept only if the new segment extends past the old one's end.
		if start == startSame {
			return end == endAfter
		}

		return start != startAfter

	case PolicyOldLinux:
		// OLD_LINUX: default rule, except at the starts-at-same-position
		// case, which uses the SOLARIS/HPUX11 rule.
		if start == startSame {
			return end != endBefore
		}

		return start != startAfter

	default:
		// BSD, HPUX10, IRIX, WINDOWS, WINDOWS2K3, MACOS (and the
		// non-SAME cases of LINUX/OLD_LINUX): keep new when the new
		// segment starts at or before the old one; keep old otherwise.
		return start != startAfter
	}
}
