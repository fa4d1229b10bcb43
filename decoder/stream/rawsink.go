package stream

import (
	"go.uber.org/zap"

	"github.com/packetwatch/reassemble"
)

// DeliverRawMsg is the demo raw pattern-matcher sink (spec.md §4.6, §6.3):
// it stands in for whatever signature-matching engine actually scans the
// gap-tolerant byte stream the Raw Reassembler produces. A real matcher
// would run something like Aho-Corasick or hyperscan over msg.Data here;
// this demo only accounts the bytes so PrintSummary has something to
// report.
func DeliverRawMsg(msg *reassemble.StreamMsg) {
	if msg == nil {
		return
	}

	stats.Lock()
	stats.rawBytes += int64(len(msg.Data))
	stats.Unlock()

	if msg.GapSize > 0 {
		streamLog.Debug("raw matcher resuming after gap",
			zap.String("direction", msg.Dir.String()),
			zap.Uint32("seq", uint32(msg.Seq)),
			zap.Uint32("gap_size", msg.GapSize),
		)
	}

	if msg.Start {
		streamLog.Debug("raw matcher stream start",
			zap.String("direction", msg.Dir.String()),
			zap.Uint32("seq", uint32(msg.Seq)),
		)
	}
}
