package stream

import (
	"sync"

	godpi "github.com/dreadl0ck/go-dpi"
	godpitypes "github.com/dreadl0ck/go-dpi/types"
	"github.com/dreadl0ck/gopacket"
	"github.com/dreadl0ck/gopacket/layers"
	"github.com/dreadl0ck/ja3"
	"github.com/dreadl0ck/tlsx"
	"go.uber.org/zap"

	"github.com/packetwatch/reassemble"
)

// detectedProto records the outcome of app-layer protocol detection for
// one session key — the demo consumer this file implements for the
// App-Layer Reassembler (spec.md §4.5): bytes only ever arrive here as
// contiguous, gap-free runs. DeliverAppData appends each run to the
// session's buffer and retries the TLS ClientHello probe and go-dpi
// classification on every call, until one matches, the buffer passes
// maxAppProtoBuf, or an EOF delivery arrives.
type detectedProto struct {
	proto string
	ja3   string
}

var (
	appProtoMu sync.Mutex
	appProtos  = make(map[string]*detectedProto)
	appBufs    = make(map[string][]byte)

	dpiInitOnce sync.Once
	dpiInitErr  error
)

// maxAppProtoBuf bounds how many bytes of app-layer data this demo
// consumer accumulates per session while still hunting for a recognizable
// header; a demo-consumer concern, unrelated to the reassembler's own
// reassembly_depth gate.
const maxAppProtoBuf = 16384

// initDPI lazily starts go-dpi's classification engine. Called once per
// process regardless of how many Handlers exist.
func initDPI() error {
	dpiInitOnce.Do(func() {
		dpiInitErr = godpi.Initialize()
	})

	return dpiInitErr
}

// ShutdownDPI tears down go-dpi's classification engine. Call once at
// process exit.
func ShutdownDPI() {
	godpi.Destroy()
}

// packetFromAppData wraps a run of reassembled app-layer bytes in a
// synthetic gopacket.Packet so the pack's packet-oriented TLS/JA3/DPI
// helpers (tlsx.GetClientHelloBasic, ja3.DigestHexPacket, go-dpi's
// GetPacketFlow) can run against it exactly as they would against a
// freshly captured one — these libraries key off layer decoding, not off
// having come from a live capture.
func packetFromAppData(data []byte) gopacket.Packet {
	return gopacket.NewPacket(data, layers.LayerTypeTLS, gopacket.NoCopy)
}

// DeliverAppData is the AppDataFunc wired into Handler.HandlePacket: each
// contiguous run the App-Layer Reassembler produces is handed to a
// minimal TLS/JA3 sniffer plus go-dpi classification, standing in for a
// real protocol parser's "feed me data" entry point. flags carries the
// composed START/EOF/TOSERVER/TOCLIENT/DEPTH bits the reassembler attaches
// to this run; once this call resolves detection one way or the other it
// raises FlagAppProtoDetectionCompleted on sess so the reassembler's cursor
// can stop pinning at the ISN and catch up to what was actually walked.
func DeliverAppData(sess *reassemble.Session, key string, dir reassemble.Direction, data []byte, flags reassemble.DataFlags) {
	if dir != reassemble.ToServer {
		// ClientHello only ever travels client -> server.
		return
	}

	appProtoMu.Lock()
	defer appProtoMu.Unlock()

	if _, done := appProtos[key]; done {
		return
	}

	buf := append(appBufs[key], data...)
	pkt := packetFromAppData(buf)

	if ch := tlsx.GetClientHelloBasic(pkt); ch != nil {
		fp := ja3.DigestHexPacket(pkt)
		if fp == "" {
			fp = ja3.DigestHexPacketJa3s(pkt)
		}

		appProtos[key] = &detectedProto{proto: "tls", ja3: fp}
		delete(appBufs, key)
		sess.Flags |= reassemble.FlagAppProtoDetectionCompleted

		streamLog.Info("app-proto detected",
			zap.String("ident", key),
			zap.String("proto", "tls"),
			zap.String("sni", ch.SNI),
			zap.String("ja3", fp),
		)

		return
	}

	if err := initDPI(); err == nil {
		if flow := godpi.GetPacketFlow(pkt); flow != nil {
			if result, err := godpi.ClassifyFlow(flow); err == nil && result.Protocol != godpitypes.Unknown {
				appProtos[key] = &detectedProto{proto: result.Protocol.String()}
				delete(appBufs, key)
				sess.Flags |= reassemble.FlagAppProtoDetectionCompleted

				streamLog.Info("app-proto detected",
					zap.String("ident", key),
					zap.String("proto", result.Protocol.String()),
					zap.String("source", result.Source.String()),
				)

				return
			}
		}
	}

	if len(buf) > maxAppProtoBuf || flags&reassemble.DataEOF != 0 {
		appProtos[key] = &detectedProto{proto: "unknown"}
		delete(appBufs, key)
		sess.Flags |= reassemble.FlagAppProtoDetectionCompleted

		return
	}

	appBufs[key] = buf
}

// DetectedProto returns the protocol name detected for key, or "" if
// detection hasn't completed yet.
func DetectedProto(key string) string {
	appProtoMu.Lock()
	defer appProtoMu.Unlock()

	if p, ok := appProtos[key]; ok {
		return p.proto
	}

	return ""
}
