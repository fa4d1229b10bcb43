/*
 * NETCAP - Traffic Analysis Framework
 * Copyright (c) 2017-2020 Philipp Mieden <dreadl0ck [at] protonmail [dot] ch>
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package stream wires decoded TCP packets into the reassemble package and
// fans the two resulting byte streams out to the app-layer protocol
// detector and the raw pattern-matcher sink.
package stream

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dreadl0ck/gopacket"
	"github.com/dreadl0ck/gopacket/layers"
	"github.com/evilsocket/islazy/tui"
	"go.uber.org/zap"

	"github.com/packetwatch/reassemble"
)

var streamLog = zap.NewNop()

// SetLogger overrides the package logger; the CLI harness calls this once
// at startup.
func SetLogger(l *zap.Logger) {
	streamLog = l
}

var stats struct {
	sync.Mutex

	count       int64
	dataBytes   int64
	rejectedCsm int64
	sessions    int64
	destroyed   int64
	appBytes    int64
	rawBytes    int64
}

// connIdent builds the session table key for a flow pair. It takes the
// place of the teacher's tcpConnection.ident field: here the Session
// itself, not a dedicated connection struct, is what the reassemble
// package's insert/delivery calls are owned by.
func connIdent(net, transport gopacket.Flow) string {
	return fmt.Sprintf("%s:%s", net.String(), transport.String())
}

// Handler owns the SessionTable and thread-local reassembly resources for
// one capture worker. Construct one per goroutine that calls HandlePacket;
// the underlying MemCounter and Metrics may be shared across Handlers.
type Handler struct {
	table *reassemble.SessionTable
	asm   *reassemble.Assembler
	tctx  *reassemble.ThreadCtx

	checksum bool
}

// NewHandler builds a Handler. name identifies the owning worker in logs
// and metrics (e.g. "worker-0").
func NewHandler(name string, cfg reassemble.Config, mem *reassemble.MemCounter, metrics *reassemble.Metrics, sessionTimeout time.Duration, checksum bool) *Handler {
	return &Handler{
		table:    reassemble.NewSessionTable(sessionTimeout),
		asm:      reassemble.NewAssembler(cfg),
		tctx:     reassemble.NewThreadCtx(name, mem, reassemble.DepthGate{Depth: cfg.Depth}, metrics, streamLog.Named(name)),
		checksum: checksum,
	}
}

// HandlePacket decodes a single TCP packet already identified as carrying
// a TCP layer and feeds it through the reassembler. ci is the capture
// timestamp used for session-timeout bookkeeping.
func (h *Handler) HandlePacket(netFlow gopacket.Flow, tcp *layers.TCP, ci gopacket.CaptureInfo) {
	stats.Lock()
	stats.count++
	stats.dataBytes += int64(len(tcp.Payload))
	stats.Unlock()

	if h.checksum {
		chk, err := tcp.ComputeChecksum()
		if err != nil || chk != 0x0 {
			stats.Lock()
			stats.rejectedCsm++
			stats.Unlock()

			streamLog.Debug("rejected invalid checksum",
				zap.String("net", netFlow.String()),
				zap.Error(err),
			)

			return
		}
	}

	transport := tcp.TransportFlow()
	dir := reassemble.ToServer

	key := connIdent(netFlow, transport)
	if _, unlock, ok := h.table.Get(key, ci.Timestamp); ok {
		unlock()
	} else {
		// try the reverse key: this packet may be the server's reply on
		// an already-known session.
		if _, unlock, ok := h.table.Get(connIdent(netFlow.Reverse(), transport.Reverse()), ci.Timestamp); ok {
			unlock()
			key = connIdent(netFlow.Reverse(), transport.Reverse())
			dir = reassemble.ToClient
		}
	}

	sess, unlock := h.table.GetOrCreate(key, ci.Timestamp, func() *reassemble.Session {
		stats.Lock()
		stats.sessions++
		stats.Unlock()

		var clientISN, serverISN reassemble.Sequence

		if tcp.SYN {
			if dir == reassemble.ToServer {
				clientISN = reassemble.Sequence(tcp.Seq)
			} else {
				serverISN = reassemble.Sequence(tcp.Seq)
			}
		}

		sess := h.asm.NewSession(clientISN, serverISN, reassemble.PolicyLinux)
		sess.Net = netFlow
		sess.Transport = transport

		return sess
	})
	defer unlock()

	if tcp.FIN || tcp.RST {
		s := sess.StreamFor(dir)
		s.Flags |= reassemble.FlagCloseInitiated
	}

	if len(tcp.Payload) > 0 {
		_, err := h.asm.OnDataSegment(h.tctx, sess, dir, reassemble.Sequence(tcp.Seq), tcp.Payload, nil)
		if err != nil && err != reassemble.ErrBeforeBaseSeq {
			streamLog.Debug("segment not stored",
				zap.String("ident", key),
				zap.Error(err),
			)
		}
	}

	h.asm.OnAck(h.tctx, sess, dir, reassemble.Sequence(tcp.Ack), uint32(tcp.Window), nil,
		func(d reassemble.Direction, data []byte, flags reassemble.DataFlags) {
			stats.Lock()
			stats.appBytes += int64(len(data))
			stats.Unlock()

			DeliverAppData(sess, key, d, data, flags)
		},
		func(d reassemble.Direction) {
			streamLog.Debug("gap declared", zap.String("ident", key), zap.String("direction", d.String()))
		},
	)

	// OnAck only queues raw-matcher output; hand it to the sink now rather
	// than letting it sit until the session is torn down.
	for _, m := range h.asm.DrainRaw(sess, dir.Opposite()) {
		DeliverRawMsg(m)
	}

	// inline deployments trigger both reassemblers on every data packet
	// rather than waiting for the peer's ACK; a no-op for sess.Mode == ModeIDS.
	for _, m := range h.asm.OnInlineData(h.tctx, sess, dir, nil,
		func(d reassemble.Direction, data []byte, flags reassemble.DataFlags) {
			stats.Lock()
			stats.appBytes += int64(len(data))
			stats.Unlock()

			DeliverAppData(sess, key, d, data, flags)
		},
		func(d reassemble.Direction) {
			streamLog.Debug("gap declared", zap.String("ident", key), zap.String("direction", d.String()))
		},
	) {
		DeliverRawMsg(m)
	}
}

// Sweep evicts sessions that have been idle past the configured timeout,
// flushing their outstanding bytes to the raw sink first.
func (h *Handler) Sweep(now time.Time) int {
	return h.table.Sweep(now, func(sess *reassemble.Session) {
		clientMsgs, serverMsgs := h.asm.OnSessionDestroy(h.tctx, sess)

		for _, m := range clientMsgs {
			DeliverRawMsg(m)
		}

		for _, m := range serverMsgs {
			DeliverRawMsg(m)
		}

		stats.Lock()
		stats.destroyed++
		stats.Unlock()
	})
}

// Close releases the Handler's thread-local pool.
func (h *Handler) Close() {
	h.tctx.Close()
}

// PrintSummary renders the accumulated stats as a table, in the same
// tui.Table style the teacher's CleanupReassembly used.
func PrintSummary() {
	stats.Lock()
	rows := [][]string{
		{"packets", strconv.FormatInt(stats.count, 10)},
		{"tcp bytes", strconv.FormatInt(stats.dataBytes, 10)},
		{"rejected checksum", strconv.FormatInt(stats.rejectedCsm, 10)},
		{"sessions created", strconv.FormatInt(stats.sessions, 10)},
		{"sessions destroyed", strconv.FormatInt(stats.destroyed, 10)},
		{"app-layer bytes delivered", strconv.FormatInt(stats.appBytes, 10)},
		{"raw bytes delivered", strconv.FormatInt(stats.rawBytes, 10)},
	}
	stats.Unlock()

	tui.Table(os.Stdout, []string{"Reassembly Stat", "Value"}, rows)
}
