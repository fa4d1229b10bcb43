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

// Command reassemble-bench replays a synthetic TCP segment workload
// through the reassemble package and prints a stats table, the same way
// the teacher's CleanupReassembly rendered its post-run summary.
package main

import (
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/dreadl0ck/gopacket"
	"github.com/dustin/go-humanize"
	"github.com/evilsocket/islazy/tui"
	"github.com/namsral/flag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/packetwatch/reassemble"
	"github.com/packetwatch/reassemble/decoder/stream"
)

var (
	fSegments   = flag.Int("segments", 20000, "number of synthetic TCP segments to replay")
	fMemcap     = flag.Uint64("memcap", 64<<20, "segment pool memory cap in bytes")
	fDepth      = flag.Uint64("depth", 0, "reassembly_depth in bytes, 0 disables the gate")
	fOverlapPct = flag.Int("overlap-pct", 15, "percentage of segments that deliberately overlap the previous one")
	fDropPct    = flag.Int("drop-pct", 5, "percentage of segments dropped to create gaps")
	fSeed       = flag.Int64("seed", 1, "PRNG seed, for reproducible runs")
	fQuiet      = flag.Bool("quiet", false, "suppress progress bar and per-run logging")
)

func main() {
	flag.Parse()

	log := newLogger(*fQuiet)
	defer func() { _ = log.Sync() }()

	stream.SetLogger(log)

	lr := logrus.New()
	if *fQuiet {
		lr.SetLevel(logrus.WarnLevel)
	}

	lr.WithFields(logrus.Fields{
		"segments": *fSegments,
		"memcap":   humanize.Bytes(*fMemcap),
		"depth":    *fDepth,
	}).Info("starting reassembly benchmark")

	mem := reassemble.NewMemCounter(*fMemcap)
	metrics := reassemble.NewMetrics(prometheus.NewRegistry())

	cfg := reassemble.Config{
		Depth:             uint32(*fDepth),
		ToServerChunkSize: 4096,
		ToClientChunkSize: 4096,
	}

	h := stream.NewHandler("bench-worker-0", cfg, mem, metrics, 30*time.Second, false)
	defer h.Close()

	var bar *pb.ProgressBar
	if !*fQuiet {
		bar = pb.New(*fSegments)
		bar.ShowTimeLeft = true
		bar.Start()
	}

	netFlow := syntheticFlow()
	rng := rand.New(rand.NewSource(*fSeed))

	seq := uint32(1)
	now := time.Now()

	for i := 0; i < *fSegments; i++ {
		payload := randomPayload(rng, 64, 1400)

		thisSeq := seq
		if rng.Intn(100) < *fOverlapPct && i > 0 {
			thisSeq -= uint32(len(payload) / 2)
		}

		seq += uint32(len(payload))

		if rng.Intn(100) < *fDropPct {
			if bar != nil {
				bar.Increment()
			}

			continue
		}

		ts := now.Add(time.Duration(i) * time.Millisecond)

		tcp := syntheticTCP(thisSeq, seq, payload)
		h.HandlePacket(netFlow, tcp, gopacket.CaptureInfo{Timestamp: ts})

		// the peer's ACK is what actually releases these bytes to the
		// app-layer parser and raw matcher (reassemble.Assembler.OnAck);
		// without it the data would sit in the segment list forever.
		ack := syntheticAck(seq)
		h.HandlePacket(netFlow.Reverse(), ack, gopacket.CaptureInfo{Timestamp: ts})

		if bar != nil {
			bar.Increment()
		}
	}

	if bar != nil {
		bar.FinishPrint("replay complete")
	}

	h.Sweep(now.Add(time.Hour))

	tui.Table(os.Stdout, []string{"Benchmark Setting", "Value"}, [][]string{
		{"segments", strconv.Itoa(*fSegments)},
		{"overlap %", strconv.Itoa(*fOverlapPct)},
		{"drop %", strconv.Itoa(*fDropPct)},
		{"memcap", humanize.Bytes(*fMemcap)},
		{"depth", strconv.FormatUint(*fDepth, 10)},
	})

	stream.PrintSummary()
}

func newLogger(quiet bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if quiet {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	return log
}

func randomPayload(rng *rand.Rand, minLen, maxLen int) []byte {
	n := minLen + rng.Intn(maxLen-minLen)
	buf := make([]byte, n)
	rng.Read(buf)

	return buf
}
