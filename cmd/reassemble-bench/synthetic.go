package main

import (
	"github.com/dreadl0ck/gopacket"
	"github.com/dreadl0ck/gopacket/layers"
)

// syntheticFlow builds the fixed client->server IPv4 network flow used for
// every segment in the benchmark run; the transport flow is derived by
// Handler.HandlePacket itself from each layers.TCP's own ports.
func syntheticFlow() gopacket.Flow {
	return gopacket.NewFlow(layers.EndpointIPv4, []byte{10, 0, 0, 1}, []byte{10, 0, 0, 2})
}

// syntheticTCP builds a minimal layers.TCP carrying payload at the given
// sequence range, enough for Handler.HandlePacket to drive a reassemble
// session without a real capture.
func syntheticTCP(seq, ack uint32, payload []byte) *layers.TCP {
	return &layers.TCP{
		SrcPort: 8080,
		DstPort: 80,
		Seq:     seq,
		Ack:     ack,
		ACK:     true,
		Window:  65535,
		BaseLayer: layers.BaseLayer{
			Payload: payload,
		},
	}
}

// syntheticAck builds a bare ACK segment travelling from server back to
// client, acknowledging up to ack. A real peer interleaves these with its
// own data; the benchmark only needs them to drive OnAck, since data
// handed to OnDataSegment is never delivered to a consumer until the
// peer's ACK for it arrives.
func syntheticAck(ack uint32) *layers.TCP {
	return &layers.TCP{
		SrcPort: 80,
		DstPort: 8080,
		Seq:     1,
		Ack:     ack,
		ACK:     true,
		Window:  65535,
	}
}
