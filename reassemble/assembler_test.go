package reassemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThreadCtx(depth uint32) *ThreadCtx {
	return NewThreadCtx("test", NewMemCounter(0), DepthGate{Depth: depth}, nil, nil)
}

func TestAssemblerOnDataSegmentThenOnAckDeliversAppData(t *testing.T) {
	a := NewAssembler(Config{})
	tctx := newTestThreadCtx(0)

	sess := a.NewSession(0, 0, PolicyBSD)

	_, err := a.OnDataSegment(tctx, sess, ToServer, 0, []byte("GET / HTTP/1.1\r\n"), nil)
	require.NoError(t, err)

	var delivered []byte

	// the client's bytes are only delivered once the server ACKs them —
	// an ACK travels to_client on the server's reply path.
	a.OnAck(tctx, sess, ToClient, 16, 0, nil, func(dir Direction, data []byte, flags DataFlags) {
		delivered = append(delivered, data...)
	}, nil)

	assert.Equal(t, "GET / HTTP/1.1\r\n", string(delivered))
}

func TestAssemblerOnAckOnlyAdvancesOppositeDirection(t *testing.T) {
	a := NewAssembler(Config{})
	tctx := newTestThreadCtx(0)

	sess := a.NewSession(0, 0, PolicyBSD)

	_, err := a.OnDataSegment(tctx, sess, ToServer, 0, []byte("clientbytes"), nil)
	require.NoError(t, err)
	_, err = a.OnDataSegment(tctx, sess, ToClient, 0, []byte("serverbytes"), nil)
	require.NoError(t, err)

	var delivered []Direction

	// an ACK travelling to_server acknowledges the server's bytes, so only
	// the server-direction data is delivered here.
	a.OnAck(tctx, sess, ToServer, 11, 0, nil, func(dir Direction, data []byte, flags DataFlags) {
		delivered = append(delivered, dir)
	}, nil)

	assert.Equal(t, []Direction{ToClient}, delivered)
	assert.Equal(t, Sequence(0), sess.Client.AppBaseSeq, "client direction must not have advanced")
}

func TestAssemblerOnDataSegmentRejectsAfterNoReassembly(t *testing.T) {
	a := NewAssembler(Config{})
	tctx := newTestThreadCtx(0)

	sess := a.NewSession(0, 0, PolicyBSD)
	sess.Client.Flags |= FlagNoReassembly

	n, err := a.OnDataSegment(tctx, sess, ToServer, 0, []byte("data"), nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, sess.Client.List.Len())
}

func TestAssemblerOnDataSegmentDepthGateTruncatesAndSets(t *testing.T) {
	a := NewAssembler(Config{})
	tctx := newTestThreadCtx(8)

	sess := a.NewSession(0, 0, PolicyBSD)

	n, err := a.OnDataSegment(tctx, sess, ToServer, 0, []byte("0123456789"), nil)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.True(t, sess.Client.Flags&FlagDepthReached != 0)

	// further bytes on this direction are rejected outright now.
	n2, err2 := a.OnDataSegment(tctx, sess, ToServer, 8, []byte("XY"), nil)
	assert.ErrorIs(t, err2, ErrDepthReached)
	assert.Equal(t, 0, n2)
}

func TestAssemblerOnTriggerRawDeliversWithoutWaitingForAck(t *testing.T) {
	a := NewAssembler(Config{})
	tctx := newTestThreadCtx(0)

	sess := a.NewSession(0, 0, PolicyBSD)
	sess.Flags |= FlagTriggerRawReassembly

	_, err := a.OnDataSegment(tctx, sess, ToServer, 0, []byte("rawbytes"), nil)
	require.NoError(t, err)

	n := a.OnTriggerRaw(tctx, sess, ToServer)
	assert.Equal(t, 8, n)
	assert.False(t, sess.Flags&FlagTriggerRawReassembly != 0)

	msgs := sess.outQueues[ToServer].drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, "rawbytes", string(msgs[0].Data))
}

func TestAssemblerOnSessionDestroyDrainsQueuesAndReleasesSegments(t *testing.T) {
	a := NewAssembler(Config{})
	tctx := newTestThreadCtx(0)

	sess := a.NewSession(0, 0, PolicyBSD)

	_, err := a.OnDataSegment(tctx, sess, ToServer, 0, []byte("AAAA"), nil)
	require.NoError(t, err)
	_, err = a.OnDataSegment(tctx, sess, ToClient, 0, []byte("BBBB"), nil)
	require.NoError(t, err)

	a.OnTriggerRaw(tctx, sess, ToServer)
	a.OnTriggerRaw(tctx, sess, ToClient)

	clientMsgs, serverMsgs := a.OnSessionDestroy(tctx, sess)

	require.Len(t, clientMsgs, 1)
	require.Len(t, serverMsgs, 1)
	assert.Equal(t, "AAAA", string(clientMsgs[0].Data))
	assert.Equal(t, "BBBB", string(serverMsgs[0].Data))
	assert.Equal(t, 0, sess.Client.List.Len())
	assert.Equal(t, 0, sess.Server.List.Len())
}

func TestAssemblerHandlesOutOfOrderThenRetransmitSequenceWrap(t *testing.T) {
	a := NewAssembler(Config{})
	tctx := newTestThreadCtx(0)

	isn := Sequence(4294967290) // close to the 32-bit wrap
	sess := a.NewSession(isn, isn, PolicyBSD)

	// second half arrives first, then the first half closes the gap,
	// crossing the wrap boundary in between.
	_, err := a.OnDataSegment(tctx, sess, ToServer, isn.Add(4), []byte("EFGH"), nil)
	require.NoError(t, err)

	_, err = a.OnDataSegment(tctx, sess, ToServer, isn, []byte("ABCD"), nil)
	require.NoError(t, err)

	var delivered []byte
	a.OnAck(tctx, sess, ToClient, isn.Add(8), 0, nil, func(dir Direction, data []byte, flags DataFlags) {
		delivered = append(delivered, data...)
	}, nil)

	assert.Equal(t, "ABCDEFGH", string(delivered))
}

func TestAssemblerOnDataSegmentDetectsCorruptedOrderingInReleaseMode(t *testing.T) {
	a := NewAssembler(Config{})
	tctx := newTestThreadCtx(0)

	sess := a.NewSession(0, 0, PolicyBSD)

	_, err := a.OnDataSegment(tctx, sess, ToServer, 0, []byte("AAAA"), nil)
	require.NoError(t, err)
	_, err = a.OnDataSegment(tctx, sess, ToServer, 8, []byte("CCCC"), nil)
	require.NoError(t, err)

	// simulate a programming bug elsewhere corrupting the list's sequence
	// order directly, rather than through Insert.
	sess.Client.List.Head().next.Seq = 2

	_, err = a.OnDataSegment(tctx, sess, ToServer, 20, []byte("D"), nil)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestAssemblerOnDataSegmentAbortsOnCorruptedOrderingInDebugMode(t *testing.T) {
	a := NewAssembler(Config{})
	tctx := newTestThreadCtx(0)

	sess := a.NewSession(0, 0, PolicyBSD)

	_, err := a.OnDataSegment(tctx, sess, ToServer, 0, []byte("AAAA"), nil)
	require.NoError(t, err)
	_, err = a.OnDataSegment(tctx, sess, ToServer, 8, []byte("CCCC"), nil)
	require.NoError(t, err)

	sess.Client.List.Head().next.Seq = 2

	DebugInvariants = true
	defer func() { DebugInvariants = false }()

	assert.Panics(t, func() {
		_, _ = a.OnDataSegment(tctx, sess, ToServer, 20, []byte("D"), nil)
	})
}
