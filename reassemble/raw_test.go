package reassemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawTestSession builds a Session whose Client stream is the one under
// test, with FlagTriggerRawReassembly set so rawCheckLimit always admits
// the pass — tests that aren't specifically about the check_limit gate
// shouldn't have to also satisfy it.
func rawTestSession() *Session {
	sess := &Session{}
	sess.Flags |= FlagTriggerRawReassembly

	return sess
}

func TestRawRunDeliversContiguousChunk(t *testing.T) {
	sess := rawTestSession()
	s := &sess.Client
	s.rawChunkSize = 4096
	pool := newTestPool()

	_, err := s.List.Insert(inboundData{Seq: 0, Data: []byte("AAAABBBB")}, 0, pool, PolicyBSD, false, nil, nil)
	require.NoError(t, err)
	s.NextSeq = 8

	var queue streamMsgQueue
	ra := NewRawReassembler(nil)

	n := ra.Run(sess, s, ToServer, ModeIDS, &queue)
	assert.Equal(t, 8, n)

	msgs := queue.drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, "AAAABBBB", string(msgs[0].Data))
	assert.Equal(t, uint32(0), msgs[0].GapSize)
	assert.True(t, msgs[0].Start)
	assert.Same(t, sess, msgs[0].FlowRef)
	assert.Equal(t, Sequence(8), s.RawBaseSeq)
}

func TestRawRunSplitsAtChunkSize(t *testing.T) {
	sess := rawTestSession()
	s := &sess.Client
	s.rawChunkSize = 3
	pool := newTestPool()

	_, err := s.List.Insert(inboundData{Seq: 0, Data: []byte("AAAAAAAA")}, 0, pool, PolicyBSD, false, nil, nil)
	require.NoError(t, err)
	s.NextSeq = 8

	var queue streamMsgQueue
	ra := NewRawReassembler(nil)

	n := ra.Run(sess, s, ToServer, ModeIDS, &queue)
	assert.Equal(t, 8, n)

	msgs := queue.drain()
	require.Len(t, msgs, 3)
	assert.Equal(t, 3, len(msgs[0].Data))
	assert.Equal(t, 3, len(msgs[1].Data))
	assert.Equal(t, 2, len(msgs[2].Data))
}

func TestRawRunJumpsOverGapAndRecordsGapSize(t *testing.T) {
	sess := rawTestSession()
	s := &sess.Client
	s.rawChunkSize = 4096
	pool := newTestPool()

	_, err := s.List.Insert(inboundData{Seq: 0, Data: []byte("AAAA")}, 0, pool, PolicyBSD, false, nil, nil)
	require.NoError(t, err)
	_, err = s.List.Insert(inboundData{Seq: 10, Data: []byte("CCCC")}, 0, pool, PolicyBSD, false, nil, nil)
	require.NoError(t, err)
	s.NextSeq = 14

	var queue streamMsgQueue
	ra := NewRawReassembler(nil)

	n := ra.Run(sess, s, ToServer, ModeIDS, &queue)
	assert.Equal(t, 8, n)

	msgs := queue.drain()
	require.Len(t, msgs, 2)
	assert.Equal(t, uint32(0), msgs[0].GapSize)
	assert.Equal(t, Sequence(0), msgs[0].Seq)
	assert.Equal(t, uint32(6), msgs[1].GapSize)
	assert.Equal(t, Sequence(10), msgs[1].Seq)
	assert.Equal(t, Sequence(14), s.RawBaseSeq)
}

func TestRawRunPartialSegmentOffset(t *testing.T) {
	sess := rawTestSession()
	s := &sess.Client
	s.rawChunkSize = 4096
	pool := newTestPool()

	_, err := s.List.Insert(inboundData{Seq: 0, Data: []byte("AAAAA")}, 0, pool, PolicyBSD, false, nil, nil)
	require.NoError(t, err)
	s.NextSeq = 5

	s.RawBaseSeq = 2 // half of this segment already queued by an earlier call

	var queue streamMsgQueue
	ra := NewRawReassembler(nil)

	n := ra.Run(sess, s, ToServer, ModeIDS, &queue)
	assert.Equal(t, 3, n)

	msgs := queue.drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, "AAA", string(msgs[0].Data))
	assert.Equal(t, Sequence(2), msgs[0].Seq)
}

func TestRawRunNoReassemblyFlagSkipsEntirely(t *testing.T) {
	sess := rawTestSession()
	s := &sess.Client
	s.Flags |= FlagNoReassembly
	s.rawChunkSize = 4096
	pool := newTestPool()

	_, err := s.List.Insert(inboundData{Seq: 0, Data: []byte("AAAA")}, 0, pool, PolicyBSD, false, nil, nil)
	require.NoError(t, err)
	s.NextSeq = 4

	var queue streamMsgQueue
	ra := NewRawReassembler(nil)

	n := ra.Run(sess, s, ToServer, ModeIDS, &queue)
	assert.Equal(t, 0, n)
	assert.Empty(t, queue.drain())
}

// TestRawRunCheckLimitSkipsWithoutATrigger covers ra_raw_check_limit: an
// ordinary ACK-driven pass with none of the admitting conditions set must
// not deliver anything at all, even though stored data is available.
func TestRawRunCheckLimitSkipsWithoutATrigger(t *testing.T) {
	sess := &Session{} // no FlagTriggerRawReassembly, State == StateEstablished, no close
	s := &sess.Client
	s.rawChunkSize = 4096
	pool := newTestPool()

	_, err := s.List.Insert(inboundData{Seq: 0, Data: []byte("AAAA")}, 0, pool, PolicyBSD, false, nil, nil)
	require.NoError(t, err)
	s.NextSeq = 4

	var queue streamMsgQueue
	ra := NewRawReassembler(nil)

	n := ra.Run(sess, s, ToServer, ModeIDS, &queue)
	assert.Equal(t, 0, n)
	assert.Empty(t, queue.drain())
}

// TestRawRunCheckLimitFiresOnCloseInitiated covers the FlagCloseInitiated
// branch of ra_raw_check_limit without relying on FlagTriggerRawReassembly.
func TestRawRunCheckLimitFiresOnCloseInitiated(t *testing.T) {
	sess := &Session{}
	s := &sess.Client
	s.rawChunkSize = 4096
	s.Flags |= FlagCloseInitiated
	pool := newTestPool()

	_, err := s.List.Insert(inboundData{Seq: 0, Data: []byte("AAAA")}, 0, pool, PolicyBSD, false, nil, nil)
	require.NoError(t, err)
	s.NextSeq = 4

	var queue streamMsgQueue
	ra := NewRawReassembler(nil)

	n := ra.Run(sess, s, ToServer, ModeIDS, &queue)
	assert.Equal(t, 4, n)
}

// TestRawRunInlineModeBypassesCheckLimit covers the Inline variant's
// per-packet trigger: ModeInline must deliver even when none of
// ra_raw_check_limit's ACK-mode conditions hold.
func TestRawRunInlineModeBypassesCheckLimit(t *testing.T) {
	sess := &Session{}
	s := &sess.Client
	s.rawChunkSize = 4096
	pool := newTestPool()

	_, err := s.List.Insert(inboundData{Seq: 0, Data: []byte("AAAA")}, 0, pool, PolicyBSD, false, nil, nil)
	require.NoError(t, err)
	s.NextSeq = 4
	s.LastAck = 4 // the peer has acked the segment, so inlineGate admits it

	var queue streamMsgQueue
	ra := NewRawReassembler(nil)

	n := ra.Run(sess, s, ToServer, ModeInline, &queue)
	assert.Equal(t, 4, n)
}

// TestRawRunSlidingWindowSkipsStaleBacklog covers the sliding-window
// bound itself: once the matcher has fallen behind the current packet's
// position by more than the configured window span, Run jumps RawBaseSeq
// forward instead of ever delivering the stale backlog, so memory doesn't
// grow unbounded waiting on a matcher that can't keep up.
func TestRawRunSlidingWindowSkipsStaleBacklog(t *testing.T) {
	sess := rawTestSession()
	s := &sess.Client
	s.rawChunkSize = 4
	pool := newTestPool()

	_, err := s.List.Insert(inboundData{Seq: 0, Data: []byte("AAAA")}, 0, pool, PolicyBSD, false, nil, nil)
	require.NoError(t, err)

	// The current packet's position is far beyond anything still buffered
	// — window span is rawWindowFactor*chunkSize == 256 bytes here.
	s.NextSeq = 10000

	var queue streamMsgQueue
	ra := NewRawReassembler(nil)

	n := ra.Run(sess, s, ToServer, ModeIDS, &queue)
	assert.Equal(t, 0, n)
	assert.Empty(t, queue.drain())
	assert.Equal(t, Sequence(10000-4*rawWindowFactor), s.RawBaseSeq)
}
