package reassemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowVarStoreGetUnsetIsNil(t *testing.T) {
	var s FlowVarStore
	assert.Nil(t, s.Get(0))
}

func TestFlowVarStoreSetStrInsertsAndUpdates(t *testing.T) {
	var s FlowVarStore

	s.SetStr(1, []byte("hello"))
	assert.Equal(t, 1, s.Len())

	fv := s.Get(1)
	assert.Equal(t, FlowVarString, fv.Kind)
	assert.Equal(t, []byte("hello"), fv.Str)

	s.SetStr(1, []byte("world"))
	assert.Equal(t, 1, s.Len(), "updating an existing idx must not grow the store")
	assert.Equal(t, []byte("world"), s.Get(1).Str)
}

func TestFlowVarStoreSetIntInsertsAndUpdates(t *testing.T) {
	var s FlowVarStore

	s.SetInt(2, 42)
	assert.Equal(t, uint32(42), s.Get(2).Int)
	assert.Equal(t, FlowVarInt, s.Get(2).Kind)

	s.SetInt(2, 100)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, uint32(100), s.Get(2).Int)
}

func TestFlowVarStoreOverwritingKindClearsOtherField(t *testing.T) {
	var s FlowVarStore

	s.SetStr(3, []byte("x"))
	s.SetInt(3, 7)

	fv := s.Get(3)
	assert.Equal(t, FlowVarInt, fv.Kind)
	assert.Equal(t, uint32(7), fv.Int)
	assert.Nil(t, fv.Str)
}

// TestFlowVarStoreSetStrCopiesRatherThanAliasing guards against a caller's
// packet buffer getting reused (and mutated) after SetStr returns, since
// packet buffers in this package are routinely reused across packets.
func TestFlowVarStoreSetStrCopiesRatherThanAliasing(t *testing.T) {
	var s FlowVarStore

	buf := []byte("hello")
	s.SetStr(1, buf)

	for i := range buf {
		buf[i] = 'X'
	}

	assert.Equal(t, []byte("hello"), s.Get(1).Str, "stored value must not alias the caller's backing array")
}

func TestFlowVarStoreLenAcrossMultipleVars(t *testing.T) {
	var s FlowVarStore

	s.SetStr(0, []byte("a"))
	s.SetInt(1, 1)
	s.SetStr(2, []byte("c"))

	assert.Equal(t, 3, s.Len())
}
