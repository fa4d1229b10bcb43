package reassemble

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeqLTBasic(t *testing.T) {
	assert.True(t, SeqLT(1, 2))
	assert.False(t, SeqLT(2, 1))
	assert.False(t, SeqLT(5, 5))
}

func TestSeqWrapAround(t *testing.T) {
	// near the 32-bit wrap boundary, "after" wraps back to a small value.
	a := Sequence(math.MaxUint32 - 10)
	b := Sequence(5)

	assert.True(t, SeqLT(a, b), "b is 16 bytes after a across the wrap")
	assert.True(t, SeqGT(b, a))
}

func TestSeqAmbiguousHalfSpace(t *testing.T) {
	a := Sequence(0)
	b := Sequence(1) << 31

	assert.False(t, SeqLT(a, b))
	assert.False(t, SeqLT(b, a))
	assert.False(t, SeqLEQ(a, b), "LEQ falls back to equality check when order is undecidable")
	assert.False(t, a == b)
}

func TestDistanceAndAdd(t *testing.T) {
	a := Sequence(100)
	b := a.Add(50)

	assert.Equal(t, Sequence(150), b)
	assert.Equal(t, uint32(50), Distance(a, b))
}

func TestDistanceAcrossWrap(t *testing.T) {
	a := Sequence(math.MaxUint32 - 4)
	b := a.Add(10)

	assert.Equal(t, Sequence(5), b)
	assert.Equal(t, uint32(10), Distance(a, b))
}

func TestSeqMinMax(t *testing.T) {
	assert.Equal(t, Sequence(1), SeqMin(1, 2))
	assert.Equal(t, Sequence(2), SeqMax(1, 2))
}
