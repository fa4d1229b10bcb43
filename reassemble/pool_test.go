package reassemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolClassFor(t *testing.T) {
	assert.Equal(t, 0, classFor(4))
	assert.Equal(t, 1, classFor(5))
	assert.Equal(t, len(poolClassSizes)-1, classFor(65535))
	assert.Equal(t, -1, classFor(65536))
}

func TestPoolGetPutReuse(t *testing.T) {
	mem := NewMemCounter(0)
	p := NewPool(mem, nil)

	seg, ok := p.Get(100)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, cap(seg.buf), 100)

	usedAfterGet := mem.Used()
	p.Put(seg)

	seg2, ok := p.Get(100)
	assert.True(t, ok)
	assert.Same(t, seg, seg2, "Put segments should be reused by a subsequent Get of the same class")
	assert.Equal(t, usedAfterGet, mem.Used(), "reusing a freed segment must not charge memcap again")
}

func TestPoolRespectsMemcap(t *testing.T) {
	mem := NewMemCounter(200)
	p := NewPool(mem, nil)

	var segs []*Segment

	for i := 0; i < 100; i++ {
		seg, ok := p.Get(16)
		if !ok {
			break
		}

		segs = append(segs, seg)
	}

	assert.Less(t, len(segs), 100, "memcap should eventually refuse allocation")
}

func TestPoolDestroyReleasesFreeSegments(t *testing.T) {
	mem := NewMemCounter(0)
	p := NewPool(mem, nil)

	seg, _ := p.Get(16)
	p.Put(seg)

	assert.Greater(t, mem.Used(), int64(0))

	p.Destroy()
	assert.Equal(t, int64(0), mem.Used())
}
