package reassemble

import (
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// poolClassSizes are the fixed payload-capacity classes a Pool pre-sizes
// (spec.md §4.1). A request for n bytes is served from the smallest class
// with capacity >= n.
var poolClassSizes = [...]int{4, 16, 112, 248, 512, 768, 1448, 65535}

type segmentClass struct {
	size int
	free []*Segment
	mu   sync.Mutex
}

// Pool is the C1 Segment Pool: a fixed-class slab allocator for Segment
// records, backed by a shared MemCounter that enforces the global memory
// cap. Each class is guarded by its own mutex, held only across a single
// Get or Put — never across a memcpy or another lock, per spec.md §5.
type Pool struct {
	classes [len(poolClassSizes)]*segmentClass
	mem     *MemCounter
	log     *zap.Logger
}

// NewPool constructs a Pool that accounts its allocations against mem.
func NewPool(mem *MemCounter, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pool{mem: mem, log: log}
	for i, size := range poolClassSizes {
		p.classes[i] = &segmentClass{size: size}
	}

	return p
}

// classFor returns the index of the smallest class able to hold n bytes,
// or -1 if n exceeds every class (the largest class is the maximum segment
// size a single TCP segment payload can ever carry, so this should not
// happen for well-formed input).
func classFor(n int) int {
	for i, size := range poolClassSizes {
		if size >= n {
			return i
		}
	}

	return -1
}

// overhead accounts for the Segment record itself plus bookkeeping,
// charged in addition to the raw payload bytes so memcap reflects actual
// process memory rather than payload bytes alone.
const segmentOverhead = 64

// Get returns a Segment whose backing buffer can hold at least n bytes, or
// false if the memory cap would be exceeded. The caller must treat a false
// result as a hard drop for the segment under construction and raise
// REASSEMBLY_NO_SEGMENT.
func (p *Pool) Get(n int) (*Segment, bool) {
	class := classFor(n)
	if class < 0 {
		p.log.Error("segment request exceeds largest pool class",
			zap.Int("requested", n),
			zap.Int("largest_class", poolClassSizes[len(poolClassSizes)-1]),
		)

		return nil, false
	}

	c := p.classes[class]

	c.mu.Lock()
	if l := len(c.free); l > 0 {
		seg := c.free[l-1]
		c.free = c.free[:l-1]
		c.mu.Unlock()

		seg.Payload = seg.buf[:0]

		return seg, true
	}
	c.mu.Unlock()

	// no free segment in this class: fall back to on-demand allocation,
	// gated by the memcap.
	if !p.mem.Reserve(c.size + segmentOverhead) {
		p.log.Debug("segment pool drained",
			zap.Int("class", c.size),
			zap.String("used", humanize.Bytes(uint64(p.mem.Used()))),
			zap.String("cap", humanize.Bytes(uint64(p.mem.Cap()))),
		)

		return nil, false
	}

	seg := &Segment{
		class: class,
		buf:   make([]byte, c.size),
	}
	seg.Payload = seg.buf[:0]

	return seg, true
}

// Put resets seg and returns it to its class's free list, making it
// available for a future Get. It does not release memcap accounting: the
// backing buffer is kept for reuse, so its bytes remain charged until
// Destroy releases the free list.
func (p *Pool) Put(seg *Segment) {
	if seg == nil {
		return
	}

	seg.reset()

	c := p.classes[seg.class]

	c.mu.Lock()
	c.free = append(c.free, seg)
	c.mu.Unlock()
}

// Destroy releases every currently-free segment's memory accounting. Used
// at engine shutdown; segments still checked out (e.g. referenced by a
// stream that is mid-teardown) must be Put first.
func (p *Pool) Destroy() {
	for _, c := range p.classes {
		c.mu.Lock()
		for range c.free {
			p.mem.Release(c.size + segmentOverhead)
		}
		c.free = nil
		c.mu.Unlock()
	}
}
