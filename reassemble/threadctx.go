package reassemble

import "go.uber.org/zap"

// ThreadCtx is C10 (spec.md §4's per-thread context requirement): the
// set of reassembly resources handed to one worker goroutine so that
// packet processing on separate cores never contends on a shared
// allocator or logger handle. Grounded on Suricata's ThreadVars
// (threadvars.h) and the thread-local message/packet pools it wires
// through tm-threads.c — this is the Go-idiomatic shrink of that: no
// queue handlers or affinity bookkeeping (the caller's own worker-pool
// code owns scheduling), just the per-worker allocator and counters a
// reassembly worker actually touches on its hot path.
type ThreadCtx struct {
	Name string

	Pool    *Pool
	AppRA   *AppLayerReassembler
	RawRA   *RawReassembler
	Pruner  *Pruner
	Depth   DepthGate
	Metrics *Metrics

	Log *zap.Logger

	// scratch is a reusable byte buffer for transient work (e.g. building
	// an inboundData slice from a packet's layers before it is known
	// whether the bytes will need pool allocation at all). Reused across
	// calls to avoid an allocation per packet.
	scratch []byte
}

// NewThreadCtx builds a ThreadCtx. mem is the MemCounter shared across all
// threads in the engine (the memcap is global, not per-thread, per
// spec.md §5); metrics may be nil to disable instrumentation.
func NewThreadCtx(name string, mem *MemCounter, depth DepthGate, metrics *Metrics, log *zap.Logger) *ThreadCtx {
	if log == nil {
		log = zap.NewNop()
	}

	pool := NewPool(mem, log.Named("pool"))

	return &ThreadCtx{
		Name:    name,
		Pool:    pool,
		AppRA:   NewAppLayerReassembler(log.Named("applayer")),
		RawRA:   NewRawReassembler(log.Named("raw")),
		Pruner:  NewPruner(pool),
		Depth:   depth,
		Metrics: metrics,
		Log:     log.With(zap.String("thread", name)),
	}
}

// Scratch returns a byte slice of at least n bytes owned by this thread,
// valid until the next call to Scratch.
func (t *ThreadCtx) Scratch(n int) []byte {
	if cap(t.scratch) < n {
		t.scratch = make([]byte, n)
	}

	return t.scratch[:n]
}

// Close tears down the thread's Pool, releasing any still-free segments'
// memcap accounting. Segments still referenced by live streams must
// already have been pruned by the caller before calling Close.
func (t *ThreadCtx) Close() {
	t.Pool.Destroy()
}
