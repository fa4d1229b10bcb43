package reassemble

import (
	"sync"
	"time"
)

// sessionEntry pairs a Session with the exclusive lock a caller must hold
// while operating on it. The reassembler's own entry points never lock —
// per spec.md §5 locking is the caller's responsibility — but something
// has to own the per-flow mutex, and that is this table, not Session
// itself.
type sessionEntry struct {
	sync.Mutex

	session  *Session
	lastSeen time.Time
}

// SessionTable is a concurrency-safe flow-keyed map of Sessions. It is the
// direct generalization of the teacher's atomicConnMap
// (decoder/packet/connection.go): the same "map guarded by one mutex,
// entries individually locked for update" shape, rekeyed from a
// link/network/transport hash triple to whatever flow key the caller's
// capture layer produces (a 5-tuple string, a gopacket.Flow pair, ...).
type SessionTable struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	timeout time.Duration
}

// NewSessionTable builds an empty table. timeout is how long a Session
// may go unreferenced before Sweep reclaims it; zero disables sweeping.
func NewSessionTable(timeout time.Duration) *SessionTable {
	return &SessionTable{
		entries: make(map[string]*sessionEntry),
		timeout: timeout,
	}
}

// Size returns the number of live sessions.
func (t *SessionTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// GetOrCreate returns the Session for key, creating it via newFn if absent.
// It returns the Session already locked; the caller must call Unlock via
// the returned unlock function once done.
func (t *SessionTable) GetOrCreate(key string, now time.Time, newFn func() *Session) (sess *Session, unlock func()) {
	t.mu.Lock()

	e, ok := t.entries[key]
	if !ok {
		e = &sessionEntry{session: newFn()}
		t.entries[key] = e
	}

	t.mu.Unlock()

	e.Lock()
	e.lastSeen = now

	return e.session, e.Unlock
}

// Get returns the Session for key without creating one, or nil if absent.
// As with GetOrCreate, the returned unlock must be called once the caller
// is done, unless ok is false (in which case there is nothing to unlock).
func (t *SessionTable) Get(key string, now time.Time) (sess *Session, unlock func(), ok bool) {
	t.mu.Lock()
	e, found := t.entries[key]
	t.mu.Unlock()

	if !found {
		return nil, nil, false
	}

	e.Lock()
	e.lastSeen = now

	return e.session, e.Unlock, true
}

// Delete removes key's entry outright, without regard to its timeout. The
// caller is responsible for having already run OnSessionDestroy against
// the Session.
func (t *SessionTable) Delete(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

// Sweep removes every entry whose lastSeen is older than now minus the
// configured timeout, invoking destroy(session) for each one before
// dropping it so the caller can flush outstanding bytes and release pool
// segments. Returns the number of sessions swept.
func (t *SessionTable) Sweep(now time.Time, destroy func(*Session)) int {
	if t.timeout == 0 {
		return 0
	}

	var stale []string

	t.mu.Lock()
	for key, e := range t.entries {
		if now.Sub(e.lastSeen) > t.timeout {
			stale = append(stale, key)
		}
	}
	t.mu.Unlock()

	for _, key := range stale {
		t.mu.Lock()
		e, ok := t.entries[key]
		if ok {
			delete(t.entries, key)
		}
		t.mu.Unlock()

		if !ok {
			continue
		}

		e.Lock()
		if destroy != nil {
			destroy(e.session)
		}
		e.Unlock()
	}

	return len(stale)
}
