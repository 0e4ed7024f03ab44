package lock

import "sync"

// LeaseTable records which holder currently owns a key. Unlike KeyLocker it never
// blocks: a second holder asking for a taken key is refused.
type LeaseTable struct {
	mu     sync.Mutex
	leases map[string]string
}

func NewLeaseTable() *LeaseTable {
	return &LeaseTable{leases: make(map[string]string)}
}

// TryAcquire grants key to holder. It returns true when the key was free or is
// already held by the same holder.
func (t *LeaseTable) TryAcquire(key, holder string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.leases[key]
	if ok && current != holder {
		return false
	}

	t.leases[key] = holder
	return true
}

// Release drops the lease when holder owns it. Releasing someone else's lease is
// ignored.
func (t *LeaseTable) Release(key, holder string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.leases[key] == holder {
		delete(t.leases, key)
	}
}

// Holder returns the current holder of key, if any.
func (t *LeaseTable) Holder(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	holder, ok := t.leases[key]
	return holder, ok
}

// Snapshot copies the table, keyed by lease key.
func (t *LeaseTable) Snapshot() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]string, len(t.leases))
	for k, v := range t.leases {
		out[k] = v
	}
	return out
}
