package ft

import (
	"sort"
	"sync"
	"time"
)

// TransferProgress is a snapshot of one in-flight transfer.
type TransferProgress struct {
	SessionID    string    `json:"session_id"`
	OwnerID      string    `json:"owner_id"`
	ContentHash  string    `json:"content_hash"`
	Directory    string    `json:"directory"`
	Name         string    `json:"name"`
	SyncedSize   uint64    `json:"synced_size"`
	DeclaredSize uint64    `json:"declared_size"`
	StartedAt    time.Time `json:"started_at"`
}

// ProgressTracker is an observe-only table of active transfers, keyed by
// session. Sessions write to it; nothing in the transfer path reads it.
type ProgressTracker struct {
	mu        sync.Mutex
	transfers map[string]TransferProgress
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		transfers: make(map[string]TransferProgress),
	}
}

func (t *ProgressTracker) Start(p TransferProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p.StartedAt.IsZero() {
		p.StartedAt = time.Now()
	}
	t.transfers[p.SessionID] = p
}

func (t *ProgressTracker) Update(sessionID string, syncedSize uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.transfers[sessionID]
	if !ok {
		return
	}

	p.SyncedSize = syncedSize
	t.transfers[sessionID] = p
}

func (t *ProgressTracker) Remove(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.transfers, sessionID)
}

// List returns the transfers oldest first.
func (t *ProgressTracker) List() []TransferProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := make([]TransferProgress, 0, len(t.transfers))
	for _, p := range t.transfers {
		list = append(list, p)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].SessionID < list[j].SessionID
		}
		return list[i].StartedAt.Before(list[j].StartedAt)
	})

	return list
}
