package lock

import (
	"sync"

	"github.com/apex/log"
)

// KeyLocker hands out one mutex per key. Entries are reference counted and
// dropped once nobody holds or waits on them, so the map does not grow with
// every key ever seen.
type KeyLocker struct {
	mapMutex sync.Mutex
	keyMap   map[string]*keyMutex
}

type keyMutex struct {
	mu      sync.Mutex
	waiters int
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{
		keyMap: make(map[string]*keyMutex),
	}
}

func (l *KeyLocker) AcquireLock(key string) {
	l.mapMutex.Lock()
	km, ok := l.keyMap[key]
	if !ok {
		km = &keyMutex{}
		l.keyMap[key] = km
	}
	km.waiters++
	l.mapMutex.Unlock()

	km.mu.Lock()
}

func (l *KeyLocker) ReleaseLock(key string) {
	l.mapMutex.Lock()
	defer l.mapMutex.Unlock()

	km, ok := l.keyMap[key]
	if !ok {
		log.Errorf("ReleaseLock called on key (%s) with no mutex", key)
		return
	}

	km.waiters--
	if km.waiters == 0 {
		delete(l.keyMap, key)
	}

	km.mu.Unlock()
}

func (l *KeyLocker) WithLock(key string, f func() error) error {
	l.AcquireLock(key)
	defer l.ReleaseLock(key)
	return f()
}

func (l *KeyLocker) size() int {
	l.mapMutex.Lock()
	defer l.mapMutex.Unlock()
	return len(l.keyMap)
}
