package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyLockerSerializesSameKey(t *testing.T) {
	l := NewKeyLocker()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock("abc", func() error {
				v := counter
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
	require.Equal(t, 0, l.size())
}

func TestKeyLockerDistinctKeysDoNotBlock(t *testing.T) {
	l := NewKeyLocker()
	l.AcquireLock("a")
	defer l.ReleaseLock("a")

	done := make(chan struct{})
	go func() {
		l.AcquireLock("b")
		l.ReleaseLock("b")
		close(done)
	}()
	<-done
}

func TestLeaseTable(t *testing.T) {
	lt := NewLeaseTable()

	require.True(t, lt.TryAcquire("h1", "s1"))
	require.True(t, lt.TryAcquire("h1", "s1"))
	require.False(t, lt.TryAcquire("h1", "s2"))

	holder, ok := lt.Holder("h1")
	require.True(t, ok)
	require.Equal(t, "s1", holder)

	lt.Release("h1", "s2")
	_, ok = lt.Holder("h1")
	require.True(t, ok)

	lt.Release("h1", "s1")
	_, ok = lt.Holder("h1")
	require.False(t, ok)

	require.True(t, lt.TryAcquire("h1", "s2"))
	require.Equal(t, map[string]string{"h1": "s2"}, lt.Snapshot())
}
