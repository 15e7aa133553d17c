package hwaccel

import (
	"sync"
	"sync/atomic"
)

// driverLock serializes every call into the native driver. The driver is not
// reentrant, so one lock covers the whole display connection and all
// sessions sharing it.
//
// held is best-effort bookkeeping for AssertHeld. It cannot tell *which*
// goroutine holds the lock, only that somebody does, which is enough to
// catch internal helpers called outside the lock.
type driverLock struct {
	mu   sync.Mutex
	held atomic.Bool
}

func (l *driverLock) Lock() {
	l.mu.Lock()
	l.held.Store(true)
}

func (l *driverLock) Unlock() {
	l.held.Store(false)
	l.mu.Unlock()
}

// AssertHeld panics if the lock is not held. Internal helpers whose names
// end in Locked call this on entry.
func (l *driverLock) AssertHeld() {
	if !l.held.Load() {
		fatalf("driver lock not held")
	}
}
