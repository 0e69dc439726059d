package builder

import "sync/atomic"

// jobLock provides non-blocking mutual exclusion for the singleton build
// job using atomic operations.
type jobLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking. Returns true if
// the lock was acquired.
func (l *jobLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock. Must only be called after a successful
// TryAcquire.
func (l *jobLock) Release() {
	l.state.Store(0)
}
