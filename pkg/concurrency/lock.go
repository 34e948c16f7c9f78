package concurrency

import "sync"

// Lock serializes access to a resource shared across workers, such as a
// terminal. Prefer With over explicit Acquire/Release: it guarantees the
// lock is released even when the protected code panics.
type Lock struct {
	mu sync.Mutex
}

// NewLock creates an unlocked Lock.
func NewLock() *Lock {
	return &Lock{}
}

// Acquire takes the lock, blocking until it is free.
func (l *Lock) Acquire() {
	l.mu.Lock()
}

// Release gives the lock back. Calling Release without holding the lock is a
// programming error and panics, matching sync.Mutex.
func (l *Lock) Release() {
	l.mu.Unlock()
}

// With runs fn while holding the lock.
func (l *Lock) With(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}
