package identity

import (
	"context"
	"sync"
)

// reentrantLock is a mutex that a caller already inside a critical section
// may re-enter without deadlocking. Go has no stable goroutine-id to key a
// classic reentrant mutex on, so re-entry is tracked explicitly via
// context.Context instead (see Open Question decision 4 in DESIGN.md): a
// held lock stores a context key in the context it hands back from Acquire,
// and a nested Acquire carrying that same context short-circuits.
type reentrantLock struct {
	mu sync.Mutex
}

func newReentrantLock() *reentrantLock {
	return &reentrantLock{}
}

type lockKey struct{}

// Acquire blocks until the lock is free (unless ctx already marks it held
// by this call chain, in which case it returns immediately) and returns a
// context callers must thread into any nested call that might re-acquire,
// plus a release function that must be deferred.
func (l *reentrantLock) Acquire(ctx context.Context) (context.Context, func()) {
	if ctx.Value(lockKey{}) != nil {
		return ctx, func() {}
	}

	l.mu.Lock()
	return context.WithValue(ctx, lockKey{}, true), l.mu.Unlock
}
