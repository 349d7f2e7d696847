package identity

import "sync"

// Singleton is a process-global reentrant guard for critical sections that
// must not run concurrently with themselves, modelled on the registry
// pattern's RWMutex-guarded state but exposing TryAcquire so a caller that
// already owns the section never blocks on itself.
type Singleton struct {
	mu     sync.Mutex
	owners map[string]bool
}

// NewSingleton constructs an empty singleton guard.
func NewSingleton() *Singleton {
	return &Singleton{owners: map[string]bool{}}
}

// TryAcquire attempts to take the critical section named by label. It
// returns a release function and true on success; it returns false, nil
// when label is already held — callers must treat false as "already inside,
// proceed without re-acquiring" rather than as failure.
func (s *Singleton) TryAcquire(label string) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owners[label] {
		return nil, false
	}

	s.owners[label] = true
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.owners, label)
	}, true
}
