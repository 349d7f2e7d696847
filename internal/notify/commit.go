package notify

import (
	"sync"

	"github.com/antimony-sandbox/antimony/internal/syscalldb"
)

// Recorder accumulates (binary, syscall) observations for a profile in
// memory during a run and flushes them to the syscall database in a single
// transaction at the end, rather than performing a bbolt write per
// decision: notify decisions happen on the hot allow/deny path and a
// transaction per syscall would make that path contend with bbolt's
// single-writer lock under load.
type Recorder struct {
	profile string

	mu    sync.Mutex
	calls map[string]map[string]bool // binary path -> syscall name -> seen
}

// NewRecorder creates a Recorder for profile's decisions.
func NewRecorder(profile string) *Recorder {
	return &Recorder{profile: profile, calls: make(map[string]map[string]bool)}
}

// Observe records that syscall was decided (allowed or denied) for the
// process identified by binaryPath. Only allowed syscalls are meaningful to
// persist; denied syscalls are not recorded since they never ran.
func (r *Recorder) Observe(binaryPath, syscallName string, allowed bool) {
	if !allowed {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.calls[binaryPath]
	if !ok {
		set = make(map[string]bool)
		r.calls[binaryPath] = set
	}
	set[syscallName] = true
}

// Commit flushes every accumulated observation to db in one pass.
func (r *Recorder) Commit(db *syscalldb.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for binaryPath, set := range r.calls {
		calls := make([]string, 0, len(set))
		for name := range set {
			calls = append(calls, name)
		}
		if err := db.RecordSyscalls(r.profile, binaryPath, calls); err != nil {
			return err
		}
	}
	return nil
}
