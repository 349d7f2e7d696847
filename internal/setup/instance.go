package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/antimony-sandbox/antimony/internal/notify"
	"github.com/antimony-sandbox/antimony/internal/spawner"
	"github.com/antimony-sandbox/antimony/internal/syscalldb"
	"github.com/google/uuid"
)

// Instance is one live run: its own scratch directory under
// $XDG_RUNTIME_DIR/antimony/, a liveness symlink cross-linked into the
// profile's sys_dir/instances/ so a concurrent refresh can tell the cache
// is still in use, and the process handles the pipeline ends up
// associating with it once they're spawned.
type Instance struct {
	Name string
	Dir  string

	// SysDir is the per-profile-hash cache directory this instance was
	// allocated under (see resolveSysDir) — distinct from Dir, the
	// instance's own ephemeral runtime-dir scratch space.
	SysDir string

	link string

	Program *spawner.Handle
	Proxy   *spawner.Handle

	// monitorCancel stops the in-process syscall monitor's accept loop
	// (see runLocalTask); nil when the profile's SECCOMP policy isn't
	// Notify.
	monitorCancel context.CancelFunc

	// homeLock holds profile.home.lock's exclusive flock for the
	// instance's lifetime; released by closing it.
	homeLock *os.File

	// Recorder accumulates the syscall decisions a Notify-policy monitor
	// observes for this instance's run; nil when the profile's SECCOMP
	// policy isn't Notify or no syscall database was supplied. CommitSyscalls
	// flushes it.
	Recorder *notify.Recorder
}

// CommitSyscalls persists this instance's observed syscalls to db, if it
// recorded any. Callers should invoke this once the sandboxed program has
// exited and before Close tears the instance down.
func (i *Instance) CommitSyscalls(db *syscalldb.DB) error {
	if i.Recorder == nil || db == nil {
		return nil
	}
	return i.Recorder.Commit(db)
}

// NewInstance allocates a new instance under the runtime directory and
// cross-links it into sys/instances/, per spec.md §4.9 step 3.
func NewInstance(sys string) (*Instance, error) {
	name := fmt.Sprintf("antimony-%s", uuid.New().String())
	dir := filepath.Join(runtimeDir(), "antimony", name)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, wrapSetupErr("Could not allocate the instance directory", err)
	}

	linkDir := instancesDir(sys)
	if err := os.MkdirAll(linkDir, 0o755); err != nil {
		os.RemoveAll(dir)
		return nil, wrapSetupErr("Could not create the instance liveness directory", err)
	}

	link := filepath.Join(linkDir, name)
	if err := os.Symlink(dir, link); err != nil {
		os.RemoveAll(dir)
		return nil, wrapSetupErr("Could not create the instance liveness symlink", err)
	}

	return &Instance{Name: name, Dir: dir, SysDir: sys, link: link}, nil
}

// Close signals every associated process handle (SIGTERM, then SIGKILL
// after grace if it's still alive), removes the runtime scratch directory,
// and deletes the liveness symlink — spec.md §4.10's instance-drop
// sequence.
func (i *Instance) Close() error {
	const grace = 5 * time.Second

	var firstErr error
	for _, h := range []*spawner.Handle{i.Program, i.Proxy} {
		if h == nil || !h.Alive() {
			continue
		}
		if err := h.Terminate(grace); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if i.monitorCancel != nil {
		i.monitorCancel()
	}
	if i.homeLock != nil {
		i.homeLock.Close()
	}

	if err := os.Remove(i.link); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = err
	}
	if err := os.RemoveAll(i.Dir); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func runtimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return v
	}
	return fmt.Sprintf("/run/user/%d", os.Getuid())
}
