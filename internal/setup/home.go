package setup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/antimony-sandbox/antimony/profile"
	"golang.org/x/sys/unix"
)

// homeMountPath is where a sandboxed home directory lands inside the
// sandbox unless the profile overrides it.
const homeMountPath = "/home/antimony"

// homeLockTimeout bounds how long homeArgs waits for an exclusive lock on
// a profile.home.lock-protected directory before giving up.
const homeLockTimeout = 3 * time.Second

// homeArgs computes the executor bind directives for a profile's sandboxed
// home directory, grounded on setup/home.rs: persistent homes are bound
// directly so writes land on disk across runs, transient homes sit behind
// a throwaway overlay so writes never reach the backing directory, and
// HomePolicyNone skips the step entirely. h.Lock additionally takes an
// exclusive flock on the backing directory for the instance's lifetime,
// returning the lock file so the caller can release it on teardown.
func homeArgs(h *profile.Home, name string) (args []string, lockFile *os.File, err error) {
	if h == nil {
		return nil, nil, nil
	}

	dirName := name
	if h.Name != nil {
		dirName = *h.Name
	}
	homeDir := filepath.Join(dataHome(), "antimony", dirName)

	policy := profile.HomePolicyTransient
	if h.Policy != nil {
		policy = *h.Policy
	}
	if policy == profile.HomePolicyNone {
		return nil, nil, nil
	}

	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return nil, nil, wrapSetupErr("Could not create the sandbox home directory", err)
	}

	mount := homeMountPath
	if h.Path != nil {
		mount = *h.Path
	}

	if h.Lock != nil && *h.Lock {
		lockFile, err = acquireHomeLock(homeDir)
		if err != nil {
			return nil, nil, err
		}
	}

	if policy == profile.HomePolicyPersistent {
		return []string{"--bind", homeDir, mount}, lockFile, nil
	}
	return []string{"--overlay-src", homeDir, "--tmp-overlay", mount}, lockFile, nil
}

// acquireHomeLock takes a non-blocking exclusive flock on a sentinel file
// inside dir, retrying until homeLockTimeout elapses, so two instances
// sharing the same sandbox home never run concurrently.
func acquireHomeLock(dir string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, ".antimony-lock"), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, wrapSetupErr("Could not open the sandbox home lock file", err)
	}

	deadline := time.Now().Add(homeLockTimeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return f, nil
		}
		if err != unix.EWOULDBLOCK || time.Now().After(deadline) {
			f.Close()
			return nil, wrapSetupErr("This sandbox home is already locked by another instance", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func dataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp"
	}
	return filepath.Join(home, ".local", "share")
}
