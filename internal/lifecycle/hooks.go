package lifecycle

import (
	"os"

	"github.com/antimony-sandbox/antimony/internal/fabricate"
	"github.com/antimony-sandbox/antimony/internal/identity"
	"github.com/antimony-sandbox/antimony/internal/spawner"
	"github.com/antimony-sandbox/antimony/profile"
)

const bashBinary = "/usr/bin/bash"

// hookEnv is the ANTIMONY_* environment every hook sees, per spec.md
// §4.10: name, cache directory, instance name, and (when the
// profile has a home) the sandboxed home path.
type hookEnv struct {
	Name     string
	Cache    string
	Instance string
	Home     string
}

// buildSpawner turns a profile.Hook into a not-yet-spawned Spawner: either
// its path (expanded against the real user's home the way every other
// profile-authored path is) or, if only content is set, a bash -c
// invocation of that content. If neither is set it returns an error.
func buildSpawner(h profile.Hook, env hookEnv) (*spawner.Spawner, error) {
	var s *spawner.Spawner

	switch {
	case h.Path != nil:
		home, _ := os.UserHomeDir()
		resolved := fabricate.ExpandVariables(*h.Path, home)
		built, err := spawner.New(resolved)
		if err != nil {
			return nil, wrapHookErr("Could not find the hook binary", err)
		}
		s = built
	case h.Content != nil:
		s = spawner.Abs(bashBinary).Args("-c", *h.Content)
	default:
		return nil, wrapHookErr("A hook needs a path or content", nil)
	}

	name := "hook"
	if h.Name != nil {
		name = *h.Name
	}
	s.Named(name)

	s.PreserveEnv(h.Env != nil && *h.Env)
	s.Env("ANTIMONY_NAME", env.Name)
	s.Env("ANTIMONY_CACHE", env.Cache)
	s.Env("ANTIMONY_INSTANCE", env.Instance)
	if env.Home != "" {
		s.Env("ANTIMONY_HOME", env.Home)
	}

	if h.NewPrivileges != nil && *h.NewPrivileges {
		s.NewPrivileges(true)
	}
	if len(h.Args) > 0 {
		s.Args(h.Args...)
	}

	return s, nil
}

func canFail(h profile.Hook) bool {
	return h.CanFail != nil && *h.CanFail
}

func attaches(h profile.Hook) bool {
	return h.Attach != nil && *h.Attach
}

// runSequentialHook builds, spawns (under the real identity), and waits
// for a single non-attach hook, enforcing its can_fail policy.
func runSequentialHook(gate *identity.Gate, h profile.Hook, env hookEnv) error {
	var handle *spawner.Handle
	err := gate.RunAs(identity.Real, func() error {
		s, err := buildSpawner(h, env)
		if err != nil {
			return err
		}
		handle, err = s.Spawn()
		return err
	})
	if err != nil {
		return wrapHookErr("Could not run hook", err)
	}

	if waitErr := handle.Wait(); waitErr != nil && !canFail(h) {
		return wrapHookErr("Hook failed", waitErr)
	}
	return nil
}

// spawnAttachableHook builds and spawns h under the real identity without
// waiting for it, for the attach and parent cases where the hook's
// lifetime extends past setup. A non-negative stdinFd becomes the hook's
// stdin: the read end of a pipe the caller connects to the sandbox's own
// stdout/stderr; the caller owns closing both ends once they are handed
// off.
func spawnAttachableHook(gate *identity.Gate, h profile.Hook, env hookEnv, stdinFd int) (*spawner.Handle, error) {
	var handle *spawner.Handle
	err := gate.RunAs(identity.Real, func() error {
		s, err := buildSpawner(h, env)
		if err != nil {
			return err
		}
		if stdinFd >= 0 {
			s.Input(spawner.Fd, stdinFd)
		}
		handle, err = s.Spawn()
		return err
	})
	if err != nil {
		return nil, wrapHookErr("Could not run hook", err)
	}
	return handle, nil
}

// captureFd returns the raw fd the hook should read from, plus the
// matching fd the sandboxed program should write its stdout/stderr to,
// per h's CaptureOutput/CaptureError flags (CaptureError wins if both are
// set). ok is false when neither is requested.
func captureFd(h profile.Hook) (readFd, writeFd int, stderr, ok bool, cleanup func(), err error) {
	wantErr := h.CaptureError != nil && *h.CaptureError
	wantOut := h.CaptureOutput != nil && *h.CaptureOutput
	if !wantErr && !wantOut {
		return 0, 0, false, false, nil, nil
	}

	r, w, perr := os.Pipe()
	if perr != nil {
		return 0, 0, false, false, nil, wrapHookErr("Could not create a capture pipe for a hook", perr)
	}

	cleanup = func() {
		r.Close()
		w.Close()
	}
	return int(r.Fd()), int(w.Fd()), wantErr, true, cleanup, nil
}
