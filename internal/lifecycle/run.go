package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/antimony-sandbox/antimony/internal/identity"
	"github.com/antimony-sandbox/antimony/internal/notify"
	"github.com/antimony-sandbox/antimony/internal/setup"
	"github.com/antimony-sandbox/antimony/internal/spawner"
	"github.com/antimony-sandbox/antimony/internal/syscalldb"
	"github.com/antimony-sandbox/antimony/profile"
)

// Options parameterises one full run: hooks plus everything setup.Options
// needs to actually build and launch the sandbox.
type Options struct {
	Name    string
	Profile *profile.Profile
	Tail    []string

	Refresh bool
	Dry     bool
	Debug   bool
	Log     bool // capture the sandbox's output for the "Open Error Log" notification action

	Gate *identity.Gate
	DB   *syscalldb.DB

	Interaction notify.Interaction
}

// Result is what a completed run produced.
type Result struct {
	Setup    *setup.Result
	WaitOn   *spawner.Handle // the handle actually waited on: the parent hook's, if configured, otherwise the sandboxed program's
	ExitCode int
}

// Run executes spec.md §4.10. Hooks are processed in the same pass as the
// setup pipeline's own program-Spawner construction — via C9's PreSpawn
// hook — rather than before or after it, because pre-hooks need the
// already-allocated instance's name for ANTIMONY_INSTANCE and because an
// attach hook's handle must be associated into the program's Spawner
// before it is spawned. Order within that pass: non-attach pre-hooks run
// serially and block; attach pre-hooks are spawned and associated; a
// parent hook's output-capture pipe (if any) is wired into the program's
// stdio. Once the pipeline returns with the program already running, the
// parent hook (if configured) is spawned and lifecycle waits on it instead
// of the program directly; post-hooks, the failure notification, syscall
// commit, and instance teardown follow.
func Run(ctx context.Context, opts Options) (*Result, error) {
	p := opts.Profile
	var hooks profile.Hooks
	if p.Hooks != nil {
		hooks = *p.Hooks
	}

	home := ""
	if p.Home != nil && p.Home.Policy != nil && *p.Home.Policy != profile.HomePolicyNone {
		home = resolveHomeDisplayPath(p, opts.Name)
	}

	var cleanupFns []func()
	defer func() {
		for _, c := range cleanupFns {
			c()
		}
	}()

	var parentReadFd = -1
	var parentCaptured bool

	setupOpts := setup.Options{
		Name:        opts.Name,
		Profile:     opts.Profile,
		Tail:        opts.Tail,
		Refresh:     opts.Refresh,
		Dry:         opts.Dry,
		Debug:       opts.Debug,
		Gate:        opts.Gate,
		DB:          opts.DB,
		Interaction: opts.Interaction,
	}

	setupOpts.PreSpawn = func(s *spawner.Spawner, inst *setup.Instance) error {
		env := hookEnv{Name: opts.Name, Cache: inst.SysDir, Instance: inst.Name, Home: home}

		for _, h := range hooks.Pre {
			if attaches(h) {
				continue
			}
			if err := runSequentialHook(opts.Gate, h, env); err != nil {
				return err
			}
		}

		for _, h := range hooks.Pre {
			if !attaches(h) {
				continue
			}

			stdinFd := -1
			readFd, writeFd, isStderr, captured, cleanup, err := captureFd(h)
			if err != nil {
				return err
			}
			if captured {
				stdinFd = readFd
				cleanupFns = append(cleanupFns, cleanup)
				if isStderr {
					s.ErrorStream(spawner.Fd, writeFd)
				} else {
					s.Output(spawner.Fd, writeFd)
				}
			}

			handle, err := spawnAttachableHook(opts.Gate, h, env, stdinFd)
			if err != nil {
				return err
			}
			name := "hook"
			if h.Name != nil {
				name = *h.Name
			}
			s.Associate(name, handle)
		}

		if hooks.Parent != nil {
			readFd, writeFd, isStderr, captured, cleanup, err := captureFd(*hooks.Parent)
			if err != nil {
				return err
			}
			if captured {
				cleanupFns = append(cleanupFns, cleanup)
				if isStderr {
					s.ErrorStream(spawner.Fd, writeFd)
				} else {
					s.Output(spawner.Fd, writeFd)
				}
				parentReadFd = readFd
				parentCaptured = true
			}
		}

		return nil
	}

	result, err := setup.Run(ctx, setupOpts)
	if err != nil {
		return nil, err
	}

	if opts.Dry {
		return &Result{Setup: result}, nil
	}

	env := hookEnv{Name: opts.Name, Cache: result.Instance.SysDir, Instance: result.Instance.Name, Home: home}

	waitOn := result.Instance.Program

	if hooks.Parent != nil {
		stdinFd := -1
		if parentCaptured {
			stdinFd = parentReadFd
		}
		parentHandle, err := spawnAttachableHook(opts.Gate, *hooks.Parent, env, stdinFd)
		if err != nil {
			result.Instance.Close()
			return nil, err
		}
		waitOn = parentHandle
	}

	waitErr := waitOn.Wait()
	exitCode := 0
	if waitErr != nil {
		exitCode = 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) && exitErr.ExitCode() > 0 {
			exitCode = exitErr.ExitCode()
		}
	}

	for _, h := range hooks.Post {
		if err := runSequentialHook(opts.Gate, h, env); err != nil && !canFail(h) {
			exitCode = 1
		}
	}

	if exitCode != 0 {
		logPath := ""
		if opts.Log {
			logPath = result.SysDir
		}
		notifyFailure(opts.Name, exitCode, logPath)
	}

	if opts.DB != nil {
		_ = result.Instance.CommitSyscalls(opts.DB)
	}

	result.Instance.Close()

	return &Result{Setup: result, WaitOn: waitOn, ExitCode: exitCode}, nil
}

func resolveHomeDisplayPath(p *profile.Profile, name string) string {
	dirName := name
	if p.Home.Name != nil {
		dirName = *p.Home.Name
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		if hd, err := os.UserHomeDir(); err == nil {
			dataHome = hd + "/.local/share"
		}
	}
	return dataHome + "/antimony/" + dirName
}
