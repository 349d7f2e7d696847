package setup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/antimony-sandbox/antimony/internal/dbusproxy"
	"github.com/antimony-sandbox/antimony/internal/fabricate"
	"github.com/antimony-sandbox/antimony/internal/identity"
	"github.com/antimony-sandbox/antimony/internal/notify"
	"github.com/antimony-sandbox/antimony/internal/seccomp"
	"github.com/antimony-sandbox/antimony/internal/spawner"
	"github.com/antimony-sandbox/antimony/internal/syscalldb"
	"github.com/antimony-sandbox/antimony/profile"
	"github.com/antimony-sandbox/antimony/usefulerror"
)

const (
	bwrapBinary = "/usr/bin/bwrap"

	documentsPortalTimeout = 5 * time.Second
	readyTimeout           = 10 * time.Second
)

// Options parameterises one Run of the setup pipeline.
type Options struct {
	Name    string
	Profile *profile.Profile
	Tail    []string // command-line tokens after a trailing "--"

	Refresh bool // rebuild into the "-refresh" sibling rather than disturb live instances
	Dry     bool // stop after planning; do not spawn the sandboxed program
	Debug   bool // pass --log through to the proxy

	Gate *identity.Gate
	DB   *syscalldb.DB // syscall database; nil disables SECCOMP-calls lookup and recording

	Interaction notify.Interaction // used to service a Notify-policy monitor

	// PreSpawn, if set, runs just before the sandboxed program is
	// spawned, with access to its still-building Spawner and the
	// already-allocated Instance (so ANTIMONY_INSTANCE/ANTIMONY_CACHE
	// are resolvable). C10's hook runner uses this to run serial
	// pre-hooks, associate attach/parent hook handles, and wire
	// stdout/stderr capture pipes before the program actually starts.
	PreSpawn func(*spawner.Spawner, *Instance) error
}

// Result is what a completed (or dry) pipeline run produced.
type Result struct {
	Instance *Instance
	Hash     string
	SysDir   string
}

// fabricationResult is what the local task (home, files, binaries,
// libraries, /etc, /dev, namespaces, SECCOMP) produces, joined back into
// Run alongside the proxy task's result.
type fabricationResult struct {
	BwrapArgs []string
	ExecBinds []fabricate.ExecBind
	Seccomp   *seccomp.Filter
	Monitor   *notify.Monitor
	Recorder  *notify.Recorder
	HomeLock  *os.File
}

// Run executes the ordered pipeline spec.md §4.9 describes: hash the
// profile, resolve (and possibly pivot) its cache directory, allocate an
// instance, wake the Documents portal, run the proxy and local-fabrication
// tasks in parallel, join them into one executor invocation, run the
// post-arg fabricator, and wait for readiness before the sandboxed program
// is considered live.
func Run(ctx context.Context, opts Options) (*Result, error) {
	hash, err := profile.Hash(*opts.Profile)
	if err != nil {
		return nil, wrapSetupErr("Could not hash the profile", err)
	}

	sys, _, err := resolveSysDir(hash, opts.Refresh)
	if err != nil {
		return nil, err
	}

	instance, err := NewInstance(sys)
	if err != nil {
		return nil, err
	}

	ipc := opts.Profile.Ipc
	if ipcEnabled(ipc) {
		go func() {
			_ = dbusproxy.WaitForDocumentsPortal(context.Background(), documentsPortalTimeout)
		}()
	}

	var proxyHandle *spawner.Handle
	var fab *fabricationResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if !ipcEnabled(ipc) || userBusRequested(ipc) {
			return nil
		}
		h, err := runProxyTask(instance, opts, sys)
		proxyHandle = h
		return err
	})
	g.Go(func() error {
		r, err := runLocalTask(gctx, opts, instance, sys)
		fab = r
		return err
	})

	if err := g.Wait(); err != nil {
		instance.Close()
		return nil, err
	}

	instance.Proxy = proxyHandle
	instance.homeLock = fab.HomeLock
	instance.Recorder = fab.Recorder
	if fab.Monitor != nil {
		monitorCtx, cancel := context.WithCancel(context.Background())
		instance.monitorCancel = cancel
		go func() {
			_ = fab.Monitor.Serve(monitorCtx)
		}()
	}

	postArgs, postBinds := fabricate.FabricatePostArgs(opts.Profile, opts.Tail)

	appPath := profile.AppPath(opts.Profile, opts.Name)

	args := append([]string{}, fab.BwrapArgs...)
	args = append(args, postBinds...)

	if userBusRequested(ipc) {
		args = append(args, "--ro-bind", hostBusSocketPath(), filepath.Join(runtimeDir(), "bus"))
	} else if proxyHandle != nil {
		args = append(args, "--ro-bind", filepath.Join(instance.Dir, "proxy", "bus"), filepath.Join(runtimeDir(), "bus"))
	}

	programSpawner := spawner.Abs(bwrapBinary).Named(opts.Name)
	programSpawner.Args(args...)

	for _, eb := range fab.ExecBinds {
		f, err := os.Open(eb.Source)
		if err != nil {
			instance.Close()
			return nil, wrapSetupErr("Could not open a file to bind executable", err)
		}
		programSpawner.FdArg("--file", f)
		programSpawner.Arg(eb.Dest)
		programSpawner.Args("--chmod", "555", eb.Dest)
	}

	if info, err := dbusproxy.OpenBwrapInfoFile(runtimeDir(), instance.Name); err == nil {
		programSpawner.FdArg("--json-status-fd", info)
	}

	if fab.Seccomp != nil {
		programSpawner.Seccomp(fab.Seccomp)
	}
	if proxyHandle != nil {
		programSpawner.Associate("proxy", proxyHandle)
	}

	programSpawner.Args("--", appPath)
	programSpawner.Args(postArgs...)

	result := &Result{Instance: instance, Hash: hash, SysDir: sys}

	if opts.Dry {
		return result, nil
	}

	if err := waitForReadiness(ctx, instance, proxyHandle != nil); err != nil {
		instance.Close()
		return nil, err
	}

	if opts.PreSpawn != nil {
		if err := opts.PreSpawn(programSpawner, instance); err != nil {
			instance.Close()
			return nil, err
		}
	}

	handle, err := programSpawner.Spawn()
	if err != nil {
		instance.Close()
		return nil, usefulerror.Useful().
			WithCode(usefulerror.ErrCodeRuntime).
			WithHumanError("Could not start the sandboxed program").
			Wrap(err)
	}
	instance.Program = handle

	return result, nil
}

// runProxyTask builds and launches the D-Bus proxy, building its directory
// and the Flatpak-compatible info file the proxy's own sandbox binds in.
func runProxyTask(instance *Instance, opts Options, sys string) (*spawner.Handle, error) {
	proxyDir := filepath.Join(instance.Dir, "proxy")
	if err := os.MkdirAll(proxyDir, 0o755); err != nil {
		return nil, wrapSetupErr("Could not create the proxy directory", err)
	}

	infoPath := filepath.Join(instance.Dir, ".flatpak-info")
	shareNet := dbusproxy.ShareNetwork(opts.Profile.Namespaces)
	if err := dbusproxy.WriteFlatpakInfo(infoPath, profile.FlatpakID(opts.Profile, opts.Name), instance.Name, shareNet); err != nil {
		return nil, err
	}

	return dbusproxy.Run(dbusproxy.Config{
		AppID:       profile.FlatpakID(opts.Profile, opts.Name),
		Instance:    instance.Name,
		ProxyDir:    proxyDir,
		InfoPath:    infoPath,
		SharedCache: SandboxCacheRoot(),
		Ipc:         opts.Profile.Ipc,
		Gate:        opts.Gate,
		Debug:       opts.Debug,
	})
}

// runLocalTask runs the sequential home → files → binaries → libraries →
// etc/dev/namespaces → SECCOMP chain spec.md §4.9 step 5 describes as the
// "local task", entirely independent of the proxy task running alongside
// it.
func runLocalTask(ctx context.Context, opts Options, instance *Instance, sys string) (*fabricationResult, error) {
	p := opts.Profile
	var args []string

	homeBinds, lockFile, err := homeArgs(p.Home, opts.Name)
	if err != nil {
		return nil, err
	}
	args = append(args, homeBinds...)

	fileArgs, execBinds, err := fabricate.FabricateFiles(p, sys)
	if err != nil {
		return nil, err
	}
	args = append(args, fileArgs...)

	for k, v := range p.Environment {
		args = append(args, "--setenv", k, v)
	}

	libFab := fabricate.NewLibraryFabricator()
	binFab, err := fabricate.NewBinaryFabricator(libFab.IsLibRoot)
	if err != nil {
		return nil, err
	}

	binArgs, elfBinaries, err := binFab.Fabricate(p, opts.Name)
	if err != nil {
		return nil, err
	}
	args = append(args, binArgs...)

	sof := filepath.Join(sys, "sof")
	libArgs, err := libFab.Fabricate(elfBinaries, p.Libraries, sof, SandboxCacheRoot())
	if err != nil {
		return nil, err
	}
	args = append(args, libArgs...)

	args = append(args, fabricate.FabricateDev(p.Devices)...)
	args = append(args, fabricate.FabricateNamespaces(p.Namespaces)...)

	etcArgs, err := fabricate.FabricateEtc(os.Getuid(), os.Getgid(), sys)
	if err != nil {
		return nil, err
	}
	args = append(args, etcArgs...)

	policy := profile.SeccompEnforcing
	if p.Seccomp != nil {
		policy = *p.Seccomp
	}

	var monitor *notify.Monitor
	var recorder *notify.Recorder
	var filter *seccomp.Filter
	if policy != profile.SeccompDisabled {
		programCalls, executorCalls, err := loadExtraBinaries(opts.DB, opts.Name, elfBinaries)
		if err != nil {
			return nil, wrapSetupErr("Could not read the syscall database", err)
		}

		if policy == profile.SeccompNotify {
			socketPath := filepath.Join(instance.Dir, "monitor.sock")
			monitor = notify.NewMonitor(socketPath, opts.Interaction)
			if opts.DB != nil {
				recorder = notify.NewRecorder(opts.Name)
				monitor.OnDecision(func(pid uint32, syscallName string, allowed bool) {
					path, err := notify.ResolveBinaryPath(pid)
					if err != nil {
						path = opts.Name
					}
					recorder.Observe(path, syscallName, allowed)
				})
			}
			filter = buildSeccompFilter(policy, programCalls, executorCalls, socketPath)
		} else {
			filter = buildSeccompFilter(policy, programCalls, executorCalls, "")
		}
	}

	return &fabricationResult{
		BwrapArgs: args,
		ExecBinds: execBinds,
		Seccomp:   filter,
		Monitor:   monitor,
		Recorder:  recorder,
		HomeLock:  lockFile,
	}, nil
}

func ipcEnabled(ipc *profile.Ipc) bool {
	if ipc == nil {
		return false
	}
	return ipc.Disable == nil || !*ipc.Disable
}

func userBusRequested(ipc *profile.Ipc) bool {
	return ipc != nil && ipc.UserBus != nil && *ipc.UserBus
}

func hostBusSocketPath() string {
	return filepath.Join(runtimeDir(), "bus")
}

// waitForReadiness blocks until every inotify watch the parallel phase
// registered has signalled, per spec.md §4.9 step 8: the proxy's socket,
// if a proxy was launched.
func waitForReadiness(ctx context.Context, instance *Instance, proxyLaunched bool) error {
	if !proxyLaunched {
		return nil
	}
	busPath := filepath.Join(instance.Dir, "proxy", "bus")
	return dbusproxy.WaitForSocket(ctx, busPath, readyTimeout)
}
