package antimony

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/safedep/dry/log"
	"github.com/spf13/cobra"

	"github.com/antimony-sandbox/antimony/config"
	"github.com/antimony-sandbox/antimony/internal/eventlog"
	"github.com/antimony-sandbox/antimony/internal/identity"
	"github.com/antimony-sandbox/antimony/internal/lifecycle"
	"github.com/antimony-sandbox/antimony/internal/notify"
	"github.com/antimony-sandbox/antimony/internal/syscalldb"
	"github.com/antimony-sandbox/antimony/internal/ui"
	"github.com/antimony-sandbox/antimony/profile"
)

// runFlags mirrors spec.md §3's run override surface: everything a
// profile's TOML can declare is also settable for a single invocation,
// applied on top of the fabricated Profile just before setup.Run/
// lifecycle.Run see it.
type runFlags struct {
	configTable string
	seccomp     string
	homePolicy  string
	homeName    string
	disableIPC  bool
	userBus     bool
	systemBus   bool
	see         []string
	talk        []string
	own         []string
	call        []string
	portals     []string
	binaries    []string
	libraries   []string
	devices     []string
	env         []string
	sandboxArgs []string

	features  []string
	conflicts []string
	inherits  []string
	path      string

	ro              []string
	rw              []string
	filePassthrough bool
	namespaces      []string

	dry     bool
	refresh bool
	debug   bool
	log     bool
}

// NewRunCommand implements `antimony run <profile> [args...] [-- args...]`:
// spec.md §4.10's full load → fabricate → spawn → report pipeline.
func NewRunCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:                "run <profile> [-- args...]",
		Short:              "Launch a sandboxed application from a profile",
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile(cmd.Context(), args[0], args[1:], flags)
		},
	}

	cmd.Flags().StringVar(&flags.configTable, "config", "", "Configuration table to select from the profile")
	cmd.Flags().StringVar(&flags.seccomp, "seccomp", "", "Override the SECCOMP policy (permissive|enforcing|notify|disabled)")
	cmd.Flags().StringVar(&flags.homePolicy, "home-policy", "", "Override the $HOME policy (persistent|transient|none)")
	cmd.Flags().StringVar(&flags.homeName, "home-name", "", "Override the persistent home's on-disk name")
	cmd.Flags().BoolVar(&flags.disableIPC, "disable-ipc", false, "Disable D-Bus mediation entirely")
	cmd.Flags().BoolVar(&flags.userBus, "user-bus", false, "Bind the real session bus instead of proxying it")
	cmd.Flags().BoolVar(&flags.systemBus, "system-bus", false, "Bind the real system bus instead of proxying it")
	cmd.Flags().StringSliceVar(&flags.see, "see", nil, "Additional D-Bus names the sandbox may see")
	cmd.Flags().StringSliceVar(&flags.talk, "talk", nil, "Additional D-Bus names the sandbox may talk to")
	cmd.Flags().StringSliceVar(&flags.own, "own", nil, "Additional D-Bus names the sandbox may own")
	cmd.Flags().StringSliceVar(&flags.call, "call", nil, "Additional D-Bus calls the sandbox may make")
	cmd.Flags().StringSliceVar(&flags.portals, "portals", nil, "Additional xdg-desktop-portal interfaces to allow")
	cmd.Flags().StringSliceVar(&flags.binaries, "binaries", nil, "Additional binaries to bind into the sandbox")
	cmd.Flags().StringSliceVar(&flags.libraries, "libraries", nil, "Additional libraries to bind into the sandbox")
	cmd.Flags().StringSliceVar(&flags.devices, "devices", nil, "Additional device nodes to bind into the sandbox")
	cmd.Flags().StringSliceVar(&flags.env, "env", nil, "Additional KEY=VALUE environment entries")
	cmd.Flags().StringSliceVar(&flags.sandboxArgs, "sandbox-args", nil, "Additional raw bwrap arguments")
	cmd.Flags().StringSliceVar(&flags.features, "features", nil, "Additional features to resolve into the profile")
	cmd.Flags().StringSliceVar(&flags.conflicts, "conflicts", nil, "Additional features to blacklist during resolution")
	cmd.Flags().StringSliceVar(&flags.inherits, "inherits", nil, "Additional profile(s) to inherit from")
	cmd.Flags().StringVar(&flags.path, "path", "", "Override the resolved program path")
	cmd.Flags().StringSliceVar(&flags.ro, "ro", nil, "Additional paths bound read-only")
	cmd.Flags().StringSliceVar(&flags.rw, "rw", nil, "Additional paths bound read-write")
	cmd.Flags().BoolVar(&flags.filePassthrough, "file-passthrough", false, "Bind command-tail file arguments into the sandbox")
	cmd.Flags().StringSliceVar(&flags.namespaces, "namespaces", nil, "Additional Linux namespaces to leave shared with the host")
	cmd.Flags().BoolVar(&flags.dry, "dry", false, "Plan the sandbox without spawning the program")
	cmd.Flags().BoolVar(&flags.refresh, "refresh", false, "Force a fresh fabrication, bypassing the cache")
	cmd.Flags().BoolVar(&flags.debug, "debug-log", false, "Capture the proxy's debug log")
	cmd.Flags().BoolVar(&flags.log, "log", false, "Capture the sandbox's output for the error log")

	return cmd
}

func runProfile(ctx context.Context, name string, tail []string, flags runFlags) error {
	cfg := config.Get().Config

	gate, err := identity.NewGate()
	if err != nil {
		ui.ErrorExit(err)
		return err
	}

	loadOpts := profile.LoadOptions{
		SystemMode: cfg.SystemMode,
		SkipCache:  flags.refresh,
		Gate:       gate,
	}
	if flags.configTable != "" {
		loadOpts.Config = &flags.configTable
	}

	p, err := profile.Load(name, loadOpts)
	if err != nil {
		ui.ErrorExit(err)
		return err
	}

	if err := applyRunOverrideInherits(&p, flags, cfg.SystemMode); err != nil {
		ui.ErrorExit(err)
		return err
	}
	if err := applyRunOverrideFeatures(gate, &p, name, flags, cfg.SystemMode); err != nil {
		ui.ErrorExit(err)
		return err
	}

	applyRunFlags(&p, flags)

	var db *syscalldb.DB
	dbPath := filepath.Join(profile.AtHome(), "seccomp.db")
	if d, err := syscalldb.Open(dbPath); err == nil {
		db = d
		defer db.Close()
	} else {
		log.Warnf("Continuing without a syscall database: %v", err)
	}

	report := ui.NewReportData(name, name)

	interaction := notify.Interaction{
		SetStatus:   ui.SetStatus,
		ClearStatus: ui.ClearStatus,
		ShowWarning: ui.ShowWarning,
		Confirm: func(req notify.Request) (bool, error) {
			allow, err := ui.GetConfirmationOnSyscall(req)
			if allow {
				report.AllowedSyscalls++
			} else {
				report.DeniedSyscalls++
			}
			return allow, err
		},
	}

	ui.SetStatus(fmt.Sprintf("launching %s", name))
	eventlog.LogRunStarted(name, name)

	result, err := lifecycle.Run(ctx, lifecycle.Options{
		Name:        name,
		Profile:     &p,
		Tail:        tail,
		Refresh:     flags.refresh,
		Dry:         flags.dry,
		Debug:       flags.debug,
		Log:         flags.log,
		Gate:        gate,
		DB:          db,
		Interaction: interaction,
	})
	ui.ClearStatus()

	if err != nil {
		report.Outcome = ui.OutcomeError
		ui.Report(report)
		ui.ErrorExit(err)
		return err
	}

	if flags.dry {
		report.Outcome = ui.OutcomeDryRun
		ui.Report(report)
		return nil
	}

	eventlog.LogRunExited(name, name, result.ExitCode)
	report.ExitCode = result.ExitCode
	if result.ExitCode == 0 {
		report.Outcome = ui.OutcomeSuccess
	} else {
		report.Outcome = ui.OutcomeChildError
	}
	if p.Seccomp != nil && *p.Seccomp == profile.SeccompNotify && report.DeniedSyscalls > 0 {
		report.Outcome = ui.OutcomeUserDenied
	}
	if p.Seccomp != nil {
		report.SeccompPolicy = string(*p.Seccomp)
	}
	if p.Home != nil && p.Home.Policy != nil {
		report.HomePolicy = string(*p.Home.Policy)
	}
	if p.Ipc != nil {
		report.PortalCount = len(p.Ipc.Portals)
	}

	ui.Report(report)

	if result.ExitCode != 0 {
		return &exitCodeError{code: result.ExitCode}
	}
	return nil
}

// applyRunOverrideInherits layers any --inherits profiles onto p, the same
// way Load folds a profile's own declared Inherits list in: a field p
// already has wins over one from the additional parent.
func applyRunOverrideInherits(p *profile.Profile, flags runFlags, systemMode bool) error {
	for _, parent := range flags.inherits {
		parentProfile, err := profile.Load(parent, profile.LoadOptions{SystemMode: systemMode})
		if err != nil {
			return err
		}
		profile.Merge(p, parentProfile)
	}
	return nil
}

// applyRunOverrideFeatures folds --features/--conflicts into p's feature
// set and re-fabricates. Fabricate is safe to run twice: resolution and the
// file/binary/namespace merges it drives are monotone under inclusion, so
// re-running it with p's already-resolved Features plus the CLI additions
// only adds what's new.
func applyRunOverrideFeatures(gate *identity.Gate, p *profile.Profile, name string, flags runFlags, systemMode bool) error {
	if len(flags.features) == 0 && len(flags.conflicts) == 0 {
		return nil
	}

	p.Features = append(p.Features, flags.features...)
	p.Conflicts = append(p.Conflicts, flags.conflicts...)

	loader := profile.NewFeatureLoader(func(featName string) (*profile.Feature, error) {
		return profile.LoadFeatureFile(featName, systemMode)
	})
	return profile.Fabricate(gate, p, name, loader)
}

func applyRunFlags(p *profile.Profile, flags runFlags) {
	if flags.path != "" {
		p.Path = &flags.path
	}

	if len(flags.ro) > 0 || len(flags.rw) > 0 {
		if p.Files == nil {
			p.Files = &profile.Files{}
		}
		if p.Files.Direct == nil {
			p.Files.Direct = profile.FileSet{}
		}
		if len(flags.ro) > 0 {
			p.Files.Direct[profile.FileModeReadOnly] = append(p.Files.Direct[profile.FileModeReadOnly], flags.ro...)
		}
		if len(flags.rw) > 0 {
			p.Files.Direct[profile.FileModeReadWrite] = append(p.Files.Direct[profile.FileModeReadWrite], flags.rw...)
		}
	}
	if flags.filePassthrough {
		if p.Files == nil {
			p.Files = &profile.Files{}
		}
		p.Files.Passthrough = &flags.filePassthrough
	}

	if len(flags.namespaces) > 0 {
		namespaces := make([]profile.Namespace, len(flags.namespaces))
		for i, ns := range flags.namespaces {
			namespaces[i] = profile.Namespace(ns)
		}
		p.Namespaces = append(p.Namespaces, namespaces...)
	}

	if flags.seccomp != "" {
		policy := profile.SeccompPolicy(flags.seccomp)
		p.Seccomp = &policy
	}
	if flags.homePolicy != "" || flags.homeName != "" {
		if p.Home == nil {
			p.Home = &profile.Home{}
		}
		if flags.homePolicy != "" {
			policy := profile.HomePolicy(flags.homePolicy)
			p.Home.Policy = &policy
		}
		if flags.homeName != "" {
			p.Home.Name = &flags.homeName
		}
	}

	if flags.disableIPC || flags.userBus || flags.systemBus || len(flags.see) > 0 ||
		len(flags.talk) > 0 || len(flags.own) > 0 || len(flags.call) > 0 || len(flags.portals) > 0 {
		if p.Ipc == nil {
			p.Ipc = &profile.Ipc{}
		}
		if flags.disableIPC {
			p.Ipc.Disable = &flags.disableIPC
		}
		if flags.userBus {
			p.Ipc.UserBus = &flags.userBus
		}
		if flags.systemBus {
			p.Ipc.SystemBus = &flags.systemBus
		}
		p.Ipc.See = append(p.Ipc.See, flags.see...)
		p.Ipc.Talk = append(p.Ipc.Talk, flags.talk...)
		p.Ipc.Own = append(p.Ipc.Own, flags.own...)
		p.Ipc.Call = append(p.Ipc.Call, flags.call...)
		p.Ipc.Portals = append(p.Ipc.Portals, flags.portals...)
	}

	p.Binaries = append(p.Binaries, flags.binaries...)
	p.Libraries = append(p.Libraries, flags.libraries...)
	p.Devices = append(p.Devices, flags.devices...)
	p.SandboxArgs = append(p.SandboxArgs, flags.sandboxArgs...)

	if len(flags.env) > 0 {
		if p.Environment == nil {
			p.Environment = map[string]string{}
		}
		for _, kv := range flags.env {
			key, value, ok := splitKV(kv)
			if ok {
				p.Environment[key] = value
			}
		}
	}
}

func splitKV(s string) (key, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// exitCodeError carries a sandboxed program's exit code back to main so it
// can be reflected as the process's own exit status without printing an
// extra error line (the run report already said what happened).
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("child exited with code %d", e.code)
}

// ExitCode returns the wrapped exit code, used by main to set os.Exit.
func (e *exitCodeError) ExitCode() int { return e.code }
