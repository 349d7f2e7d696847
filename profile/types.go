// Package profile implements C6: the declarative Profile/Feature model —
// data types, TOML load/save, inherit/configuration merge semantics, and
// the feature dependency-resolution algorithm. Grounded field-for-field on
// the reference implementation's profile and feature records (see
// DESIGN.md); adapted from Rust's Option<T>/BTreeSet/BTreeMap idiom to Go's
// nil-able pointers, slices, and maps plus deterministic sort-before-use.
package profile

// FileMode is the access mode a file or directory is bound into the
// sandbox with.
type FileMode string

const (
	FileModeExecutable FileMode = "executable"
	FileModeReadOnly   FileMode = "readonly"
	FileModeReadWrite  FileMode = "readwrite"
)

// AllFileModes lists every FileMode in evaluation order.
var AllFileModes = []FileMode{FileModeExecutable, FileModeReadOnly, FileModeReadWrite}

// SeccompPolicy chooses how (or whether) SECCOMP constrains the sandbox.
type SeccompPolicy string

const (
	SeccompPermissive SeccompPolicy = "permissive"
	SeccompEnforcing  SeccompPolicy = "enforcing"
	SeccompNotify     SeccompPolicy = "notify"
	SeccompDisabled   SeccompPolicy = "disabled"
)

// Namespace is a Linux namespace the sandbox can retain (by default, every
// namespace is unshared; listing one here keeps it shared with the host).
type Namespace string

const (
	NamespaceUser   Namespace = "user"
	NamespaceNet    Namespace = "net"
	NamespacePID    Namespace = "pid"
	NamespaceIPC    Namespace = "ipc"
	NamespaceUTS    Namespace = "uts"
	NamespaceCgroup Namespace = "cgroup"
)

// HomePolicy controls how the sandboxed home directory is constructed.
type HomePolicy string

const (
	// HomePolicyPersistent reuses the same on-disk home across runs.
	HomePolicyPersistent HomePolicy = "persistent"
	// HomePolicyTransient discards the home when the sandbox exits.
	HomePolicyTransient HomePolicy = "transient"
	// HomePolicyNone gives the sandbox no home at all: nothing is mounted
	// for it.
	HomePolicyNone HomePolicy = "none"
)

// Home configures the sandbox's $HOME.
type Home struct {
	Name   *string     `toml:"name,omitempty" json:"name,omitempty"`
	Path   *string     `toml:"path,omitempty" json:"path,omitempty"`
	Lock   *bool       `toml:"lock,omitempty" json:"lock,omitempty"`
	Policy *HomePolicy `toml:"policy,omitempty" json:"policy,omitempty"`
}

// Ipc configures the D-Bus mediation the sandbox gets via the proxy.
type Ipc struct {
	// Disable skips the proxy entirely: no session or system bus is
	// reachable from the sandbox at all.
	Disable *bool `toml:"disable,omitempty" json:"disable,omitempty"`
	// SystemBus binds the real system-bus socket directly instead of
	// proxying it.
	SystemBus *bool `toml:"system_bus,omitempty" json:"system_bus,omitempty"`
	// UserBus binds the real session-bus socket directly instead of
	// proxying it; when set, the proxy process is never started.
	UserBus *bool `toml:"user_bus,omitempty" json:"user_bus,omitempty"`

	Portals []string `toml:"portals,omitempty" json:"portals,omitempty"`
	See     []string `toml:"see,omitempty" json:"see,omitempty"`
	Talk    []string `toml:"talk,omitempty" json:"talk,omitempty"`
	Own     []string `toml:"own,omitempty" json:"own,omitempty"`
	Call    []string `toml:"call,omitempty" json:"call,omitempty"`
}

// FileSet maps each FileMode to the list of paths bound with that mode.
type FileSet map[FileMode][]string

// Files groups the four path namespaces the profile can bind: Direct paths
// are used verbatim, Platform/Resources are canonicalized at the sandbox
// root, User paths are canonicalized under the sandboxed home.
type Files struct {
	Direct    FileSet `toml:"direct,omitempty" json:"direct,omitempty"`
	Platform  FileSet `toml:"platform,omitempty" json:"platform,omitempty"`
	Resources FileSet `toml:"resources,omitempty" json:"resources,omitempty"`
	User      FileSet `toml:"user,omitempty" json:"user,omitempty"`

	// Passthrough controls whether the post-argument fabricator binds
	// path-like command-tail tokens (existing files or file:// URIs)
	// into the sandbox so a passed filename actually resolves there.
	Passthrough *bool `toml:"passthrough,omitempty" json:"passthrough,omitempty"`
}

// Hooks groups the programs run in coordination with a sandbox's
// lifecycle: pre runs serially before the sandbox starts, post runs after
// it exits, and parent (if set) is an attached pre-hook that becomes the
// outer process — the sandbox is associated with it rather than the
// other way around.
type Hooks struct {
	Pre    []Hook `toml:"pre,omitempty" json:"pre,omitempty"`
	Post   []Hook `toml:"post,omitempty" json:"post,omitempty"`
	Parent *Hook  `toml:"parent,omitempty" json:"parent,omitempty"`
}

// Hook is one program run alongside a profile. It is invoked as the real
// user with ANTIMONY_NAME/ANTIMONY_CACHE/ANTIMONY_INSTANCE (and
// ANTIMONY_HOME, when the profile has a home) in its environment.
type Hook struct {
	Name    *string  `toml:"name,omitempty" json:"name,omitempty"`
	Path    *string  `toml:"path,omitempty" json:"path,omitempty"`
	Content *string  `toml:"content,omitempty" json:"content,omitempty"`
	Args    []string `toml:"args,omitempty" json:"args,omitempty"`

	// Attach keeps a pre-hook running alongside the sandbox instead of
	// waiting for it to finish before the sandbox starts; the sandbox's
	// handle is associated with the hook's so either one dying tears
	// down the other. Ignored (and invalid) on post-hooks.
	Attach *bool `toml:"attach,omitempty" json:"attach,omitempty"`

	// Env shares the invoking process's environment with the hook in
	// addition to the ANTIMONY_* variables.
	Env *bool `toml:"env,omitempty" json:"env,omitempty"`

	// CanFail lets a non-zero exit pass without aborting setup.
	CanFail *bool `toml:"can_fail,omitempty" json:"can_fail,omitempty"`

	// NewPrivileges allows the hook to gain privileges antimony itself
	// does not hold (PR_SET_NO_NEW_PRIVS left unset for this child).
	NewPrivileges *bool `toml:"new_privileges,omitempty" json:"new_privileges,omitempty"`

	// CaptureOutput/CaptureError pipe the sandbox's stdout/stderr to the
	// hook's stdin. Only one may be set; if both are, CaptureError wins.
	CaptureOutput *bool `toml:"capture_output,omitempty" json:"capture_output,omitempty"`
	CaptureError  *bool `toml:"capture_error,omitempty" json:"capture_error,omitempty"`
}

// Profile is the complete declarative description of one sandboxed
// application.
type Profile struct {
	Path    *string `toml:"path,omitempty" json:"path,omitempty"`
	ID      *string `toml:"id,omitempty" json:"id,omitempty"`

	Features  []string `toml:"features,omitempty" json:"features,omitempty"`
	Conflicts []string `toml:"conflicts,omitempty" json:"conflicts,omitempty"`
	Inherits  []string `toml:"inherits,omitempty" json:"inherits,omitempty"`

	Home    *Home          `toml:"home,omitempty" json:"home,omitempty"`
	Seccomp *SeccompPolicy `toml:"seccomp,omitempty" json:"seccomp,omitempty"`
	Ipc     *Ipc           `toml:"ipc,omitempty" json:"ipc,omitempty"`
	Files   *Files         `toml:"files,omitempty" json:"files,omitempty"`

	Binaries   []string    `toml:"binaries,omitempty" json:"binaries,omitempty"`
	Libraries  []string    `toml:"libraries,omitempty" json:"libraries,omitempty"`
	Devices    []string    `toml:"devices,omitempty" json:"devices,omitempty"`
	Namespaces []Namespace `toml:"namespaces,omitempty" json:"namespaces,omitempty"`

	Environment map[string]string `toml:"environment,omitempty" json:"environment,omitempty"`
	Arguments   []string          `toml:"arguments,omitempty" json:"arguments,omitempty"`

	Configuration map[string]Profile `toml:"configuration,omitempty" json:"configuration,omitempty"`
	Hooks         *Hooks              `toml:"hooks,omitempty" json:"hooks,omitempty"`
	SandboxArgs   []string            `toml:"sandbox_args,omitempty" json:"sandbox_args,omitempty"`
}

// Feature is a miniature, reusable profile fragment that a Profile pulls in
// by name via Features/Conflicts.
type Feature struct {
	Name        string  `toml:"name" json:"name"`
	Description string  `toml:"description" json:"description"`
	Conditional *string `toml:"conditional,omitempty" json:"conditional,omitempty"`
	Caveat      *string `toml:"caveat,omitempty" json:"caveat,omitempty"`

	Requires  []string `toml:"requires,omitempty" json:"requires,omitempty"`
	Conflicts []string `toml:"conflicts,omitempty" json:"conflicts,omitempty"`

	Ipc        *Ipc        `toml:"ipc,omitempty" json:"ipc,omitempty"`
	Namespaces []Namespace `toml:"namespaces,omitempty" json:"namespaces,omitempty"`
	Files      *Files      `toml:"files,omitempty" json:"files,omitempty"`
	Binaries   []string    `toml:"binaries,omitempty" json:"binaries,omitempty"`
	Libraries  []string    `toml:"libraries,omitempty" json:"libraries,omitempty"`
	Devices    []string    `toml:"devices,omitempty" json:"devices,omitempty"`

	Environment map[string]string `toml:"environment,omitempty" json:"environment,omitempty"`
	SandboxArgs []string          `toml:"sandbox_args,omitempty" json:"sandbox_args,omitempty"`
	Hooks       *Hooks            `toml:"hooks,omitempty" json:"hooks,omitempty"`
}
