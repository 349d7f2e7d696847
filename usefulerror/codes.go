package usefulerror

// Standard error codes that can be re-used across the project.
// We will use a human friendly format for the error codes and not align with posix error codes.
// Keep this minimal. Reuse first before adding new ones.
const (
	ErrCodeInvalidArgument  = "InvalidArgument"
	ErrCodePermissionDenied = "PermissionDenied"
	ErrCodeNotFound         = "NotFound"
	ErrCodeTimeout          = "Timeout"
	ErrCodeCanceled         = "Canceled"
	ErrCodeUnexpectedEOF    = "UnexpectedEOF"
	ErrCodeUnknown          = "Unknown"
	ErrCodeLifecycle        = "Lifecycle"
	ErrCodeNetwork          = "Network"

	// ErrCodeProfileLoad covers profile/feature not found, malformed TOML,
	// unrecognised fields, and missing inherit targets.
	ErrCodeProfileLoad = "ProfileLoad"

	// ErrCodeFeatureResolution covers conflicting features after striking
	// leave no consistent set, or a required binary can't be found in PATH.
	ErrCodeFeatureResolution = "FeatureResolution"

	// ErrCodeFabrication covers ELF analysis or wildcard expansion failing
	// on a file that exists (permission, corrupt binary). Non-fatal: callers
	// log at warn and skip the file.
	ErrCodeFabrication = "Fabrication"

	// ErrCodeChildSpawn covers Errno(Parent|Child, step, errno) failures
	// from the spawner.
	ErrCodeChildSpawn = "ChildSpawn"

	// ErrCodeSeccomp covers filter init, attribute set, rule add, load, or
	// notify-FD transfer failure.
	ErrCodeSeccomp = "Seccomp"

	// ErrCodeIPC covers D-Bus proxy spawn, socket/portal readiness timeout,
	// and .flatpak-info materialisation failures.
	ErrCodeIPC = "IPC"

	// ErrCodeDatabase covers I/O failure on the syscall or profile store.
	ErrCodeDatabase = "Database"

	// ErrCodeSetup covers the ordered setup pipeline: instance allocation,
	// the refresh-pivot rename, and the final readiness join timing out.
	ErrCodeSetup = "Setup"

	// ErrCodeRuntime covers the sandbox executor exiting non-zero.
	ErrCodeRuntime = "Runtime"

	// ErrCodeHook covers a non-attach hook failing with non-zero exit, or
	// an attach/parent hook dying mid-run.
	ErrCodeHook = "Hook"
)
