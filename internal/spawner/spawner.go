// Package spawner implements C2, the fork-exec builder and process handle:
// per-child FD table, capability mask, SECCOMP attach, optional re-user,
// stream capture, name tagging, and association of child processes to a
// parent handle for cascading lifetime management.
package spawner

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/antimony-sandbox/antimony/internal/seccomp"
	"github.com/antimony-sandbox/antimony/usefulerror"
	"golang.org/x/sys/unix"
)

// Capability is a single Linux capability to retain or drop before exec.
type Capability string

// Spawner is a thread-safe builder that is consumed exactly once by Spawn.
// Mutators documented as "thread-safe" in the design (Arg, Args, Fd, FdArg,
// Env, Seccomp) are all serialised by mu so insertion order is preserved
// even when called concurrently; the remaining mutators are intended to be
// called from a single goroutine before Spawn.
type Spawner struct {
	mu sync.Mutex

	path string
	args []string
	env  []string

	extraFiles []*os.File
	fdArgs     map[int]string // fd -> flag, applied as "flag <n>"

	seccompFilter *seccomp.Filter

	stdinMode, stdoutMode, stderrMode StreamMode
	stdinFd, stdoutFd, stderrFd       int

	mode           os.FileMode
	preserveEnv    bool
	newPrivileges  bool
	caps           []Capability
	uid, gid       int
	switchIdentity bool

	associates map[string]*Handle

	name string
}

// New resolves cmd against $PATH with ~/.local/bin stripped, so Antimony's
// own integration symlinks there never shadow the real target.
func New(cmd string) (*Spawner, error) {
	if strings.HasPrefix(cmd, "/") {
		return fromAbs(cmd), nil
	}

	path, err := lookPathWithoutLocalBin(cmd)
	if err != nil {
		return nil, usefulerror.Useful().
			WithCode(usefulerror.ErrCodeChildSpawn).
			WithHumanError(fmt.Sprintf("Could not find %q in PATH", cmd)).
			WithHelp("Check that the binary is installed and on PATH").
			Wrap(err)
	}

	return fromAbs(path), nil
}

// Abs builds a Spawner for an absolute path, skipping PATH resolution.
func Abs(path string) *Spawner {
	return fromAbs(path)
}

func fromAbs(path string) *Spawner {
	return &Spawner{
		path:          path,
		fdArgs:        map[int]string{},
		associates:    map[string]*Handle{},
		newPrivileges: true,
		mode:          0o755,
	}
}

func lookPathWithoutLocalBin(cmd string) (string, error) {
	home, _ := os.UserHomeDir()
	localBin := ""
	if home != "" {
		localBin = home + "/.local/bin"
	}

	pathEnv := os.Getenv("PATH")
	var filtered []string
	for _, dir := range strings.Split(pathEnv, ":") {
		if dir == "" || (localBin != "" && dir == localBin) {
			continue
		}
		filtered = append(filtered, dir)
	}

	oldPath := os.Getenv("PATH")
	defer os.Setenv("PATH", oldPath)
	os.Setenv("PATH", strings.Join(filtered, ":"))

	return exec.LookPath(cmd)
}

// Arg appends a single argument.
func (s *Spawner) Arg(arg string) *Spawner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.args = append(s.args, arg)
	return s
}

// Args appends multiple arguments, preserving order.
func (s *Spawner) Args(args ...string) *Spawner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.args = append(s.args, args...)
	return s
}

// Fd registers a file to survive into the child, returning the FD number
// it will have in the child's table (3 + index among registered extras).
func (s *Spawner) Fd(f *os.File) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extraFiles = append(s.extraFiles, f)
	return 3 + len(s.extraFiles) - 1
}

// FdArg atomically appends "flag <n>" and registers f so it survives exec.
func (s *Spawner) FdArg(flag string, f *os.File) *Spawner {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.extraFiles = append(s.extraFiles, f)
	n := 3 + len(s.extraFiles) - 1
	s.args = append(s.args, flag, strconv.Itoa(n))
	s.fdArgs[n] = flag
	return s
}

// Env appends an environment variable, overriding any prior value for key.
func (s *Spawner) Env(key, value string) *Spawner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env = append(s.env, key+"="+value)
	return s
}

// Seccomp attaches a filter that will be loaded by the child after identity
// switch and capability masking, before execve.
func (s *Spawner) Seccomp(f *seccomp.Filter) *Spawner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seccompFilter = f
	return s
}

// Input sets the child's stdin handling.
func (s *Spawner) Input(mode StreamMode, fd int) *Spawner {
	s.stdinMode, s.stdinFd = mode, fd
	return s
}

// Output sets the child's stdout handling.
func (s *Spawner) Output(mode StreamMode, fd int) *Spawner {
	s.stdoutMode, s.stdoutFd = mode, fd
	return s
}

// ErrorStream sets the child's stderr handling.
func (s *Spawner) ErrorStream(mode StreamMode, fd int) *Spawner {
	s.stderrMode, s.stderrFd = mode, fd
	return s
}

// ModeBits sets the inode permission mode used when Antimony needs to
// materialise an FD-backed executable inode for this command.
func (s *Spawner) ModeBits(mode os.FileMode) *Spawner {
	s.mode = mode
	return s
}

// PreserveEnv controls whether execve receives a cleared or preserved
// environment in addition to the explicitly set Env() pairs.
func (s *Spawner) PreserveEnv(preserve bool) *Spawner {
	s.preserveEnv = preserve
	return s
}

// NewPrivileges controls whether NO_NEW_PRIVS is cleared before exec. It
// defaults to true (kernel default); set false to call prctl(PR_SET_NO_NEW_PRIVS).
func (s *Spawner) NewPrivileges(allow bool) *Spawner {
	s.newPrivileges = allow
	return s
}

// Cap adds a capability to retain through the capability-diff step.
func (s *Spawner) Cap(c Capability) *Spawner {
	s.caps = append(s.caps, c)
	return s
}

// AsUser switches the child to uid/gid before execve.
func (s *Spawner) AsUser(uid, gid int) *Spawner {
	s.uid, s.gid = uid, gid
	s.switchIdentity = true
	return s
}

// Associate attaches a child handle whose lifetime is bound to this
// Spawner's eventual handle: when the parent handle is cleaned up,
// associates are torn down too.
func (s *Spawner) Associate(name string, h *Handle) *Spawner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.associates[name] = h
	return s
}

// Named tags the spawner with a human-readable name for logging/diagnostics.
func (s *Spawner) Named(name string) *Spawner {
	s.name = name
	return s
}
