package seccomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyscallNumberKnownAndUnknown(t *testing.T) {
	nr, ok := SyscallNumber("execve")
	require.True(t, ok)
	assert.Equal(t, uint32(59), nr)

	_, ok = SyscallNumber("not_a_real_syscall")
	assert.False(t, ok)
}

func TestFilterBuildRejectsUnknownSyscall(t *testing.T) {
	f := New(ActionErrno).AddRule(ActionAllow, "not_a_real_syscall")
	_, err := f.build()
	assert.Error(t, err)
}

func TestFilterBuildProducesArchGateAndRules(t *testing.T) {
	f := New(ActionErrno).
		AddRule(ActionAllow, "execve").
		AddRule(ActionAllow, "wait4").
		AddRule(ActionAllow, "exit")

	prog, err := f.build()
	require.NoError(t, err)

	// arch-load, arch-jump, kill, nr-load, then 2 instructions per rule, then default.
	assert.Equal(t, 4+2*3+1, len(prog))
	assert.Equal(t, uint32(auditArchNative), prog[1].K)
}

type fakeNotifier struct {
	exempt    []Rule
	prepared  bool
	handledFD int
}

func (n *fakeNotifier) Exempt() []Rule { return n.exempt }
func (n *fakeNotifier) Prepare() error { n.prepared = true; return nil }
func (n *fakeNotifier) Handle(fd int) error {
	n.handledFD = fd
	return nil
}

func TestFilterBuildIncludesNotifierExemptRules(t *testing.T) {
	n := &fakeNotifier{exempt: []Rule{{Action: ActionAllow, Syscall: "sendmsg"}}}
	f := New(ActionErrno).WithNotifier(n).AddRule(ActionAllow, "execve")

	prog, err := f.build()
	require.NoError(t, err)
	assert.Equal(t, 4+2*2+1, len(prog))
}
