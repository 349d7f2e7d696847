package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleKernelQuirkPrctlSetSeccompAlwaysPretendsSuccess(t *testing.T) {
	v, handled := handleKernelQuirk(Request{Syscall: "prctl", Args: [6]uint64{22}})
	assert.True(t, handled)
	assert.Equal(t, verdictPretendSuccess, v)
}

func TestHandleKernelQuirkFchmodSentinelAlwaysDenied(t *testing.T) {
	v, handled := handleKernelQuirk(Request{Syscall: "fchmod", Args: [6]uint64{uint64(int32(-1)), 0o7777}})
	assert.True(t, handled)
	assert.Equal(t, verdictDeny, v)
}

func TestHandleKernelQuirkIgnoresUnrelatedSyscalls(t *testing.T) {
	_, handled := handleKernelQuirk(Request{Syscall: "read"})
	assert.False(t, handled)
}

func TestMonitorDecideDefersToConfirm(t *testing.T) {
	var gotSyscall string
	m := NewMonitor("/tmp/unused.sock", Interaction{
		Confirm: func(req Request) (bool, error) {
			gotSyscall = req.Syscall
			return true, nil
		},
	})

	v, err := m.decide(Request{Syscall: "mount", Pid: 42})
	assert.NoError(t, err)
	assert.Equal(t, verdictAllow, v)
	assert.Equal(t, "mount", gotSyscall)
}

func TestMonitorDecideDeniesByDefaultWithoutConfirm(t *testing.T) {
	m := NewMonitor("/tmp/unused.sock", Interaction{})

	v, err := m.decide(Request{Syscall: "mount"})
	assert.NoError(t, err)
	assert.Equal(t, verdictDeny, v)
}

func TestRecorderObserveOnlyKeepsAllowedSyscalls(t *testing.T) {
	r := NewRecorder("firefox")
	r.Observe("/usr/bin/firefox", "execve", true)
	r.Observe("/usr/bin/firefox", "mount", false)

	assert.Len(t, r.calls["/usr/bin/firefox"], 1)
	assert.True(t, r.calls["/usr/bin/firefox"]["execve"])
}
