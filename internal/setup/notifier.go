package setup

import (
	"net"

	"github.com/antimony-sandbox/antimony/internal/seccomp"
	"golang.org/x/sys/unix"
)

// exemptSyscalls are always allowed regardless of policy so that handing
// the SECCOMP-notify FD off to the monitor (a sendmsg over an already-open
// UNIX socket) cannot itself be blocked by the filter it's delivering.
var exemptSyscalls = []seccomp.Rule{
	{Action: seccomp.ActionAllow, Syscall: "sendmsg"},
	{Action: seccomp.ActionAllow, Syscall: "close"},
	{Action: seccomp.ActionAllow, Syscall: "exit"},
	{Action: seccomp.ActionAllow, Syscall: "exit_group"},
}

// monitorNotifier implements seccomp.Notifier by connecting to the
// syscall monitor's (C5) UNIX socket ahead of the filter load and handing
// the kernel's notify FD across via SCM_RIGHTS once the filter is applied,
// the sending counterpart of receiveFD in internal/notify/monitor.go.
type monitorNotifier struct {
	socketPath string
	conn       *net.UnixConn
}

func newMonitorNotifier(socketPath string) *monitorNotifier {
	return &monitorNotifier{socketPath: socketPath}
}

func (n *monitorNotifier) Exempt() []seccomp.Rule {
	return exemptSyscalls
}

func (n *monitorNotifier) Prepare() error {
	conn, err := net.Dial("unix", n.socketPath)
	if err != nil {
		return wrapSetupErr("Could not reach the syscall monitor", err)
	}
	n.conn = conn.(*net.UnixConn)
	return nil
}

func (n *monitorNotifier) Handle(notifyFD int) error {
	defer n.conn.Close()

	rights := unix.UnixRights(notifyFD)
	if _, _, err := n.conn.WriteMsgUnix([]byte{0}, rights, nil); err != nil {
		return wrapSetupErr("Could not hand the notify fd to the syscall monitor", err)
	}
	return nil
}
