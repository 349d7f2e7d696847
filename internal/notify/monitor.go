package notify

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"unsafe"

	"github.com/safedep/dry/log"
	"golang.org/x/sys/unix"

	"github.com/antimony-sandbox/antimony/internal/seccomp"
	"github.com/antimony-sandbox/antimony/usefulerror"
)

// kernelNotif mirrors struct seccomp_notif (linux/seccomp.h). args holds the
// syscall_data's six argument words; nr/arch/ip precede them per the kernel
// layout, so the struct cannot be reordered.
type kernelNotif struct {
	ID    uint64
	Pid   uint32
	Flags uint32
	Nr    int32
	Arch  uint32
	IP    uint64
	Args  [6]uint64
}

// kernelResp mirrors struct seccomp_notif_resp.
type kernelResp struct {
	ID    uint64
	Val   int64
	Error int32
	Flags uint32
}

const (
	iocNotifRecv    = 0xc0502100 // SECCOMP_IOCTL_NOTIF_RECV
	iocNotifSend    = 0xc0182101 // SECCOMP_IOCTL_NOTIF_SEND
	iocNotifIDValid = 0x40082102 // SECCOMP_IOCTL_NOTIF_ID_VALID

	respFlagContinue = 1 << 0 // SECCOMP_USER_NOTIF_FLAG_CONTINUE
)

// verdict is the outcome of deciding a single intercepted syscall. Unlike a
// plain bool, it distinguishes three kernel-visible responses: letting the
// syscall actually run, faking a zero return without running it, and
// denying it outright with an injected errno.
type verdict int

const (
	// verdictDeny injects -EPERM and never runs the syscall.
	verdictDeny verdict = iota
	// verdictAllow lets the kernel run the syscall as the process issued it.
	verdictAllow
	// verdictPretendSuccess reports success (a zero return) without ever
	// running the syscall, for re-entrant calls that must appear to have
	// worked but would be unsafe or meaningless to actually execute.
	verdictPretendSuccess
)

// Monitor accepts SECCOMP-notify file descriptors handed off over a UNIX
// socket (one per sandboxed executor) and services decisions on each until
// its connection closes or the context is cancelled.
type Monitor struct {
	socketPath  string
	interaction Interaction
	onDecision  func(pid uint32, syscall string, allowed bool)
}

// NewMonitor creates a Monitor listening at socketPath once Serve is called.
func NewMonitor(socketPath string, interaction Interaction) *Monitor {
	return &Monitor{
		socketPath:  socketPath,
		interaction: interaction,
	}
}

// OnDecision installs a callback invoked after every decision, used by the
// caller to accumulate the syscall database's RecordSyscalls batch.
func (m *Monitor) OnDecision(f func(pid uint32, syscall string, allowed bool)) {
	m.onDecision = f
}

// Serve listens on the monitor's UNIX socket until ctx is cancelled,
// dispatching one goroutine per accepted connection.
func (m *Monitor) Serve(ctx context.Context) error {
	_ = os.Remove(m.socketPath)

	listener, err := net.Listen("unix", m.socketPath)
	if err != nil {
		return usefulerror.Useful().WithCode(usefulerror.ErrCodeSeccomp).
			WithHumanError("Could not start the syscall monitor socket").Wrap(err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			m.serveConn(ctx, conn.(*net.UnixConn))
		}()
	}
}

// serveConn receives the notify FD over SCM_RIGHTS and runs the decision
// loop until the FD is closed by the kernel (the executor exited) or ctx is
// done.
func (m *Monitor) serveConn(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()

	notifyFD, err := receiveFD(conn)
	if err != nil {
		log.Errorf("notify: receiving fd: %v", err)
		return
	}
	defer unix.Close(notifyFD)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, err := recvNotif(notifyFD)
		if err != nil {
			if err == unix.ENOENT {
				// the kernel invalidated this notification mid-flight; retry.
				continue
			}
			return
		}

		v, err := m.decide(req)
		if err != nil {
			log.Errorf("notify: deciding on %s: %v", req.Syscall, err)
			v = verdictDeny
		}

		if err := sendResp(notifyFD, req.ID, v); err != nil {
			log.Errorf("notify: responding to %s: %v", req.Syscall, err)
			return
		}

		if m.onDecision != nil {
			m.onDecision(req.Pid, req.Syscall, v != verdictDeny)
		}
	}
}

func (m *Monitor) decide(req Request) (verdict, error) {
	m.interaction.setStatus(fmt.Sprintf("syscall %s from pid %d", req.Syscall, req.Pid))
	defer m.interaction.clearStatus()

	if v, handled := handleKernelQuirk(req); handled {
		return v, nil
	}

	if m.interaction.Confirm == nil {
		return verdictDeny, nil
	}
	allow, err := m.interaction.Confirm(req)
	if allow {
		return verdictAllow, err
	}
	return verdictDeny, err
}

// handleKernelQuirk recognises the handful of syscalls the reference
// monitor always special-cases regardless of policy: prctl(PR_SET_SECCOMP)
// re-entry from a nested sandbox must appear to succeed without actually
// re-arming seccomp a second time, and the sentinel fchmod(-1, 0o7777) some
// loaders issue as a liveness probe must always be refused.
func handleKernelQuirk(req Request) (v verdict, handled bool) {
	switch req.Syscall {
	case "prctl":
		const prSetSeccomp = 22
		if req.Args[0] == prSetSeccomp {
			return verdictPretendSuccess, true
		}
	case "fchmod":
		const modeSentinel = 0o7777
		if int64(int32(req.Args[0])) == -1 && req.Args[1] == modeSentinel {
			return verdictDeny, true
		}
	}
	return verdictDeny, false
}

func recvNotif(fd int) (Request, error) {
	var kn kernelNotif
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), iocNotifRecv, uintptr(unsafe.Pointer(&kn)))
	if errno != 0 {
		return Request{}, errno
	}

	name, ok := seccomp.SyscallName(uint32(kn.Nr))
	if !ok {
		name = fmt.Sprintf("#%d", kn.Nr)
	}

	return Request{ID: kn.ID, Pid: kn.Pid, Syscall: name, Args: kn.Args}, nil
}

// sendResp reports a verdict back to the kernel. verdictAllow lets the
// syscall actually run (SECCOMP_USER_NOTIF_FLAG_CONTINUE); verdictDeny
// injects -EPERM, matching the reference monitor's consistent choice of
// EPERM over EACCES for every denial; verdictPretendSuccess reports a clean
// zero return without ever running the syscall.
func sendResp(fd int, id uint64, v verdict) error {
	resp := kernelResp{ID: id}
	switch v {
	case verdictAllow:
		resp.Flags = respFlagContinue
	case verdictPretendSuccess:
		// error=0, val=0, flags=0: a successful return, syscall not run.
	case verdictDeny:
		resp.Error = -int32(unix.EPERM)
		resp.Val = -1
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), iocNotifSend, uintptr(unsafe.Pointer(&resp)))
	if errno != 0 {
		return errno
	}
	return nil
}

// receiveFD reads a single-byte payload message carrying one FD via
// SCM_RIGHTS, the handoff protocol the executor uses to transfer its
// SECCOMP-notify listener FD to the monitor after Filter.Load.
func receiveFD(conn *net.UnixConn) (int, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))

	_, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return 0, err
	}

	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, err
	}
	if len(cmsgs) == 0 {
		return 0, fmt.Errorf("no control message received")
	}

	fds, err := unix.ParseUnixRights(&cmsgs[0])
	if err != nil {
		return 0, err
	}
	if len(fds) == 0 {
		return 0, fmt.Errorf("no file descriptors received")
	}

	return fds[0], nil
}
