// Package seccomp implements C3, a thin typed wrapper around the system
// SECCOMP-BPF facility: filter construction, rule/attribute mutation, BPF
// export, and the notify-FD transfer protocol. BPF opcode helpers and the
// x86_64 syscall table are adapted from the reference pack's runc-family
// SECCOMP builder (see DESIGN.md), generalised with the Notifier capability
// the profile model requires.
package seccomp

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Action is the disposition for a matched or unmatched syscall.
type Action uint32

const (
	ActionKillProcess Action = 0x80000000
	ActionKillThread  Action = 0x00000000
	ActionTrap        Action = 0x00030000
	ActionErrno       Action = 0x00050000
	ActionTrace       Action = 0x7ff00000
	ActionLog         Action = 0x7ffc0000
	ActionAllow       Action = 0x7fff0000
	actionNotify      Action = 0x7fc00000
)

const (
	bpfLD  = 0x00
	bpfJMP = 0x05
	bpfRET = 0x06
	bpfW   = 0x00
	bpfABS = 0x20
	bpfJEQ = 0x10
	bpfK   = 0x00

	offsetNR   = 0
	offsetArch = 4
)

// Rule pairs an action with the syscall it applies to.
type Rule struct {
	Action  Action
	Syscall string
}

// Attribute sets a SECCOMP filter attribute (seccomp(2) SECCOMP_SET_MODE_FILTER
// flags, e.g. SPEC_ALLOW or NEW_LISTENER); modelled as a simple flag bit.
type Attribute uint32

const (
	AttributeTSync       Attribute = 1 << 0
	AttributeLog         Attribute = 1 << 1
	AttributeSpecAllow   Attribute = 1 << 2
	AttributeNewListener Attribute = 1 << 3
)

// Notifier is supplied by the caller when a profile's SECCOMP policy is
// Notifying. Its three methods run, in order, during Filter.Load: Exempt
// supplies rules added after the regular rule set so that the syscalls used
// to transmit the notify FD are not themselves subject to notification;
// Prepare runs as the last pre-load action (typically connecting to the
// monitor's listening socket); Handle runs already under the loaded filter
// and sends the obtained notify FD to the monitor.
type Notifier interface {
	Exempt() []Rule
	Prepare() error
	Handle(notifyFD int) error
}

// Filter is a builder for a SECCOMP-BPF program.
type Filter struct {
	defaultAction Action
	rules         []Rule
	attributes    Attribute
	notifier      Notifier
}

// New creates a filter with the given default (unmatched-syscall) action.
func New(defaultAction Action) *Filter {
	return &Filter{defaultAction: defaultAction}
}

// NewNotifying creates a filter whose default (unmatched-syscall) action
// defers to n over the SECCOMP-notify channel rather than allowing,
// logging, or killing outright. actionNotify is deliberately unexported —
// a notifying filter only makes sense paired with a Notifier to service
// it, so this constructor is the only way to reach that default action.
func NewNotifying(n Notifier) *Filter {
	return &Filter{defaultAction: actionNotify, notifier: n}
}

// AddRule appends a rule matched in insertion order; the first matching
// rule's action wins.
func (f *Filter) AddRule(action Action, syscall string) *Filter {
	f.rules = append(f.rules, Rule{Action: action, Syscall: syscall})
	return f
}

// SetAttribute ORs attr into the filter's attribute set.
func (f *Filter) SetAttribute(attr Attribute) *Filter {
	f.attributes |= attr
	return f
}

// WithNotifier attaches a Notifier capability; Load will perform the
// exempt→prepare→apply→notify-fd→handle sequence instead of a plain load.
func (f *Filter) WithNotifier(n Notifier) *Filter {
	f.notifier = n
	return f
}

// sockFilter mirrors the kernel's struct sock_filter.
type sockFilter struct {
	Code uint16
	Jt   uint8
	Jf   uint8
	K    uint32
}

func bpfStmt(code uint16, k uint32) sockFilter {
	return sockFilter{Code: code, K: k}
}

func bpfJump(code uint16, k uint32, jt, jf uint8) sockFilter {
	return sockFilter{Code: code, Jt: jt, Jf: jf, K: k}
}

// build compiles the filter (plus any notifier exempt rules) into a BPF
// program: architecture gate, then one allow/deny jump per rule in
// insertion order, then the default action.
func (f *Filter) build() ([]sockFilter, error) {
	var prog []sockFilter

	prog = append(prog, bpfStmt(bpfLD|bpfW|bpfABS, offsetArch))
	prog = append(prog, bpfJump(bpfJMP|bpfJEQ|bpfK, auditArchNative, 1, 0))
	prog = append(prog, bpfStmt(bpfRET|bpfK, uint32(ActionKillProcess)))

	prog = append(prog, bpfStmt(bpfLD|bpfW|bpfABS, offsetNR))

	rules := f.rules
	if f.notifier != nil {
		rules = append(append([]Rule{}, rules...), f.notifier.Exempt()...)
	}

	for _, rule := range rules {
		nr, ok := SyscallNumber(rule.Syscall)
		if !ok {
			return nil, fmt.Errorf("unknown syscall %q", rule.Syscall)
		}
		prog = append(prog, bpfJump(bpfJMP|bpfJEQ|bpfK, nr, 0, 1))
		prog = append(prog, bpfStmt(bpfRET|bpfK, uint32(rule.Action)))
	}

	prog = append(prog, bpfStmt(bpfRET|bpfK, uint32(f.defaultAction)))
	return prog, nil
}

// Write exports the compiled BPF program to a temp file and returns its FD,
// as a byte stream consumable by the sandbox executor via --seccomp <fd>.
func (f *Filter) Write(path string) (*os.File, error) {
	prog, err := f.build()
	if err != nil {
		return nil, err
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	for _, instr := range prog {
		buf := make([]byte, 8)
		buf[0], buf[1] = byte(instr.Code), byte(instr.Code>>8)
		buf[2], buf[3] = instr.Jt, instr.Jf
		buf[4], buf[5] = byte(instr.K), byte(instr.K>>8)
		buf[6], buf[7] = byte(instr.K>>16), byte(instr.K>>24)
		if _, err := file.Write(buf); err != nil {
			file.Close()
			return nil, err
		}
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}
	return file, nil
}

// Load consumes the filter and applies it to the current task. When a
// Notifier is attached, Load performs the full sequence: add exempt rules,
// Prepare (may block on external readiness), apply via
// seccomp(2)/SECCOMP_SET_MODE_FILTER with SECCOMP_FILTER_FLAG_NEW_LISTENER,
// obtain the resulting notify FD, then Handle(fd).
func (f *Filter) Load() error {
	prog, err := f.build()
	if err != nil {
		return err
	}
	if len(prog) == 0 {
		return nil
	}

	if f.notifier != nil {
		if err := f.notifier.Prepare(); err != nil {
			return fmt.Errorf("notifier prepare: %w", err)
		}
		f.attributes |= AttributeNewListener
	}

	sockProg := unix.SockFprog{
		Len:    uint16(len(prog)),
		Filter: (*unix.SockFilter)(unsafe.Pointer(&prog[0])),
	}

	var flags uintptr
	if f.attributes&AttributeTSync != 0 {
		flags |= 1
	}
	if f.attributes&AttributeLog != 0 {
		flags |= 2
	}
	if f.attributes&AttributeSpecAllow != 0 {
		flags |= 4
	}
	if f.attributes&AttributeNewListener != 0 {
		flags |= 8
	}

	ret, _, errno := unix.Syscall(unix.SYS_SECCOMP, 1 /* SECCOMP_SET_MODE_FILTER */, flags, uintptr(unsafe.Pointer(&sockProg)))
	if errno != 0 {
		return fmt.Errorf("seccomp(SECCOMP_SET_MODE_FILTER): %w", errno)
	}

	if f.notifier != nil {
		notifyFD := int(ret)
		return f.notifier.Handle(notifyFD)
	}

	return nil
}
