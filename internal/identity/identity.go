// Package identity implements the set-UID-safe identity gate (C1):
// process-wide tracking of real/effective/saved UID and GID, with scoped
// switch-and-restore primitives used before any privileged disk operation.
package identity

import (
	"context"
	"fmt"

	"github.com/antimony-sandbox/antimony/usefulerror"
	"golang.org/x/sys/unix"
)

// Mode selects which identity a scoped block should run under.
type Mode int

const (
	// Real is the identity the process was originally invoked as.
	Real Mode = iota
	// Effective is the identity granted by the set-UID bit, if any.
	Effective
	// Original is the real UID/GID captured at Gate construction. Set and
	// RunAs apply it like any other mode; the full ruid/euid/suid triple is
	// only reinstated through Save/Restore.
	Original
)

func (m Mode) String() string {
	switch m {
	case Real:
		return "real"
	case Effective:
		return "effective"
	case Original:
		return "original"
	default:
		return "unknown"
	}
}

// Snapshot is a captured real/effective/saved UID/GID triple.
type Snapshot struct {
	ruid, euid, suid int
	rgid, egid, sgid int
}

// Gate is a process-wide record of identity state. A single Gate should be
// constructed once at process start and shared by every caller that needs
// to switch identity.
type Gate struct {
	original Snapshot
	realUID  int
	realGID  int
	effUID   int
	effGID   int

	lock *reentrantLock
}

// NewGate captures the process's current real/effective/saved identity.
func NewGate() (*Gate, error) {
	ruid, euid, suid, err := getresuid()
	if err != nil {
		return nil, switchError("capture", err)
	}
	rgid, egid, sgid, err := getresgid()
	if err != nil {
		return nil, switchError("capture", err)
	}

	return &Gate{
		original: Snapshot{ruid, euid, suid, rgid, egid, sgid},
		realUID:  ruid,
		realGID:  rgid,
		effUID:   euid,
		effGID:   egid,
		lock:     newReentrantLock(),
	}, nil
}

// Set destructively equals all three UID/GID slots to the identity named by
// mode. Used for permanent privilege drop (Mode == Real).
func (g *Gate) Set(mode Mode) error {
	uid, gid := g.resolve(mode)
	if err := unix.Setresuid(uid, uid, uid); err != nil {
		return switchError("setresuid", err)
	}
	if err := unix.Setresgid(gid, gid, gid); err != nil {
		return switchError("setresgid", err)
	}
	return nil
}

// Drop is an alias for Set(Real); it destructively abandons any elevated
// identity and cannot be undone within the process.
func (g *Gate) Drop() error {
	return g.Set(Real)
}

// Save captures the current real/effective/saved UID/GID so it can later be
// restored with Restore.
func (g *Gate) Save() (Snapshot, error) {
	ruid, euid, suid, err := getresuid()
	if err != nil {
		return Snapshot{}, switchError("save", err)
	}
	rgid, egid, sgid, err := getresgid()
	if err != nil {
		return Snapshot{}, switchError("save", err)
	}
	return Snapshot{ruid, euid, suid, rgid, egid, sgid}, nil
}

// Restore reinstates a previously Saved identity triple.
func (g *Gate) Restore(saved Snapshot) error {
	if err := unix.Setresuid(saved.ruid, saved.euid, saved.suid); err != nil {
		return switchError("restore-uid", err)
	}
	if err := unix.Setresgid(saved.rgid, saved.egid, saved.sgid); err != nil {
		return switchError("restore-gid", err)
	}
	return nil
}

func (g *Gate) resolve(mode Mode) (uid, gid int) {
	switch mode {
	case Real:
		return g.realUID, g.realGID
	case Effective:
		return g.effUID, g.effGID
	case Original:
		return g.original.ruid, g.original.rgid
	default:
		return g.realUID, g.realGID
	}
}

// RunAs saves the current identity, switches to mode, runs f, and always
// restores the saved identity on every exit path of f, including panics.
// It does not serialise against concurrent callers; use SyncRunAs for that.
func (g *Gate) RunAs(mode Mode, f func() error) (err error) {
	saved, err := g.Save()
	if err != nil {
		return err
	}

	uid, gid := g.resolve(mode)
	if err := unix.Setresuid(-1, uid, -1); err != nil {
		return switchError("setresuid", err)
	}
	if err := unix.Setresgid(-1, gid, -1); err != nil {
		return switchError("setresgid", err)
	}

	defer func() {
		if restoreErr := g.Restore(saved); restoreErr != nil && err == nil {
			err = restoreErr
		}
		if p := recover(); p != nil {
			_ = g.Restore(saved)
			panic(p)
		}
	}()

	return f()
}

// SyncRunAs is RunAs additionally serialised by a process-wide re-entrant
// lock, so two goroutines cannot interleave UID switches. A caller that
// already holds the lock (identified by ctx, see reentrantLock) may call
// SyncRunAs again without self-deadlock by passing the context RunAs's
// inner closure was invoked with.
func (g *Gate) SyncRunAs(ctx context.Context, mode Mode, f func(context.Context) error) error {
	lockCtx, release := g.lock.Acquire(ctx)
	defer release()
	return g.RunAs(mode, func() error { return f(lockCtx) })
}

func getresuid() (ruid, euid, suid int, err error) {
	var r, e, s int
	unix.Getresuid(&r, &e, &s)
	return r, e, s, nil
}

func getresgid() (rgid, egid, sgid int, err error) {
	var r, e, s int
	unix.Getresgid(&r, &e, &s)
	return r, e, s, nil
}

func switchError(step string, err error) error {
	return usefulerror.Useful().
		WithCode(usefulerror.ErrCodeLifecycle).
		WithHumanError(fmt.Sprintf("Failed to switch process identity (%s)", step)).
		WithHelp("Antimony needs set-UID permissions for this operation").
		Wrap(err)
}
