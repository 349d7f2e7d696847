// Package setup implements C9, the ordered pipeline spec.md §4.9 describes
// for turning a resolved profile into a running sandbox: hashing the
// profile into a cache directory, pivoting a completed refresh into place,
// allocating a liveness-tracked instance, launching the D-Bus proxy and the
// local fabricators in parallel, and joining everything into one executor
// invocation. It is the component that wires together C1 (identity), C3
// (seccomp), C4 (syscall database), C5 (notify), C6 (profile), C7
// (fabricate), and C8 (dbusproxy) rather than re-implementing any of them.
package setup

import (
	"github.com/antimony-sandbox/antimony/usefulerror"
)

func wrapSetupErr(msg string, err error) error {
	return usefulerror.Useful().
		WithCode(usefulerror.ErrCodeSetup).
		WithHumanError(msg).
		Wrap(err)
}
