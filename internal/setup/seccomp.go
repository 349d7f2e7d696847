package setup

import (
	"github.com/antimony-sandbox/antimony/internal/seccomp"
	"github.com/antimony-sandbox/antimony/internal/syscalldb"
	"github.com/antimony-sandbox/antimony/profile"
)

// buildSeccompFilter constructs the SECCOMP filter the executor should
// load, per the profile's policy:
//   - Disabled: no filter at all.
//   - Permissive: every known-good syscall is allowed, everything else is
//     logged rather than killed, so a bad profile doesn't crash the
//     sandboxed program while its syscall set is still being learned.
//   - Enforcing: every known-good syscall is allowed, everything else
//     kills the process outright.
//   - Notify: every known-good syscall is allowed outright; anything else
//     is referred to the syscall monitor (C5) over monitorSocket for an
//     interactive allow/deny decision.
//
// programCalls is this profile's learned syscall set from the syscall
// database (C4); it is empty (and therefore every non-learned call is
// already live under the chosen default action) until the profile has run
// at least once under Notify policy.
// baselineCalls are permitted in every non-empty-allow-list filter
// regardless of what the syscall database has learned: a process cannot
// even be replaced, waited on, or exit cleanly without them, so every
// Enforcing/Permissive/Notify filter needs this floor to function at all.
var baselineCalls = []string{"execve", "wait4", "exit"}

func buildSeccompFilter(policy profile.SeccompPolicy, programCalls, executorCalls []string, monitorSocket string) *seccomp.Filter {
	if policy == profile.SeccompDisabled {
		return nil
	}

	allowed := unionCalls(baselineCalls, executorCalls)
	allowed = unionCalls(allowed, programCalls)

	switch policy {
	case profile.SeccompPermissive:
		return allowListFilter(seccomp.ActionLog, allowed)
	case profile.SeccompNotify:
		f := seccomp.NewNotifying(newMonitorNotifier(monitorSocket))
		for _, c := range allowed {
			f.AddRule(seccomp.ActionAllow, c)
		}
		return f
	default: // profile.SeccompEnforcing, and the zero value of SeccompPolicy
		return allowListFilter(seccomp.ActionKillProcess, allowed)
	}
}

func allowListFilter(defaultAction seccomp.Action, calls []string) *seccomp.Filter {
	f := seccomp.New(defaultAction)
	for _, c := range calls {
		f.AddRule(seccomp.ActionAllow, c)
	}
	return f
}

func unionCalls(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, c := range a {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range b {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// loadExtraBinaries returns the profile's learned program syscalls and, kept
// separate, the executor-side binaries' (the sandbox executor itself, the
// proxy) own syscall set, matching syscalldb.GetCalls's split so the
// executor's requirements can be unioned into the filter unconditionally
// rather than only when they happen to overlap the program's.
func loadExtraBinaries(db *syscalldb.DB, profileName string, extra []string) (programCalls, executorCalls []string, err error) {
	if db == nil {
		return nil, nil, nil
	}
	return db.GetCalls(profileName, extra)
}
