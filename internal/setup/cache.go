package setup

import (
	"os"
	"path/filepath"
)

// SandboxCacheRoot is where C9 keys its per-profile fabrication state (the
// SOF tree, the materialised /etc files, the instances/ liveness directory)
// by profile content hash — distinct from profile.CacheDir, which caches
// the resolved profile TOML itself rather than anything derived from it.
func SandboxCacheRoot() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "antimony", "sandbox")
}

// sysDir returns <cache-root>/<hash>/, the directory a given profile's
// fabricated state lives under.
func sysDir(hash string) string {
	return filepath.Join(SandboxCacheRoot(), hash)
}

// instancesDir is where live instance liveness symlinks are cross-linked,
// so a refresh can tell whether sys is quiescent.
func instancesDir(sys string) string {
	return filepath.Join(sys, "instances")
}

// quiescent reports whether sys has no live instance symlinks, i.e. it is
// safe to pivot a completed refresh build into its place.
func quiescent(sys string) bool {
	entries, err := os.ReadDir(instancesDir(sys))
	if err != nil {
		return true
	}
	return len(entries) == 0
}

// resolveSysDir implements spec.md §4.9 step 2, the refresh pivot: an
// existing "<hash>-refresh" directory is promoted over "<hash>" by an
// atomic rename once the latter is quiescent; otherwise, if a refresh was
// requested and sys is busy, fabrication targets the sibling "-refresh"
// directory instead of sys itself, so a build never disturbs instances
// that are still running against the current cache.
//
// It returns the directory fabrication should target, and whether that
// directory is the "-refresh" sibling rather than sys proper.
func resolveSysDir(hash string, refreshRequested bool) (dir string, isRefreshBuild bool, err error) {
	sys := sysDir(hash)
	refresh := sys + "-refresh"

	if _, statErr := os.Stat(refresh); statErr == nil && quiescent(sys) {
		if err := os.RemoveAll(sys); err != nil {
			return "", false, wrapSetupErr("Could not clear the stale sandbox cache", err)
		}
		if err := os.Rename(refresh, sys); err != nil {
			return "", false, wrapSetupErr("Could not promote the refreshed sandbox cache", err)
		}
	}

	if !refreshRequested {
		if err := os.MkdirAll(sys, 0o755); err != nil {
			return "", false, wrapSetupErr("Could not create the sandbox cache directory", err)
		}
		return sys, false, nil
	}

	if quiescent(sys) {
		if err := os.MkdirAll(sys, 0o755); err != nil {
			return "", false, wrapSetupErr("Could not create the sandbox cache directory", err)
		}
		return sys, false, nil
	}

	if err := os.MkdirAll(refresh, 0o755); err != nil {
		return "", false, wrapSetupErr("Could not create the refresh cache directory", err)
	}
	return refresh, true, nil
}
