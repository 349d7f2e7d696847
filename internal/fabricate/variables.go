// Package fabricate implements C7: the binary, library, file, /etc+/dev+
// namespace, and post-argument fabricators that turn a resolved Profile
// into sandbox-executor bind/symlink/chmod directives. Grounded on
// sandbox/platform/bubblewrap_translator_linux.go's glob-expansion and
// bind-dedup patterns, generalized from a two-scope (allow/deny)
// filesystem policy to the four-scope (direct/platform/resources/user)
// file model plus ELF/script dependency resolution that the teacher never
// needed.
package fabricate

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ExpandVariables expands Antimony's small set of well-known path
// variables. Unlike the teacher's ${HOME}/${CWD}/${TMPDIR} set, Antimony
// resolves ${HOME} against the home directory the caller passes (every
// caller passes the real user's home) and offers the XDG runtime
// directory rather than a generic temp dir.
func ExpandVariables(pattern, home string) string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	replacer := strings.NewReplacer(
		"${HOME}", home,
		"${CWD}", cwd,
		"${XDG_RUNTIME_DIR}", xdgRuntimeDir(),
	)
	return filepath.Clean(replacer.Replace(pattern))
}

func xdgRuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return v
	}
	return "/run/user/0"
}

// LocalizeHome rewrites a path under the real user's home directory to the
// sandbox-view home at /home/antimony, leaving every other path untouched.
func LocalizeHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home) {
		return strings.Replace(path, home, "/home/antimony", 1)
	}
	return path
}

// currentUserHome is the login home of the real (not sandboxed) user,
// used to resolve "~" in profile-authored paths.
func currentUserHome() string {
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return u.HomeDir
	}
	home, _ := os.UserHomeDir()
	return home
}

// ResolvePath expands "~" to the real user's home, then runs
// ExpandVariables, mirroring the reference implementation's resolve():
// "~" is rewritten first since it's a shell convention the variable table
// doesn't otherwise cover.
func ResolvePath(path string) string {
	home := currentUserHome()
	if strings.HasPrefix(path, "~") {
		path = strings.Replace(path, "~", home, 1)
	}
	return ExpandVariables(path, home)
}

// LocalizePath splits a file entry of the form "source=dest" (or treats
// the whole string as both source and dest), resolves variables in the
// source, and optionally roots the destination under the sandboxed home
// when it isn't already an absolute /home path. It reports whether the
// source currently exists on disk, since callers emit the "try" bind
// variant (silently skip) when it's missing for optional scopes and a
// hard error for required ones.
func LocalizePath(entry string, home bool) (source string, dest string, exists bool) {
	if src, dst, ok := strings.Cut(entry, "="); ok {
		source = ResolvePath(src)
		dest = dst
	} else {
		resolved := ResolvePath(entry)
		if home && !strings.HasPrefix(resolved, "/home") {
			resolved = filepath.Join(currentUserHome(), resolved)
		}
		source = resolved
		dest = resolved
	}

	dest = LocalizeHome(dest)

	_, err := os.Stat(source)
	return source, dest, err == nil
}
