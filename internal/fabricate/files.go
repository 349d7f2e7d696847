package fabricate

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/antimony-sandbox/antimony/profile"
	"github.com/antimony-sandbox/antimony/usefulerror"
)

// ExecBind is a file the profile marked FileModeExecutable: spec.md
// §4.7.3 requires these be copied to a dedicated FD-backed inode and
// bound mode 555, rather than a plain bind, so the sandboxed program can
// chmod its own copy without touching the host file. The caller (the
// setup pipeline, which owns the live executor Spawner) opens Source and
// wires it in via Spawner.FdArg("--file", f) followed by Dest, then a
// "--chmod 555 Dest" directive.
type ExecBind struct {
	Source string
	Dest   string
}

// modeFlag returns the bwrap bind flag for mode, using the "try" variant
// (silently skip a missing source) when try is true.
func modeFlag(mode profile.FileMode, try bool) string {
	switch mode {
	case profile.FileModeReadWrite:
		if try {
			return "--bind-try"
		}
		return "--bind"
	default:
		if try {
			return "--ro-bind-try"
		}
		return "--ro-bind"
	}
}

// fabricateSet walks one FileSet scope (user, platform, or resources),
// localizing and binding every entry. Executable-mode entries are
// diverted into execBinds instead of emitted as plain bind flags. A missing
// source is skipped when try is set and is an error otherwise.
func fabricateSet(set profile.FileSet, home, try bool, args *[]string, execBinds *[]ExecBind) error {
	for _, mode := range profile.AllFileModes {
		for _, entry := range set[mode] {
			source, dest, exists := LocalizePath(entry, home)
			if !exists {
				if !try {
					return usefulerror.Useful().WithCode(usefulerror.ErrCodeNotFound).
						WithHumanError("A required resource file does not exist").
						Wrap(&os.PathError{Op: "stat", Path: source, Err: os.ErrNotExist})
				}
				continue
			}

			if mode == profile.FileModeExecutable {
				*execBinds = append(*execBinds, ExecBind{Source: source, Dest: dest})
				continue
			}

			*args = append(*args, modeFlag(mode, try), source, dest)
		}
	}
	return nil
}

// FabricateFiles implements C7's §4.7.3: it binds every file.user,
// file.platform, and file.resources entry (localizing host paths to the
// sandbox view first) and materializes file.direct entries once under a
// content-addressed cache path so repeated runs reuse the same backing
// file.
func FabricateFiles(p *profile.Profile, cacheDir string) ([]string, []ExecBind, error) {
	var args []string
	var execBinds []ExecBind

	if p.Files == nil {
		return args, execBinds, nil
	}

	fabricateSet(p.Files.User, true, true, &args, &execBinds)
	fabricateSet(p.Files.Platform, false, true, &args, &execBinds)
	if err := fabricateSet(p.Files.Resources, false, false, &args, &execBinds); err != nil {
		return nil, nil, err
	}

	for mode, contents := range p.Files.Direct {
		for _, entry := range contents {
			dest, content, ok := splitDirectEntry(entry)
			if !ok {
				continue
			}

			path, err := materializeDirect(cacheDir, content)
			if err != nil {
				return nil, nil, wrapFabricationErr("Could not materialise a direct file", err)
			}

			if mode == profile.FileModeExecutable {
				execBinds = append(execBinds, ExecBind{Source: path, Dest: dest})
			} else {
				args = append(args, modeFlag(mode, false), path, dest)
			}
		}
	}

	return args, execBinds, nil
}

// splitDirectEntry splits a direct-file map entry of the form
// "dest=contents" (TOML encodes profile.direct as dest -> contents, but
// the Profile model represents Files.Direct as the same FileSet shape as
// the other scopes for symmetry, so the content is carried after the
// first "=").
func splitDirectEntry(entry string) (dest, content string, ok bool) {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '=' {
			return entry[:i], entry[i+1:], true
		}
	}
	return "", "", false
}

// materializeDirect writes content once under cacheDir/.direct/<hash of
// content>, returning the existing path on a cache hit.
func materializeDirect(cacheDir, content string) (string, error) {
	sum := sha256.Sum256([]byte(content))
	path := filepath.Join(cacheDir, ".direct", hex.EncodeToString(sum[:]))

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
