package fabricate

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/antimony-sandbox/antimony/usefulerror"
)

// LibraryFabricator implements C7's §4.7.2: it LDDs a profile's ELF
// binaries, discovers the library roots those dependencies live under,
// and builds a hard-link "sandbox object filesystem" tree that the
// executor mounts over /usr/lib (and /usr/lib64, when present).
type LibraryFabricator struct {
	singleLib bool

	mu    sync.Mutex
	roots map[string]bool
	ready bool
}

// NewLibraryFabricator detects whether the host is "single-lib" (a
// symlinked /usr/lib64 -> /usr/lib, common on non-multilib
// distributions), matching the reference's SINGLE_LIB check.
func NewLibraryFabricator() *LibraryFabricator {
	_, err := os.Readlink("/usr/lib64")
	return &LibraryFabricator{
		singleLib: err == nil,
		roots:     map[string]bool{},
	}
}

// IsLibRoot reports whether path falls under a discovered library root.
// Before the first GetLibraries call it always returns false, matching
// the reference implementation's LIB_ROOTS being populated lazily on
// first use.
func (l *LibraryFabricator) IsLibRoot(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for root := range l.roots {
		if strings.HasPrefix(path, root) {
			return true
		}
	}
	return false
}

// GetLibraries runs the dynamic loader's diagnostic mode (ldd) on path
// and returns the absolute paths of every shared library it resolved.
// The first successful call also seeds the library-root set from the
// parent directories of what it found.
func (l *LibraryFabricator) GetLibraries(path string) ([]string, error) {
	out, err := exec.Command("/usr/bin/ldd", path).Output()
	if err != nil {
		return nil, usefulerror.Useful().
			WithCode(usefulerror.ErrCodeFabrication).
			WithHumanError("Could not resolve shared library dependencies").
			Wrap(err)
	}

	var libs []string
	for _, line := range strings.Split(string(out), "\n") {
		lib := parseLddLine(line)
		if lib == "" {
			continue
		}
		if strings.Contains(lib, "..") {
			if real, err := filepath.EvalSymlinks(lib); err == nil {
				lib = real
			}
		} else if !strings.HasPrefix(lib, "/usr") {
			lib = "/usr" + lib
		}
		libs = append(libs, lib)
	}

	l.registerRoots(libs)
	return libs, nil
}

// parseLddLine extracts the resolved library path from one line of ldd
// output, which is either "name => /resolved/path (0xADDR)" or, for the
// dynamic linker itself, "	/resolved/path (0xADDR)" with no "=>".
func parseLddLine(line string) string {
	if idx := strings.Index(line, "=> /"); idx >= 0 {
		rest := line[idx+3:]
		if end := strings.LastIndex(rest, " "); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	if idx := strings.Index(line, "/"); idx >= 0 {
		rest := line[idx:]
		end := strings.LastIndex(rest, " ")
		if end < 0 {
			return ""
		}
		candidate := rest[:end]
		if strings.Contains(candidate, " ") {
			return ""
		}
		return candidate
	}
	return ""
}

func (l *LibraryFabricator) registerRoots(libs []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready || len(libs) == 0 {
		return
	}

	for _, lib := range libs {
		dir := filepath.Dir(lib)
		if l.singleLib && strings.Contains(dir, "lib64") {
			continue
		}
		l.roots[dir] = true
	}
	l.roots["/usr/lib"] = true
	if !l.singleLib {
		l.roots["/usr/lib64"] = true
	}
	l.ready = true
}

// Roots returns the discovered library roots, sorted for deterministic
// iteration (used by the binary fabricator's wildcard resolution).
func (l *LibraryFabricator) Roots() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.roots))
	for r := range l.roots {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// GetWildcards expands a library-name wildcard (e.g. "libGL.so*") against
// either every discovered library root (lib=true) or /usr/bin (lib=false),
// non-recursively, matching `find <dir> -maxdepth 1 -mindepth 1 -name`.
func (l *LibraryFabricator) GetWildcards(pattern string, lib bool) []string {
	if strings.HasPrefix(pattern, "/") {
		idx := strings.LastIndex(pattern, "/")
		return findInDir(pattern[:idx], pattern[idx+1:])
	}
	if !lib {
		return findInDir("/usr/bin", pattern)
	}

	var out []string
	for _, root := range l.Roots() {
		out = append(out, findInDir(root, pattern)...)
	}
	return out
}

func underAnyDir(path string, dirs []string) bool {
	for _, dir := range dirs {
		if path == dir || strings.HasPrefix(path, dir+"/") {
			return true
		}
	}
	return false
}

// sofRelPath maps a host library path to its location inside the SOF
// tree, rooted at "lib" or "lib64" depending on which real hierarchy it
// came from.
func sofRelPath(lib string) string {
	switch {
	case strings.HasPrefix(lib, "/usr/lib64/"):
		return filepath.Join("lib64", strings.TrimPrefix(lib, "/usr/lib64/"))
	case strings.HasPrefix(lib, "/usr/lib/"):
		return filepath.Join("lib", strings.TrimPrefix(lib, "/usr/lib/"))
	default:
		return filepath.Join("lib", lib)
	}
}

// linkIntoSOF hard-links lib into the instance's SOF tree. If
// hard-linking fails (typically a cross-filesystem EXDEV), a shared copy
// is made once under sharedCache and every subsequent profile hard-links
// from that shared copy instead of re-copying the file, per spec.md
// §4.7.2.
func linkIntoSOF(lib, sofRoot, sharedCache string) error {
	rel := sofRelPath(lib)
	dest := filepath.Join(sofRoot, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	if err := os.Link(lib, dest); err == nil {
		return nil
	}

	shared := filepath.Join(sharedCache, rel)
	if _, err := os.Stat(shared); err != nil {
		if err := os.MkdirAll(filepath.Dir(shared), 0o755); err != nil {
			return err
		}
		if err := copyFile(lib, shared); err != nil {
			return err
		}
	}
	return os.Link(shared, dest)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// Fabricate LDDs every ELF binary the binary fabricator discovered,
// builds the SOF hard-link tree under sofRoot (reusing sharedCache for
// cross-device copies), and returns the executor bind directives that
// mount the tree over /usr/lib and /usr/lib64.
func (l *LibraryFabricator) Fabricate(elfBinaries, libraryDirs []string, sofRoot, sharedCache string) ([]string, error) {
	needed := map[string]bool{}
	for _, bin := range elfBinaries {
		libs, err := l.GetLibraries(bin)
		if err != nil {
			continue
		}
		for _, lib := range libs {
			if underAnyDir(lib, libraryDirs) {
				continue
			}
			needed[lib] = true
		}
	}

	names := make([]string, 0, len(needed))
	for lib := range needed {
		names = append(names, lib)
	}
	sort.Strings(names)

	for _, lib := range names {
		if err := linkIntoSOF(lib, sofRoot, sharedCache); err != nil {
			return nil, usefulerror.Useful().
				WithCode(usefulerror.ErrCodeFabrication).
				WithHumanError("Could not build the sandbox library tree").
				Wrap(err)
		}
	}

	args := []string{"--bind", filepath.Join(sofRoot, "lib"), "/usr/lib"}
	lib64 := filepath.Join(sofRoot, "lib64")
	if info, err := os.Stat(lib64); err == nil && info.IsDir() {
		args = append(args, "--bind", lib64, "/usr/lib64")
	} else {
		args = append(args, "--symlink", "/usr/lib", "/usr/lib64")
	}
	return args, nil
}
