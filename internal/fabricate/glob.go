package fabricate

import (
	"os"
	"path/filepath"
	"strings"
)

// ContainsGlob reports whether pattern uses any glob metacharacter.
func ContainsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// maxGlobDepth and maxGlobPaths bound wildcard expansion so a profile
// pattern like "${HOME}/**" can't walk the whole filesystem or return an
// unbounded argument list to the executor. Mirrors
// bubblewrap_translator_linux.go's maxGlobDepth/maxGlobPaths safety
// limits, carried over verbatim since the DoS concern is identical.
const (
	maxGlobDepth = 5
	maxGlobPaths = 10000
)

// ExpandGlob resolves a single pattern (which may contain one "**"
// globstar, or shell-style */?/[] wildcards) to the concrete paths it
// matches on disk, in the directory or directory tree named by its
// non-glob prefix. Non-glob patterns are returned unchanged as a
// single-element slice.
func ExpandGlob(pattern string) ([]string, error) {
	if !ContainsGlob(pattern) {
		return []string{pattern}, nil
	}

	if strings.Contains(pattern, "**") {
		return expandGlobstar(pattern)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(matches) > maxGlobPaths {
		matches = matches[:maxGlobPaths]
	}
	return matches, nil
}

func expandGlobstar(pattern string) ([]string, error) {
	parts := strings.SplitN(pattern, "**", 2)
	base := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")
	if base == "" {
		return nil, nil
	}

	if _, err := os.Stat(base); os.IsNotExist(err) {
		return []string{base}, nil
	}

	var matches []string
	err := filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		depth := len(strings.Split(rel, string(filepath.Separator)))
		if depth > maxGlobDepth {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		matched := suffix == ""
		if !matched {
			n := strings.Count(suffix, "/") + 1
			segs := strings.Split(path, string(filepath.Separator))
			if len(segs) >= n {
				matched, _ = filepath.Match(suffix, strings.Join(segs[len(segs)-n:], "/"))
			}
		}
		if matched {
			matches = append(matches, path)
			if len(matches) >= maxGlobPaths {
				return filepath.SkipAll
			}
		}
		return nil
	})
	return matches, err
}

// findInDir lists the immediate (non-recursive) children of dir whose
// basename matches the glob pattern base — the non-path wildcard case
// (e.g. binaries = ["python3.*"] resolved against /usr/bin).
func findInDir(dir, base string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		ok, err := filepath.Match(base, e.Name())
		if err == nil && ok {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}
