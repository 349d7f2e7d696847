package fabricate

import (
	"bufio"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/antimony-sandbox/antimony/profile"
	"github.com/antimony-sandbox/antimony/usefulerror"
)

// elfMagic is the five-byte ELF header every binary fabricated here is
// tested against, exactly as spec.md §4.7.1 step 4 specifies.
var elfMagic = [5]byte{0x7F, 'E', 'L', 'F', 2}

// splitChars are stripped from each shebang/script token before it's
// checked against the bash builtin set or recursed into, matching the
// reference tokenizer's punctuation set.
const splitChars = "\"';=$(){}"

// BinaryResult accumulates everything the binary fabricator discovered
// while walking a profile's binaries, platform/resources/user executable
// files, and the scripts/symlinks those in turn dispatch.
type BinaryResult struct {
	ELF         []string          // ELF binaries, to be LDD'd by the library fabricator
	Scripts     []string          // shell scripts, bound but not LDD'd
	Files       []string          // plain (non-ELF, non-script) resources
	Directories []string          // library directories to bind wholesale
	Symlinks    map[string]string // link path -> resolved destination
	Localized   map[string]string // localized source path -> sandbox dest path
}

func newBinaryResult() *BinaryResult {
	return &BinaryResult{
		Symlinks:  map[string]string{},
		Localized: map[string]string{},
	}
}

// BinaryFabricator implements C7's §4.7.1: it resolves every binary name
// a profile references into an absolute path, classifies it as an ELF
// binary, a script, a plain file, a symlink, or a library directory, and
// recurses into whatever a script's shebang and body dispatch.
//
// One fabricator is scoped to a single profile fabrication run; its
// internal done-set prevents re-parsing a binary reached by two different
// paths (e.g. a symlink and its target).
type BinaryFabricator struct {
	isLibRoot func(path string) bool
	builtins  map[string]bool

	mu     sync.Mutex
	done   map[string]bool
	result *BinaryResult
}

// NewBinaryFabricator builds a fabricator for one run. isLibRoot reports
// whether a path falls under a discovered library root (see library.go);
// it is consulted lazily, after the library fabricator has had a chance
// to run on a first pass, so it may legitimately return false for every
// path until then.
func NewBinaryFabricator(isLibRoot func(string) bool) (*BinaryFabricator, error) {
	builtins, err := bashBuiltins()
	if err != nil {
		return nil, err
	}
	return &BinaryFabricator{
		isLibRoot: isLibRoot,
		builtins:  builtins,
		done:      map[string]bool{},
		result:    newBinaryResult(),
	}, nil
}

// bashBuiltins runs `compgen -k` once to obtain the closed set of bash
// reserved words the shebang/script tokenizer must not treat as further
// binaries to resolve. Grounded directly on fab/bin.rs's COMPGEN table;
// "true"/"false" are added on top since they're common script no-ops that
// would otherwise resolve as real binaries.
func bashBuiltins() (map[string]bool, error) {
	out, err := exec.Command("/usr/bin/bash", "-c", "compgen -k").Output()
	if err != nil {
		return nil, usefulerror.Useful().
			WithCode(usefulerror.ErrCodeFabrication).
			WithHumanError("Could not enumerate bash builtins").
			Wrap(err)
	}

	builtins := map[string]bool{"true": true, "false": true}
	for _, line := range strings.Split(string(out), "\n") {
		if line != "" {
			builtins[line] = true
		}
	}
	return builtins, nil
}

func tokenize(line string, builtins map[string]bool) []string {
	var tokens []string
	for _, raw := range strings.Fields(line) {
		token := strings.Map(func(r rune) rune {
			if strings.ContainsRune(splitChars, r) {
				return -1
			}
			return r
		}, raw)
		if token == "" || builtins[token] {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// resolveBin canonicalizes path to an absolute location, resolving
// against PATH when relative and ".."-components by realpath, then
// rewrites a /bin prefix to /usr/bin (the Antimony sandbox view only
// ever sees the merged /usr hierarchy).
func resolveBin(path string) (string, error) {
	var resolved string
	switch {
	case strings.Contains(path, ".."):
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", err
		}
		real, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return "", err
		}
		resolved = real
	case strings.HasPrefix(path, "/"):
		resolved = path
	default:
		found, err := exec.LookPath(path)
		if err != nil {
			return "", err
		}
		resolved = found
	}

	if strings.HasPrefix(resolved, "/bin") {
		resolved = "/usr" + resolved
	}
	return resolved, nil
}

// resolveLibDir walks up from path to find its immediate ancestor inside
// /usr/lib (e.g. /usr/lib/chromium/foo/bar -> /usr/lib/chromium).
func resolveLibDir(path string) string {
	const libRoot = "/usr/lib"
	cur := path
	for {
		parent := filepath.Dir(cur)
		if parent == libRoot {
			return cur
		}
		if parent == cur || parent == "/" || parent == "." {
			return ""
		}
		cur = parent
	}
}

// parseKind classifies what parse found at a path, so callers (symlink
// localisation in particular) can decide how to treat it.
type parseKind int

const (
	kindNone parseKind = iota
	kindELF
	kindScript
	kindFile
	kindLink
	kindDone
)

// parse resolves and classifies a single binary reference, recursing
// into symlink targets and script dependencies. includeSelf controls
// whether the resolved path itself is recorded in the result (false when
// the caller only wants the recursive side effects, as with a
// library-directory placeholder).
func (b *BinaryFabricator) parse(path string, includeSelf bool) (parseKind, error) {
	b.mu.Lock()
	if b.done[path] {
		b.mu.Unlock()
		return kindDone, nil
	}
	b.done[path] = true
	b.mu.Unlock()

	resolved, err := resolveBin(path)
	if err != nil {
		return kindNone, nil
	}

	if dest, err := os.Readlink(resolved); err == nil {
		canon := dest
		if !filepath.IsAbs(canon) {
			canon = filepath.Join(filepath.Dir(resolved), canon)
		}
		if real, err := filepath.EvalSymlinks(canon); err == nil {
			canon = real
		}

		if includeSelf {
			destResolved, err := resolveBin(canon)
			if err != nil {
				return kindNone, nil
			}
			b.mu.Lock()
			b.result.Symlinks[resolved] = destResolved
			b.mu.Unlock()
		}

		if _, err := b.parse(canon, true); err != nil {
			return kindNone, err
		}
		return kindLink, nil
	}

	if b.isLibRoot(resolved) {
		if dir := resolveLibDir(resolved); dir != "" {
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				b.mu.Lock()
				b.result.Directories = append(b.result.Directories, dir)
				b.mu.Unlock()
			}
		}
		includeSelf = false
	}

	f, err := os.Open(resolved)
	if err != nil {
		return kindNone, nil
	}
	defer f.Close()

	var magic [5]byte
	if n, _ := f.Read(magic[:]); n < 5 {
		return kindNone, nil
	}

	switch {
	case magic == elfMagic:
		if includeSelf {
			b.mu.Lock()
			b.result.ELF = append(b.result.ELF, resolved)
			b.mu.Unlock()
		}
		return kindELF, nil

	case magic[0] == '#':
		if includeSelf {
			b.mu.Lock()
			b.result.Scripts = append(b.result.Scripts, resolved)
			b.mu.Unlock()
		}
		if err := b.parseScript(f, resolved); err != nil {
			return kindNone, err
		}
		return kindScript, nil

	default:
		if includeSelf {
			b.mu.Lock()
			b.result.Files = append(b.result.Files, resolved)
			b.mu.Unlock()
		}
		return kindFile, nil
	}
}

// parseScript tokenizes a script's shebang line and body, recursing into
// every token that doesn't name a bash builtin. KEY=VALUE assignment
// lines are evaluated through an ephemeral bash subshell first so later
// "$KEY" uses resolve to a concrete value, mirroring spec.md §4.7.1's
// environment-expansion requirement.
func (b *BinaryFabricator) parseScript(f *os.File, path string) error {
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return scanner.Err()
	}
	header := scanner.Text()
	if len(header) >= 2 {
		for _, token := range tokenize(header[2:], b.builtins) {
			if _, err := b.parse(token, true); err != nil {
				return err
			}
		}
	}

	env := map[string]string{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		for key, value := range env {
			for _, syntax := range []string{"$" + key, "${" + key + "}", "$(" + key + ")"} {
				line = strings.ReplaceAll(line, syntax, value)
			}
		}

		if key, val, ok := strings.Cut(line, "="); ok && !strings.HasPrefix(line, "-") {
			out, err := exec.Command("/usr/bin/bash", "-ec", line+"; echo $"+key).Output()
			if err == nil {
				env[key] = strings.TrimSpace(string(out))
				line = val
			}
		}

		for _, token := range tokenize(line, b.builtins) {
			if _, err := b.parse(token, true); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

// handleLocalize localizes a single profile-authored file reference
// (which may or may not live under the real user's home) before parsing
// it, recording a src->dest rewrite in Localized when the sandbox view
// needs a path other than the literal host path.
func (b *BinaryFabricator) handleLocalize(entry string, home, includeSelf bool) error {
	source, dest, exists := LocalizePath(entry, home)
	if !exists {
		_, err := b.parse(entry, true)
		return err
	}

	if source == dest {
		_, err := b.parse(entry, includeSelf)
		return err
	}

	kind, err := b.parse(source, false)
	if err != nil {
		return err
	}

	switch kind {
	case kindELF, kindScript, kindFile:
		b.mu.Lock()
		b.result.Localized[source] = dest
		b.mu.Unlock()
	case kindLink:
		link, err := os.Readlink(source)
		if err != nil {
			return nil
		}
		_, ldst, _ := LocalizePath(link, home)
		if err := b.handleLocalize(ldst, home, false); err != nil {
			return err
		}
		b.mu.Lock()
		b.result.Symlinks[dest] = ldst
		b.mu.Unlock()
	}
	return nil
}

// Collect walks every binary a profile names (direct entries plus
// wildcard-expanded ones) and every executable-mode file in its user,
// resources and platform file scopes (direct entries are not walked),
// populating and returning the fabricator's BinaryResult.
func (b *BinaryFabricator) Collect(p *profile.Profile, name string) (*BinaryResult, error) {
	resolved := map[string]bool{profile.AppPath(p, name): true}

	for _, entry := range p.Binaries {
		if ContainsGlob(entry) {
			matches, err := ExpandGlob(entry)
			if err == nil {
				for _, m := range matches {
					resolved[m] = true
				}
			}
			continue
		}
		resolved[entry] = true
	}

	if p.Files != nil {
		scopes := []struct {
			set  profile.FileSet
			home bool
		}{
			{p.Files.User, true},
			{p.Files.Resources, false},
			{p.Files.Platform, false},
		}
		for _, scope := range scopes {
			for _, file := range scope.set[profile.FileModeExecutable] {
				if err := b.handleLocalize(file, scope.home, true); err != nil {
					return nil, err
				}
			}
		}
	}

	names := make([]string, 0, len(resolved))
	for r := range resolved {
		names = append(names, r)
	}
	sort.Strings(names)

	for _, bin := range names {
		if err := b.handleLocalize(bin, false, true); err != nil {
			return nil, err
		}
	}

	return b.result, nil
}

// Fabricate runs Collect and translates the result into executor bind
// and symlink arguments, returning them alongside the final set of ELF
// binaries the caller should persist back onto the profile (the library
// fabricator LDDs exactly this set next).
func (b *BinaryFabricator) Fabricate(p *profile.Profile, name string) (args []string, elfBinaries []string, err error) {
	for _, bin := range p.Binaries {
		if bin == "/usr/bin" {
			return []string{
				"--ro-bind", "/usr/bin", "/usr/bin",
				"--ro-bind", "/usr/sbin", "/usr/sbin",
				"--symlink", "/usr/bin", "/bin",
				"--symlink", "/usr/sbin", "/sbin",
			}, nil, nil
		}
	}

	result, err := b.Collect(p, name)
	if err != nil {
		return nil, nil, err
	}

	elf := map[string]bool{}
	for _, e := range result.ELF {
		if !b.isLibRoot(e) {
			args = append(args, "--ro-bind", e, LocalizeHome(e))
		}
		elf[e] = true
	}

	for _, script := range result.Scripts {
		args = append(args, "--ro-bind", script, script)
	}
	for _, file := range result.Files {
		args = append(args, "--ro-bind", file, file)
	}
	for src, dst := range result.Localized {
		args = append(args, "--ro-bind", src, dst)
		elf[src] = true
	}

	p.Libraries = append(p.Libraries, result.Directories...)

	for link, dest := range result.Symlinks {
		if b.isLibRoot(link) || strings.HasPrefix(link, "/lib") {
			continue
		}
		args = append(args, "--symlink", dest, link)
	}

	args = append(args, "--symlink", "/usr/bin", "/bin", "--symlink", "/usr/sbin", "/sbin")

	elfBinaries = make([]string, 0, len(elf))
	for e := range elf {
		elfBinaries = append(elfBinaries, e)
	}
	sort.Strings(elfBinaries)

	return args, elfBinaries, nil
}

// ScanHomeBinaries finds every ELF executable file directly under dir,
// the fabricator's equivalent of the reference's get_dir() used to pull
// a sandboxed home directory's own binaries (e.g. a user-installed addon)
// into the same library-resolution pass as the profile's own binaries.
func ScanHomeBinaries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := e.Info()
		if err != nil || info.Mode()&0o111 == 0 {
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			continue
		}
		var magic [5]byte
		n, _ := f.Read(magic[:])
		f.Close()
		if n == 5 && magic == elfMagic {
			out = append(out, path)
		}
	}
	return out, nil
}
