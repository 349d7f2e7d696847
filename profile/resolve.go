package profile

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/safedep/dry/log"

	"github.com/antimony-sandbox/antimony/internal/identity"
)

// FeatureLoader loads a Feature by name, caching as it sees fit. Profile
// resolution takes one as a parameter (rather than calling a package-level
// loader) so tests can supply an in-memory set of features without writing
// files to disk.
type FeatureLoader interface {
	Load(name string) (*Feature, error)
}

// mapFeatureLoader loads each feature at most once into an in-memory table,
// mirroring the reference resolver's per-resolution feature cache.
type mapFeatureLoader struct {
	source func(name string) (*Feature, error)
	cache  map[string]*Feature
}

// NewFeatureLoader wraps source (typically LoadFeatureFile) with a
// per-resolution cache.
func NewFeatureLoader(source func(name string) (*Feature, error)) FeatureLoader {
	return &mapFeatureLoader{source: source, cache: make(map[string]*Feature)}
}

func (l *mapFeatureLoader) Load(name string) (*Feature, error) {
	if f, ok := l.cache[name]; ok {
		return f, nil
	}
	f, err := l.source(name)
	if err != nil {
		return nil, err
	}
	l.cache[name] = f
	return f, nil
}

// strikeFeature removes feature from the resolved set, then recursively
// strikes any dependency whose refcount drops to zero as a result — the
// same monotone refcount/blacklist algorithm the reference resolver uses,
// so conflicts always win regardless of how many other features still
// want the dependency.
func strikeFeature(name string, loader FeatureLoader, refcount map[string]int) error {
	if _, ok := refcount[name]; !ok {
		return nil
	}
	delete(refcount, name)

	feature, err := loader.Load(name)
	if err != nil {
		// A feature that no longer resolves can't have its dependents
		// decremented; nothing more to strike.
		return nil
	}

	for _, dep := range feature.Requires {
		if _, ok := refcount[dep]; !ok {
			continue
		}
		refcount[dep]--
		if refcount[dep] < 1 {
			if err := strikeFeature(dep, loader, refcount); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveFeature recursively pulls in name and its requirements, then
// blacklists (and strikes) anything it conflicts with.
func resolveFeature(name string, loader FeatureLoader, refcount map[string]int, blacklist map[string]bool, searched map[string]bool) error {
	if searched[name] || blacklist[name] {
		return nil
	}

	refcount[name]++
	searched[name] = true

	feature, err := loader.Load(name)
	if err != nil {
		return fmt.Errorf("resolve feature %q: %w", name, err)
	}

	for _, require := range feature.Requires {
		if err := resolveFeature(require, loader, refcount, blacklist, searched); err != nil {
			return err
		}
	}

	for _, conflict := range feature.Conflicts {
		blacklist[conflict] = true
		if _, ok := refcount[conflict]; ok {
			if err := strikeFeature(conflict, loader, refcount); err != nil {
				return err
			}
		}
	}

	return nil
}

// ResolveFeatures computes the final feature set for profile: every
// feature it (transitively) requires, minus anything stricken by a
// conflict. The set can depend on the order profile.Features lists names
// in: a requirement already searched is not counted again for a later
// feature, so striking its first requirer strikes it too. The returned
// slice is in no particular order.
func ResolveFeatures(p *Profile, loader FeatureLoader) ([]string, error) {
	refcount := make(map[string]int)
	searched := make(map[string]bool)
	blacklist := make(map[string]bool, len(p.Conflicts))
	for _, c := range p.Conflicts {
		blacklist[c] = true
	}
	p.Conflicts = nil

	for _, feat := range p.Features {
		if err := resolveFeature(feat, loader, refcount, blacklist, searched); err != nil {
			return nil, err
		}
	}

	resolved := make([]string, 0, len(refcount))
	for name := range refcount {
		resolved = append(resolved, name)
	}
	return resolved, nil
}

// addFeature folds one resolved feature's contents into profile, honouring
// its conditional gate (a shell one-liner that must exit zero) and
// surfacing its caveat, then merging files/binaries/libraries/devices/
// namespaces/sandbox args/ipc/environment the same way a Feature's fields
// layer onto a Profile's. The conditional script runs as the real
// (non-privileged) identity, never whatever elevated identity fabrication
// itself happens to hold.
func addFeature(gate *identity.Gate, p *Profile, placeholders map[string]string, feature *Feature) {
	if feature.Conditional != nil {
		if !evalCondition(gate, *feature.Conditional) {
			return
		}
	}

	if feature.Caveat != nil {
		log.Warnf("Feature %s: %s", feature.Name, *feature.Caveat)
	}

	if feature.Files != nil {
		if p.Files == nil {
			p.Files = &Files{}
		}
		mergeFeatureFiles(p.Files, *feature.Files, placeholders)
	}

	p.Binaries = unionStrings(p.Binaries, feature.Binaries)
	p.Libraries = unionStrings(p.Libraries, feature.Libraries)
	p.Devices = unionStrings(p.Devices, feature.Devices)
	p.Namespaces = unionNamespaces(p.Namespaces, feature.Namespaces)
	p.SandboxArgs = append(p.SandboxArgs, feature.SandboxArgs...)

	if feature.Ipc != nil {
		if p.Ipc == nil {
			p.Ipc = &Ipc{}
		}
		mergeFeatureIpc(p.Ipc, *feature.Ipc, placeholders)
	}

	if feature.Environment != nil {
		if p.Environment == nil {
			p.Environment = make(map[string]string, len(feature.Environment))
		}
		for k, v := range feature.Environment {
			p.Environment[k] = expandShellVars(v)
		}
	}
}

// mergeFeatureFiles extends a profile's Files with a feature's, resolving
// {name}/{desktop} placeholders in Platform/Resources/User entries (Direct
// entries pass through verbatim, matching the reference's distinction
// between paths the author wrote literally and paths meant to be resolved
// against the running sandbox's identity).
func mergeFeatureFiles(dst *Files, src Files, placeholders map[string]string) {
	dst.Direct = mergeFileSet(dst.Direct, src.Direct)
	dst.Platform = mergeFileSet(dst.Platform, resolveFileSet(src.Platform, placeholders))
	dst.Resources = mergeFileSet(dst.Resources, resolveFileSet(src.Resources, placeholders))
	dst.User = mergeFileSet(dst.User, resolveFileSet(src.User, placeholders))
}

func resolveFileSet(fs FileSet, placeholders map[string]string) FileSet {
	if fs == nil {
		return nil
	}
	out := make(FileSet, len(fs))
	for mode, paths := range fs {
		resolved := make([]string, len(paths))
		for i, p := range paths {
			resolved[i] = expandPlaceholders(p, placeholders)
		}
		out[mode] = resolved
	}
	return out
}

func mergeFeatureIpc(dst *Ipc, src Ipc, placeholders map[string]string) {
	dst.Portals = unionStrings(dst.Portals, src.Portals)
	dst.See = unionStrings(dst.See, formatBusNames(src.See, placeholders))
	dst.Talk = append(dst.Talk, formatBusNames(src.Talk, placeholders)...)
	dst.Own = append(dst.Own, formatBusNames(src.Own, placeholders)...)
	dst.Call = append(dst.Call, src.Call...)
}

// formatBusNames expands {name}/{desktop} in each bus name and drops any
// that still don't look like a dotted bus name afterwards — the reference
// resolver treats a non-dotted result as a malformed feature and silently
// skips it rather than failing the whole resolution.
func formatBusNames(names []string, placeholders map[string]string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		expanded := expandPlaceholders(name, placeholders)
		if strings.Contains(expanded, ".") {
			out = append(out, expanded)
		}
	}
	return out
}

func expandPlaceholders(s string, placeholders map[string]string) string {
	for key, val := range placeholders {
		s = strings.ReplaceAll(s, key, val)
	}
	return s
}

// Fabricate resolves profile's feature set and folds each resolved
// feature's contents into profile, in an unspecified (map-iteration) order
// — the resolution algorithm is itself monotone under inclusion so the
// final set doesn't depend on this order, but multiple features writing
// the same scalar path do race, same as upstream.
func Fabricate(gate *identity.Gate, p *Profile, name string, loader FeatureLoader) error {
	placeholders := map[string]string{
		"{name}":    name,
		"{desktop}": DesktopID(p, name),
	}

	resolved, err := ResolveFeatures(p, loader)
	if err != nil {
		return err
	}

	for _, featName := range resolved {
		feature, err := loader.Load(featName)
		if err != nil {
			return err
		}
		addFeature(gate, p, placeholders, feature)
	}
	return nil
}

// evalCondition runs a feature's conditional script under the real,
// non-privileged identity (never whatever effective identity the caller may
// currently hold), matching the reference resolver's own drop-to-real before
// evaluating a feature gate. A nil gate (unit tests exercising addFeature in
// isolation, with no process identity to switch) falls back to running the
// script as-is.
func evalCondition(gate *identity.Gate, script string) bool {
	run := func() error {
		cmd := exec.Command("/usr/bin/bash", "-c", script)
		return cmd.Run()
	}
	if gate == nil {
		return run() == nil
	}
	return gate.RunAs(identity.Real, run) == nil
}

// expandShellVars resolves $VAR/${VAR} references in a feature's static
// environment values the same way the reference resolver's `resolve`
// helper does: by handing the literal string to a throwaway shell and
// reading back what it expands to, so the full range of shell
// parameter-expansion syntax ($VAR, ${VAR:-default}, …) works rather than
// just the subset a hand-rolled substitution would cover. A value with no
// shell metacharacters survives the round trip unchanged.
func expandShellVars(value string) string {
	out, err := exec.Command("/bin/sh", "-c", "printf '%s' \""+value+"\"").Output()
	if err != nil {
		return value
	}
	return string(out)
}
