package dbusproxy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/antimony-sandbox/antimony/profile"
)

// WriteFlatpakInfo materialises the Flatpak-compatible ".flatpak-info" file
// a portal-aware application expects to find at "/" inside its sandbox, so
// it believes it's running under Flatpak rather than Antimony. shareNetwork
// adds the "shared=network;" context line when the net namespace is shared
// with the host (see ShareNetwork).
func WriteFlatpakInfo(path, appID, instance string, shareNetwork bool) error {
	lines := []string{
		"[Application]",
		"name=" + appID,
		"[Instance]",
		"instance-id=" + instance,
		"app-path=/usr",
		"[Context]",
		"sockets=session-bus;system-bus;",
	}
	if shareNetwork {
		lines = append(lines, "shared=network;")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wrapProxyErr("Could not create the flatpak-info directory", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return wrapProxyErr("Could not write the flatpak-info file", err)
	}
	return nil
}

// ShareNetwork reports whether namespaces keeps the network namespace
// shared with the host (explicitly listed, or the "all" sentinel), which
// is what flatpak-aware tooling uses to decide whether network access is
// sandboxed.
func ShareNetwork(namespaces []profile.Namespace) bool {
	for _, ns := range namespaces {
		if ns == profile.NamespaceNet || string(ns) == "all" {
			return true
		}
	}
	return false
}

// OpenBwrapInfoFile creates (truncating any previous run's) the per-
// instance bwrapinfo.json file spec.md §4.8 requires a JSON-status FD for,
// returning it open so the caller (C9's setup pipeline, which owns the
// live executor Spawner) can wire it in via Spawner.FdArg("--json-status-fd", f).
func OpenBwrapInfoFile(runtimeDir, instance string) (*os.File, error) {
	dir := filepath.Join(runtimeDir, ".flatpak", instance)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapProxyErr("Could not create the flatpak status directory", err)
	}

	f, err := os.Create(filepath.Join(dir, "bwrapinfo.json"))
	if err != nil {
		return nil, wrapProxyErr("Could not create the flatpak status file", err)
	}
	return f, nil
}
