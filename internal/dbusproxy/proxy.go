// Package dbusproxy implements C8: launching and mediating the D-Bus proxy
// (xdg-dbus-proxy, itself wrapped in its own minimal bwrap sandbox) that
// brokers session/system-bus and portal access for a running sandbox,
// plus the Flatpak-compatible identity files portal-aware applications
// expect to find. Grounded on spec.md §4.8 directly; the proxy process
// itself is launched through its own bwrap invocation built with
// internal/spawner, and its own library tree is built by reusing
// internal/fabricate's LibraryFabricator rather than re-deriving SOF
// construction here.
package dbusproxy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antimony-sandbox/antimony/internal/fabricate"
	"github.com/antimony-sandbox/antimony/internal/identity"
	"github.com/antimony-sandbox/antimony/internal/seccomp"
	"github.com/antimony-sandbox/antimony/internal/spawner"
	"github.com/antimony-sandbox/antimony/profile"
	"github.com/antimony-sandbox/antimony/usefulerror"
)

const (
	bwrapBinary = "/usr/bin/bwrap"
	proxyBinary = "/usr/bin/xdg-dbus-proxy"

	desktopBus  = "org.freedesktop.portal.Desktop"
	desktopPath = "/org/freedesktop/portal/desktop"
)

// Config describes one proxy invocation: the instance-scoped directories
// it needs, the IPC rules to translate into proxy filter arguments, and
// the optional SECCOMP filter and identity gate the setup pipeline (C9)
// wants applied to the proxy process.
type Config struct {
	// AppID is the sandboxed application's profile id, used to name the
	// per-app runtime bus directory xdg-dbus-proxy publishes.
	AppID string
	// Instance is this run's instance name.
	Instance string
	// ProxyDir is a per-instance scratch directory (typically
	// "<user_dir>/<instance>/proxy") the proxy's own bus socket is
	// written into.
	ProxyDir string
	// InfoPath is the absolute path to the already-materialised
	// .flatpak-info file the proxy's own mini sandbox binds at /.
	InfoPath string
	// SharedCache is the cross-profile cache directory the SOF builder
	// falls back to for cross-filesystem hard-link copies.
	SharedCache string
	// Ipc is the profile's IPC configuration; its See/Talk/Own/Call and
	// Portals lists are translated into proxy filter rules.
	Ipc *profile.Ipc

	Seccomp *seccomp.Filter
	Gate    *identity.Gate
	Debug   bool
}

// Run builds and spawns the proxy: a new bwrap session wrapping
// xdg-dbus-proxy, its own read-only SOF-backed /usr/lib view, and a
// generated rule set translated from cfg.Ipc. The caller is responsible
// for waiting on socket/portal readiness (see ready.go) before relying on
// the bus being reachable.
func Run(cfg Config) (*spawner.Handle, error) {
	runtime := runtimeDir()
	appDir := filepath.Join(runtime, "app", cfg.AppID)

	if err := withIdentity(cfg.Gate, identity.Real, func() error {
		if err := os.MkdirAll(cfg.ProxyDir, 0o755); err != nil {
			return err
		}
		return os.MkdirAll(appDir, 0o755)
	}); err != nil {
		return nil, wrapProxyErr("Could not prepare the proxy's directories", err)
	}

	sof := filepath.Join(cfg.SharedCache, ".proxy", "sof")
	if err := withIdentity(cfg.Gate, identity.Effective, func() error {
		if _, err := os.Stat(sof); err == nil {
			return nil
		}
		if err := os.MkdirAll(sof, 0o755); err != nil {
			return err
		}
		libFab := fabricate.NewLibraryFabricator()
		_, err := libFab.Fabricate([]string{proxyBinary}, nil, sof, cfg.SharedCache)
		return err
	}); err != nil {
		return nil, wrapProxyErr("Could not build the proxy's library tree", err)
	}

	busAddr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if busAddr == "" {
		return nil, wrapProxyErr("No session bus to mediate", errors.New("DBUS_SESSION_BUS_ADDRESS is unset"))
	}

	s := spawner.Abs(bwrapBinary).Named("proxy")
	s.Args(
		"--new-session",
		"--ro-bind", proxyBinary, proxyBinary,
		"--clearenv",
		"--disable-userns",
		"--assert-userns-disabled",
		"--unshare-all",
		"--unshare-user",
		"--die-with-parent",
		"--dir", runtime,
		"--bind", filepath.Join(runtime, "bus"), filepath.Join(runtime, "bus"),
		"--ro-bind", cfg.InfoPath, "/.flatpak-info",
		"--symlink", "/.flatpak-info", filepath.Join(runtime, "flatpak-info"),
		"--bind", cfg.ProxyDir, appDir,
	)
	s.Args(sofLibArgs(sof)...)
	s.Args("--symlink", "/usr/lib", "/lib", "--symlink", "/usr/lib64", "/lib64")

	if cfg.Seccomp != nil {
		s.Seccomp(cfg.Seccomp)
	}

	s.Args("--", proxyBinary, busAddr, filepath.Join(appDir, "bus"), "--filter")
	if cfg.Debug {
		s.Args("--log")
	}
	s.Args(BuildRules(cfg.Ipc)...)

	handle, err := s.Spawn()
	if err != nil {
		return nil, wrapProxyErr("Could not start the D-Bus proxy", err)
	}
	return handle, nil
}

// sofLibArgs mirrors the library fabricator's own bind-args shape: bind
// the SOF's lib directory over /usr/lib, and either bind its lib64 (if
// the host is multilib) or symlink /usr/lib64 to /usr/lib.
func sofLibArgs(sof string) []string {
	args := []string{"--ro-bind-try", filepath.Join(sof, "lib"), "/usr/lib"}
	lib64 := filepath.Join(sof, "lib64")
	if info, err := os.Stat(lib64); err == nil && info.IsDir() {
		args = append(args, "--ro-bind-try", lib64, "/usr/lib64")
	} else {
		args = append(args, "--symlink", "/usr/lib", "/usr/lib64")
	}
	return args
}

// BuildRules translates a profile's IPC configuration into xdg-dbus-proxy
// filter arguments: the Desktop portal's generic Properties/Introspectable
// calls plus a --call/--talk pair per requested portal (Settings
// additionally gets a --broadcast for SettingChanged), a --see/--talk/--own
// rule plus a Properties --call rule for every listed See/Talk/Own name,
// and each Call entry passed through verbatim as a single --call rule.
func BuildRules(ipc *profile.Ipc) []string {
	if ipc == nil {
		return nil
	}

	var args []string
	if len(ipc.Portals) > 0 {
		args = append(args,
			fmt.Sprintf("--call=%s=org.freedesktop.DBus.Properties.*@%s/*", desktopBus, desktopPath),
			fmt.Sprintf("--call=%s=org.freedesktop.DBus.Introspectable.Introspect@%s", desktopBus, desktopPath),
		)
		for _, portal := range ipc.Portals {
			args = append(args, emitPortalRules(portal)...)
		}
	}

	for _, name := range ipc.See {
		args = append(args, "--see="+name, permitCall(name))
	}
	for _, name := range ipc.Talk {
		args = append(args, "--talk="+name, permitCall(name))
	}
	for _, name := range ipc.Own {
		args = append(args, "--own="+name, permitCall(name))
	}
	for _, name := range ipc.Call {
		args = append(args, "--call="+name)
	}
	return args
}

// portalRuleFunc emits the proxy filter rules for one portal name.
type portalRuleFunc func(portal string) []string

// portalRules keys a non-default rule emitter by portal name; any portal
// absent here falls back to defaultPortalRules.
var portalRules = map[string]portalRuleFunc{
	"Settings": settingsPortalRules,
}

func emitPortalRules(portal string) []string {
	if f, ok := portalRules[portal]; ok {
		return f(portal)
	}
	return defaultPortalRules(portal)
}

func defaultPortalRules(portal string) []string {
	return []string{
		fmt.Sprintf("--call=%s=org.freedesktop.portal.%s.*@%s", desktopBus, portal, desktopPath),
		fmt.Sprintf("--talk=org.freedesktop.portal.%s", portal),
	}
}

func settingsPortalRules(portal string) []string {
	rules := defaultPortalRules(portal)
	rules = append(rules, fmt.Sprintf("--broadcast=%s=org.freedesktop.portal.Settings.SettingChanged@%s", desktopBus, desktopPath))
	return rules
}

// permitCall builds the generic Properties-introspection rule a see/talk/
// own bus name also needs, deriving the object path from the bus name the
// way the D-Bus convention expects (dots become slashes, lower-cased).
func permitCall(name string) string {
	path := "/" + strings.ReplaceAll(strings.ToLower(name), ".", "/")
	return fmt.Sprintf("--call=%s=org.freedesktop.DBus.Properties.*@%s", name, path)
}

func runtimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return v
	}
	return fmt.Sprintf("/run/user/%d", os.Getuid())
}

// withIdentity runs f under the gate's mode identity when a gate is
// supplied, or runs it directly otherwise (useful for tests and for
// callers that have already dropped to the right identity).
func withIdentity(gate *identity.Gate, mode identity.Mode, f func() error) error {
	if gate == nil {
		return f()
	}
	return gate.RunAs(mode, f)
}

func wrapProxyErr(msg string, err error) error {
	return usefulerror.Useful().
		WithCode(usefulerror.ErrCodeIPC).
		WithHumanError(msg).
		Wrap(err)
}
