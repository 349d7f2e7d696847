package fabricate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/antimony-sandbox/antimony/profile"
	"github.com/antimony-sandbox/antimony/usefulerror"
)

// etcWhitelist are the /etc files bound read-only verbatim from the host,
// per spec.md §4.7.4. passwd and group are handled separately since they
// are synthesised, not copied.
var etcWhitelist = []string{"machine-id", "hostname", "resolv.conf", "nsswitch.conf"}

// essentialDevices are always bound regardless of profile.devices,
// grounded on bubblewrap_config_linux.go's essentialDevices table.
var essentialDevices = []string{"/dev/null", "/dev/zero", "/dev/random", "/dev/urandom", "/dev/full", "/dev/tty"}

// FabricateEtc materialises the curated /etc view: the host's
// machine-id/hostname/resolv.conf/nsswitch.conf bound read-only, plus a
// synthetic passwd/group pair with exactly two accounts (root and
// antimony), so the sandbox never sees the real system's user database.
func FabricateEtc(uid, gid int, cacheDir string) ([]string, error) {
	var args []string

	for _, name := range etcWhitelist {
		path := filepath.Join("/etc", name)
		if _, err := os.Stat(path); err == nil {
			args = append(args, "--ro-bind-try", path, path)
		}
	}

	passwd := fmt.Sprintf(
		"root:x:0:0:root:/root:/usr/bin/false\nantimony:x:%d:%d:antimony:/home/antimony:/usr/bin/bash\n",
		uid, gid,
	)
	group := fmt.Sprintf("root:x:0:\nantimony:x:%d:\n", gid)

	passwdPath, err := materializeDirect(cacheDir, passwd)
	if err != nil {
		return nil, wrapFabricationErr("Could not materialise /etc/passwd", err)
	}
	groupPath, err := materializeDirect(cacheDir, group)
	if err != nil {
		return nil, wrapFabricationErr("Could not materialise /etc/group", err)
	}

	args = append(args,
		"--ro-bind", passwdPath, "/etc/passwd",
		"--ro-bind", groupPath, "/etc/group",
	)
	return args, nil
}

// FabricateDev binds the always-needed device nodes plus every device
// the profile explicitly names, deduplicated.
func FabricateDev(devices []string) []string {
	seen := map[string]bool{}
	var args []string

	for _, d := range essentialDevices {
		if _, err := os.Stat(d); err == nil {
			args = append(args, "--dev-bind-try", d, d)
			seen[d] = true
		}
	}
	for _, d := range devices {
		if seen[d] {
			continue
		}
		seen[d] = true
		args = append(args, "--dev-bind-try", d, d)
	}
	return args
}

// namespaceFlags maps each Namespace to the unshare flag that isolates
// it; listing a namespace in a profile means "keep it shared with the
// host", so its flag is omitted.
var namespaceFlags = []struct {
	ns   profile.Namespace
	flag string
}{
	{profile.NamespaceUser, "--unshare-user"},
	{profile.NamespaceNet, "--unshare-net"},
	{profile.NamespacePID, "--unshare-pid"},
	{profile.NamespaceIPC, "--unshare-ipc"},
	{profile.NamespaceUTS, "--unshare-uts"},
	{profile.NamespaceCgroup, "--unshare-cgroup"},
}

// namespaceAll is the sentinel profile value meaning "share every
// namespace with the host", a union over every individual Namespace
// value rather than a namespace in its own right.
const namespaceAll = "all"

// FabricateNamespaces emits --unshare-* flags for every namespace NOT
// listed in namespaces (the default is full isolation; listing a
// namespace opts it back into being shared with the host).
func FabricateNamespaces(namespaces []profile.Namespace) []string {
	shared := map[profile.Namespace]bool{}
	for _, ns := range namespaces {
		if string(ns) == namespaceAll {
			for _, f := range namespaceFlags {
				shared[f.ns] = true
			}
			break
		}
		shared[ns] = true
	}

	var args []string
	for _, f := range namespaceFlags {
		if !shared[f.ns] {
			args = append(args, f.flag)
		}
	}
	return args
}

func wrapFabricationErr(msg string, err error) error {
	return usefulerror.Useful().
		WithCode(usefulerror.ErrCodeFabrication).
		WithHumanError(msg).
		Wrap(err)
}
