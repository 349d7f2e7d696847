package profile

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// AppPath returns the binary profile p describes, resolving name against
// PATH when the profile has no explicit Path.
func AppPath(p *Profile, name string) string {
	if p.Path != nil {
		return *p.Path
	}
	if resolved, err := exec.LookPath(name); err == nil {
		return resolved
	}
	return name
}

// DesktopID returns the name profile p should be matched against a
// .desktop file as: its explicit ID if set, else the basename of its
// binary if that basename looks like a dotted reverse-DNS id, else name
// itself.
func DesktopID(p *Profile, name string) string {
	if p.ID != nil {
		return *p.ID
	}

	bin := filepath.Base(AppPath(p, name))
	if strings.Contains(bin, ".") {
		return bin
	}
	return name
}

// FlatpakID formats DesktopID as a Flatpak application ID, prefixing with
// "antimony." when the desktop id isn't already dotted.
func FlatpakID(p *Profile, name string) string {
	id := DesktopID(p, name)
	if strings.Contains(id, ".") {
		return id
	}
	return "antimony." + id
}
