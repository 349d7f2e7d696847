package profile

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

const (
	// AtHomeEnv overrides Antimony's system-wide data root (profiles,
	// features, the default system config), mirroring the reference's
	// AT_HOME environment convention.
	AtHomeEnv = "AT_HOME"

	defaultAtHome = "/etc/antimony"
)

// AtHome returns Antimony's system-wide data root.
func AtHome() string {
	if v := os.Getenv(AtHomeEnv); v != "" {
		return v
	}
	return defaultAtHome
}

func currentUserName() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

// UserProfilePath returns where a user-created or user-overridden profile
// named name is stored.
func UserProfilePath(name string) string {
	return filepath.Join(AtHome(), "config", currentUserName(), "profiles", name+".toml")
}

// SystemProfilePath returns where a system-provided profile named name is
// stored.
func SystemProfilePath(name string) string {
	return filepath.Join(AtHome(), "profiles", name+".toml")
}

// DefaultProfilePath returns the location of the current user's default
// profile (the implicit base every profile inherits unless it opts out).
func DefaultProfilePath() string {
	return filepath.Join(AtHome(), "config", currentUserName(), "default.toml")
}

// localProfilePath is the last-resort fallback this port adds beyond the
// reference lookup chain: a profile checked into the current project
// instead of installed system- or user-wide, so a repo can ship its own
// sandbox definitions under version control.
func localProfilePath(name string) string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(wd, "config", "profiles", name+".toml")
}

// ResolvePath finds the TOML file backing profile name, trying in order:
// the special "default" profile (materialised from the system default on
// first use), an absolute ".toml" path, the user store, the system store,
// and finally a local ./config/profiles/ fallback.
func ResolvePath(name string) (string, error) {
	if name == "default" {
		path := DefaultProfilePath()
		if _, err := os.Stat(path); err != nil {
			if err := copyFile(filepath.Join(AtHome(), "config", "default.toml"), path); err != nil {
				return "", fmt.Errorf("create default profile: %w", err)
			}
		}
		return path, nil
	}

	if strings.HasSuffix(name, ".toml") {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}

	if p := UserProfilePath(name); fileExists(p) {
		return p, nil
	}
	if p := SystemProfilePath(name); fileExists(p) {
		return p, nil
	}
	if p := localProfilePath(name); p != "" && fileExists(p) {
		return p, nil
	}

	return "", fmt.Errorf("no such profile: %s", name)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// CacheDir is where resolved (post-inherit, post-feature) profiles are
// cached, keyed by their source path with slashes flattened to dots.
func CacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "antimony", "profile")
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// CacheKey mirrors the reference's cache-file naming: the resolved path
// with "/" replaced by ".", optionally suffixed with a configuration name.
func CacheKey(resolvedPath string, config *string) string {
	key := strings.ReplaceAll(resolvedPath, "/", ".")
	if config != nil {
		key = fmt.Sprintf("%s-%s", key, *config)
	}
	return key
}
