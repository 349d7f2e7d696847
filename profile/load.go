package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/safedep/dry/log"

	"github.com/antimony-sandbox/antimony/internal/identity"
	"github.com/antimony-sandbox/antimony/usefulerror"
)

// LoadFeatureFile reads and parses a single feature by name, checking (in
// order) an explicit .toml path, the per-user feature store, then the
// system-wide feature store — skipping the per-user store entirely when
// systemMode is set, matching the reference's CONFIG_FILE.system_mode()
// gate.
func LoadFeatureFile(name string, systemMode bool) (*Feature, error) {
	if strings.HasSuffix(name, ".toml") {
		return decodeFeatureFile(name)
	}

	if !systemMode {
		userPath := filepath.Join(AtHome(), "config", currentUserName(), "features", name+".toml")
		if fileExists(userPath) {
			return decodeFeatureFile(userPath)
		}
	}

	systemPath := filepath.Join(AtHome(), "features", name+".toml")
	if fileExists(systemPath) {
		return decodeFeatureFile(systemPath)
	}

	return nil, usefulerror.Useful().WithCode(usefulerror.ErrCodeProfileLoad).
		WithHumanError(fmt.Sprintf("No such feature: %s", name)).Wrap(fmt.Errorf("feature %q not found", name))
}

func decodeFeatureFile(path string) (*Feature, error) {
	var f Feature
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, usefulerror.Useful().WithCode(usefulerror.ErrCodeProfileLoad).
			WithHumanError(fmt.Sprintf("Malformed feature file: %s", path)).Wrap(err)
	}
	return &f, nil
}

// LoadOptions tune Load's resolution pipeline.
type LoadOptions struct {
	// Config selects an embedded `[configuration.<Config>]` table to base
	// the resolved profile on, erroring if the profile has none matching.
	Config *string

	// SystemMode restricts feature lookups to the system store, mirroring
	// LoadFeatureFile's systemMode gate.
	SystemMode bool

	// SkipCache forces a fresh resolve even if a cache entry exists,
	// set by `antimony run --refresh`.
	SkipCache bool

	// Gate is the process's identity gate, used to evaluate each feature's
	// conditional script under the real, non-privileged identity rather than
	// whatever identity the caller currently holds. Nil disables the
	// identity switch (unit tests with no process identity to manage).
	Gate *identity.Gate
}

// Load resolves name into a fully fabricated Profile: reading its TOML,
// merging in everything it inherits, applying a selected configuration,
// expanding a leading "~" in Path, resolving Path via PATH if still unset,
// and fabricating its feature set — or, if a matching cache entry exists
// and SkipCache isn't set, returning that instead of repeating the work.
func Load(name string, opts LoadOptions) (Profile, error) {
	log.Debugf("Loading profile %s", name)

	if name == "default" {
		path, err := ResolvePath("default")
		if err != nil {
			return Profile{}, err
		}
		return decodeProfileFile(path)
	}

	resolvedPath, err := ResolvePath(name)
	if err != nil {
		return Profile{}, err
	}

	cachePath := filepath.Join(CacheDir(), CacheKey(resolvedPath, opts.Config))
	if !opts.SkipCache {
		if cached, err := decodeProfileFile(cachePath); err == nil {
			log.Debugf("Using cached profile for %s", name)
			return cached, nil
		}
	}

	p, err := decodeProfileFile(resolvedPath)
	if err != nil {
		return Profile{}, err
	}

	toInherit := p.Inherits
	if toInherit == nil {
		if fileExists(DefaultProfilePath()) {
			toInherit = []string{"default"}
		}
	}

	for _, parent := range toInherit {
		parentProfile, err := Load(parent, LoadOptions{SystemMode: opts.SystemMode, Gate: opts.Gate})
		if err != nil {
			return Profile{}, err
		}
		Merge(&p, parentProfile)
	}

	if opts.Config != nil {
		conf, ok := p.Configuration[*opts.Config]
		if !ok {
			return Profile{}, usefulerror.Useful().WithCode(usefulerror.ErrCodeProfileLoad).
				WithHumanError(fmt.Sprintf("Configuration %s does not exist for profile %s", *opts.Config, name)).
				Wrap(fmt.Errorf("configuration not found"))
		}
		p.Configuration = nil
		p = Base(conf, p)
	}

	if p.Path != nil && strings.HasPrefix(*p.Path, "~") {
		home, _ := os.UserHomeDir()
		expanded := strings.Replace(*p.Path, "~", home, 1)
		p.Path = &expanded
	}

	if !strings.HasSuffix(name, ".toml") && p.Path == nil {
		resolved := AppPath(&p, name)
		p.Path = &resolved
	}

	loader := NewFeatureLoader(func(featName string) (*Feature, error) {
		return LoadFeatureFile(featName, opts.SystemMode)
	})
	if err := Fabricate(opts.Gate, &p, name, loader); err != nil {
		return Profile{}, err
	}

	if err := writeProfileFile(cachePath, p); err != nil {
		log.Warnf("Failed to write profile cache for %s: %v", name, err)
	}

	return p, nil
}

func decodeProfileFile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return Profile{}, usefulerror.Useful().WithCode(usefulerror.ErrCodeProfileLoad).
			WithHumanError(fmt.Sprintf("Failed to parse profile: %s", path)).Wrap(err)
	}
	return p, nil
}

func writeProfileFile(path string, p Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(p)
}
