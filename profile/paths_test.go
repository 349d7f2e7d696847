package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePathAbsoluteTomlFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("path = \"/bin/true\"\n"), 0o644))

	resolved, err := ResolvePath(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
}

func TestResolvePathNotFound(t *testing.T) {
	t.Setenv(AtHomeEnv, t.TempDir())
	_, err := ResolvePath("definitely-not-a-real-profile")
	assert.Error(t, err)
}

func TestCacheKeyFlattensSlashesAndAppendsConfig(t *testing.T) {
	cfg := "debug"
	key := CacheKey("/etc/antimony/profiles/firefox.toml", &cfg)
	assert.Equal(t, ".etc.antimony.profiles.firefox.toml-debug", key)
}

func TestCacheKeyWithoutConfig(t *testing.T) {
	key := CacheKey("/etc/antimony/profiles/firefox.toml", nil)
	assert.Equal(t, ".etc.antimony.profiles.firefox.toml", key)
}
