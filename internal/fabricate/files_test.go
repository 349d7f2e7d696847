package fabricate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/antimony-sandbox/antimony/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeFlagReadWrite(t *testing.T) {
	assert.Equal(t, "--bind", modeFlag(profile.FileModeReadWrite, false))
	assert.Equal(t, "--bind-try", modeFlag(profile.FileModeReadWrite, true))
}

func TestModeFlagReadOnlyDefault(t *testing.T) {
	assert.Equal(t, "--ro-bind", modeFlag(profile.FileModeReadOnly, false))
	assert.Equal(t, "--ro-bind-try", modeFlag(profile.FileModeReadOnly, true))
}

func TestSplitDirectEntrySplitsOnFirstEquals(t *testing.T) {
	dest, content, ok := splitDirectEntry("/etc/foo.conf=key=value")
	require.True(t, ok)
	assert.Equal(t, "/etc/foo.conf", dest)
	assert.Equal(t, "key=value", content)
}

func TestSplitDirectEntryNoEqualsFails(t *testing.T) {
	_, _, ok := splitDirectEntry("/etc/foo.conf")
	assert.False(t, ok)
}

func TestMaterializeDirectWritesThenReusesCache(t *testing.T) {
	dir := t.TempDir()

	path, err := materializeDirect(dir, "hello world")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, filepath.Join(dir, ".direct"), filepath.Dir(path))

	again, err := materializeDirect(dir, "hello world")
	require.NoError(t, err)
	assert.Equal(t, path, again)
}

func TestMaterializeDirectDifferentContentDifferentPath(t *testing.T) {
	dir := t.TempDir()

	a, err := materializeDirect(dir, "one")
	require.NoError(t, err)
	b, err := materializeDirect(dir, "two")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
