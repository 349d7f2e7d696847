package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuiescentTreatsMissingInstancesDirAsQuiescent(t *testing.T) {
	sys := t.TempDir()
	assert.True(t, quiescent(sys))
}

func TestQuiescentFalseWhenInstancesPresent(t *testing.T) {
	sys := t.TempDir()
	require.NoError(t, os.MkdirAll(instancesDir(sys), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(instancesDir(sys), "antimony-x"), nil, 0o644))

	assert.False(t, quiescent(sys))
}

func TestResolveSysDirCreatesFreshDirWithoutRefresh(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	hash := "deadbeef"

	dir, isRefresh, err := resolveSysDir(hash, false)
	require.NoError(t, err)
	assert.False(t, isRefresh)
	assert.DirExists(t, dir)
}

func TestResolveSysDirBuildsIntoRefreshSiblingWhenBusy(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	hash := "cafef00d"
	sys := sysDir(hash)
	require.NoError(t, os.MkdirAll(instancesDir(sys), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(instancesDir(sys), "antimony-live"), nil, 0o644))

	dir, isRefresh, err := resolveSysDir(hash, true)
	require.NoError(t, err)
	assert.True(t, isRefresh)
	assert.Equal(t, sys+"-refresh", dir)
	assert.DirExists(t, dir)
}

func TestResolveSysDirPivotsCompletedRefreshWhenQuiescent(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	hash := "c0ffee"
	sys := sysDir(hash)
	refresh := sys + "-refresh"
	require.NoError(t, os.MkdirAll(refresh, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(refresh, "marker"), []byte("new"), 0o644))

	dir, isRefresh, err := resolveSysDir(hash, false)
	require.NoError(t, err)
	assert.False(t, isRefresh)
	assert.Equal(t, sys, dir)
	assert.FileExists(t, filepath.Join(sys, "marker"))
	assert.NoDirExists(t, refresh)
}
