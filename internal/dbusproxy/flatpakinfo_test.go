package dbusproxy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/antimony-sandbox/antimony/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFlatpakInfoContainsAppAndInstance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".flatpak-info")

	require.NoError(t, WriteFlatpakInfo(path, "com.example.App", "antimony-1234", false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "name=com.example.App")
	assert.Contains(t, content, "instance-id=antimony-1234")
	assert.NotContains(t, content, "shared=network;")
}

func TestWriteFlatpakInfoSharesNetworkWhenRequested(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".flatpak-info")

	require.NoError(t, WriteFlatpakInfo(path, "com.example.App", "antimony-1234", true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "shared=network;")
}

func TestShareNetworkDetectsNetNamespace(t *testing.T) {
	assert.True(t, ShareNetwork([]profile.Namespace{profile.NamespaceNet}))
	assert.False(t, ShareNetwork([]profile.Namespace{profile.NamespacePID}))
}

func TestShareNetworkDetectsAllSentinel(t *testing.T) {
	assert.True(t, ShareNetwork([]profile.Namespace{"all"}))
}

func TestOpenBwrapInfoFileCreatesUnderFlatpakDir(t *testing.T) {
	dir := t.TempDir()

	f, err := OpenBwrapInfoFile(dir, "antimony-1234")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, filepath.Join(dir, ".flatpak", "antimony-1234", "bwrapinfo.json"), f.Name())
}
