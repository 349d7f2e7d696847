package lifecycle

import (
	"testing"

	"github.com/antimony-sandbox/antimony/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }
func boolptr(b bool) *bool    { return &b }

func TestBuildSpawnerContentUsesBash(t *testing.T) {
	h := profile.Hook{Content: strptr("echo hi")}
	s, err := buildSpawner(h, hookEnv{Name: "app", Cache: "/cache", Instance: "antimony-x"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestBuildSpawnerPathExpandsVariables(t *testing.T) {
	h := profile.Hook{Path: strptr("/usr/bin/true")}
	s, err := buildSpawner(h, hookEnv{Name: "app", Cache: "/cache", Instance: "antimony-x"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestBuildSpawnerRejectsMissingPathAndContent(t *testing.T) {
	_, err := buildSpawner(profile.Hook{}, hookEnv{})
	assert.Error(t, err)
}

func TestCanFailDefaultsFalse(t *testing.T) {
	assert.False(t, canFail(profile.Hook{}))
	assert.True(t, canFail(profile.Hook{CanFail: boolptr(true)}))
	assert.False(t, canFail(profile.Hook{CanFail: boolptr(false)}))
}

func TestAttachesDefaultsFalse(t *testing.T) {
	assert.False(t, attaches(profile.Hook{}))
	assert.True(t, attaches(profile.Hook{Attach: boolptr(true)}))
}

func TestCaptureFdNoopWhenNeitherRequested(t *testing.T) {
	_, _, _, ok, cleanup, err := captureFd(profile.Hook{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, cleanup)
}

func TestCaptureFdOutputOpensPipe(t *testing.T) {
	readFd, writeFd, isStderr, ok, cleanup, err := captureFd(profile.Hook{CaptureOutput: boolptr(true)})
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, isStderr)
	assert.NotEqual(t, readFd, writeFd)
	cleanup()
}

func TestCaptureFdErrorWinsOverOutput(t *testing.T) {
	_, _, isStderr, ok, cleanup, err := captureFd(profile.Hook{
		CaptureOutput: boolptr(true),
		CaptureError:  boolptr(true),
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, isStderr)
	cleanup()
}
