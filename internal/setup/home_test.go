package setup

import (
	"testing"

	"github.com/antimony-sandbox/antimony/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func policyPtr(p profile.HomePolicy) *profile.HomePolicy { return &p }

func TestHomeArgsNilHomeIsNoop(t *testing.T) {
	args, lock, err := homeArgs(nil, "firefox")
	require.NoError(t, err)
	assert.Nil(t, args)
	assert.Nil(t, lock)
}

func TestHomeArgsNonePolicySkipsEntirely(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	h := &profile.Home{Policy: policyPtr(profile.HomePolicyNone)}

	args, lock, err := homeArgs(h, "firefox")
	require.NoError(t, err)
	assert.Nil(t, args)
	assert.Nil(t, lock)
}

func TestHomeArgsPersistentBindsDirectly(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	h := &profile.Home{Policy: policyPtr(profile.HomePolicyPersistent)}

	args, lock, err := homeArgs(h, "firefox")
	require.NoError(t, err)
	assert.Nil(t, lock)
	require.Len(t, args, 3)
	assert.Equal(t, "--bind", args[0])
	assert.Equal(t, homeMountPath, args[2])
}

func TestHomeArgsTransientUsesOverlay(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	h := &profile.Home{Policy: policyPtr(profile.HomePolicyTransient)}

	args, lock, err := homeArgs(h, "firefox")
	require.NoError(t, err)
	assert.Nil(t, lock)
	require.Len(t, args, 4)
	assert.Equal(t, "--overlay-src", args[0])
	assert.Equal(t, "--tmp-overlay", args[2])
	assert.Equal(t, homeMountPath, args[3])
}

func TestHomeArgsCustomPathOverridesMount(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	path := "/home/custom"
	h := &profile.Home{Policy: policyPtr(profile.HomePolicyPersistent), Path: &path}

	args, _, err := homeArgs(h, "firefox")
	require.NoError(t, err)
	assert.Equal(t, path, args[2])
}

func TestHomeArgsLockAcquiresFlock(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	h := &profile.Home{Policy: policyPtr(profile.HomePolicyPersistent), Lock: boolPtr(true)}

	_, lock, err := homeArgs(h, "firefox")
	require.NoError(t, err)
	require.NotNil(t, lock)
	lock.Close()
}

func TestAcquireHomeLockFailsWhenAlreadyHeld(t *testing.T) {
	dir := t.TempDir()

	first, err := acquireHomeLock(dir)
	require.NoError(t, err)
	defer first.Close()

	_, err = acquireHomeLock(dir)
	assert.Error(t, err)
}
