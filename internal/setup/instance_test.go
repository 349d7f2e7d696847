package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstanceCreatesDirAndLivenessSymlink(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	sys := t.TempDir()

	inst, err := NewInstance(sys)
	require.NoError(t, err)
	defer inst.Close()

	assert.DirExists(t, inst.Dir)

	target, err := os.Readlink(filepath.Join(instancesDir(sys), inst.Name))
	require.NoError(t, err)
	assert.Equal(t, inst.Dir, target)
}

func TestInstanceCloseRemovesDirAndSymlink(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	sys := t.TempDir()

	inst, err := NewInstance(sys)
	require.NoError(t, err)

	require.NoError(t, inst.Close())

	assert.NoDirExists(t, inst.Dir)
	_, err = os.Lstat(filepath.Join(instancesDir(sys), inst.Name))
	assert.True(t, os.IsNotExist(err))
}

func TestInstanceCloseIsIdempotentWithoutHandles(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	sys := t.TempDir()

	inst, err := NewInstance(sys)
	require.NoError(t, err)

	assert.NoError(t, inst.Close())
	assert.NoError(t, inst.Close())
}

func TestCommitSyscallsNoopWithoutRecorder(t *testing.T) {
	inst := &Instance{}
	assert.NoError(t, inst.CommitSyscalls(nil))
}
