package spawner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnTrueExitsZero(t *testing.T) {
	s, err := New("true")
	require.NoError(t, err)

	h, err := s.Spawn()
	require.NoError(t, err)
	defer h.Close()

	err = h.Wait()
	assert.NoError(t, err)
}

func TestSpawnCapturesStdout(t *testing.T) {
	s := Abs("/bin/echo")
	s.Arg("hello")
	s.Output(Pipe, -1)

	h, err := s.Spawn()
	require.NoError(t, err)
	defer h.Close()

	line, ok := h.Stdout().ReadLine()
	require.True(t, ok)
	assert.Equal(t, "hello", line)

	require.NoError(t, h.Wait())
}

func TestHandleTerminateEscalatesToKill(t *testing.T) {
	s, err := New("sleep")
	require.NoError(t, err)
	s.Arg("30")

	h, err := s.Spawn()
	require.NoError(t, err)

	err = h.Terminate(50 * time.Millisecond)
	assert.NoError(t, err)

	exited, _ := h.WaitTimeout(2 * time.Second)
	assert.True(t, exited)
}

func TestHandleCloseCascadesToAssociates(t *testing.T) {
	child, err := New("sleep")
	require.NoError(t, err)
	child.Arg("30")
	childHandle, err := child.Spawn()
	require.NoError(t, err)

	parent, err := New("sleep")
	require.NoError(t, err)
	parent.Arg("30")
	parent.Associate("child", childHandle)
	parentHandle, err := parent.Spawn()
	require.NoError(t, err)

	require.NoError(t, parentHandle.Close())

	assert.False(t, childHandle.Alive())
	assert.False(t, parentHandle.Alive())
}

func TestLookPathSkipsLocalBin(t *testing.T) {
	// A "true" planted first on PATH in ~/.local/bin must not shadow the
	// one found on the rest of PATH.
	home := t.TempDir()
	localBin := filepath.Join(home, ".local", "bin")
	require.NoError(t, os.MkdirAll(localBin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(localBin, "true"), []byte("#!/bin/sh\n"), 0o755))
	t.Setenv("HOME", home)
	t.Setenv("PATH", localBin+":"+os.Getenv("PATH"))

	s, err := New("true")
	require.NoError(t, err)
	assert.Contains(t, s.path, "true")
	assert.NotEqual(t, filepath.Join(localBin, "true"), s.path)
}
