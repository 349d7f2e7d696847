package syscalldb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "syscalls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndFetchSyscalls(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordSyscalls("firefox", "/usr/bin/firefox", []string{"execve", "mmap", "read"}))
	require.NoError(t, db.RecordSyscalls("firefox", "/usr/bin/firefox", []string{"mmap", "write"}))

	calls, err := db.BinarySyscalls("firefox", "/usr/bin/firefox")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"execve", "mmap", "read", "write"}, calls)
}

func TestGetCallsSplitsProgramAndExecutor(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RecordSyscalls("firefox", "/usr/bin/firefox", []string{"execve", "mmap"}))
	require.NoError(t, db.RecordSyscalls("firefox", "/usr/bin/bwrap", []string{"clone", "mount"}))

	program, executor, err := db.GetCalls("firefox", []string{"/usr/bin/bwrap"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"execve", "mmap"}, program)
	assert.ElementsMatch(t, []string{"clone", "mount"}, executor)
}

func TestGetCallsUnknownProfileIsEmpty(t *testing.T) {
	db := openTestDB(t)

	program, executor, err := db.GetCalls("nonexistent", nil)
	require.NoError(t, err)
	assert.Empty(t, program)
	assert.Empty(t, executor)
}

func TestBinaryAndProfileIDsAreStable(t *testing.T) {
	db := openTestDB(t)

	id1, err := db.InsertBinary("/usr/bin/firefox")
	require.NoError(t, err)
	id2, err := db.InsertBinary("/usr/bin/firefox")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, ok, err := db.BinaryID("/usr/bin/firefox")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id1, got)

	_, ok, err = db.BinaryID("/usr/bin/nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}
