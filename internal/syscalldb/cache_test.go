package syscalldb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firefox.cache")
	entry := CacheEntry{
		ProgramCalls:  []string{"execve", "mmap", "read"},
		ExecutorCalls: []string{"clone", "mount"},
	}

	require.NoError(t, WriteCache(path, entry))

	got, err := ReadCache(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"execve", "mmap", "read"}, got.ProgramCalls)
	assert.Equal(t, []string{"clone", "mount"}, got.ExecutorCalls)
}

func TestReadCacheMissingFile(t *testing.T) {
	_, err := ReadCache(filepath.Join(t.TempDir(), "missing.cache"))
	assert.Error(t, err)
}
