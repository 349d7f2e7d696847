package fabricate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsGlob(t *testing.T) {
	assert.True(t, ContainsGlob("/usr/lib/*.so"))
	assert.True(t, ContainsGlob("file?.txt"))
	assert.True(t, ContainsGlob("[abc].txt"))
	assert.False(t, ContainsGlob("/usr/lib/libc.so"))
}

func TestExpandGlobLiteralPattern(t *testing.T) {
	matches, err := ExpandGlob("/usr/lib/libc.so")
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/lib/libc.so"}, matches)
}

func TestExpandGlobSimpleWildcard(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.so"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.so"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), nil, 0o644))

	matches, err := ExpandGlob(filepath.Join(dir, "*.so"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.so"),
		filepath.Join(dir, "b.so"),
	}, matches)
}

func TestExpandGlobstarWalksSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.so"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "nested.so"), nil, 0o644))

	matches, err := ExpandGlob(filepath.Join(dir, "**", "*.so"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "top.so"),
		filepath.Join(dir, "sub", "nested.so"),
	}, matches)
}

func TestExpandGlobstarMissingBaseReturnsBaseUnchanged(t *testing.T) {
	base := filepath.Join(t.TempDir(), "does-not-exist")
	matches, err := ExpandGlob(base + "/**/*.so")
	require.NoError(t, err)
	assert.Equal(t, []string{base}, matches)
}

func TestFindInDirMatchesBasenamePattern(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "python3.11"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node"), nil, 0o644))

	matches := findInDir(dir, "python3.*")
	assert.Equal(t, []string{filepath.Join(dir, "python3.11")}, matches)
}
