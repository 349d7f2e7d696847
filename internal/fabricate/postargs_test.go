package fabricate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/antimony-sandbox/antimony/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFabricatePostArgsAppendsArgumentsThenTail(t *testing.T) {
	p := &profile.Profile{Arguments: []string{"--flag"}}
	args, binds := FabricatePostArgs(p, []string{"positional"})
	assert.Equal(t, []string{"--flag", "positional"}, args)
	assert.Empty(t, binds)
}

func TestFabricatePostArgsBindsPassthroughPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	enabled := true
	p := &profile.Profile{Files: &profile.Files{Passthrough: &enabled}}
	_, binds := FabricatePostArgs(p, []string{file})
	assert.Equal(t, []string{"--ro-bind-try", file, file}, binds)
}

func TestFabricatePostArgsIgnoresNonexistentPath(t *testing.T) {
	enabled := true
	p := &profile.Profile{Files: &profile.Files{Passthrough: &enabled}}
	_, binds := FabricatePostArgs(p, []string{"/does/not/exist"})
	assert.Empty(t, binds)
}

func TestFabricatePostArgsSkipsBindsWhenPassthroughDisabled(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	p := &profile.Profile{}
	_, binds := FabricatePostArgs(p, []string{file})
	assert.Empty(t, binds)
}
