package fabricate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandVariablesSubstitutesHome(t *testing.T) {
	result := ExpandVariables("${HOME}/.config", "/home/alice")
	assert.Equal(t, "/home/alice/.config", result)
}

func TestLocalizeHomeRewritesUnderHome(t *testing.T) {
	t.Setenv("HOME", "/home/alice")
	result := LocalizeHome("/home/alice/Downloads/file.txt")
	assert.Equal(t, "/home/antimony/Downloads/file.txt", result)
}

func TestLocalizeHomeLeavesOtherPathsAlone(t *testing.T) {
	t.Setenv("HOME", "/home/alice")
	result := LocalizeHome("/usr/bin/firefox")
	assert.Equal(t, "/usr/bin/firefox", result)
}

func TestLocalizePathSourceEqualsDestWhenNoMapping(t *testing.T) {
	source, dest, exists := LocalizePath("/nonexistent/path/xyz", false)
	assert.Equal(t, source, dest)
	assert.False(t, exists)
}

func TestLocalizePathSplitsSourceAndDest(t *testing.T) {
	source, dest, _ := LocalizePath("/usr/share/icons=/icons", false)
	assert.Equal(t, "/usr/share/icons", source)
	assert.Equal(t, "/icons", dest)
}
