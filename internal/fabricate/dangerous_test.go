package fabricate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMandatoryDenyPatternsRootedUnderHome(t *testing.T) {
	patterns := MandatoryDenyPatterns("/home/alice")

	assert.Contains(t, patterns, filepath.Join("/home/alice", ".ssh"))
	assert.Contains(t, patterns, filepath.Join("/home/alice", ".aws"))
	assert.Contains(t, patterns, filepath.Join("/home/alice", ".netrc"))
}

func TestMandatoryDenyPatternsEmptyHomeYieldsNone(t *testing.T) {
	assert.Empty(t, MandatoryDenyPatterns(""))
}
