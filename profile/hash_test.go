package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIsDeterministic(t *testing.T) {
	p := Profile{Path: strPtr("/usr/bin/firefox"), Binaries: []string{"a", "b"}}

	h1, err := Hash(p)
	require.NoError(t, err)
	h2, err := Hash(p)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestHashDiffersOnContentChange(t *testing.T) {
	a := Profile{Path: strPtr("/usr/bin/firefox")}
	b := Profile{Path: strPtr("/usr/bin/chromium")}

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
}
