package fabricate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeStripsPunctuationAndBuiltins(t *testing.T) {
	builtins := map[string]bool{"if": true, "then": true, "true": true}
	tokens := tokenize(`if [ "$x" = "1" ]; then echo "$x"; fi`, builtins)

	assert.NotContains(t, tokens, "if")
	assert.Contains(t, tokens, "echo")
	assert.Contains(t, tokens, "fi")
}

func TestTokenizeDropsEmptyAfterStripping(t *testing.T) {
	builtins := map[string]bool{}
	tokens := tokenize(`"" foo`, builtins)
	assert.Equal(t, []string{"foo"}, tokens)
}

func TestResolveLibDirFindsImmediateAncestor(t *testing.T) {
	assert.Equal(t, "/usr/lib/chromium", resolveLibDir("/usr/lib/chromium/chrome-sandbox"))
	assert.Equal(t, "/usr/lib/chromium", resolveLibDir("/usr/lib/chromium/locales/en-US.pak"))
}

func TestResolveLibDirOutsideLibRootReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", resolveLibDir("/usr/bin/firefox"))
}

func TestResolveBinRewritesBinPrefixToUsrBin(t *testing.T) {
	resolved, err := resolveBin("/bin/sh")
	assert.NoError(t, err)
	assert.Equal(t, "/usr/bin/sh", resolved)
}

func TestResolveBinPassesThroughAbsolutePath(t *testing.T) {
	resolved, err := resolveBin("/usr/bin/env")
	assert.NoError(t, err)
	assert.Equal(t, "/usr/bin/env", resolved)
}
