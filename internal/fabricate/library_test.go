package fabricate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLddLineResolvedDependency(t *testing.T) {
	lib := parseLddLine("\tlibc.so.6 => /usr/lib/libc.so.6 (0x00007f1234567000)")
	assert.Equal(t, "/usr/lib/libc.so.6", lib)
}

func TestParseLddLineDynamicLinkerItself(t *testing.T) {
	lib := parseLddLine("\t/lib64/ld-linux-x86-64.so.2 (0x00007f1234abc000)")
	assert.Equal(t, "/lib64/ld-linux-x86-64.so.2", lib)
}

func TestParseLddLineUnresolvedDependencyYieldsEmpty(t *testing.T) {
	lib := parseLddLine("\tlibfoo.so.1 => not found")
	assert.Equal(t, "", lib)
}

func TestParseLddLineBlankLineYieldsEmpty(t *testing.T) {
	assert.Equal(t, "", parseLddLine(""))
}

func TestSofRelPathLib64(t *testing.T) {
	assert.Equal(t, "lib64/libc.so.6", sofRelPath("/usr/lib64/libc.so.6"))
}

func TestSofRelPathLib(t *testing.T) {
	assert.Equal(t, "lib/libc.so.6", sofRelPath("/usr/lib/libc.so.6"))
}

func TestUnderAnyDirMatchesExactAndNested(t *testing.T) {
	dirs := []string{"/usr/lib/chromium"}
	assert.True(t, underAnyDir("/usr/lib/chromium", dirs))
	assert.True(t, underAnyDir("/usr/lib/chromium/libx.so", dirs))
	assert.False(t, underAnyDir("/usr/lib/chromium-other/libx.so", dirs))
}
