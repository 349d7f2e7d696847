package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestMergeScalarCalleeWins(t *testing.T) {
	dst := Profile{Path: strPtr("/usr/bin/callee")}
	other := Profile{Path: strPtr("/usr/bin/other")}

	Merge(&dst, other)
	assert.Equal(t, "/usr/bin/callee", *dst.Path)
}

func TestMergeScalarAdoptedWhenCalleeNil(t *testing.T) {
	dst := Profile{}
	other := Profile{Path: strPtr("/usr/bin/other")}

	Merge(&dst, other)
	assert.Equal(t, "/usr/bin/other", *dst.Path)
}

func TestMergeSetsUnionWithoutDuplicates(t *testing.T) {
	dst := Profile{Binaries: []string{"a", "b"}}
	other := Profile{Binaries: []string{"b", "c"}}

	Merge(&dst, other)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, dst.Binaries)
}

func TestMergeArgumentsAppendAllowsDuplicates(t *testing.T) {
	dst := Profile{Arguments: []string{"--flag"}}
	other := Profile{Arguments: []string{"--flag", "--other"}}

	Merge(&dst, other)
	assert.Equal(t, []string{"--flag", "--flag", "--other"}, dst.Arguments)
}

func TestMergeHomeRecursive(t *testing.T) {
	dst := Profile{Home: &Home{Name: strPtr("callee-home")}}
	policy := HomePolicyPersistent
	other := Profile{Home: &Home{Name: strPtr("other-home"), Policy: &policy}}

	Merge(&dst, other)
	assert.Equal(t, "callee-home", *dst.Home.Name)
	assert.Equal(t, HomePolicyPersistent, *dst.Home.Policy)
}

func TestMergeEnvironmentInsertOnlyMissing(t *testing.T) {
	dst := Profile{Environment: map[string]string{"FOO": "callee"}}
	other := Profile{Environment: map[string]string{"FOO": "other", "BAR": "other"}}

	Merge(&dst, other)
	assert.Equal(t, "callee", dst.Environment["FOO"])
	assert.Equal(t, "other", dst.Environment["BAR"])
}

func TestBaseInvertsPrecedenceButKeepsUntouchedFields(t *testing.T) {
	base := Profile{
		ID:        strPtr("base-id"),
		Inherits:  []string{"default"},
		Binaries:  []string{"bash"},
		Libraries: []string{"libc.so"},
	}
	delta := Profile{Binaries: []string{"zsh"}}

	result := Base(delta, base)

	// ID/Inherits come from the delta (self), not the source.
	assert.Nil(t, result.ID)
	assert.Nil(t, result.Inherits)
	// Binaries: the delta's entries are unioned onto the source's (Merge
	// treats the source as callee).
	assert.ElementsMatch(t, []string{"zsh", "bash"}, result.Binaries)
	// Untouched fields persist from the source/base.
	assert.ElementsMatch(t, []string{"libc.so"}, result.Libraries)
}
