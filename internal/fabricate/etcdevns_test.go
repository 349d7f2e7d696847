package fabricate

import (
	"testing"

	"github.com/antimony-sandbox/antimony/profile"
	"github.com/stretchr/testify/assert"
)

func TestFabricateNamespacesDefaultUnsharesEverything(t *testing.T) {
	args := FabricateNamespaces(nil)
	assert.Contains(t, args, "--unshare-user")
	assert.Contains(t, args, "--unshare-net")
	assert.Contains(t, args, "--unshare-pid")
	assert.Contains(t, args, "--unshare-ipc")
	assert.Contains(t, args, "--unshare-uts")
	assert.Contains(t, args, "--unshare-cgroup")
}

func TestFabricateNamespacesListedOnesAreShared(t *testing.T) {
	args := FabricateNamespaces([]profile.Namespace{profile.NamespaceNet})
	assert.NotContains(t, args, "--unshare-net")
	assert.Contains(t, args, "--unshare-pid")
}

func TestFabricateNamespacesAllSharesEverything(t *testing.T) {
	args := FabricateNamespaces([]profile.Namespace{"all"})
	assert.Empty(t, args)
}

func TestFabricateDevAlwaysIncludesEssentialDevices(t *testing.T) {
	args := FabricateDev(nil)
	assert.Contains(t, args, "/dev/null")
	assert.Contains(t, args, "/dev/urandom")
}

func TestFabricateDevDeduplicatesProfileDevices(t *testing.T) {
	args := FabricateDev([]string{"/dev/null", "/dev/dri/renderD128"})
	count := 0
	for _, a := range args {
		if a == "/dev/null" {
			count++
		}
	}
	// Each bind emits the path twice (source, dest) per flag, but the
	// flag itself should only appear once for a deduplicated device.
	assert.Equal(t, 2, count)
}
