package setup

import (
	"path/filepath"
	"testing"

	"github.com/antimony-sandbox/antimony/internal/seccomp"
	"github.com/antimony-sandbox/antimony/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSeccompFilterDisabledReturnsNil(t *testing.T) {
	f := buildSeccompFilter(profile.SeccompDisabled, []string{"read"}, nil, "")
	assert.Nil(t, f)
}

func TestBuildSeccompFilterEnforcingAndPermissiveReturnFilter(t *testing.T) {
	assert.NotNil(t, buildSeccompFilter(profile.SeccompEnforcing, []string{"read"}, nil, ""))
	assert.NotNil(t, buildSeccompFilter(profile.SeccompPermissive, []string{"read"}, nil, ""))
}

func TestBuildSeccompFilterNotifyAttachesNotifier(t *testing.T) {
	f := buildSeccompFilter(profile.SeccompNotify, []string{"read", "write"}, nil, "/tmp/antimony-test.sock")
	require.NotNil(t, f)

	// 3 baseline + 2 program rules plus the notifier's 4 exempt rules:
	// arch gate (3) + nr load + 2 per rule + default, 8 bytes each.
	assert.Equal(t, int64(8*(4+2*9+1)), exportedSize(t, f))
}

func TestBuildSeccompFilterAlwaysIncludesBaselineAndExecutorCalls(t *testing.T) {
	f := buildSeccompFilter(profile.SeccompEnforcing, []string{"read"}, []string{"clone", "mount"}, "")
	require.NotNil(t, f)

	// execve/wait4/exit + clone/mount + read: 6 allow rules.
	assert.Equal(t, int64(8*(4+2*6+1)), exportedSize(t, f))
}

func exportedSize(t *testing.T, f *seccomp.Filter) int64 {
	file, err := f.Write(filepath.Join(t.TempDir(), "filter.bpf"))
	require.NoError(t, err)
	defer file.Close()
	info, err := file.Stat()
	require.NoError(t, err)
	return info.Size()
}

func TestUnionCallsDropsDuplicatesAndPreservesFirstSeenOrder(t *testing.T) {
	got := unionCalls([]string{"execve", "wait4", "exit"}, []string{"wait4", "clone"})
	assert.Equal(t, []string{"execve", "wait4", "exit", "clone"}, got)
}

func TestLoadExtraBinariesNilDBReturnsNil(t *testing.T) {
	program, executor, err := loadExtraBinaries(nil, "firefox", []string{"/usr/bin/firefox"})
	assert.NoError(t, err)
	assert.Nil(t, program)
	assert.Nil(t, executor)
}
