package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonitorNotifierExemptAllowsFDHandoffSyscalls(t *testing.T) {
	n := newMonitorNotifier("/tmp/antimony-test-monitor.sock")
	exempt := n.Exempt()

	names := make(map[string]bool)
	for _, r := range exempt {
		names[r.Syscall] = true
	}

	assert.True(t, names["sendmsg"])
	assert.True(t, names["close"])
	assert.True(t, names["exit"])
	assert.True(t, names["exit_group"])
}

func TestMonitorNotifierPrepareFailsWithoutListeningSocket(t *testing.T) {
	n := newMonitorNotifier("/tmp/antimony-test-monitor-does-not-exist.sock")
	assert.Error(t, n.Prepare())
}
