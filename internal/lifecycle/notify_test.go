package lifecycle

import (
	"testing"
)

func TestNotifyFailureDegradesSilentlyWithoutSessionBus(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path=/nonexistent/antimony-test-bus")
	notifyFailure("app", 1, "")
}
