package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsName = "org.freedesktop.Notifications"
	notificationsPath = "/org/freedesktop/Notifications"

	notifyTimeout = 2 * time.Second
)

// notifyFailure raises a desktop notification for a non-zero sandbox exit,
// with an "Open Error Log" action when logPath is non-empty (the profile's
// log mode was enabled). It degrades silently — a missing or unreachable
// notification daemon should never fail the run it's reporting on.
func notifyFailure(name string, exitCode int, logPath string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	conn, err := dbus.SessionBusPrivate(dbus.WithContext(ctx))
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.Auth(nil); err != nil {
		return
	}
	if err := conn.Hello(); err != nil {
		return
	}

	var actions []string
	if logPath != "" {
		actions = []string{"open_log", "Open Error Log"}
	}

	obj := conn.Object(notificationsName, dbus.ObjectPath(notificationsPath))
	obj.CallWithContext(ctx, notificationsName+".Notify", 0,
		"antimony",
		uint32(0),
		"",
		fmt.Sprintf("%s exited with code %d", name, exitCode),
		"The sandboxed program did not exit cleanly.",
		actions,
		map[string]dbus.Variant{},
		int32(-1),
	)
}
