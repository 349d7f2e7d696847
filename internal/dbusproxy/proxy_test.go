package dbusproxy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/antimony-sandbox/antimony/profile"
	"github.com/stretchr/testify/assert"
)

func TestBuildRulesNilIpcYieldsNoArgs(t *testing.T) {
	assert.Empty(t, BuildRules(nil))
}

func TestBuildRulesPortalEmitsDesktopAndPortalRules(t *testing.T) {
	args := BuildRules(&profile.Ipc{Portals: []string{"FileChooser"}})

	assert.Contains(t, args, "--call="+desktopBus+"=org.freedesktop.DBus.Introspectable.Introspect@"+desktopPath)
	assert.Contains(t, args, "--call="+desktopBus+"=org.freedesktop.portal.FileChooser.*@"+desktopPath)
	assert.Contains(t, args, "--talk=org.freedesktop.portal.FileChooser")
}

func TestBuildRulesSettingsPortalAddsBroadcast(t *testing.T) {
	args := BuildRules(&profile.Ipc{Portals: []string{"Settings"}})

	found := false
	for _, a := range args {
		if a == "--broadcast="+desktopBus+"=org.freedesktop.portal.Settings.SettingChanged@"+desktopPath {
			found = true
		}
	}
	assert.True(t, found, "expected a SettingChanged broadcast rule")
}

func TestBuildRulesSeeTalkOwnCall(t *testing.T) {
	args := BuildRules(&profile.Ipc{
		See:  []string{"org.mpris.MediaPlayer2"},
		Talk: []string{"org.freedesktop.Notifications"},
		Own:  []string{"com.example.App"},
		Call: []string{"org.freedesktop.Notifications=org.freedesktop.Notifications.Notify@/org/freedesktop/Notifications"},
	})

	assert.Contains(t, args, "--see=org.mpris.MediaPlayer2")
	assert.Contains(t, args, "--talk=org.freedesktop.Notifications")
	assert.Contains(t, args, "--own=com.example.App")
	assert.Contains(t, args, "--call=org.freedesktop.Notifications=org.freedesktop.Notifications.Notify@/org/freedesktop/Notifications")
}

func TestPermitCallDerivesPathFromBusName(t *testing.T) {
	rule := permitCall("org.freedesktop.Notifications")
	assert.Equal(t, "--call=org.freedesktop.Notifications=org.freedesktop.DBus.Properties.*@/org/freedesktop/notifications", rule)
}

func TestSofLibArgsSymlinksWhenNoLib64(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))

	args := sofLibArgs(dir)
	assert.Contains(t, args, "--symlink")
	assert.NotContains(t, args, filepath.Join(dir, "lib64"))
}

func TestSofLibArgsBindsLib64WhenPresent(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.MkdirAll(filepath.Join(dir, "lib64"), 0o755))

	args := sofLibArgs(dir)
	assert.Contains(t, args, filepath.Join(dir, "lib64"))
}

func TestWithIdentityRunsDirectlyWithoutGate(t *testing.T) {
	ran := false
	err := withIdentity(nil, 0, func() error {
		ran = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, ran)
}
