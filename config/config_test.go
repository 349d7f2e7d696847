package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigIsNeverNil(t *testing.T) {
	cfg := Get()
	assert.NotNil(t, cfg)
}

func TestConfigHasDefaultValues(t *testing.T) {
	t.Run("with non-existent config directory", func(t *testing.T) {
		t.Setenv(ConfigDirEnv, "/tmp/antimony-test/random-does-not-exist")
		initConfig()

		cfg := Get()
		assert.Equal(t, false, cfg.Config.SystemMode)
		assert.Equal(t, false, cfg.Config.ForceTmp)
		assert.Equal(t, true, cfg.Config.Notify)
		assert.Equal(t, "info", cfg.Config.LogLevel)
		assert.Equal(t, "/tmp/antimony-test/random-does-not-exist/antimony", cfg.configDir)
		assert.Equal(t, "/tmp/antimony-test/random-does-not-exist/antimony/config.yml", cfg.configFilePath)
	})

	t.Run("when no config directory override is set", func(t *testing.T) {
		t.Setenv(ConfigDirEnv, "")
		initConfig()

		cfg := Get()

		userConfigDir, err := os.UserConfigDir()
		if err != nil {
			t.Fatal(err)
		}

		assert.Equal(t, filepath.Join(userConfigDir, "antimony"), cfg.configDir)
		assert.Equal(t, filepath.Join(userConfigDir, "antimony", "config.yml"), cfg.configFilePath)
	})
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv(ConfigDirEnv, "/tmp/antimony-test/env-override")
	t.Setenv("AT_SYSTEM_MODE", "true")
	t.Setenv("AT_FORCE_TMP", "true")
	t.Setenv("ANTIMONY_NOTIFY", "false")
	t.Setenv("ANTIMONY_LOG", "debug")
	initConfig()

	cfg := Get()
	assert.True(t, cfg.Config.SystemMode)
	assert.True(t, cfg.Config.ForceTmp)
	assert.False(t, cfg.Config.Notify)
	assert.Equal(t, "debug", cfg.Config.LogLevel)
}

func TestConfigContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"

	ctx := cfg.Inject(t.Context())
	got, err := FromContext(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "warn", got.LogLevel)
}

func TestFromContextWithoutInject(t *testing.T) {
	_, err := FromContext(t.Context())
	assert.Error(t, err)
}
