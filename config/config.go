package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type configKey struct{}

// Config holds the orchestrator's global, command-independent preferences —
// the CLI-surface counterpart to AT_HOME's profile/feature resolution
// settings. Every field has an environment-variable source named in
// spec.md §6, layered under a per-user config.yml and CLI flags (highest
// precedence wins: flags > env > file > default).
type Config struct {
	// SystemMode restricts profile and feature lookups to the system
	// store, mirroring AT_SYSTEM_MODE.
	SystemMode bool `mapstructure:"system_mode" yaml:"system_mode"`

	// ForceTmp forces per-profile fabrication caches into /tmp/antimony
	// even when AT_HOME is writable, mirroring AT_FORCE_TMP.
	ForceTmp bool `mapstructure:"force_tmp" yaml:"force_tmp"`

	// Notify is the stored desktop-notification preference. lifecycle.Run
	// does not read it: a failed run raises the notification whatever its
	// value.
	Notify bool `mapstructure:"notify" yaml:"notify"`

	// LogLevel sets safedep/dry/log's verbosity (trace, debug, info,
	// warn, error), mirroring ANTIMONY_LOG.
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// globalConfig is the process-wide config singleton, reloaded by
// initConfig whenever the per-user config directory changes (tests use
// this to exercise different ANTIMONY_CONFIG_DIR values without forking a
// process).
type globalConfig struct {
	Config         Config
	configDir      string
	configFilePath string
}

// ErrConfigAlreadyExists is returned when creating the config without
// force and it already exists.
var ErrConfigAlreadyExists = errors.New("antimony config already exists")

var current *globalConfig

// DefaultConfig returns the canonical default configuration.
func DefaultConfig() Config {
	return Config{
		SystemMode: false,
		ForceTmp:   false,
		Notify:     true,
		LogLevel:   "info",
	}
}

// Get returns the process-wide config, lazily loading it (file + env) on
// first use.
func Get() *globalConfig {
	if current == nil {
		initConfig()
	}
	return current
}

// initConfig (re)loads the singleton from the per-user config file and
// environment variables, overwriting whatever Get() previously returned.
// Exported indirectly via Get()'s laziness; called directly by tests after
// changing ANTIMONY_CONFIG_DIR.
func initConfig() {
	dir, dirErr := ConfigDir()

	v := viper.New()
	v.SetConfigType(configType)
	for key, value := range configAsMap(DefaultConfig()) {
		v.SetDefault(key, value)
	}
	_ = v.BindEnv("system_mode", "AT_SYSTEM_MODE")
	_ = v.BindEnv("force_tmp", "AT_FORCE_TMP")
	_ = v.BindEnv("notify", "ANTIMONY_NOTIFY")
	_ = v.BindEnv("log_level", "ANTIMONY_LOG")

	cfgPath := ""
	if dirErr == nil {
		cfgPath = filepath.Join(dir, configName+"."+configType)
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				cfgPath = ""
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		cfg = DefaultConfig()
	}

	current = &globalConfig{Config: cfg, configDir: dir, configFilePath: cfgPath}
}

// CreateConfig writes the Antimony config file and returns its absolute
// path.
func CreateConfig() (string, error) {
	if _, err := createConfigDir(); err != nil {
		return "", err
	}

	cfgFile, err := ConfigFilePath()
	if err != nil {
		return "", err
	}

	writer := viper.New()
	writer.SetConfigType(configType)
	if err := writer.MergeConfigMap(configAsMap(DefaultConfig())); err != nil {
		return "", fmt.Errorf("failed to prepare default config: %w", err)
	}

	if err := writer.WriteConfigAs(cfgFile); err != nil {
		var alreadyExistsErr viper.ConfigFileAlreadyExistsError
		if errors.As(err, &alreadyExistsErr) {
			return cfgFile, ErrConfigAlreadyExists
		}
		return "", fmt.Errorf("error writing config file: %w", err)
	}

	initConfig()
	return cfgFile, nil
}

// RemoveConfig removes the Antimony config directory and its contents.
func RemoveConfig() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove config directory %s: %w", dir, err)
	}

	current = nil
	return nil
}

// Inject stores cfg in ctx.
func (c Config) Inject(ctx context.Context) context.Context {
	return context.WithValue(ctx, configKey{}, c)
}

// FromContext retrieves a Config previously stored by Inject.
func FromContext(ctx context.Context) (Config, error) {
	c, ok := ctx.Value(configKey{}).(Config)
	if !ok {
		return Config{}, fmt.Errorf("config not found in context")
	}
	return c, nil
}

func configAsMap(cfg Config) map[string]any {
	return map[string]any{
		"system_mode": cfg.SystemMode,
		"force_tmp":   cfg.ForceTmp,
		"notify":      cfg.Notify,
		"log_level":   cfg.LogLevel,
	}
}
