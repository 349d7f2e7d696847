package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// This file centralizes all path-related helpers for the config package,
// standardizing where Antimony stores its per-user CLI preferences —
// distinct from AT_HOME (profile.AtHome), which is the system-wide
// profile/feature/database root.

const (
	configName = "config"
	configType = "yml"
	configPath = "antimony"

	// ConfigDirEnv overrides the per-user config directory.
	ConfigDirEnv = "ANTIMONY_CONFIG_DIR"
)

// ConfigDir returns the base per-user Antimony config directory. If
// ANTIMONY_CONFIG_DIR is set, its value is used as the base; otherwise
// os.UserConfigDir() (~/.config on Linux) plus "antimony".
func ConfigDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return filepath.Join(dir, configPath), nil
	}

	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to retrieve user config directory: %w", err)
	}

	return filepath.Join(userConfigDir, configPath), nil
}

// createConfigDir ensures the config directory exists and returns its path.
func createConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return dir, nil
}

// ConfigFilePath returns the absolute path to the main config file
// (config.yml), without creating any directories.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%s", configName, configType)), nil
}
