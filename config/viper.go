package config

// templateConfig is a commented config.yml for users who prefer to
// hand-edit it, illustrating every recognised key and its default.
// CreateConfig does not write it; it writes DefaultConfig() through viper.
const templateConfig = `# Antimony per-user CLI preferences.
# Overridden by AT_SYSTEM_MODE / AT_FORCE_TMP / ANTIMONY_NOTIFY / ANTIMONY_LOG
# and, in turn, by the equivalent command-line flags.

system_mode: false
force_tmp: false
notify: true
log_level: info
`
