package config

import "github.com/spf13/cobra"

// ApplyCobraFlags binds the orchestrator's global flags directly into the
// config singleton's fields, so cobra's own flag parsing is what applies
// the highest-precedence override — file and environment values (already
// loaded into Get() by this point) only supply the flag defaults.
func ApplyCobraFlags(cmd *cobra.Command) {
	cfg := Get()

	cmd.PersistentFlags().BoolVar(&cfg.Config.SystemMode, "system", cfg.Config.SystemMode,
		"Resolve profiles and features from the system store only")
	cmd.PersistentFlags().BoolVar(&cfg.Config.ForceTmp, "force-tmp", cfg.Config.ForceTmp,
		"Force per-profile caches into /tmp/antimony even when AT_HOME is writable")
	cmd.PersistentFlags().BoolVar(&cfg.Config.Notify, "notify", cfg.Config.Notify,
		"Desktop-notification preference (stored in the config; a failed run notifies whatever its value)")
	cmd.PersistentFlags().StringVar(&cfg.Config.LogLevel, "log-level", cfg.Config.LogLevel,
		"Log verbosity (trace, debug, info, warn, error)")
}
