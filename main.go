package main

import (
	"fmt"
	stdlog "log"
	"os"

	"github.com/joho/godotenv"
	"github.com/safedep/dry/log"
	"github.com/spf13/cobra"

	antimonycmd "github.com/antimony-sandbox/antimony/cmd/antimony"
	"github.com/antimony-sandbox/antimony/cmd/version"
	"github.com/antimony-sandbox/antimony/config"
	"github.com/antimony-sandbox/antimony/internal/ui"
)

// exitCoder lets a command's RunE propagate a sandboxed program's own exit
// code without printing an extra error line (see cmd/antimony's run.go).
type exitCoder interface {
	ExitCode() int
}

// logEnvFor maps the orchestrator's log-level preference onto
// InitZapLogger's dev/prod environment switch: debug and trace get the
// more verbose, human-friendly dev encoder, everything else gets prod's
// structured JSON.
func logEnvFor(level string) string {
	switch level {
	case "debug", "trace":
		return "dev"
	default:
		return "prod"
	}
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		stdlog.Println("No .env file found or failed to load")
	}

	cfg := config.Get().Config
	log.InitZapLogger("antimony", logEnvFor(cfg.LogLevel))

	cmd := &cobra.Command{
		Use:              "antimony",
		Short:            "Launch and administer per-application Linux sandboxes",
		TraverseChildren: true,
		SilenceUsage:     true,
		SilenceErrors:    true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			silent, _ := cmd.Flags().GetBool("silent")
			switch {
			case silent:
				ui.SetVerbosityLevel(ui.VerbosityLevelSilent)
			case verbose:
				ui.SetVerbosityLevel(ui.VerbosityLevelVerbose)
				fmt.Print(ui.GenerateBanner(version.Version(), version.Commit()))
			default:
				ui.SetVerbosityLevel(ui.VerbosityLevelNormal)
			}
		},
	}

	config.ApplyCobraFlags(cmd)
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Show verbose run reports and the startup banner")
	cmd.PersistentFlags().Bool("silent", false, "Suppress all output except errors")

	cmd.AddCommand(antimonycmd.NewRunCommand())
	cmd.AddCommand(antimonycmd.NewSeccompCommand())
	cmd.AddCommand(version.NewVersionCommand())

	if err := cmd.Execute(); err != nil {
		if ec, ok := err.(exitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		ui.ErrorExit(err)
	}
}
