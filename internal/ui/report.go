package ui

import (
	"fmt"
	"time"
)

// Outcome represents the final result of a sandboxed run.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeChildError
	OutcomeUserDenied
	OutcomeDryRun
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeChildError:
		return "child_error"
	case OutcomeUserDenied:
		return "user_denied"
	case OutcomeDryRun:
		return "dry_run"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// ReportData captures the post-run statistics shown after a sandboxed
// invocation exits. It is a pure data model with no rendering logic.
type ReportData struct {
	ProfileName  string
	InstanceName string
	StartTime    time.Time
	Duration     time.Duration

	// Policy summary, shown in verbose mode.
	SeccompPolicy string
	HomePolicy    string
	PortalCount   int

	// Syscall-notify statistics, accumulated from the run's notify.Recorder.
	AllowedSyscalls int
	DeniedSyscalls  int

	// HookFailures lists non-fatal hook errors (e.g. a degraded fabrication
	// step) collected during the run.
	HookFailures []string

	ExitCode int
	Outcome  Outcome
}

// NewReportData creates a new ReportData with sensible defaults.
func NewReportData(profileName, instanceName string) *ReportData {
	return &ReportData{
		ProfileName:  profileName,
		InstanceName: instanceName,
		StartTime:    time.Now(),
		Outcome:      OutcomeSuccess,
	}
}

// Finalize sets the duration based on start time.
func (r *ReportData) Finalize() {
	r.Duration = time.Since(r.StartTime)
}

// HasIssues returns true if the run denied syscalls or hit hook failures.
func (r *ReportData) HasIssues() bool {
	return r.DeniedSyscalls > 0 || len(r.HookFailures) > 0
}

// WasSuccessful returns true if the run completed without error or denial.
func (r *ReportData) WasSuccessful() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeDryRun
}

// Report renders the run report based on verbosity level. Commands call
// this once after the sandboxed instance exits.
func Report(data *ReportData) {
	data.Finalize()

	switch verbosityLevel {
	case VerbosityLevelSilent:
		reportSilent(data)
	case VerbosityLevelNormal:
		reportNormal(data)
	case VerbosityLevelVerbose:
		reportVerbose(data)
	}
}

// reportSilent only shows output on errors or denials. Those are already
// surfaced via ErrorExit and GetConfirmationOnSyscall, so there's nothing
// left to print here on a clean exit.
func reportSilent(data *ReportData) {
}

// reportNormal shows a single, minimal status line.
func reportNormal(data *ReportData) {
	if data.Outcome == OutcomeDryRun {
		return // dry run already printed its own plan
	}

	if data.Outcome == OutcomeError {
		return // error handling done elsewhere, via ErrorExit
	}

	var icon string
	var message string

	switch data.Outcome {
	case OutcomeChildError:
		icon = Colors.Yellow("!")
		message = fmt.Sprintf("%s exited with code %d", data.InstanceName, data.ExitCode)
	case OutcomeUserDenied:
		icon = Colors.Yellow("✗")
		message = fmt.Sprintf("%s: a syscall was denied during the run", data.InstanceName)
	default:
		if data.HasIssues() {
			icon = Colors.Yellow("!")
			message = fmt.Sprintf("%s: completed (%d syscalls denied)", data.InstanceName, data.DeniedSyscalls)
		} else {
			icon = Colors.Green("✓")
			message = fmt.Sprintf("%s: completed", data.InstanceName)
		}
	}

	fmt.Printf("%s %s\n", icon, Colors.Dim(message))
}

// reportVerbose shows detailed policy and syscall statistics.
func reportVerbose(data *ReportData) {
	fmt.Println()
	fmt.Println(Colors.Cyan("Run report"))
	fmt.Println(Colors.Normal("────────────────────────────────────────"))

	printOutcomeLine(data)

	fmt.Println()
	fmt.Printf("  %s %s (instance: %s)\n", Colors.Bold("Profile:"), data.ProfileName, data.InstanceName)
	fmt.Printf("  %s %s\n", Colors.Bold("Duration:"), formatDuration(data.Duration))

	fmt.Println()
	fmt.Printf("  %s %s | home: %s | portals: %d\n",
		Colors.Bold("Policy:"),
		valueOrDefault(data.SeccompPolicy, "default"),
		valueOrDefault(data.HomePolicy, "default"),
		data.PortalCount)

	if data.AllowedSyscalls > 0 || data.DeniedSyscalls > 0 {
		fmt.Printf("  %s allowed: %d, denied: %d\n",
			Colors.Bold("Syscalls:"), data.AllowedSyscalls, data.DeniedSyscalls)
	}

	if len(data.HookFailures) > 0 {
		fmt.Println()
		fmt.Println(Colors.Yellow("  Hook failures:"))
		for _, msg := range data.HookFailures {
			fmt.Printf("    - %s\n", msg)
		}
	}

	fmt.Println()
}

func printOutcomeLine(data *ReportData) {
	switch data.Outcome {
	case OutcomeSuccess:
		fmt.Printf("  %s %s\n", Colors.Green("✓"), Colors.Green("Run completed successfully"))
	case OutcomeChildError:
		fmt.Printf("  %s %s\n", Colors.Yellow("✗"), Colors.Yellow(fmt.Sprintf("Child exited with code %d", data.ExitCode)))
	case OutcomeUserDenied:
		fmt.Printf("  %s %s\n", Colors.Yellow("✗"), Colors.Yellow("A syscall was denied during the run"))
	case OutcomeDryRun:
		fmt.Printf("  %s %s\n", Colors.Cyan("○"), Colors.Cyan("Dry run completed - no instance was launched"))
	case OutcomeError:
		fmt.Printf("  %s %s\n", Colors.Red("✗"), Colors.Red("Run failed with error"))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func valueOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
