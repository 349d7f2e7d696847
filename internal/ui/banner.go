package ui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/color"
)

var (
	brandPinkRed = color.RGB(219, 39, 119).Add(color.Bold).SprintFunc()
	whiteDim     = color.New(color.Faint).SprintFunc()
)

// GenerateBanner renders the startup banner; main prints it only at
// VerbosityLevelVerbose.
func GenerateBanner(version, commit string) string {
	line1 := fmt.Sprintf("█▀█ █▄░█ ▀█▀ █ █▀▄▀█ █▀█ █▄░█ █▄█\t%s", whiteDim("sandboxed application launcher"))
	line2 := "█▀█ █░▀█ ░█░ █ █░▀░█ █▄█ █░▀█ ░█░"

	asciiText := "\n" + line1 + "\n" + line2

	if len(commit) >= 6 {
		commit = commit[:6]
	}

	version = cleanVersion(version)

	return fmt.Sprintf("%s 	%s: %s %s: %s \n\n", brandPinkRed(asciiText),
		whiteDim("version"), Colors.Bold(version),
		whiteDim("commit"), Colors.Bold(commit),
	)
}

// cleanVersion removes ugly pseudo-version timestamps and dirty flags.
// Keeps clean versions like v1.2.3-alpha.1 and v0.3.5-edfdd54 as-is.
func cleanVersion(version string) string {
	if version == "" {
		return version
	}

	version = strings.Split(version, "+")[0]

	pseudoPattern := regexp.MustCompile(`^(v?\d+\.\d+\.\d+)-0\.\d{14}-[a-f0-9]{12}$`)
	if matches := pseudoPattern.FindStringSubmatch(version); len(matches) > 1 {
		return matches[1]
	}

	return version
}
