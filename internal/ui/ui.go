package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/antimony-sandbox/antimony/internal/notify"
)

// The UI is internal to Antimony and opinionated for the CLI. It is not
// intended to be used outside of Antimony.

type VerbosityLevel int

const (
	// VerbosityLevelSilent hides everything except errors.
	VerbosityLevelSilent VerbosityLevel = iota

	// VerbosityLevelNormal shows minimal status updates.
	VerbosityLevelNormal

	// VerbosityLevelVerbose shows verbose status updates and the full
	// post-run report.
	VerbosityLevelVerbose
)

var verbosityLevel VerbosityLevel = VerbosityLevelNormal

func SetVerbosityLevel(level VerbosityLevel) {
	verbosityLevel = level
}

func ClearStatus() {
	StopSpinner()
	fmt.Print("\r")
}

func SetStatus(status string) {
	if verbosityLevel == VerbosityLevelSilent {
		return
	}

	StopSpinner()
	StartSpinnerWithColor(fmt.Sprintf("ℹ️ %s", status), Colors.Green)
}

// GetConfirmationOnSyscall prompts the user whether a Notify-policy
// syscall should be allowed. It reads from os.Stdin; use
// GetConfirmationOnSyscallWithReader for custom input sources (PTY
// routing during an attached sandbox).
func GetConfirmationOnSyscall(req notify.Request) (bool, error) {
	return GetConfirmationOnSyscallWithReader(req, os.Stdin)
}

// GetConfirmationOnSyscallWithReader is GetConfirmationOnSyscall reading
// from an explicit reader.
func GetConfirmationOnSyscallWithReader(req notify.Request, reader io.Reader) (bool, error) {
	StopSpinner()

	fmt.Println()
	fmt.Println(Colors.Yellow(fmt.Sprintf("🔔 Syscall pending a decision: %s (pid %d)", req.Syscall, req.Pid)))
	fmt.Print(Colors.Yellow("Allow this syscall? (y/N) "))

	scanner := bufio.NewScanner(reader)
	if scanner.Scan() {
		response := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if response == "y" || response == "yes" {
			return true, nil
		}
	}

	return false, nil
}

func ShowWarning(message string) {
	// Print colored warning to stderr immediately - it won't be cleared by other output
	fmt.Fprintf(os.Stderr, "%s\n", Colors.Red(message))
}

func Fatalf(msg string, args ...interface{}) {
	ClearStatus()

	fmt.Println(Colors.Red(fmt.Sprintf(msg, args...)))
	os.Exit(1)
}

// termWidthFormatText formats text to be maximum maxWidth wide, wrapping
// on word boundaries.
func termWidthFormatText(text string, maxWidth int) string {
	text = strings.ReplaceAll(text, "\n", " ")

	words := strings.Split(text, " ")
	lines := []string{}
	currentLine := ""

	for i, word := range words {
		if word == "" {
			continue
		}

		if i == 0 {
			currentLine = word
		} else if len(currentLine)+len(word)+1 > maxWidth {
			lines = append(lines, currentLine)
			currentLine = word
		} else {
			currentLine += " " + word
		}
	}

	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return strings.Join(lines, "\n")
}
