package main

import (
	"os"

	"golang.org/x/term"
)

// EnvNoTUI disables the TUI when set to any non-empty value.
const EnvNoTUI = "SPOTIFYDL_NO_TUI"

// WantTUI returns true if the CLI should show the TUI: stdout is a terminal and --no-tui was not set.
func WantTUI(noTUIFlag bool) bool {
	if noTUIFlag {
		return false
	}
	if os.Getenv(EnvNoTUI) != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
