package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Environment switches read by the terminal helpers.
const (
	EnvNoEmoji   = "TRELLIS_NO_EMOJI"
	EnvAgentMode = "TRELLIS_AGENT_MODE"
)

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows the NO_COLOR and CLICOLOR conventions:
// NO_COLOR wins, then CLICOLOR=0, then CLICOLOR_FORCE, then TTY detection.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if force := os.Getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		return true
	}
	return IsTerminal()
}

// ShouldUseEmoji reports whether status glyphs should be printed.
func ShouldUseEmoji() bool {
	if os.Getenv(EnvNoEmoji) != "" {
		return false
	}
	return IsTerminal()
}

// IsAgentMode reports whether output is consumed by an automated agent,
// which gets plain text regardless of the terminal.
func IsAgentMode() bool {
	v := strings.ToLower(os.Getenv(EnvAgentMode))
	return v == "1" || v == "true"
}

// ConfigureColor sets the lipgloss color profile for this process. Without
// color every style renders its text unchanged.
func ConfigureColor() {
	if !ShouldUseColor() || IsAgentMode() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	out := termenv.NewOutput(os.Stdout)
	profile := out.EnvColorProfile()
	if profile == termenv.Ascii && os.Getenv("CLICOLOR_FORCE") != "" {
		profile = termenv.ANSI256
	}
	lipgloss.SetColorProfile(profile)
	lipgloss.SetHasDarkBackground(out.HasDarkBackground())
}

// TerminalWidth returns the stdout width, or fallback when it is unknown.
func TerminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}
