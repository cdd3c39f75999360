package ui

import (
	"strings"

	"charm.land/glamour/v2"
	"github.com/charmbracelet/lipgloss"
)

// maxReadableWidth caps markdown wrapping on wide terminals.
const maxReadableWidth = 100

// RenderMarkdown renders issue text as terminal markdown with glamour. In
// agent mode, or when color is off, the text is only word-wrapped so the
// output stays parseable. Rendering errors also fall back to wrapped text.
func RenderMarkdown(markdown string) string {
	width := min(TerminalWidth(80), maxReadableWidth)
	if IsAgentMode() || !ShouldUseColor() {
		return WrapText(markdown, width)
	}

	style := "light"
	if lipgloss.HasDarkBackground() {
		style = "dark"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return WrapText(markdown, width)
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return WrapText(markdown, width)
	}
	return strings.Trim(rendered, "\n")
}
