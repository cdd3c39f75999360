package ui

import (
	"strings"
	"testing"
)

const sampleMarkdown = "# Crash on save\n\nRepro with **large** files:\n\n- open a 2GB file\n- press save\n"

func TestRenderMarkdownPlainWithoutColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv(EnvAgentMode, "")
	got := RenderMarkdown(sampleMarkdown)
	if !strings.Contains(got, "**large**") || !strings.Contains(got, "# Crash on save") {
		t.Errorf("plain mode should keep the source text, got %q", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Errorf("plain mode emitted escape codes: %q", got)
	}
}

func TestRenderMarkdownPlainInAgentMode(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR_FORCE", "1")
	t.Setenv(EnvAgentMode, "1")
	if got := RenderMarkdown(sampleMarkdown); !strings.Contains(got, "**large**") {
		t.Errorf("agent mode should not render markdown, got %q", got)
	}
}

func TestRenderMarkdownStyled(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR", "")
	t.Setenv("CLICOLOR_FORCE", "1")
	t.Setenv(EnvAgentMode, "")
	got := RenderMarkdown(sampleMarkdown)
	for _, want := range []string{"Crash on save", "large", "press save"} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered output missing %q: %q", want, got)
		}
	}
	if strings.Contains(got, "**large**") {
		t.Errorf("emphasis markers should be rendered away: %q", got)
	}
}
