package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/trellis-tracker/trellis/internal/types"
)

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name          string
		noColor       string
		cliColor      string
		cliColorForce string
		want          bool
	}{
		{name: "NO_COLOR disables color", noColor: "1", want: false},
		{name: "CLICOLOR=0 disables color", cliColor: "0", want: false},
		{name: "CLICOLOR_FORCE enables color without a TTY", cliColorForce: "1", want: true},
		{name: "NO_COLOR beats CLICOLOR_FORCE", noColor: "1", cliColorForce: "1", want: false},
		{name: "CLICOLOR_FORCE=0 falls back to TTY check", cliColorForce: "0", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("CLICOLOR", tt.cliColor)
			t.Setenv("CLICOLOR_FORCE", tt.cliColorForce)
			if got := ShouldUseColor(); got != tt.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldUseEmoji(t *testing.T) {
	t.Setenv(EnvNoEmoji, "1")
	if ShouldUseEmoji() {
		t.Errorf("ShouldUseEmoji() = true with %s set", EnvNoEmoji)
	}
	// go test does not run with a terminal on stdout
	t.Setenv(EnvNoEmoji, "")
	if ShouldUseEmoji() {
		t.Errorf("ShouldUseEmoji() = true without a TTY")
	}
}

func TestIsAgentMode(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE"} {
		t.Setenv(EnvAgentMode, v)
		if !IsAgentMode() {
			t.Errorf("IsAgentMode() = false for %q", v)
		}
	}
	t.Setenv(EnvAgentMode, "no")
	if IsAgentMode() {
		t.Errorf("IsAgentMode() = true for \"no\"")
	}
}

func TestPlainRenderingWithoutColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv(EnvNoEmoji, "1")
	ConfigureColor()
	defer lipgloss.SetColorProfile(termenv.Ascii)

	if got := RenderStatus("review", types.CategoryWIP); got != "review" {
		t.Errorf("RenderStatus = %q, want plain text", got)
	}
	if got := RenderPriority(0); got != "P0" {
		t.Errorf("RenderPriority(0) = %q", got)
	}
	if got := StatusIcon(types.CategoryDone); got != "x" {
		t.Errorf("StatusIcon(done) = %q, want ascii fallback", got)
	}
	got := RenderProgress(types.Progress{Total: 3, Completed: 1, Pct: 33.3})
	if got != "1/3 (33.3%)" {
		t.Errorf("RenderProgress = %q", got)
	}
	if !strings.HasPrefix(RenderSection("ready"), "READY") {
		t.Errorf("RenderSection should uppercase")
	}
}
