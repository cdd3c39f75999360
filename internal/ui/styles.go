// Package ui renders trl output for terminals: colors keyed to status
// categories and priorities, dependency tree glyphs and text fitting.
package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/trellis-tracker/trellis/internal/types"
)

// Adaptive palette (Ayu light/dark).
var (
	ColorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}

	ColorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	PassStyle    = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle    = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle    = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle  = lipgloss.NewStyle().Foreground(ColorAccent)
	SectionStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Each status category gets one color everywhere: open is accent, wip is
// warn and done is pass.
var categoryStyles = map[types.Category]lipgloss.Style{
	types.CategoryOpen: AccentStyle,
	types.CategoryWIP:  WarnStyle,
	types.CategoryDone: PassStyle,
}

const (
	IconPass    = "✓"
	IconWarn    = "⚠"
	IconFail    = "✗"
	IconBlocked = "⊘"
	IconReady   = "▶"
)

var categoryIcons = map[types.Category]string{
	types.CategoryOpen: "○",
	types.CategoryWIP:  "◐",
	types.CategoryDone: "●",
}

// Tree glyphs used by dependency and plan trees.
const (
	TreeBranch = "├── "
	TreeLast   = "└── "
	TreePipe   = "│   "
	TreeSpace  = "    "
)

const SeparatorLight = "──────────────────────────────────────────"

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderSection renders a section header in uppercase.
func RenderSection(s string) string {
	return SectionStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color.
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

// RenderID renders an issue id.
func RenderID(id string) string {
	return AccentStyle.Bold(true).Render(id)
}

// RenderStatus renders a workflow state in its category color. Unknown
// categories render muted.
func RenderStatus(status string, cat types.Category) string {
	style, ok := categoryStyles[cat]
	if !ok {
		return MutedStyle.Render(status)
	}
	return style.Render(status)
}

// StatusIcon returns the glyph for a category, or an ASCII fallback when
// emoji output is off.
func StatusIcon(cat types.Category) string {
	if !ShouldUseEmoji() {
		switch cat {
		case types.CategoryWIP:
			return "~"
		case types.CategoryDone:
			return "x"
		default:
			return "-"
		}
	}
	icon, ok := categoryIcons[cat]
	if !ok {
		icon = "?"
	}
	return RenderStatus(icon, cat)
}

// RenderPriority renders P0..P4. P0 is red and bold, P1 yellow, the rest muted.
func RenderPriority(p int) string {
	label := "P" + strconv.Itoa(p)
	switch p {
	case 0:
		return FailStyle.Bold(true).Render(label)
	case 1:
		return WarnStyle.Render(label)
	default:
		return MutedStyle.Render(label)
	}
}

// RenderProgress renders "completed/total (pct%)" colored by completion.
func RenderProgress(p types.Progress) string {
	s := strconv.Itoa(p.Completed) + "/" + strconv.Itoa(p.Total) + " (" + strconv.FormatFloat(p.Pct, 'f', -1, 64) + "%)"
	switch {
	case p.Total > 0 && p.Completed == p.Total:
		return PassStyle.Render(s)
	case p.Completed > 0 || p.InProgress > 0:
		return WarnStyle.Render(s)
	default:
		return MutedStyle.Render(s)
	}
}
