package ui

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

// Defaults for description display in show.
const (
	DefaultMaxLines     = 15
	DefaultContextLines = 5
)

// TruncateLines keeps the first and last contextLines of text when it has
// more than maxLines lines, with a muted marker counting the hidden ones.
func TruncateLines(text string, maxLines, contextLines int) string {
	lines := strings.Split(text, "\n")
	total := len(lines)
	if text == "" || total <= maxLines {
		return text
	}
	if contextLines < 1 {
		contextLines = DefaultContextLines
	}
	if maxLines < contextLines*2+1 {
		return strings.Join(lines[:maxLines], "\n") + "\n..."
	}

	hidden := total - 2*contextLines
	var b strings.Builder
	b.WriteString(strings.Join(lines[:contextLines], "\n"))
	b.WriteString("\n")
	b.WriteString(RenderMuted("... (" + strconv.Itoa(hidden) + " lines hidden, use --full) ..."))
	b.WriteString("\n")
	b.WriteString(strings.Join(lines[total-contextLines:], "\n"))
	return b.String()
}

// TruncateSimple cuts text to maxLen runes, ending in "...".
func TruncateSimple(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(text)
	return string(runes[:maxLen-3]) + "..."
}

// WrapText wraps text at word boundaries to maxWidth, keeping existing
// line breaks.
func WrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = 80
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = wrapLine(line, maxWidth)
	}
	return strings.Join(lines, "\n")
}

func wrapLine(line string, maxWidth int) string {
	if utf8.RuneCountInString(line) <= maxWidth {
		return line
	}
	var b strings.Builder
	width := 0
	for _, word := range strings.Fields(line) {
		n := utf8.RuneCountInString(word)
		switch {
		case width == 0:
		case width+1+n <= maxWidth:
			b.WriteByte(' ')
			width++
		default:
			b.WriteByte('\n')
			width = 0
		}
		b.WriteString(word)
		width += n
	}
	return b.String()
}

// ShouldTruncate reports whether text exceeds either limit. A zero limit is
// ignored.
func ShouldTruncate(text string, maxLines, maxChars int) bool {
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		return true
	}
	return maxLines > 0 && strings.Count(text, "\n")+1 > maxLines
}

// PadRight pads s with spaces to width visible cells. Styled text is
// measured without its escape sequences.
func PadRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// Table lays out rows in left-aligned columns separated by two spaces.
type Table struct {
	rows [][]string
}

// Row appends a row. Rows may have different lengths.
func (t *Table) Row(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows added.
func (t *Table) Len() int { return len(t.rows) }

// String renders the table, one line per row, each ending in a newline.
func (t *Table) String() string {
	var widths []int
	for _, row := range t.rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	var b strings.Builder
	for _, row := range t.rows {
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(PadRight(cell, widths[i]))
			b.WriteString("  ")
		}
		b.WriteString("\n")
	}
	return b.String()
}
