package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// PagerOptions controls pager behavior.
type PagerOptions struct {
	// NoPager disables the pager for this command (--no-pager).
	NoPager bool
}

// shouldUsePager is false for --no-pager, TRELLIS_NO_PAGER, agent mode and
// when stdout is not a terminal.
func shouldUsePager(opts PagerOptions) bool {
	if opts.NoPager || os.Getenv("TRELLIS_NO_PAGER") != "" || IsAgentMode() {
		return false
	}
	return IsTerminal()
}

// pagerCommand checks TRELLIS_PAGER, then PAGER, defaulting to less.
func pagerCommand() string {
	if pager := os.Getenv("TRELLIS_PAGER"); pager != "" {
		return pager
	}
	if pager := os.Getenv("PAGER"); pager != "" {
		return pager
	}
	return "less"
}

func terminalHeight() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	_, height, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return height
}

func lineCount(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

// ToPager writes content to w directly, or through the pager when w is a
// terminal stdout and content is taller than it.
func ToPager(w io.Writer, content string, opts PagerOptions) error {
	if f, ok := w.(*os.File); !ok || f != os.Stdout || !shouldUsePager(opts) {
		_, err := fmt.Fprint(w, content)
		return err
	}
	if h := terminalHeight(); h > 0 && lineCount(content) <= h-1 {
		_, err := fmt.Fprint(w, content)
		return err
	}

	parts := strings.Fields(pagerCommand())
	if len(parts) == 0 {
		_, err := fmt.Fprint(w, content)
		return err
	}
	cmd := exec.Command(parts[0], parts[1:]...) // #nosec G204 - pager command is user-configured
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if os.Getenv("LESS") == "" {
		// -R keeps colors, -F exits when one screen suffices, -X keeps the screen.
		cmd.Env = append(cmd.Env, "LESS=-RFX")
	}
	return cmd.Run()
}
