// Package debug provides env-gated diagnostics for trellis.
//
// Debug output is off unless TRELLIS_DEBUG is set or SetVerbose(true) is
// called. Warnings (skipped template files, retried transactions) always go
// through Logger so front-ends can redirect them.
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	enabled     = os.Getenv("TRELLIS_DEBUG") != ""
	verboseMode = false
	quietMode   = false

	mu     sync.Mutex
	output io.Writer = os.Stderr
	logger           = newLogger(os.Stderr)
)

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if enabled || verboseMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	mu.Lock()
	defer mu.Unlock()
	verboseMode = verbose
	logger = newLogger(output)
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

// SetOutput redirects both Logf and Logger output. nil restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
	logger = newLogger(w)
}

// Logger returns the structured logger for warnings and debug records.
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

func Logf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(output, format, args...)
}

// Warn logs a structured warning regardless of debug mode unless quiet.
func Warn(msg string, args ...any) {
	if quietMode {
		return
	}
	Logger().Warn(msg, args...)
}
