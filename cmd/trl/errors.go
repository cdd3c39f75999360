package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/trellis-tracker/trellis/internal/project"
	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/ui"
)

// Process exit codes by error kind.
const (
	exitGeneric    = 1
	exitValidation = 2
	exitNotFound   = 3
	exitConflict   = 4
)

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, storage.ErrValidation), errors.Is(err, storage.ErrInvalidTransition):
		return exitValidation
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, project.ErrNoProject):
		return exitNotFound
	case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrCycle):
		return exitConflict
	}
	return exitGeneric
}

// errorCode is the machine-readable kind used in JSON error output.
func errorCode(err error) string {
	switch {
	case errors.Is(err, storage.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, storage.ErrCycle):
		return "cycle"
	case errors.Is(err, storage.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, storage.ErrValidation):
		return "validation"
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, project.ErrNoProject):
		return "not_found"
	case errors.Is(err, storage.ErrConflict):
		return "conflict"
	}
	return "error"
}

// reportError writes err to w, as a JSON object under --json. Transition and
// cycle errors carry their structured details.
func reportError(w io.Writer, err error) {
	if jsonOutput {
		obj := map[string]any{"error": err.Error(), "code": errorCode(err)}
		var te *storage.TransitionError
		if errors.As(err, &te) {
			obj["missing_fields"] = te.MissingFields
			obj["valid_next"] = te.ValidNext
		}
		var ce *storage.CycleError
		if errors.As(err, &ce) {
			obj["path"] = ce.Path
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(obj)
		return
	}
	fmt.Fprintf(w, "%s %v\n", ui.RenderFail("Error:"), err)
	if errors.Is(err, project.ErrNoProject) {
		fmt.Fprintf(w, "Hint: run 'trl init' to create a project here\n")
	}
}
