package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Concrete failures wrap one of these, so callers branch
// with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation covers malformed input and state-dependent refusals such
	// as reopening an open issue or releasing an unclaimed one.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a status change is refused by the
	// type's workflow.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConflict indicates a concurrent writer won a race or a unique
	// constraint was violated.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyClaimed is returned when attempting to claim an issue that is
	// already held. It wraps ErrConflict.
	ErrAlreadyClaimed = fmt.Errorf("issue already claimed: %w", ErrConflict)

	// ErrCycle indicates a dependency cycle would be created.
	ErrCycle = errors.New("dependency cycle detected")
)

// Invalidf returns an error wrapping ErrValidation.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns an error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// TransitionError explains a refused status change.
type TransitionError struct {
	IssueID       string
	Type          string
	From          string
	To            string
	MissingFields []string
	ValidNext     []string
	Reason        string
}

func (e *TransitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot move %s (%s) from %q to %q", e.IssueID, e.Type, e.From, e.To)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.MissingFields) > 0 {
		fmt.Fprintf(&b, "; missing required fields: %s", strings.Join(e.MissingFields, ", "))
	}
	if len(e.ValidNext) > 0 {
		fmt.Fprintf(&b, "; valid next states: %s", strings.Join(e.ValidNext, ", "))
	}
	return b.String()
}

// Is lets errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// CycleError reports the dependency path an edge would close.
type CycleError struct {
	From string
	To   string
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("adding %s -> %s would create a cycle: %s", e.From, e.To, strings.Join(e.Path, " -> "))
}

// Is lets errors.Is(err, ErrCycle) match.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}
