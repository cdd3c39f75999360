package templates

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/trellis-tracker/trellis/internal/types"
)

// TransitionResult is the verdict of ValidateTransition.
type TransitionResult struct {
	Allowed       bool        `json:"allowed"`
	Enforcement   Enforcement `json:"enforcement,omitempty"`
	MissingFields []string    `json:"missing_fields,omitempty"`
	Warnings      []string    `json:"warnings,omitempty"`
}

// TransitionOption is one declared next state, annotated with whether the
// issue's current fields already satisfy it.
type TransitionOption struct {
	To             string         `json:"to"`
	Category       types.Category `json:"category"`
	Enforcement    Enforcement    `json:"enforcement"`
	RequiresFields []string       `json:"requires_fields,omitempty"`
	MissingFields  []string       `json:"missing_fields,omitempty"`
	Ready          bool           `json:"ready"`
}

// IsMissing reports whether a field value counts as unset: absent, nil,
// an empty string or whitespace only.
func IsMissing(v any, present bool) bool {
	if !present || v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func missingFrom(required []string, fields map[string]any) []string {
	var missing []string
	for _, name := range required {
		v, ok := fields[name]
		if IsMissing(v, ok) {
			missing = append(missing, name)
		}
	}
	return missing
}

// ValidateTransition decides whether an issue of typeName may move from one
// state to another given its current fields.
//
// Unknown types are unconstrained. Undeclared transitions on a known type are
// refused with a warning. Declared transitions with missing required fields
// are allowed with warnings under soft enforcement and refused under hard.
func (r *Registry) ValidateTransition(typeName, from, to string, fields map[string]any) TransitionResult {
	t, ok := r.GetType(typeName)
	if !ok {
		return TransitionResult{Allowed: true}
	}
	if from == to {
		return TransitionResult{Allowed: true}
	}
	tr, declared := t.Transition(from, to)
	if !declared {
		return TransitionResult{
			Allowed:  false,
			Warnings: []string{fmt.Sprintf("transition %s -> %s is not in the standard workflow for type %q", from, to, typeName)},
		}
	}

	res := TransitionResult{Allowed: true, Enforcement: tr.Enforcement}
	res.MissingFields = missingFrom(t.requiredFor(to, &tr), fields)
	if len(res.MissingFields) == 0 {
		return res
	}
	if tr.Enforcement == EnforcementHard {
		res.Allowed = false
		return res
	}
	for _, f := range res.MissingFields {
		res.Warnings = append(res.Warnings, fmt.Sprintf("field %q should be set before entering %q", f, to))
	}
	return res
}

// GetValidTransitions lists the declared transitions out of state.
func (r *Registry) GetValidTransitions(typeName, state string, fields map[string]any) []TransitionOption {
	t, ok := r.GetType(typeName)
	if !ok {
		return nil
	}
	var out []TransitionOption
	for _, tr := range t.TransitionsFrom(state) {
		tr := tr
		required := t.requiredFor(tr.To, &tr)
		missing := missingFrom(required, fields)
		out = append(out, TransitionOption{
			To:             tr.To,
			Category:       r.GetCategory(typeName, tr.To),
			Enforcement:    tr.Enforcement,
			RequiresFields: required,
			MissingFields:  missing,
			Ready:          len(missing) == 0,
		})
	}
	return out
}

// NextStateNames is GetValidTransitions reduced to target names.
func (r *Registry) NextStateNames(typeName, state string) []string {
	t, ok := r.GetType(typeName)
	if !ok {
		return nil
	}
	var out []string
	for _, tr := range t.TransitionsFrom(state) {
		out = append(out, tr.To)
	}
	return out
}

// ValidateFieldsForState returns fields whose required_at names state and
// which are unset in fields.
func (r *Registry) ValidateFieldsForState(typeName, state string, fields map[string]any) []string {
	t, ok := r.GetType(typeName)
	if !ok {
		return nil
	}
	return missingFrom(t.requiredFor(state, nil), fields)
}

// IssueValidation reports problems with an issue's current shape.
type IssueValidation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateIssue checks an issue against its type: stale statuses and unmet
// required fields are warnings, malformed field values are errors.
func (r *Registry) ValidateIssue(issue *types.Issue) IssueValidation {
	res := IssueValidation{Valid: true}
	t, ok := r.GetType(issue.Type)
	if !ok {
		res.Warnings = append(res.Warnings, fmt.Sprintf("type %q is not registered", issue.Type))
		return res
	}
	if _, ok := t.State(issue.Status); !ok {
		res.Warnings = append(res.Warnings, fmt.Sprintf("status %q is not a state of type %q", issue.Status, issue.Type))
	}
	for _, f := range r.ValidateFieldsForState(issue.Type, issue.Status, issue.Fields) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("field %q is required in state %q", f, issue.Status))
	}
	if errs := r.ValidateFieldValues(issue.Type, issue.Fields); len(errs) > 0 {
		res.Valid = false
		res.Errors = errs
	}
	return res
}

// ValidateFieldValues checks each supplied value against the type's schema.
// Keys the schema does not declare are accepted as-is, and nil values (field
// removal) are always accepted.
func (r *Registry) ValidateFieldValues(typeName string, fields map[string]any) []string {
	t, ok := r.GetType(typeName)
	if !ok {
		return nil
	}
	var errs []string
	for _, fs := range t.FieldsSchema {
		v, present := fields[fs.Name]
		if !present || v == nil {
			continue
		}
		if msg := checkFieldValue(fs, v); msg != "" {
			errs = append(errs, fmt.Sprintf("field %q: %s", fs.Name, msg))
		}
	}
	return errs
}

func checkFieldValue(fs FieldSchema, v any) string {
	switch fs.Type {
	case FieldText:
		if _, ok := v.(string); !ok {
			return fmt.Sprintf("expected text, got %T", v)
		}
	case FieldEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("expected one of %v, got %T", fs.Options, v)
		}
		for _, opt := range fs.Options {
			if opt == s {
				return ""
			}
		}
		return fmt.Sprintf("%q is not one of %v", s, fs.Options)
	case FieldNumber:
		switch n := v.(type) {
		case float64:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return "expected a finite number"
			}
		case float32, int, int32, int64:
		case string:
			if _, err := strconv.ParseFloat(n, 64); err != nil {
				return fmt.Sprintf("%q is not a number", n)
			}
		default:
			return fmt.Sprintf("expected number, got %T", v)
		}
	case FieldBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %T", v)
		}
	case FieldDate:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("expected ISO date string, got %T", v)
		}
		if _, err := time.Parse("2006-01-02", s); err == nil {
			return ""
		}
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return ""
		}
		return fmt.Sprintf("%q is not an ISO date", s)
	case FieldList:
		switch v.(type) {
		case []any, []string:
		default:
			return fmt.Sprintf("expected list, got %T", v)
		}
	}
	return ""
}
