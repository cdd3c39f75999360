package templates

import (
	"fmt"

	"github.com/trellis-tracker/trellis/internal/types"
)

// ValidateTypeTemplate cross-checks references inside a parsed template.
// An empty result means the template is usable.
func ValidateTypeTemplate(t *TypeTemplate) []string {
	var errs []string
	states := make(map[string]bool, len(t.States))
	for _, s := range t.States {
		states[s.Name] = true
	}
	fields := make(map[string]bool, len(t.FieldsSchema))
	for _, f := range t.FieldsSchema {
		fields[f.Name] = true
	}

	if !states[t.InitialState] {
		errs = append(errs, fmt.Sprintf("initial_state %q is not a declared state", t.InitialState))
	}
	for _, tr := range t.Transitions {
		if !states[tr.From] {
			errs = append(errs, fmt.Sprintf("transition %s->%s: unknown from state %q", tr.From, tr.To, tr.From))
		}
		if !states[tr.To] {
			errs = append(errs, fmt.Sprintf("transition %s->%s: unknown to state %q", tr.From, tr.To, tr.To))
		}
		for _, f := range tr.RequiresFields {
			if !fields[f] {
				errs = append(errs, fmt.Sprintf("transition %s->%s requires undeclared field %q", tr.From, tr.To, f))
			}
		}
	}
	for _, f := range t.FieldsSchema {
		for _, s := range f.RequiredAt {
			if !states[s] {
				errs = append(errs, fmt.Sprintf("field %q required_at unknown state %q", f.Name, s))
			}
		}
		if f.Type == FieldEnum && len(f.Options) == 0 {
			errs = append(errs, fmt.Sprintf("enum field %q declares no options", f.Name))
		}
	}
	return errs
}

// CheckTypeTemplateQuality returns advisory findings: states with no way out
// that are not terminal, and transitions between two done states.
func CheckTypeTemplateQuality(t *TypeTemplate) []string {
	var warnings []string
	outgoing := make(map[string]int)
	for _, tr := range t.Transitions {
		outgoing[tr.From]++
	}
	cat := make(map[string]types.Category, len(t.States))
	for _, s := range t.States {
		cat[s.Name] = s.Category
	}
	for _, s := range t.States {
		if s.Category != types.CategoryDone && outgoing[s.Name] == 0 {
			warnings = append(warnings, fmt.Sprintf("state %q (%s) has no outgoing transitions", s.Name, s.Category))
		}
	}
	for _, tr := range t.Transitions {
		if cat[tr.From] == types.CategoryDone && cat[tr.To] == types.CategoryDone {
			warnings = append(warnings, fmt.Sprintf("transition %s->%s moves between two done states", tr.From, tr.To))
		}
	}
	return warnings
}
