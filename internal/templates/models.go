// Package templates holds the workflow type system: typed template and pack
// documents, their parser and validators, the Registry that layers built-in,
// installed and project-local definitions, and the transition engine that
// gates status changes.
package templates

import (
	"regexp"

	"github.com/trellis-tracker/trellis/internal/types"
)

// MaxStates bounds the number of states a single type may declare.
const MaxStates = 50

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ValidName reports whether s is an acceptable type or state identifier.
func ValidName(s string) bool {
	return namePattern.MatchString(s)
}

// Enforcement controls what happens when a transition's required fields are missing.
type Enforcement string

const (
	EnforcementSoft Enforcement = "soft" // allowed, with warnings
	EnforcementHard Enforcement = "hard" // rejected
)

func (e Enforcement) IsValid() bool {
	return e == EnforcementSoft || e == EnforcementHard
}

// FieldType is the value kind of a schema field.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldEnum    FieldType = "enum"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldList    FieldType = "list"
	FieldBoolean FieldType = "boolean"
)

func (f FieldType) IsValid() bool {
	switch f {
	case FieldText, FieldEnum, FieldNumber, FieldDate, FieldList, FieldBoolean:
		return true
	}
	return false
}

// StateDefinition is one named state of a type and the category it maps to.
type StateDefinition struct {
	Name     string         `json:"name"`
	Category types.Category `json:"category"`
}

// TransitionDefinition declares an edge in a type's state machine.
type TransitionDefinition struct {
	From           string      `json:"from"`
	To             string      `json:"to"`
	Enforcement    Enforcement `json:"enforcement"`
	RequiresFields []string    `json:"requires_fields,omitempty"`
}

// FieldSchema describes one entry of an issue's Fields map.
type FieldSchema struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
	Options     []string  `json:"options,omitempty"`
	Default     any       `json:"default,omitempty"`
	RequiredAt  []string  `json:"required_at,omitempty"`
}

// TypeTemplate is the complete workflow definition of one issue type.
// Values are immutable once parsed.
type TypeTemplate struct {
	Type         string                 `json:"type"`
	DisplayName  string                 `json:"display_name"`
	Description  string                 `json:"description,omitempty"`
	Pack         string                 `json:"pack"`
	States       []StateDefinition      `json:"states"`
	InitialState string                 `json:"initial_state"`
	Transitions  []TransitionDefinition `json:"transitions"`
	FieldsSchema []FieldSchema          `json:"fields_schema,omitempty"`
}

// State returns the named state definition, if declared.
func (t *TypeTemplate) State(name string) (StateDefinition, bool) {
	for _, s := range t.States {
		if s.Name == name {
			return s, true
		}
	}
	return StateDefinition{}, false
}

// Field returns the named field schema, if declared.
func (t *TypeTemplate) Field(name string) (FieldSchema, bool) {
	for _, f := range t.FieldsSchema {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// Transition returns the declared from→to edge, if any.
func (t *TypeTemplate) Transition(from, to string) (TransitionDefinition, bool) {
	for _, tr := range t.Transitions {
		if tr.From == from && tr.To == to {
			return tr, true
		}
	}
	return TransitionDefinition{}, false
}

// TransitionsFrom lists declared transitions leaving state, in declaration order.
func (t *TypeTemplate) TransitionsFrom(state string) []TransitionDefinition {
	var out []TransitionDefinition
	for _, tr := range t.Transitions {
		if tr.From == state {
			out = append(out, tr)
		}
	}
	return out
}

// StateNames returns the declared state names in order.
func (t *TypeTemplate) StateNames() []string {
	names := make([]string, len(t.States))
	for i, s := range t.States {
		names[i] = s.Name
	}
	return names
}

// requiredFor returns the fields that must be populated to enter state via tr:
// the transition's requires_fields plus every field whose required_at names state.
func (t *TypeTemplate) requiredFor(state string, tr *TransitionDefinition) []string {
	seen := make(map[string]bool)
	var out []string
	if tr != nil {
		for _, f := range tr.RequiresFields {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	for _, f := range t.FieldsSchema {
		for _, s := range f.RequiredAt {
			if s == state && !seen[f.Name] {
				seen[f.Name] = true
				out = append(out, f.Name)
			}
		}
	}
	return out
}

// WorkflowPack groups related types under a name that can be enabled per project.
type WorkflowPack struct {
	Pack          string          `json:"pack"`
	Version       string          `json:"version"`
	DisplayName   string          `json:"display_name"`
	Description   string          `json:"description,omitempty"`
	RequiresPacks []string        `json:"requires_packs,omitempty"`
	Types         []*TypeTemplate `json:"types"`
}

// TypeNames returns the names of the pack's types in declaration order.
func (p *WorkflowPack) TypeNames() []string {
	names := make([]string, len(p.Types))
	for i, t := range p.Types {
		names[i] = t.Type
	}
	return names
}
