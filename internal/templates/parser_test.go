package templates

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalType(name string) map[string]any {
	return map[string]any{
		"type": name,
		"states": []any{
			map[string]any{"name": "open", "category": "open"},
			map[string]any{"name": "closed", "category": "done"},
		},
		"transitions": []any{
			map[string]any{"from": "open", "to": "closed"},
		},
	}
}

func TestDecodeDocumentFormats(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"pack.json", `{"pack": "demo", "types": [{"type": "chore", "states": [{"name": "open", "category": "open"}]}]}`},
		{"pack.jsonc", `{
			// comments and trailing commas are fine
			"pack": "demo",
			"types": [{"type": "chore", "states": [{"name": "open", "category": "open"},],},],
		}`},
		{"pack.toml", `
pack = "demo"

[[types]]
type = "chore"

[[types.states]]
name = "open"
category = "open"
`},
		{"pack.yaml", `
pack: demo
types:
  - type: chore
    states:
      - name: open
        category: open
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := DecodeDocument(tt.name, []byte(tt.data))
			require.NoError(t, err)
			pack, err := ParsePack(raw)
			require.NoError(t, err)
			assert.Equal(t, "demo", pack.Pack)
			require.Len(t, pack.Types, 1)
			assert.Equal(t, "chore", pack.Types[0].Type)
			assert.Equal(t, "demo", pack.Types[0].Pack)
			assert.Equal(t, "open", pack.Types[0].InitialState)
		})
	}
}

func TestDecodeDocumentErrors(t *testing.T) {
	_, err := DecodeDocument("x.json", []byte(`{broken`))
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	_, err = DecodeDocument("x.txt", []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	_, err = DecodeDocument("x.yaml", []byte(``))
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestParseTypeTemplateDefaults(t *testing.T) {
	tmpl, err := ParseTypeTemplate(minimalType("chore"))
	require.NoError(t, err)
	assert.Equal(t, "chore", tmpl.DisplayName)
	assert.Equal(t, "open", tmpl.InitialState)
	require.Len(t, tmpl.Transitions, 1)
	assert.Equal(t, EnforcementSoft, tmpl.Transitions[0].Enforcement)
}

func TestParseTypeTemplateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]any)
		want   string
	}{
		{"bad type name", func(m map[string]any) { m["type"] = "Bad-Name" }, "must match"},
		{"missing type", func(m map[string]any) { delete(m, "type") }, `missing "type"`},
		{"type not string", func(m map[string]any) { m["type"] = 12.0 }, "must be a string"},
		{"duplicate state", func(m map[string]any) {
			m["states"] = append(m["states"].([]any), map[string]any{"name": "open", "category": "wip"})
		}, "duplicate state"},
		{"bad category", func(m map[string]any) {
			m["states"] = []any{map[string]any{"name": "open", "category": "someday"}}
		}, "invalid category"},
		{"bad state name", func(m map[string]any) {
			m["states"] = []any{map[string]any{"name": "9lives", "category": "open"}}
		}, "must match"},
		{"no states", func(m map[string]any) { m["states"] = []any{} }, "at least one state"},
		{"duplicate transition", func(m map[string]any) {
			m["transitions"] = append(m["transitions"].([]any), map[string]any{"from": "open", "to": "closed"})
		}, "duplicate transition"},
		{"bad enforcement", func(m map[string]any) {
			m["transitions"] = []any{map[string]any{"from": "open", "to": "closed", "enforcement": "strict"}}
		}, "invalid enforcement"},
		{"transitions not a list", func(m map[string]any) { m["transitions"] = "open->closed" }, "must be a list of objects"},
		{"transition not an object", func(m map[string]any) { m["transitions"] = []any{"open->closed"} }, "must be an object"},
		{"fields_schema not a list", func(m map[string]any) { m["fields_schema"] = map[string]any{} }, "must be a list of objects"},
		{"bad field type", func(m map[string]any) {
			m["fields_schema"] = []any{map[string]any{"name": "x", "type": "blob"}}
		}, "invalid type"},
		{"requires_fields not strings", func(m map[string]any) {
			m["transitions"] = []any{map[string]any{"from": "open", "to": "closed", "requires_fields": []any{1.0}}}
		}, "must be a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := minimalType("chore")
			tt.mutate(raw)
			tmpl, err := ParseTypeTemplate(raw)
			require.Error(t, err)
			assert.Nil(t, tmpl)
			assert.ErrorIs(t, err, ErrInvalidTemplate)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseTypeTemplateStateLimit(t *testing.T) {
	raw := minimalType("big")
	states := make([]any, 0, MaxStates+1)
	for i := 0; i <= MaxStates; i++ {
		states = append(states, map[string]any{"name": fmt.Sprintf("s%d", i), "category": "open"})
	}
	raw["states"] = states
	raw["transitions"] = []any{}
	_, err := ParseTypeTemplate(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds the limit")
}

func TestParsePackObjectForm(t *testing.T) {
	raw := map[string]any{
		"pack": "ops",
		"types": map[string]any{
			"incident": map[string]any{
				"states": []any{map[string]any{"name": "open", "category": "open"}},
			},
			"alert": minimalType("alert"),
		},
	}
	pack, err := ParsePack(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"alert", "incident"}, pack.TypeNames())
}

func TestParsePackRejects(t *testing.T) {
	_, err := ParsePack(map[string]any{"pack": "ops"})
	require.ErrorIs(t, err, ErrInvalidTemplate)

	_, err = ParsePack(map[string]any{"pack": "ops", "types": "task"})
	require.ErrorIs(t, err, ErrInvalidTemplate)

	_, err = ParsePack(map[string]any{"pack": "ops", "types": []any{minimalType("a"), minimalType("a")}})
	require.ErrorIs(t, err, ErrInvalidTemplate)
	assert.Contains(t, err.Error(), "duplicate type")
}

func TestValidateTypeTemplate(t *testing.T) {
	raw := minimalType("chore")
	raw["initial_state"] = "backlog"
	raw["transitions"] = []any{
		map[string]any{"from": "open", "to": "gone", "requires_fields": []any{"ghost"}},
	}
	raw["fields_schema"] = []any{
		map[string]any{"name": "size", "type": "enum", "required_at": []any{"nowhere"}},
	}
	tmpl, err := ParseTypeTemplate(raw)
	require.NoError(t, err)

	errs := ValidateTypeTemplate(tmpl)
	joined := fmt.Sprint(errs)
	assert.Contains(t, joined, `initial_state "backlog"`)
	assert.Contains(t, joined, `unknown to state "gone"`)
	assert.Contains(t, joined, `undeclared field "ghost"`)
	assert.Contains(t, joined, `unknown state "nowhere"`)
	assert.Contains(t, joined, `declares no options`)
}

func TestCheckTypeTemplateQuality(t *testing.T) {
	raw := minimalType("chore")
	raw["states"] = []any{
		map[string]any{"name": "open", "category": "open"},
		map[string]any{"name": "stuck", "category": "wip"},
		map[string]any{"name": "closed", "category": "done"},
		map[string]any{"name": "archived", "category": "done"},
	}
	raw["transitions"] = []any{
		map[string]any{"from": "open", "to": "stuck"},
		map[string]any{"from": "open", "to": "closed"},
		map[string]any{"from": "closed", "to": "archived"},
	}
	tmpl, err := ParseTypeTemplate(raw)
	require.NoError(t, err)
	require.Empty(t, ValidateTypeTemplate(tmpl))

	warnings := CheckTypeTemplateQuality(tmpl)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], `"stuck"`)
	assert.Contains(t, warnings[1], "closed->archived")
}

func TestBuiltinPacksAreClean(t *testing.T) {
	packs, err := BuiltinPacks()
	require.NoError(t, err)

	var names []string
	for _, p := range packs {
		names = append(names, p.Pack)
		for _, tmpl := range p.Types {
			assert.Empty(t, ValidateTypeTemplate(tmpl), "type %s", tmpl.Type)
			assert.Empty(t, CheckTypeTemplateQuality(tmpl), "type %s", tmpl.Type)
		}
	}
	assert.Equal(t, []string{"core", "planning", "release", "spike", "risk"}, names)
}
