package templates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/trellis-tracker/trellis/internal/types"
)

// ErrInvalidTemplate is wrapped by every parse failure.
var ErrInvalidTemplate = errors.New("invalid template")

// Extensions lists the document suffixes the loader understands.
var Extensions = []string{".json", ".jsonc", ".toml", ".yaml", ".yml"}

// SupportedExtension reports whether path has a loadable document suffix.
func SupportedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// DecodeDocument decodes a template or pack document into a generic map.
// The format is chosen by the file extension of name.
func DecodeDocument(name string, data []byte) (map[string]any, error) {
	var raw map[string]any
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s: unsupported document format", ErrInvalidTemplate, name)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s: empty document", ErrInvalidTemplate, name)
	}
	return normalize(raw).(map[string]any), nil
}

// normalize folds decoder-specific container and number types into the
// shapes the parser expects: map[string]any, []any, float64.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = normalize(val)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case []map[string]any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	case []any:
		for i, val := range x {
			x[i] = normalize(val)
		}
		return x
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return v
}

// ParseTypeTemplate converts a raw type document into a TypeTemplate.
// Shape problems produce errors wrapping ErrInvalidTemplate.
func ParseTypeTemplate(raw map[string]any) (*TypeTemplate, error) {
	p := &docParser{}
	t := p.typeTemplate(raw, "")
	if err := p.err(); err != nil {
		return nil, err
	}
	return t, nil
}

// ParsePack converts a raw pack document into a WorkflowPack. Types may be
// given as a list of type documents or as an object keyed by type name.
func ParsePack(raw map[string]any) (*WorkflowPack, error) {
	p := &docParser{}
	pack := &WorkflowPack{
		Pack:          p.str(raw, "pack", true),
		Version:       p.str(raw, "version", false),
		DisplayName:   p.str(raw, "display_name", false),
		Description:   p.str(raw, "description", false),
		RequiresPacks: p.strList(raw, "requires_packs"),
	}
	if pack.Pack != "" && !ValidName(pack.Pack) {
		p.fail("pack name %q must match %s", pack.Pack, namePattern)
	}
	if pack.DisplayName == "" {
		pack.DisplayName = pack.Pack
	}

	switch ts := raw["types"].(type) {
	case nil:
		p.fail("pack %q: missing types", pack.Pack)
	case []any:
		for i, item := range ts {
			doc, ok := item.(map[string]any)
			if !ok {
				p.fail("pack %q: types[%d] must be an object", pack.Pack, i)
				continue
			}
			if t := p.typeTemplate(doc, pack.Pack); t != nil {
				pack.Types = append(pack.Types, t)
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(ts))
		for k := range ts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			doc, ok := ts[k].(map[string]any)
			if !ok {
				p.fail("pack %q: type %q must be an object", pack.Pack, k)
				continue
			}
			if _, has := doc["type"]; !has {
				doc["type"] = k
			}
			if t := p.typeTemplate(doc, pack.Pack); t != nil {
				pack.Types = append(pack.Types, t)
			}
		}
	default:
		p.fail("pack %q: types must be a list or an object", pack.Pack)
	}

	seen := make(map[string]bool)
	for _, t := range pack.Types {
		if seen[t.Type] {
			p.fail("pack %q: duplicate type %q", pack.Pack, t.Type)
		}
		seen[t.Type] = true
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return pack, nil
}

// docParser accumulates problems so one pass reports every shape error.
type docParser struct {
	problems []string
}

func (p *docParser) fail(format string, args ...any) {
	p.problems = append(p.problems, fmt.Sprintf(format, args...))
}

func (p *docParser) err() error {
	if len(p.problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidTemplate, strings.Join(p.problems, "; "))
}

func (p *docParser) str(m map[string]any, key string, required bool) string {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			p.fail("missing %q", key)
		}
		return ""
	}
	s, ok := v.(string)
	if !ok {
		p.fail("%q must be a string, got %T", key, v)
		return ""
	}
	return s
}

func (p *docParser) strList(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		p.fail("%q must be a list of strings, got %T", key, v)
		return nil
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			p.fail("%s[%d] must be a string, got %T", key, i, item)
			continue
		}
		out = append(out, s)
	}
	return out
}

func (p *docParser) objList(m map[string]any, key, owner string) []map[string]any {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		p.fail("type %q: %q must be a list of objects, got %T", owner, key, v)
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			p.fail("type %q: %s[%d] must be an object, got %T", owner, key, i, item)
			continue
		}
		out = append(out, obj)
	}
	return out
}

func (p *docParser) typeTemplate(raw map[string]any, pack string) *TypeTemplate {
	before := len(p.problems)
	t := &TypeTemplate{
		Type:         p.str(raw, "type", true),
		DisplayName:  p.str(raw, "display_name", false),
		Description:  p.str(raw, "description", false),
		Pack:         p.str(raw, "pack", false),
		InitialState: p.str(raw, "initial_state", false),
	}
	if t.Pack == "" {
		t.Pack = pack
	}
	if t.Type != "" && !ValidName(t.Type) {
		p.fail("type name %q must match %s", t.Type, namePattern)
	}
	if t.DisplayName == "" {
		t.DisplayName = t.Type
	}

	states := p.objList(raw, "states", t.Type)
	if len(states) == 0 {
		p.fail("type %q: at least one state is required", t.Type)
	}
	if len(states) > MaxStates {
		p.fail("type %q: %d states exceeds the limit of %d", t.Type, len(states), MaxStates)
	}
	seenState := make(map[string]bool)
	for _, s := range states {
		name := p.str(s, "name", true)
		cat := types.Category(p.str(s, "category", true))
		if name != "" && !ValidName(name) {
			p.fail("type %q: state name %q must match %s", t.Type, name, namePattern)
		}
		if !cat.IsValid() {
			p.fail("type %q: state %q has invalid category %q", t.Type, name, cat)
		}
		if seenState[name] {
			p.fail("type %q: duplicate state %q", t.Type, name)
		}
		seenState[name] = true
		t.States = append(t.States, StateDefinition{Name: name, Category: cat})
	}
	if t.InitialState == "" && len(t.States) > 0 {
		t.InitialState = t.States[0].Name
	}

	seenEdge := make(map[[2]string]bool)
	for _, tr := range p.objList(raw, "transitions", t.Type) {
		def := TransitionDefinition{
			From:           p.str(tr, "from", true),
			To:             p.str(tr, "to", true),
			Enforcement:    Enforcement(p.str(tr, "enforcement", false)),
			RequiresFields: p.strList(tr, "requires_fields"),
		}
		if def.Enforcement == "" {
			def.Enforcement = EnforcementSoft
		}
		if !def.Enforcement.IsValid() {
			p.fail("type %q: transition %s->%s has invalid enforcement %q", t.Type, def.From, def.To, def.Enforcement)
		}
		key := [2]string{def.From, def.To}
		if seenEdge[key] {
			p.fail("type %q: duplicate transition %s->%s", t.Type, def.From, def.To)
		}
		seenEdge[key] = true
		t.Transitions = append(t.Transitions, def)
	}

	seenField := make(map[string]bool)
	for _, f := range p.objList(raw, "fields_schema", t.Type) {
		fs := FieldSchema{
			Name:        p.str(f, "name", true),
			Type:        FieldType(p.str(f, "type", true)),
			Description: p.str(f, "description", false),
			Options:     p.strList(f, "options"),
			Default:     f["default"],
			RequiredAt:  p.strList(f, "required_at"),
		}
		if !fs.Type.IsValid() {
			p.fail("type %q: field %q has invalid type %q", t.Type, fs.Name, fs.Type)
		}
		if seenField[fs.Name] {
			p.fail("type %q: duplicate field %q", t.Type, fs.Name)
		}
		seenField[fs.Name] = true
		t.FieldsSchema = append(t.FieldsSchema, fs)
	}

	if len(p.problems) > before {
		return nil
	}
	return t
}
