package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/trellis-tracker/trellis/internal/config"
	"github.com/trellis-tracker/trellis/internal/debug"
	"github.com/trellis-tracker/trellis/internal/types"
)

// Subdirectories of a project directory scanned by Load.
const (
	PacksDir     = "packs"
	TemplatesDir = "templates"
)

// DefaultEnabledPacks is used when neither the caller nor the project config
// names a usable pack list.
var DefaultEnabledPacks = []string{"core", "planning"}

// LoadOptions selects the project directory and pack set for a load.
type LoadOptions struct {
	// Dir is the project directory (.trellis). Empty loads built-ins only.
	Dir string
	// EnabledPacks overrides the config document when non-nil.
	EnabledPacks []string
}

// TypeSource records which layer a registered type came from.
type TypeSource struct {
	Layer string `json:"layer"` // builtin, installed or project
	Path  string `json:"path,omitempty"`
}

// tables is one fully built, immutable registry state.
type tables struct {
	packs      map[string]*WorkflowPack
	packOrder  []string
	enabled    []string
	types      map[string]*TypeTemplate
	typeOrder  []string
	sources    map[string]TypeSource
	categories map[string]map[string]types.Category
	warnings   []string
}

func newTables() *tables {
	return &tables{
		packs:      make(map[string]*WorkflowPack),
		types:      make(map[string]*TypeTemplate),
		sources:    make(map[string]TypeSource),
		categories: make(map[string]map[string]types.Category),
	}
}

// Registry resolves issue types to their workflow definitions. Reads are
// lock-free against the current tables; Load builds new tables and swaps them in.
type Registry struct {
	current atomic.Pointer[tables]

	mu       sync.Mutex // serializes loads
	lastOpts LoadOptions
	loaded   bool
	group    singleflight.Group
}

// NewRegistry returns an empty registry. Every type is unknown until Load.
func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(newTables())
	return r
}

// NewDefaultRegistry returns a registry loaded with the default built-in packs.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	if err := r.Load(LoadOptions{}); err != nil {
		// Built-in documents are compiled in; failure here is a programming error.
		panic(fmt.Sprintf("templates: loading built-in packs: %v", err))
	}
	return r
}

// Load builds the registry from built-in packs, installed packs and project
// templates, then atomically replaces the current tables. Loading the same
// inputs twice yields identical tables.
func (r *Registry) Load(opts LoadOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := build(opts)
	if err != nil {
		return err
	}
	r.current.Store(t)
	r.lastOpts = opts
	r.loaded = true
	debug.Logf("templates: loaded %d types from %d enabled packs\n", len(t.typeOrder), len(t.enabled))
	return nil
}

// Reload re-runs the most recent Load. Concurrent callers share one rebuild.
func (r *Registry) Reload() error {
	_, err, _ := r.group.Do("reload", func() (any, error) {
		r.mu.Lock()
		opts, loaded := r.lastOpts, r.loaded
		r.mu.Unlock()
		if !loaded {
			return nil, nil
		}
		return nil, r.Load(opts)
	})
	return err
}

// Dir returns the project directory of the last load, if any.
func (r *Registry) Dir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOpts.Dir
}

func resolveEnabled(opts LoadOptions) []string {
	if opts.EnabledPacks != nil {
		return dedupe(opts.EnabledPacks)
	}
	if opts.Dir != "" {
		cfg, err := config.Load(opts.Dir)
		if err != nil {
			debug.Warn("reading project config", "dir", opts.Dir, "error", err)
		} else if cfg.EnabledPacks != nil {
			return dedupe(cfg.EnabledPacks)
		}
	}
	return append([]string(nil), DefaultEnabledPacks...)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func build(opts LoadOptions) (*tables, error) {
	t := newTables()
	t.enabled = resolveEnabled(opts)

	builtins, err := BuiltinPacks()
	if err != nil {
		return nil, err
	}
	origin := make(map[string]TypeSource)
	for _, p := range builtins {
		t.addPack(p)
		origin[p.Pack] = TypeSource{Layer: "builtin"}
	}

	if opts.Dir != "" {
		for _, path := range documentFiles(filepath.Join(opts.Dir, PacksDir)) {
			p, err := loadPackFile(path)
			if err != nil {
				t.warn("skipping pack file %s: %v", path, err)
				continue
			}
			t.addPack(p)
			origin[p.Pack] = TypeSource{Layer: "installed", Path: path}
		}
	}

	enabledSet := make(map[string]bool, len(t.enabled))
	for _, name := range t.enabled {
		enabledSet[name] = true
	}
	for _, name := range t.enabled {
		p, ok := t.packs[name]
		if !ok {
			t.warn("enabled pack %q is not available", name)
			continue
		}
		for _, req := range p.RequiresPacks {
			if !enabledSet[req] {
				t.warn("pack %q requires pack %q, which is not enabled", name, req)
			}
		}
		for _, tmpl := range p.Types {
			t.register(tmpl, origin[name])
		}
	}

	if opts.Dir != "" {
		for _, path := range documentFiles(filepath.Join(opts.Dir, TemplatesDir)) {
			tmpl, err := loadTypeFile(path)
			if err != nil {
				t.warn("skipping template file %s: %v", path, err)
				continue
			}
			if tmpl.Pack == "" {
				tmpl.Pack = "project"
			}
			t.register(tmpl, TypeSource{Layer: "project", Path: path})
		}
	}
	return t, nil
}

func (t *tables) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.warnings = append(t.warnings, msg)
	debug.Warn(msg)
}

func (t *tables) addPack(p *WorkflowPack) {
	if _, exists := t.packs[p.Pack]; !exists {
		t.packOrder = append(t.packOrder, p.Pack)
	}
	t.packs[p.Pack] = p
}

// register installs tmpl, replacing any earlier definition of the same type.
// The type's cached states are evicted before the new ones are inserted so a
// dropped state never survives a re-registration.
func (t *tables) register(tmpl *TypeTemplate, src TypeSource) {
	if errs := ValidateTypeTemplate(tmpl); len(errs) > 0 {
		t.warn("skipping type %q: %s", tmpl.Type, strings.Join(errs, "; "))
		return
	}
	if _, exists := t.types[tmpl.Type]; !exists {
		t.typeOrder = append(t.typeOrder, tmpl.Type)
	}
	t.types[tmpl.Type] = tmpl
	t.sources[tmpl.Type] = src

	delete(t.categories, tmpl.Type)
	states := make(map[string]types.Category, len(tmpl.States))
	for _, s := range tmpl.States {
		states[s.Name] = s.Category
	}
	t.categories[tmpl.Type] = states
}

func documentFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			debug.Warn("reading template directory", "dir", dir, "error", err)
		}
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !SupportedExtension(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out
}

func loadPackFile(path string) (*WorkflowPack, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the project directory listing
	if err != nil {
		return nil, err
	}
	raw, err := DecodeDocument(path, data)
	if err != nil {
		return nil, err
	}
	return ParsePack(raw)
}

func loadTypeFile(path string) (*TypeTemplate, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the project directory listing
	if err != nil {
		return nil, err
	}
	raw, err := DecodeDocument(path, data)
	if err != nil {
		return nil, err
	}
	return ParseTypeTemplate(raw)
}

// GetType returns the registered template for name.
func (r *Registry) GetType(name string) (*TypeTemplate, bool) {
	t, ok := r.current.Load().types[name]
	return t, ok
}

// IsKnownType reports whether name is a registered type.
func (r *Registry) IsKnownType(name string) bool {
	_, ok := r.current.Load().types[name]
	return ok
}

// ListTypes returns registered types in registration order.
func (r *Registry) ListTypes() []*TypeTemplate {
	t := r.current.Load()
	out := make([]*TypeTemplate, 0, len(t.typeOrder))
	for _, name := range t.typeOrder {
		out = append(out, t.types[name])
	}
	return out
}

// TypeSource reports where a registered type was defined.
func (r *Registry) TypeSource(name string) (TypeSource, bool) {
	src, ok := r.current.Load().sources[name]
	return src, ok
}

// ListPacks returns the enabled packs that are available, in enable order.
func (r *Registry) ListPacks() []*WorkflowPack {
	t := r.current.Load()
	var out []*WorkflowPack
	for _, name := range t.enabled {
		if p, ok := t.packs[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// AvailablePacks returns every pack the last load could see, enabled or not.
func (r *Registry) AvailablePacks() []*WorkflowPack {
	t := r.current.Load()
	out := make([]*WorkflowPack, 0, len(t.packOrder))
	for _, name := range t.packOrder {
		out = append(out, t.packs[name])
	}
	return out
}

// GetPack returns an enabled pack by name.
func (r *Registry) GetPack(name string) (*WorkflowPack, bool) {
	t := r.current.Load()
	for _, n := range t.enabled {
		if n == name {
			p, ok := t.packs[name]
			return p, ok
		}
	}
	return nil, false
}

// EnabledPacks returns the pack names the last load resolved.
func (r *Registry) EnabledPacks() []string {
	return append([]string(nil), r.current.Load().enabled...)
}

// LoadWarnings returns the problems the last load skipped over.
func (r *Registry) LoadWarnings() []string {
	return append([]string(nil), r.current.Load().warnings...)
}

// GetInitialState returns the initial state of a type, or "open" for unknown types.
func (r *Registry) GetInitialState(typeName string) string {
	if t, ok := r.GetType(typeName); ok {
		return t.InitialState
	}
	return "open"
}

// GetCategory maps (type, state) to its category. Unknown types and states
// not declared by the type fall back to a name heuristic.
func (r *Registry) GetCategory(typeName, state string) types.Category {
	if states, ok := r.current.Load().categories[typeName]; ok {
		if cat, ok := states[state]; ok {
			return cat
		}
	}
	return InferCategory(state)
}

// IsValidState reports whether state is declared by a known type.
func (r *Registry) IsValidState(typeName, state string) bool {
	states, ok := r.current.Load().categories[typeName]
	if !ok {
		return false
	}
	_, ok = states[state]
	return ok
}

// GetValidStates returns the declared states of a type, nil when unknown.
func (r *Registry) GetValidStates(typeName string) []string {
	if t, ok := r.GetType(typeName); ok {
		return t.StateNames()
	}
	return nil
}

// GetFirstStateOfCategory returns the first declared state of typeName in cat.
func (r *Registry) GetFirstStateOfCategory(typeName string, cat types.Category) (string, bool) {
	t, ok := r.GetType(typeName)
	if !ok {
		switch cat {
		case types.CategoryOpen:
			return "open", true
		case types.CategoryWIP:
			return "in_progress", true
		case types.CategoryDone:
			return "closed", true
		}
		return "", false
	}
	for _, s := range t.States {
		if s.Category == cat {
			return s.Name, true
		}
	}
	return "", false
}

// StatesInCategory returns every declared state name, across all types, whose
// category is cat. Used by queries that filter on category in SQL.
func (r *Registry) StatesInCategory(cat types.Category) []string {
	t := r.current.Load()
	seen := make(map[string]bool)
	var out []string
	for _, name := range t.typeOrder {
		for _, s := range t.types[name].States {
			if s.Category == cat && !seen[s.Name] {
				seen[s.Name] = true
				out = append(out, s.Name)
			}
		}
	}
	return out
}

var (
	doneNames = map[string]bool{
		"closed": true, "done": true, "resolved": true, "wont_fix": true,
		"cancelled": true, "rejected": true, "released": true, "archived": true,
	}
	wipNames = map[string]bool{
		"in_progress": true, "active": true, "fixing": true,
		"verifying": true, "review": true, "testing": true,
	}
)

// InferCategory guesses a category from a state name alone.
func InferCategory(state string) types.Category {
	switch {
	case doneNames[state]:
		return types.CategoryDone
	case wipNames[state]:
		return types.CategoryWIP
	default:
		return types.CategoryOpen
	}
}
