package templates

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-tracker/trellis/internal/types"
)

func projectDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, PacksDir), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, TemplatesDir), 0o750))
	return dir
}

func writeDoc(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func typeNames(r *Registry) []string {
	var names []string
	for _, tmpl := range r.ListTypes() {
		names = append(names, tmpl.Type)
	}
	return names
}

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Equal(t, []string{"task", "bug", "feature", "epic", "milestone", "phase", "step"}, typeNames(r))
	assert.Equal(t, []string{"core", "planning"}, r.EnabledPacks())
	assert.False(t, r.IsKnownType("release"))

	_, ok := r.GetPack("core")
	assert.True(t, ok)
	_, ok = r.GetPack("spike")
	assert.False(t, ok, "available but not enabled")
	assert.Len(t, r.AvailablePacks(), 5)
}

func TestRegistryReadAPI(t *testing.T) {
	r := NewDefaultRegistry()

	assert.Equal(t, "triage", r.GetInitialState("bug"))
	assert.Equal(t, "open", r.GetInitialState("nonexistent"))

	assert.Equal(t, types.CategoryWIP, r.GetCategory("bug", "fixing"))
	assert.Equal(t, types.CategoryDone, r.GetCategory("bug", "wont_fix"))
	assert.Equal(t, []string{"triage", "confirmed", "fixing", "verifying", "closed", "wont_fix"}, r.GetValidStates("bug"))
	assert.Nil(t, r.GetValidStates("nonexistent"))

	s, ok := r.GetFirstStateOfCategory("feature", types.CategoryDone)
	assert.True(t, ok)
	assert.Equal(t, "done", s)
	s, ok = r.GetFirstStateOfCategory("bug", types.CategoryOpen)
	assert.True(t, ok)
	assert.Equal(t, "triage", s)

	src, ok := r.TypeSource("task")
	require.True(t, ok)
	assert.Equal(t, "builtin", src.Layer)
}

func TestCategoryFallback(t *testing.T) {
	r := NewDefaultRegistry()
	tests := []struct {
		typ, state string
		want       types.Category
	}{
		{"mystery", "resolved", types.CategoryDone},
		{"mystery", "cancelled", types.CategoryDone},
		{"mystery", "in_progress", types.CategoryWIP},
		{"mystery", "review", types.CategoryWIP},
		{"mystery", "whatever", types.CategoryOpen},
		// stale state on a known type
		{"task", "released", types.CategoryDone},
		{"task", "testing", types.CategoryWIP},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.GetCategory(tt.typ, tt.state), "%s/%s", tt.typ, tt.state)
	}
}

func TestExplicitEnabledPacks(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Load(LoadOptions{EnabledPacks: []string{"spike", "risk", "spike", "nope"}}))
	assert.Equal(t, []string{"spike", "risk"}, typeNames(r))
	assert.Equal(t, []string{"spike", "risk", "nope"}, r.EnabledPacks())
	assert.NotEmpty(t, r.LoadWarnings())
}

func TestConfigEnabledPacks(t *testing.T) {
	dir := projectDir(t)
	writeDoc(t, filepath.Join(dir, "config.json"), `{"prefix":"x","enabled_packs":["release"]}`)

	r := NewRegistry()
	require.NoError(t, r.Load(LoadOptions{Dir: dir}))
	assert.Equal(t, []string{"release", "release_item"}, typeNames(r))

	// explicit argument beats config
	require.NoError(t, r.Load(LoadOptions{Dir: dir, EnabledPacks: []string{"spike"}}))
	assert.Equal(t, []string{"spike"}, typeNames(r))
}

func TestMalformedConfigDegradesToDefault(t *testing.T) {
	for _, doc := range []string{
		`{"enabled_packs": {"core": true}}`,
		`{"enabled_packs": "release"}`,
	} {
		t.Run(doc, func(t *testing.T) {
			dir := projectDir(t)
			writeDoc(t, filepath.Join(dir, "config.json"), doc)

			r := NewRegistry()
			require.NoError(t, r.Load(LoadOptions{Dir: dir}))
			assert.Equal(t, DefaultEnabledPacks, r.EnabledPacks())
			assert.True(t, r.IsKnownType("task"))
			assert.True(t, r.IsKnownType("milestone"))
			assert.False(t, r.IsKnownType("release"))
		})
	}
}

func TestInstalledPackReplacesBuiltin(t *testing.T) {
	dir := projectDir(t)
	writeDoc(t, filepath.Join(dir, PacksDir, "core.yaml"), `
pack: core
version: "2.0"
types:
  - type: chore
    states:
      - {name: todo, category: open}
      - {name: done, category: done}
    transitions:
      - {from: todo, to: done}
`)
	r := NewRegistry()
	require.NoError(t, r.Load(LoadOptions{Dir: dir, EnabledPacks: []string{"core"}}))
	assert.Equal(t, []string{"chore"}, typeNames(r))
	assert.False(t, r.IsKnownType("bug"))

	p, ok := r.GetPack("core")
	require.True(t, ok)
	assert.Equal(t, "2.0", p.Version)
	src, _ := r.TypeSource("chore")
	assert.Equal(t, "installed", src.Layer)
}

func TestInstalledPackNeedsEnabling(t *testing.T) {
	dir := projectDir(t)
	writeDoc(t, filepath.Join(dir, PacksDir, "ops.json"), `{"pack":"ops","types":[{"type":"incident","states":[{"name":"open","category":"open"},{"name":"closed","category":"done"}],"transitions":[{"from":"open","to":"closed"}]}]}`)

	r := NewRegistry()
	require.NoError(t, r.Load(LoadOptions{Dir: dir, EnabledPacks: []string{"core"}}))
	assert.False(t, r.IsKnownType("incident"))

	require.NoError(t, r.Load(LoadOptions{Dir: dir, EnabledPacks: []string{"core", "ops"}}))
	assert.True(t, r.IsKnownType("incident"))
}

func TestProjectOverrideEvictsStates(t *testing.T) {
	dir := projectDir(t)
	writeDoc(t, filepath.Join(dir, TemplatesDir, "task.toml"), `
type = "task"

[[states]]
name = "todo"
category = "open"

[[states]]
name = "finished"
category = "done"

[[transitions]]
from = "todo"
to = "finished"
enforcement = "hard"
requires_fields = ["summary"]

[[fields_schema]]
name = "summary"
type = "text"
`)
	r := NewRegistry()
	require.NoError(t, r.Load(LoadOptions{Dir: dir}))

	assert.Equal(t, []string{"todo", "finished"}, r.GetValidStates("task"))
	assert.Equal(t, "todo", r.GetInitialState("task"))
	assert.False(t, r.IsValidState("task", "in_progress"), "old state must be evicted")
	// in_progress now only resolves through the heuristic
	assert.Equal(t, types.CategoryWIP, r.GetCategory("task", "in_progress"))

	src, _ := r.TypeSource("task")
	assert.Equal(t, "project", src.Layer)
	tmpl, _ := r.GetType("task")
	assert.Equal(t, "project", tmpl.Pack)
}

func TestInvalidFilesAreSkipped(t *testing.T) {
	dir := projectDir(t)
	writeDoc(t, filepath.Join(dir, TemplatesDir, "broken.json"), `{"type": "broken",`)
	writeDoc(t, filepath.Join(dir, TemplatesDir, "dangling.json"), `{"type":"dangling","states":[{"name":"open","category":"open"}],"transitions":[{"from":"open","to":"nowhere"}]}`)
	writeDoc(t, filepath.Join(dir, TemplatesDir, "notes.txt"), `ignored`)
	writeDoc(t, filepath.Join(dir, PacksDir, "bad.yaml"), "pack: bad\ntypes: 7\n")

	r := NewRegistry()
	require.NoError(t, r.Load(LoadOptions{Dir: dir}))
	assert.False(t, r.IsKnownType("broken"))
	assert.False(t, r.IsKnownType("dangling"))
	assert.True(t, r.IsKnownType("task"))
	assert.Len(t, r.LoadWarnings(), 3)
}

func TestLoadIsIdempotent(t *testing.T) {
	dir := projectDir(t)
	r := NewRegistry()
	require.NoError(t, r.Load(LoadOptions{Dir: dir}))
	first := typeNames(r)
	firstStates := r.GetValidStates("bug")

	require.NoError(t, r.Load(LoadOptions{Dir: dir}))
	assert.Equal(t, first, typeNames(r))
	assert.Equal(t, firstStates, r.GetValidStates("bug"))
}

func TestReloadPicksUpChanges(t *testing.T) {
	dir := projectDir(t)
	r := NewRegistry()
	require.NoError(t, r.Load(LoadOptions{Dir: dir}))
	require.False(t, r.IsKnownType("chore"))

	writeDoc(t, filepath.Join(dir, TemplatesDir, "chore.json"), `{"type":"chore","states":[{"name":"open","category":"open"},{"name":"closed","category":"done"}],"transitions":[{"from":"open","to":"closed"}]}`)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Reload())
		}()
	}
	// readers never see a half-built registry
	for i := 0; i < 100; i++ {
		assert.True(t, r.IsKnownType("task"))
	}
	wg.Wait()
	assert.True(t, r.IsKnownType("chore"))
}

func TestReloadBeforeLoad(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Reload())
	assert.Empty(t, r.ListTypes())
}
