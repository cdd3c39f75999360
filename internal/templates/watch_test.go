package templates

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnTemplateChange(t *testing.T) {
	old := WatchDebounce
	WatchDebounce = 20 * time.Millisecond
	t.Cleanup(func() { WatchDebounce = old })

	dir := projectDir(t)
	r := NewRegistry()
	require.NoError(t, r.Load(LoadOptions{Dir: dir}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan error, 4)
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, func(err error) { reloaded <- err }) }()

	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)
	writeDoc(t, filepath.Join(dir, TemplatesDir, "chore.yaml"), `
type: chore
states:
  - {name: open, category: open}
  - {name: closed, category: done}
transitions:
  - {from: open, to: closed}
`)

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("registry was not reloaded")
	}
	assert.True(t, r.IsKnownType("chore"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchRequiresProjectDir(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Error(t, r.Watch(context.Background(), nil))
}
