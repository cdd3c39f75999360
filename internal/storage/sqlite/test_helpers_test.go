package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/trellis-tracker/trellis/internal/types"
)

// tickClock returns a clock that advances one millisecond per call, so
// creation order is deterministic within a test.
func tickClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

// setupTestDB opens a fresh store on a temp file with the default packs.
func setupTestDB(t *testing.T, opts ...Option) (*SQLiteStorage, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "trellis.db")
	store, err := New(context.Background(), dbPath, "trl", append([]Option{WithClock(tickClock())}, opts...)...)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	}
	return store, cleanup
}

// mustCreate creates an issue or fails the test.
func mustCreate(t *testing.T, store *SQLiteStorage, title, typ string) *types.Issue {
	t.Helper()
	issue, err := store.CreateIssue(context.Background(), &types.IssueCreate{Title: title, Type: typ}, "tester")
	if err != nil {
		t.Fatalf("CreateIssue(%q, %q) failed: %v", title, typ, err)
	}
	return issue
}

func mustGet(t *testing.T, store *SQLiteStorage, id string) *types.Issue {
	t.Helper()
	issue, err := store.GetIssue(context.Background(), id)
	if err != nil {
		t.Fatalf("GetIssue(%s) failed: %v", id, err)
	}
	return issue
}

func readyIDs(t *testing.T, store *SQLiteStorage) []string {
	t.Helper()
	ready, err := store.GetReady(context.Background(), types.WorkFilter{})
	if err != nil {
		t.Fatalf("GetReady failed: %v", err)
	}
	ids := make([]string, len(ready))
	for i, is := range ready {
		ids[i] = is.ID
	}
	return ids
}

func ptr[T any](v T) *T {
	return &v
}
