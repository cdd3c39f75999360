package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// manualClock only moves when advanced.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Microsecond)
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestArchiveClosed(t *testing.T) {
	ctx := context.Background()
	clock := &manualClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store, cleanup := setupTestDB(t, WithClock(clock.Now))
	defer cleanup()

	old := mustCreate(t, store, "Old work", "task")
	open := mustCreate(t, store, "Still open", "task")
	if _, err := store.CloseIssue(ctx, old.ID, storage.CloseOptions{}, "t"); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}
	clock.Advance(10 * 24 * time.Hour)
	recent := mustCreate(t, store, "Recent work", "task")
	if _, err := store.CloseIssue(ctx, recent.ID, storage.CloseOptions{}, "t"); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}

	if _, err := store.ArchiveClosed(ctx, -1, "t"); !errors.Is(err, storage.ErrValidation) {
		t.Errorf("negative days: expected ErrValidation, got %v", err)
	}

	archived, err := store.ArchiveClosed(ctx, 7, "t")
	if err != nil {
		t.Fatalf("ArchiveClosed failed: %v", err)
	}
	if len(archived) != 1 || archived[0] != old.ID {
		t.Fatalf("archived = %v, want [%s]", archived, old.ID)
	}

	listed, _ := store.ListIssues(ctx, types.IssueFilter{})
	if got := ids(listed); len(got) != 2 || got[0] == old.ID || got[1] == old.ID {
		t.Errorf("default list should hide archived issues, got %v", got)
	}
	all, _ := store.ListIssues(ctx, types.IssueFilter{IncludeArchived: true})
	if len(all) != 3 {
		t.Errorf("IncludeArchived list = %d issues, want 3", len(all))
	}
	if got := mustGet(t, store, old.ID); !got.IsArchived() {
		t.Error("archived issue should still be fetchable and marked archived")
	}

	again, err := store.ArchiveClosed(ctx, 7, "t")
	if err != nil || len(again) != 0 {
		t.Errorf("second archive = %v, %v; want nothing", again, err)
	}

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}
	if stats.TotalIssues != 2 || stats.ArchivedIssues != 1 || stats.ClosedIssues != 1 || stats.OpenIssues != 1 {
		t.Errorf("stats = %+v", stats)
	}
	_ = open
}

func TestReopenArchivedIssue(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	issue := mustCreate(t, store, "Came back", "task")
	if _, err := store.CloseIssue(ctx, issue.ID, storage.CloseOptions{}, "t"); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}
	if archived, err := store.ArchiveClosed(ctx, 0, "t"); err != nil || len(archived) != 1 {
		t.Fatalf("ArchiveClosed = %v, %v", archived, err)
	}

	reopened, err := store.ReopenIssue(ctx, issue.ID, "t")
	if err != nil {
		t.Fatalf("ReopenIssue failed: %v", err)
	}
	if reopened.IsArchived() || reopened.ClosedAt != nil {
		t.Errorf("reopened issue still closed or archived: %+v", reopened)
	}
	if got := readyIDs(t, store); len(got) != 1 || got[0] != issue.ID {
		t.Errorf("ready = %v, want [%s]", got, issue.ID)
	}
	listed, _ := store.ListIssues(ctx, types.IssueFilter{})
	if len(listed) != 1 {
		t.Errorf("list = %d issues, want 1", len(listed))
	}
	claimed, err := store.ClaimNext(ctx, "alice", types.WorkFilter{}, "t")
	if err != nil || claimed == nil || claimed.ID != issue.ID {
		t.Errorf("ClaimNext = %+v, %v", claimed, err)
	}
}

func TestCompactEvents(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	gone := mustCreate(t, store, "Archived", "task")
	live := mustCreate(t, store, "Live", "task")
	for _, id := range []string{gone.ID, live.ID} {
		for _, title := range []string{"one", "two", "three"} {
			if _, err := store.UpdateIssue(ctx, id, types.IssueUpdate{Title: ptr(title)}, "t"); err != nil {
				t.Fatal(err)
			}
		}
	}
	if _, err := store.CloseIssue(ctx, gone.ID, storage.CloseOptions{}, "t"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ArchiveClosed(ctx, 0, "t"); err != nil {
		t.Fatal(err)
	}

	if _, err := store.CompactEvents(ctx, -1); !errors.Is(err, storage.ErrValidation) {
		t.Errorf("negative keep: expected ErrValidation, got %v", err)
	}

	// created + 3 titles + status + archived = 6 events on the archived issue.
	deleted, err := store.CompactEvents(ctx, 2)
	if err != nil {
		t.Fatalf("CompactEvents failed: %v", err)
	}
	if deleted != 4 {
		t.Errorf("deleted = %d, want 4", deleted)
	}
	kept, _ := store.GetIssueEvents(ctx, gone.ID, 0)
	if len(kept) != 2 || kept[0].EventType != types.EventArchived {
		t.Errorf("kept events = %+v", kept)
	}
	liveEvents, _ := store.GetIssueEvents(ctx, live.ID, 0)
	if len(liveEvents) != 4 {
		t.Errorf("live issue lost history: %d events", len(liveEvents))
	}
}

func TestGetEventsSince(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	a := mustCreate(t, store, "A", "task")
	b := mustCreate(t, store, "B", "task")
	if _, err := store.UpdateIssue(ctx, a.ID, types.IssueUpdate{Priority: ptr(1)}, "t"); err != nil {
		t.Fatal(err)
	}

	all, err := store.GetEventsSince(ctx, "", 0)
	if err != nil {
		t.Fatalf("GetEventsSince failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all events = %d, want 3", len(all))
	}
	if all[0].IssueID != a.ID || all[1].IssueID != b.ID || all[2].EventType != types.EventPriorityChanged {
		t.Errorf("events out of order: %+v", all)
	}

	after := all[0].CreatedAt.Format(time.RFC3339Nano)
	newer, err := store.GetEventsSince(ctx, after, 0)
	if err != nil || len(newer) != 2 {
		t.Fatalf("events after first = %d, %v; want 2", len(newer), err)
	}
	limited, _ := store.GetEventsSince(ctx, after, 1)
	if len(limited) != 1 || limited[0].IssueID != b.ID {
		t.Errorf("limited = %+v", limited)
	}

	// tickClock starts on 2025-01-01 09:00 UTC
	for _, since := range []string{"2024-12-31", "2024-12-31T00:00:00", "2024-12-31 23:59:59.5", "2025-01-01T08:59"} {
		got, err := store.GetEventsSince(ctx, since, 0)
		if err != nil || len(got) != 3 {
			t.Errorf("since %q = %d events, %v; want 3", since, len(got), err)
		}
	}
	for _, since := range []string{"2025-01-02", "2025-01-01T10:00:00"} {
		if got, _ := store.GetEventsSince(ctx, since, 0); len(got) != 0 {
			t.Errorf("since %q = %d events, want 0", since, len(got))
		}
	}

	junk, err := store.GetEventsSince(ctx, "yesterday-ish", 10)
	if err != nil {
		t.Fatalf("malformed since should not fail: %v", err)
	}
	if len(junk) != 0 {
		t.Errorf("malformed since returned %d events", len(junk))
	}
	if _, err := store.GetIssueEvents(ctx, "trl-000000", 0); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
