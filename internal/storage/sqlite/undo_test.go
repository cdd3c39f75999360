package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// Scenario: update title, undo restores it exactly once.
func TestUndoLastRestoresTitle(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	issue := mustCreate(t, store, "Old title", "task")
	if _, err := store.UpdateIssue(ctx, issue.ID, types.IssueUpdate{Title: ptr("New title")}, "tester"); err != nil {
		t.Fatalf("UpdateIssue failed: %v", err)
	}

	res, err := store.UndoLast(ctx, issue.ID, "tester")
	if err != nil {
		t.Fatalf("UndoLast failed: %v", err)
	}
	if !res.Undone || res.Field != "title" || res.From != "New title" || res.To != "Old title" {
		t.Fatalf("unexpected undo result: %+v", res)
	}
	if got := mustGet(t, store, issue.ID); got.Title != "Old title" {
		t.Fatalf("title = %q after undo", got.Title)
	}

	events, _ := store.GetIssueEvents(ctx, issue.ID, 1)
	if len(events) != 1 || events[0].EventType != types.EventUndone {
		t.Fatalf("newest event should be the undo marker, got %+v", events)
	}
	if events[0].UndoesEventID == nil || *events[0].UndoesEventID != res.EventID {
		t.Errorf("undo marker points at %v, want %d", events[0].UndoesEventID, res.EventID)
	}

	again, err := store.UndoLast(ctx, issue.ID, "tester")
	if err != nil {
		t.Fatalf("second UndoLast failed: %v", err)
	}
	if again.Undone {
		t.Fatalf("second undo should find nothing, got %+v", again)
	}
	if got := mustGet(t, store, issue.ID); got.Title != "Old title" {
		t.Errorf("second undo re-applied a change: title = %q", got.Title)
	}
}

func TestUndoLastStepsBack(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	issue := mustCreate(t, store, "A", "task")
	if _, err := store.UpdateIssue(ctx, issue.ID, types.IssueUpdate{Title: ptr("B")}, "t"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpdateIssue(ctx, issue.ID, types.IssueUpdate{Priority: ptr(0)}, "t"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddComment(ctx, issue.ID, "t", "not reversible"); err != nil {
		t.Fatal(err)
	}

	res, err := store.UndoLast(ctx, issue.ID, "t")
	if err != nil || res.Field != "priority" {
		t.Fatalf("first undo = %+v, %v; want priority", res, err)
	}
	if got := mustGet(t, store, issue.ID); got.Priority != 2 || got.Title != "B" {
		t.Fatalf("after first undo: priority=%d title=%q", got.Priority, got.Title)
	}

	res, err = store.UndoLast(ctx, issue.ID, "t")
	if err != nil || res.Field != "title" {
		t.Fatalf("second undo = %+v, %v; want title", res, err)
	}
	if got := mustGet(t, store, issue.ID); got.Title != "A" {
		t.Fatalf("after second undo: title=%q", got.Title)
	}

	res, _ = store.UndoLast(ctx, issue.ID, "t")
	if res.Undone || res.Reason == "" {
		t.Errorf("third undo should report nothing to undo, got %+v", res)
	}
}

func TestUndoLastStatusAndClose(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	issue := mustCreate(t, store, "Closing", "task")
	if _, err := store.CloseIssue(ctx, issue.ID, storage.CloseOptions{}, "t"); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}
	res, err := store.UndoLast(ctx, issue.ID, "t")
	if err != nil {
		t.Fatalf("UndoLast failed: %v", err)
	}
	if res.Field != "status" || res.From != "closed" || res.To != "open" {
		t.Fatalf("unexpected undo result: %+v", res)
	}
	got := mustGet(t, store, issue.ID)
	if got.Status != "open" || got.ClosedAt != nil {
		t.Errorf("status=%q closed_at=%v after undoing close", got.Status, got.ClosedAt)
	}
}

func TestUndoLastClaimAndRelease(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	issue := mustCreate(t, store, "Claimable", "task")
	if _, err := store.ClaimIssue(ctx, issue.ID, "alice", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ReleaseClaim(ctx, issue.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	res, err := store.UndoLast(ctx, issue.ID, "alice")
	if err != nil || res.EventType != types.EventReleased {
		t.Fatalf("undo release = %+v, %v", res, err)
	}
	if got := mustGet(t, store, issue.ID); got.Assignee != "alice" {
		t.Fatalf("assignee = %q after undoing release", got.Assignee)
	}

	res, err = store.UndoLast(ctx, issue.ID, "alice")
	if err != nil || res.EventType != types.EventClaimed {
		t.Fatalf("undo claim = %+v, %v", res, err)
	}
	if got := mustGet(t, store, issue.ID); got.Assignee != "" {
		t.Fatalf("assignee = %q after undoing claim", got.Assignee)
	}
}

func TestUndoLastDependency(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	a := mustCreate(t, store, "A", "task")
	b := mustCreate(t, store, "B", "task")
	if _, err := store.AddDependency(ctx, a.ID, b.ID, "t"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RemoveDependency(ctx, a.ID, b.ID, "t"); err != nil {
		t.Fatal(err)
	}

	if res, err := store.UndoLast(ctx, a.ID, "t"); err != nil || res.EventType != types.EventDependencyRemoved {
		t.Fatalf("undo removal = %+v, %v", res, err)
	}
	if got := mustGet(t, store, a.ID); len(got.BlockedBy) != 1 || got.BlockedBy[0] != b.ID {
		t.Fatalf("edge not restored: %v", got.BlockedBy)
	}
	if res, err := store.UndoLast(ctx, a.ID, "t"); err != nil || res.EventType != types.EventDependencyAdded {
		t.Fatalf("undo add = %+v, %v", res, err)
	}
	if got := mustGet(t, store, a.ID); len(got.BlockedBy) != 0 {
		t.Fatalf("edge not removed: %v", got.BlockedBy)
	}
}

func TestUndoLastRespectsHardGate(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	bug := mustCreate(t, store, "Crash", "bug")
	for _, step := range []types.IssueUpdate{
		{Status: ptr("confirmed")},
		{Status: ptr("fixing")},
		{Status: ptr("verifying"), Fields: map[string]any{"root_cause": "nil map"}},
	} {
		if _, err := store.UpdateIssue(ctx, bug.ID, step, "t"); err != nil {
			t.Fatalf("UpdateIssue(%s) failed: %v", *step.Status, err)
		}
	}

	// A history entry claiming the bug left "closed" for "verifying". Undoing
	// it would cross the verifying -> closed gate without fix_verification.
	err := store.withTx(ctx, func(tx *sql.Tx) error {
		_, err := store.recordEvent(ctx, tx, eventRecord{
			issueID: bug.ID, eventType: types.EventStatusChanged, actor: "t",
			oldValue: ptr("closed"), newValue: ptr("verifying"),
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}

	_, err = store.UndoLast(ctx, bug.ID, "t")
	var te *storage.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if len(te.MissingFields) != 1 || te.MissingFields[0] != "fix_verification" {
		t.Errorf("missing fields = %v", te.MissingFields)
	}
	if got := mustGet(t, store, bug.ID); got.Status != "verifying" {
		t.Errorf("failed undo changed status to %q", got.Status)
	}
	events, _ := store.GetIssueEvents(ctx, bug.ID, 1)
	if events[0].EventType == types.EventUndone {
		t.Error("failed undo must not write a marker")
	}
}
