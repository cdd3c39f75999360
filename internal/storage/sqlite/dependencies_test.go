package sqlite

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// Scenario: A depends on B; only B is ready until B closes.
func TestReadyFollowsBlockers(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	a := mustCreate(t, store, "A", "task")
	b := mustCreate(t, store, "B", "task")
	added, err := store.AddDependency(ctx, a.ID, b.ID, "tester")
	if err != nil || !added {
		t.Fatalf("AddDependency = %v, %v", added, err)
	}

	before := readyIDs(t, store)
	if !reflect.DeepEqual(before, []string{b.ID}) {
		t.Fatalf("ready before close = %v, want [%s]", before, b.ID)
	}

	if _, err := store.CloseIssue(ctx, b.ID, storage.CloseOptions{}, "tester"); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}
	after := readyIDs(t, store)
	if !reflect.DeepEqual(after, []string{a.ID}) {
		t.Fatalf("ready after close = %v, want [%s]", after, a.ID)
	}
	if ok, _ := store.IsReady(ctx, a.ID); !ok {
		t.Error("IsReady(A) should be true once B is closed")
	}
}

func TestAddDependencyIdempotentAndValidated(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	a := mustCreate(t, store, "A", "task")
	b := mustCreate(t, store, "B", "task")

	if _, err := store.AddDependency(ctx, a.ID, b.ID, "tester"); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	added, err := store.AddDependency(ctx, a.ID, b.ID, "tester")
	if err != nil || added {
		t.Fatalf("duplicate AddDependency = %v, %v; want false, nil", added, err)
	}
	if _, err := store.AddDependency(ctx, a.ID, a.ID, "tester"); !errors.Is(err, storage.ErrValidation) {
		t.Errorf("self dependency: expected ErrValidation, got %v", err)
	}
	if _, err := store.AddDependency(ctx, a.ID, "trl-000000", "tester"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing target: expected ErrNotFound, got %v", err)
	}

	removed, err := store.RemoveDependency(ctx, a.ID, b.ID, "tester")
	if err != nil || !removed {
		t.Fatalf("RemoveDependency = %v, %v", removed, err)
	}
	removed, err = store.RemoveDependency(ctx, a.ID, b.ID, "tester")
	if err != nil || removed {
		t.Fatalf("second RemoveDependency = %v, %v; want false, nil", removed, err)
	}

	events, _ := store.GetIssueEvents(ctx, a.ID, 0)
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, string(ev.EventType))
	}
	if strings.Join(kinds, ",") != "dependency_removed,dependency_added,created" {
		t.Errorf("events = %v", kinds)
	}
}

// Scenario: C -> D -> E; E -> C would close the loop.
func TestAddDependencyRejectsCycle(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	c := mustCreate(t, store, "C", "task")
	d := mustCreate(t, store, "D", "task")
	e := mustCreate(t, store, "E", "task")
	for _, edge := range [][2]string{{c.ID, d.ID}, {d.ID, e.ID}} {
		if _, err := store.AddDependency(ctx, edge[0], edge[1], "tester"); err != nil {
			t.Fatalf("AddDependency(%s, %s) failed: %v", edge[0], edge[1], err)
		}
	}

	_, err := store.AddDependency(ctx, e.ID, c.ID, "tester")
	if !errors.Is(err, storage.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	var ce *storage.CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	want := []string{e.ID, c.ID, d.ID, e.ID}
	if !reflect.DeepEqual(ce.Path, want) {
		t.Errorf("cycle path = %v, want %v", ce.Path, want)
	}
	if got := mustGet(t, store, e.ID); len(got.BlockedBy) != 0 {
		t.Errorf("rejected edge was written: %v", got.BlockedBy)
	}
}

func TestGetBlockedAndCriticalPath(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	a := mustCreate(t, store, "A", "task")
	b := mustCreate(t, store, "B", "task")
	c := mustCreate(t, store, "C", "task")
	done := mustCreate(t, store, "Done", "task")
	solo := mustCreate(t, store, "Solo", "task")
	for _, edge := range [][2]string{{a.ID, b.ID}, {b.ID, c.ID}, {a.ID, done.ID}} {
		if _, err := store.AddDependency(ctx, edge[0], edge[1], "tester"); err != nil {
			t.Fatalf("AddDependency failed: %v", err)
		}
	}
	if _, err := store.CloseIssue(ctx, done.ID, storage.CloseOptions{}, "tester"); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}

	blocked, err := store.GetBlocked(ctx, types.WorkFilter{})
	if err != nil {
		t.Fatalf("GetBlocked failed: %v", err)
	}
	if len(blocked) != 2 {
		t.Fatalf("blocked = %d issues, want 2", len(blocked))
	}
	for _, bi := range blocked {
		switch bi.ID {
		case a.ID:
			if bi.BlockedByCount != 2 || !reflect.DeepEqual(bi.OpenBlockers, []string{b.ID}) {
				t.Errorf("A: count=%d open=%v", bi.BlockedByCount, bi.OpenBlockers)
			}
		case b.ID:
			if !reflect.DeepEqual(bi.OpenBlockers, []string{c.ID}) {
				t.Errorf("B: open=%v", bi.OpenBlockers)
			}
		default:
			t.Errorf("unexpected blocked issue %s", bi.ID)
		}
	}

	path, err := store.GetCriticalPath(ctx)
	if err != nil {
		t.Fatalf("GetCriticalPath failed: %v", err)
	}
	if got := ids(path); !reflect.DeepEqual(got, []string{c.ID, b.ID, a.ID}) {
		t.Errorf("critical path = %v, want [C B A]", got)
	}
	_ = solo
}

func TestGetDependencyTree(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	a := mustCreate(t, store, "A", "task")
	b := mustCreate(t, store, "B", "task")
	c := mustCreate(t, store, "C", "task")
	for _, edge := range [][2]string{{a.ID, b.ID}, {b.ID, c.ID}} {
		if _, err := store.AddDependency(ctx, edge[0], edge[1], "tester"); err != nil {
			t.Fatalf("AddDependency failed: %v", err)
		}
	}

	tree, err := store.GetDependencyTree(ctx, a.ID, 0, false)
	if err != nil {
		t.Fatalf("GetDependencyTree failed: %v", err)
	}
	if len(tree) != 3 || tree[0].ID != a.ID || tree[2].ID != c.ID || tree[2].Depth != 2 || tree[2].ParentID != b.ID {
		t.Fatalf("tree = %+v", tree)
	}

	shallow, _ := store.GetDependencyTree(ctx, a.ID, 1, false)
	if len(shallow) != 2 || !shallow[1].Truncated {
		t.Errorf("depth-1 tree should stop at B and mark it truncated: %+v", shallow)
	}

	reverse, _ := store.GetDependencyTree(ctx, c.ID, 0, true)
	if len(reverse) != 3 || reverse[2].ID != a.ID {
		t.Errorf("reverse tree = %+v", reverse)
	}
}

func TestLabelsAndComments(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	issue := mustCreate(t, store, "Labelled", "task")
	if added, err := store.AddLabel(ctx, issue.ID, "ui", "t"); err != nil || !added {
		t.Fatalf("AddLabel = %v, %v", added, err)
	}
	if added, _ := store.AddLabel(ctx, issue.ID, "ui", "t"); added {
		t.Error("duplicate label reported as added")
	}
	if _, err := store.AddLabel(ctx, issue.ID, "epic", "t"); !errors.Is(err, storage.ErrValidation) {
		t.Errorf("type-name label: expected ErrValidation, got %v", err)
	}
	if removed, _ := store.RemoveLabel(ctx, issue.ID, "ui", "t"); !removed {
		t.Error("RemoveLabel should report removal")
	}
	if removed, _ := store.RemoveLabel(ctx, issue.ID, "ui", "t"); removed {
		t.Error("second RemoveLabel should be a no-op")
	}

	if _, err := store.AddComment(ctx, issue.ID, "alice", "first"); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if _, err := store.AddComment(ctx, issue.ID, "bob", "second"); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if _, err := store.AddComment(ctx, issue.ID, "bob", " "); !errors.Is(err, storage.ErrValidation) {
		t.Errorf("empty comment: expected ErrValidation, got %v", err)
	}
	comments, err := store.GetComments(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetComments failed: %v", err)
	}
	if len(comments) != 2 || comments[0].Text != "first" || comments[1].Author != "bob" {
		t.Errorf("comments = %+v", comments)
	}
}
