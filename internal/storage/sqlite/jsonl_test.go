package sqlite

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

func seedForExport(t *testing.T, store *SQLiteStorage) (parent, child *types.Issue) {
	t.Helper()
	ctx := context.Background()
	parent = mustCreate(t, store, "Parent epic", "epic")
	var err error
	child, err = store.CreateIssue(ctx, &types.IssueCreate{
		Title:    "Child task",
		ParentID: parent.ID,
		Labels:   []string{"backend"},
		Fields:   map[string]any{"estimate": 3},
	}, "t")
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	blocker := mustCreate(t, store, "Blocker", "task")
	if _, err := store.AddDependency(ctx, child.ID, blocker.ID, "t"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddComment(ctx, child.ID, "alice", "looks good"); err != nil {
		t.Fatal(err)
	}
	return parent, child
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, cleanupSrc := setupTestDB(t)
	defer cleanupSrc()
	_, child := seedForExport(t, src)

	var buf bytes.Buffer
	exp, err := src.ExportJSONL(ctx, &buf)
	if err != nil {
		t.Fatalf("ExportJSONL failed: %v", err)
	}
	if exp.Counts[storage.KindIssue] != 3 || exp.Counts[storage.KindDependency] != 1 ||
		exp.Counts[storage.KindLabel] != 1 || exp.Counts[storage.KindComment] != 1 {
		t.Fatalf("export counts = %v", exp.Counts)
	}
	lines := strings.Count(buf.String(), "\n")
	total := 0
	for _, n := range exp.Counts {
		total += n
	}
	if lines != total {
		t.Errorf("export wrote %d lines for %d records", lines, total)
	}

	dst, cleanupDst := setupTestDB(t)
	defer cleanupDst()
	res, err := dst.ImportJSONL(ctx, bytes.NewReader(buf.Bytes()), storage.ImportOptions{})
	if err != nil {
		t.Fatalf("ImportJSONL failed: %v", err)
	}
	if len(res.Failed) != 0 {
		t.Fatalf("import failures: %+v", res.Failed)
	}
	if res.Counts[storage.KindEvent] != exp.Counts[storage.KindEvent] {
		t.Errorf("imported %d events, exported %d", res.Counts[storage.KindEvent], exp.Counts[storage.KindEvent])
	}

	want := mustGet(t, src, child.ID)
	got := mustGet(t, dst, child.ID)
	if got.Title != want.Title || got.ParentID != want.ParentID || got.Status != want.Status {
		t.Errorf("child differs after import: %+v vs %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created_at %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if len(got.Labels) != 1 || got.Labels[0] != "backend" || len(got.BlockedBy) != 1 {
		t.Errorf("labels=%v blocked_by=%v", got.Labels, got.BlockedBy)
	}
	if v, ok := got.Fields["estimate"].(float64); !ok || v != 3 {
		t.Errorf("fields = %v", got.Fields)
	}
	srcEvents, _ := src.GetIssueEvents(ctx, child.ID, 0)
	dstEvents, _ := dst.GetIssueEvents(ctx, child.ID, 0)
	if len(srcEvents) != len(dstEvents) || dstEvents[0].ID != srcEvents[0].ID {
		t.Errorf("event history not preserved: %d vs %d", len(dstEvents), len(srcEvents))
	}

	// Importing the same stream again without merge fails every id-keyed record.
	again, err := dst.ImportJSONL(ctx, bytes.NewReader(buf.Bytes()), storage.ImportOptions{})
	if err != nil {
		t.Fatalf("second ImportJSONL failed: %v", err)
	}
	if again.Counts[storage.KindIssue] != 0 || len(again.Failed) == 0 {
		t.Errorf("re-import without merge: counts=%v failed=%d", again.Counts, len(again.Failed))
	}

	merged, err := dst.ImportJSONL(ctx, bytes.NewReader(buf.Bytes()), storage.ImportOptions{Merge: true})
	if err != nil {
		t.Fatalf("merge ImportJSONL failed: %v", err)
	}
	if len(merged.Failed) != 0 {
		t.Errorf("merge import should skip existing records, failed: %+v", merged.Failed)
	}
	if len(merged.Skipped) < 3 {
		t.Errorf("merge skipped %d records, want at least the 3 issues", len(merged.Skipped))
	}
}

func TestImportMergeIntoPopulatedStore(t *testing.T) {
	ctx := context.Background()
	local, cleanupLocal := setupTestDB(t)
	defer cleanupLocal()
	mine := mustCreate(t, local, "Local work", "task")
	if _, err := local.AddComment(ctx, mine.ID, "alice", "local note"); err != nil {
		t.Fatal(err)
	}

	remote, cleanupRemote := setupTestDB(t)
	defer cleanupRemote()
	theirs := mustCreate(t, remote, "Remote work", "task")
	if _, err := remote.AddComment(ctx, theirs.ID, "bob", "remote note"); err != nil {
		t.Fatal(err)
	}
	if _, err := remote.UpdateIssue(ctx, theirs.ID, types.IssueUpdate{Priority: ptr(0)}, "bob"); err != nil {
		t.Fatal(err)
	}
	if res, err := remote.UndoLast(ctx, theirs.ID, "bob"); err != nil || !res.Undone {
		t.Fatalf("UndoLast = %+v, %v", res, err)
	}

	var buf bytes.Buffer
	exp, err := remote.ExportJSONL(ctx, &buf)
	if err != nil {
		t.Fatalf("ExportJSONL failed: %v", err)
	}
	res, err := local.ImportJSONL(ctx, bytes.NewReader(buf.Bytes()), storage.ImportOptions{Merge: true})
	if err != nil {
		t.Fatalf("ImportJSONL failed: %v", err)
	}
	if len(res.Failed) != 0 || len(res.Skipped) != 0 {
		t.Fatalf("failed=%+v skipped=%v", res.Failed, res.Skipped)
	}
	if res.Counts[storage.KindComment] != 1 || res.Counts[storage.KindEvent] != exp.Counts[storage.KindEvent] {
		t.Errorf("counts = %v, exported %v", res.Counts, exp.Counts)
	}

	comments, _ := local.GetComments(ctx, theirs.ID)
	if len(comments) != 1 || comments[0].Text != "remote note" {
		t.Errorf("imported comments = %+v", comments)
	}
	if own, _ := local.GetComments(ctx, mine.ID); len(own) != 1 || own[0].Text != "local note" {
		t.Errorf("local comments = %+v", own)
	}

	events, _ := local.GetIssueEvents(ctx, theirs.ID, 0)
	var priorityID int64
	var undo *types.Event
	for _, ev := range events {
		switch ev.EventType {
		case types.EventPriorityChanged:
			priorityID = ev.ID
		case types.EventUndone:
			undo = ev
		}
	}
	if undo == nil || undo.UndoesEventID == nil || *undo.UndoesEventID != priorityID {
		t.Errorf("undo marker not remapped: priority event %d, marker %+v", priorityID, undo)
	}

	// a second merge finds everything already present
	again, err := local.ImportJSONL(ctx, bytes.NewReader(buf.Bytes()), storage.ImportOptions{Merge: true})
	if err != nil {
		t.Fatalf("second ImportJSONL failed: %v", err)
	}
	if len(again.Failed) != 0 || len(again.Succeeded) != 0 {
		t.Errorf("second merge: succeeded=%v failed=%+v", again.Succeeded, again.Failed)
	}
	if after, _ := local.GetIssueEvents(ctx, theirs.ID, 0); len(after) != len(events) {
		t.Errorf("second merge duplicated events: %d, want %d", len(after), len(events))
	}
}

func TestImportOrphanHandling(t *testing.T) {
	const stream = `{"kind":"issue","data":{"id":"trl-aaaaaa","title":"Orphan","type":"task","status":"open","priority":2,"parent_id":"trl-ffffff","created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z"}}
{"kind":"issue","data":{"id":"trl-bbbbbb","title":"Fine","type":"task","status":"closed","priority":1,"created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-02T00:00:00Z"}}
`
	tests := []struct {
		mode       storage.OrphanHandling
		wantOK     int
		wantFailed int
		wantSkip   int
	}{
		{storage.OrphanAllow, 2, 0, 0},
		{storage.OrphanSkip, 1, 0, 1},
		{storage.OrphanStrict, 1, 1, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			ctx := context.Background()
			store, cleanup := setupTestDB(t)
			defer cleanup()

			res, err := store.ImportJSONL(ctx, strings.NewReader(stream), storage.ImportOptions{OrphanHandling: tt.mode})
			if err != nil {
				t.Fatalf("ImportJSONL failed: %v", err)
			}
			if res.Counts[storage.KindIssue] != tt.wantOK || len(res.Failed) != tt.wantFailed || len(res.Skipped) != tt.wantSkip {
				t.Fatalf("counts=%v failed=%v skipped=%v", res.Counts, res.Failed, res.Skipped)
			}

			fine := mustGet(t, store, "trl-bbbbbb")
			if fine.StatusCategory != types.CategoryDone || fine.ClosedAt == nil {
				t.Errorf("closed import should carry closed_at, got %+v", fine)
			}
			if tt.mode == storage.OrphanAllow {
				if orphan := mustGet(t, store, "trl-aaaaaa"); orphan.ParentID != "" {
					t.Errorf("allow mode should drop the dangling parent, got %q", orphan.ParentID)
				}
			}
		})
	}
}

func TestImportRejectsBadLines(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupTestDB(t)
	defer cleanup()

	stream := strings.Join([]string{
		`not json`,
		`{"kind":"gizmo","data":{}}`,
		`{"kind":"issue","data":{"id":"trl-cccccc","title":"","type":"task"}}`,
		`{"kind":"dependency","data":{"issue_id":"trl-cccccc","depends_on_id":"trl-dddddd"}}`,
		``,
	}, "\n")
	res, err := store.ImportJSONL(ctx, strings.NewReader(stream), storage.ImportOptions{})
	if err != nil {
		t.Fatalf("ImportJSONL failed: %v", err)
	}
	if len(res.Failed) != 4 {
		t.Fatalf("failed = %+v, want 4 entries", res.Failed)
	}
	if _, err := store.GetIssue(ctx, "trl-cccccc"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("invalid issue was imported: %v", err)
	}
}
