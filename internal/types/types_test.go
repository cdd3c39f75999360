package types

import (
	"strings"
	"testing"
	"time"
)

func TestIssueValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		issue   Issue
		wantErr string
	}{
		{
			name:  "valid open issue",
			issue: Issue{Title: "ok", Type: "task", Priority: 2, StatusCategory: CategoryOpen},
		},
		{
			name:    "missing title",
			issue:   Issue{Title: "   ", Type: "task"},
			wantErr: "title is required",
		},
		{
			name:    "priority too high",
			issue:   Issue{Title: "x", Type: "task", Priority: 5},
			wantErr: "priority must be between 0 and 4",
		},
		{
			name:    "negative priority",
			issue:   Issue{Title: "x", Type: "task", Priority: -1},
			wantErr: "priority must be between 0 and 4",
		},
		{
			name:    "done without closed_at",
			issue:   Issue{Title: "x", Type: "task", StatusCategory: CategoryDone},
			wantErr: "closed_at",
		},
		{
			name:    "open with closed_at",
			issue:   Issue{Title: "x", Type: "task", StatusCategory: CategoryOpen, ClosedAt: &now},
			wantErr: "non-done issues",
		},
		{
			name:    "title too long",
			issue:   Issue{Title: strings.Repeat("a", MaxTitleLength+1), Type: "task"},
			wantErr: "500 characters",
		},
		{
			name:    "self parent",
			issue:   Issue{ID: "tr-abc123", Title: "x", Type: "task", ParentID: "tr-abc123"},
			wantErr: "own parent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.issue.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEventTypeReversible(t *testing.T) {
	for _, et := range ReversibleEventTypes() {
		if !et.IsReversible() {
			t.Errorf("%s listed as reversible but IsReversible is false", et)
		}
	}
	for _, et := range []EventType{EventCreated, EventCommented, EventLabelAdded, EventFieldChanged, EventUndone, EventArchived} {
		if et.IsReversible() {
			t.Errorf("%s should not be reversible", et)
		}
	}
}

func TestWorkFilterMatches(t *testing.T) {
	lo, hi := 1, 2
	f := WorkFilter{Type: "bug", PriorityMin: &lo, PriorityMax: &hi}
	if !f.Matches(&Issue{Type: "bug", Priority: 1}) {
		t.Error("expected bug P1 to match")
	}
	if f.Matches(&Issue{Type: "task", Priority: 1}) {
		t.Error("type filter ignored")
	}
	if f.Matches(&Issue{Type: "bug", Priority: 0}) {
		t.Error("priority_min ignored")
	}
	if f.Matches(&Issue{Type: "bug", Priority: 3}) {
		t.Error("priority_max ignored")
	}
}

func TestIssueUpdateIsEmpty(t *testing.T) {
	if !(IssueUpdate{}).IsEmpty() {
		t.Fatal("zero update should be empty")
	}
	title := "x"
	if (IssueUpdate{Title: &title}).IsEmpty() {
		t.Fatal("title update should not be empty")
	}
	if (IssueUpdate{Fields: map[string]any{"a": 1}}).IsEmpty() {
		t.Fatal("fields update should not be empty")
	}
}
