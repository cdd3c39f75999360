// Package types defines core data structures for the trellis issue tracker.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Category is the coarse phase a workflow state belongs to.
type Category string

// Status categories shared by every issue type.
const (
	CategoryOpen Category = "open"
	CategoryWIP  Category = "wip"
	CategoryDone Category = "done"
)

// IsValid reports whether c is one of open, wip or done.
func (c Category) IsValid() bool {
	switch c {
	case CategoryOpen, CategoryWIP, CategoryDone:
		return true
	}
	return false
}

// Priority bounds. 0 is the most urgent.
const (
	MinPriority     = 0
	MaxPriority     = 4
	DefaultPriority = 2
)

// MaxTitleLength mirrors the CHECK constraint on issues.title.
const MaxTitleLength = 500

// Issue represents a trackable work item
type Issue struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Type           string         `json:"type"`
	Status         string         `json:"status"`
	StatusCategory Category       `json:"status_category"`
	Priority       int            `json:"priority"` // No omitempty: 0 is valid (P0/critical)
	ParentID       string         `json:"parent_id,omitempty"`
	Assignee       string         `json:"assignee,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
	ArchivedAt     *time.Time     `json:"archived_at,omitempty"`
	Description    string         `json:"description,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	Fields         map[string]any `json:"fields,omitempty"`
	Labels         []string       `json:"labels,omitempty"`

	// Derived on read; never stored on the issues row.
	Blocks    []string `json:"blocks,omitempty"`
	BlockedBy []string `json:"blocked_by,omitempty"`
	Children  []string `json:"children,omitempty"`
	IsReady   bool     `json:"is_ready"`

	// Warnings carries soft-gate advisories from the call that returned the issue.
	Warnings []string `json:"warnings,omitempty"`
}

// IsArchived returns true once ArchiveClosed has moved the issue out of default scope.
func (i *Issue) IsArchived() bool {
	return i.ArchivedAt != nil
}

// Validate checks the field-level invariants that do not need the template registry.
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(i.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(i.Title))
	}
	if err := ValidatePriority(i.Priority); err != nil {
		return err
	}
	if i.Type == "" {
		return fmt.Errorf("type is required")
	}
	if i.ParentID != "" && i.ParentID == i.ID {
		return fmt.Errorf("issue cannot be its own parent")
	}
	// closed_at should be set if and only if the status category is done
	if i.StatusCategory == CategoryDone && i.ClosedAt == nil {
		return fmt.Errorf("done issues must have closed_at timestamp")
	}
	if i.StatusCategory != CategoryDone && i.StatusCategory != "" && i.ClosedAt != nil {
		return fmt.Errorf("non-done issues cannot have closed_at timestamp")
	}
	return nil
}

// ValidatePriority rejects priorities outside [0,4].
func ValidatePriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return fmt.Errorf("priority must be between %d and %d (got %d)", MinPriority, MaxPriority, p)
	}
	return nil
}

// IssueCreate is the input of CreateIssue. Empty Type means "task", nil
// Priority means DefaultPriority and empty Status means the type's initial state.
type IssueCreate struct {
	Title       string         `json:"title"`
	Type        string         `json:"type,omitempty"`
	Status      string         `json:"status,omitempty"`
	Priority    *int           `json:"priority,omitempty"`
	ParentID    string         `json:"parent_id,omitempty"`
	Assignee    string         `json:"assignee,omitempty"`
	Description string         `json:"description,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Labels      []string       `json:"labels,omitempty"`
	DependsOn   []string       `json:"depends_on,omitempty"`
}

// IssueUpdate carries the mutable columns of an issue. Nil pointers are left untouched.
// Fields merges into the stored map; a nil value deletes that key.
type IssueUpdate struct {
	Title       *string
	Status      *string
	Priority    *int
	Assignee    *string
	Description *string
	Notes       *string
	ParentID    *string
	Fields      map[string]any
}

// IsEmpty reports whether the update would change nothing.
func (u IssueUpdate) IsEmpty() bool {
	return u.Title == nil && u.Status == nil && u.Priority == nil && u.Assignee == nil &&
		u.Description == nil && u.Notes == nil && u.ParentID == nil && len(u.Fields) == 0
}

// Dependency is a blocking edge: IssueID depends on (is blocked by) DependsOnID.
type Dependency struct {
	IssueID     string    `json:"issue_id"`
	DependsOnID string    `json:"depends_on_id"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// Label attaches a tag to an issue. Used by JSONL export/import.
type Label struct {
	IssueID string `json:"issue_id"`
	Label   string `json:"label"`
}

// Comment represents a comment on an issue
type Comment struct {
	ID        int64     `json:"id"`
	IssueID   string    `json:"issue_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is an append-only audit entry for a single changed value
type Event struct {
	ID            int64     `json:"id"`
	IssueID       string    `json:"issue_id"`
	EventType     EventType `json:"event_type"`
	Actor         string    `json:"actor"`
	OldValue      *string   `json:"old_value,omitempty"`
	NewValue      *string   `json:"new_value,omitempty"`
	Comment       string    `json:"comment,omitempty"`
	UndoesEventID *int64    `json:"undoes_event_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventType categorizes audit trail events
type EventType string

// Event type constants for audit trail
const (
	EventCreated             EventType = "created"
	EventStatusChanged       EventType = "status_changed"
	EventReopened            EventType = "reopened"
	EventTitleChanged        EventType = "title_changed"
	EventPriorityChanged     EventType = "priority_changed"
	EventAssigneeChanged     EventType = "assignee_changed"
	EventDescriptionChanged  EventType = "description_changed"
	EventNotesChanged        EventType = "notes_changed"
	EventParentChanged       EventType = "parent_changed"
	EventFieldChanged        EventType = "field_changed"
	EventClaimed             EventType = "claimed"
	EventReleased            EventType = "released"
	EventDependencyAdded     EventType = "dependency_added"
	EventDependencyRemoved   EventType = "dependency_removed"
	EventLabelAdded          EventType = "label_added"
	EventLabelRemoved        EventType = "label_removed"
	EventCommented           EventType = "commented"
	EventArchived            EventType = "archived"
	EventUndone              EventType = "undone"
)

// IsReversible reports whether UndoLast may revert an event of this type.
// Creation, comments, labels, field edits and undo markers are not reversible.
func (e EventType) IsReversible() bool {
	switch e {
	case EventStatusChanged, EventReopened, EventTitleChanged, EventPriorityChanged,
		EventAssigneeChanged, EventDescriptionChanged, EventNotesChanged,
		EventClaimed, EventReleased, EventDependencyAdded, EventDependencyRemoved:
		return true
	}
	return false
}

// ReversibleEventTypes lists every type accepted by IsReversible, for SQL IN clauses.
func ReversibleEventTypes() []EventType {
	return []EventType{
		EventStatusChanged, EventReopened, EventTitleChanged, EventPriorityChanged,
		EventAssigneeChanged, EventDescriptionChanged, EventNotesChanged,
		EventClaimed, EventReleased, EventDependencyAdded, EventDependencyRemoved,
	}
}

// UndoResult reports what UndoLast reverted. When Undone is false, Reason says why.
type UndoResult struct {
	Undone    bool      `json:"undone"`
	EventID   int64     `json:"event_id,omitempty"`
	EventType EventType `json:"event_type,omitempty"`
	Field     string    `json:"field,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// BlockedIssue extends Issue with its unresolved blockers
type BlockedIssue struct {
	Issue
	BlockedByCount int      `json:"blocked_by_count"`
	OpenBlockers   []string `json:"open_blockers"`
}

// TreeNode represents a node in a dependency tree
type TreeNode struct {
	Issue
	Depth     int    `json:"depth"`
	ParentID  string `json:"tree_parent_id"`
	Truncated bool   `json:"truncated"`
}

// Progress aggregates leaf completion below a plan node.
type Progress struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	InProgress int     `json:"in_progress"`
	Open       int     `json:"open"`
	Pct        float64 `json:"pct"`
}

// PlanNode is a transient, recomputed node of a plan or release tree.
type PlanNode struct {
	Issue     *Issue      `json:"issue"`
	Progress  *Progress   `json:"progress"` // nil for leaves
	Children  []*PlanNode `json:"children,omitempty"`
	Truncated bool        `json:"truncated,omitempty"` // children beyond the depth cap were not expanded
}

// Statistics provides aggregate metrics
type Statistics struct {
	TotalIssues      int            `json:"total_issues"`
	OpenIssues       int            `json:"open_issues"`
	InProgressIssues int            `json:"in_progress_issues"`
	ClosedIssues     int            `json:"closed_issues"`
	ArchivedIssues   int            `json:"archived_issues"`
	ReadyIssues      int            `json:"ready_issues"`
	BlockedIssues    int            `json:"blocked_issues"`
	ClaimedIssues    int            `json:"claimed_issues"`
	Dependencies     int            `json:"dependencies"`
	ByType           map[string]int `json:"by_type"`
	ByStatus         map[string]int `json:"by_status"`
	AverageLeadTime  float64        `json:"average_lead_time_hours"`
}

// IssueFilter is used to filter issue queries
type IssueFilter struct {
	Status          string
	Category        Category
	Type            string
	Assignee        *string
	Label           string
	ParentID        *string
	Priority        *int
	PriorityMin     *int
	PriorityMax     *int
	IncludeArchived bool // If false (default), archived issues are excluded
	Sort            []IssueSortOption
	Limit           int
}

// WorkFilter narrows the ready set for ClaimNext and GetReady.
type WorkFilter struct {
	Type        string
	PriorityMin *int
	PriorityMax *int
	Limit       int
}

// Matches reports whether issue passes the filter's type and priority bounds.
func (f WorkFilter) Matches(issue *Issue) bool {
	if f.Type != "" && issue.Type != f.Type {
		return false
	}
	if f.PriorityMin != nil && issue.Priority < *f.PriorityMin {
		return false
	}
	if f.PriorityMax != nil && issue.Priority > *f.PriorityMax {
		return false
	}
	return true
}

// BatchFailure records one item that a batch operation could not apply.
type BatchFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchResult accumulates per-item outcomes of batch_close / batch_update / import.
type BatchResult struct {
	Succeeded []string       `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
	Skipped   []string       `json:"skipped,omitempty"`
}

// Fail records a failed item.
func (r *BatchResult) Fail(id string, err error) {
	r.Failed = append(r.Failed, BatchFailure{ID: id, Error: err.Error()})
}

// PlanInput describes a milestone with its phases and steps for CreatePlan.
type PlanInput struct {
	Milestone PlanItemInput    `json:"milestone"`
	Phases    []PlanPhaseInput `json:"phases"`
}

// PlanPhaseInput is one phase and its ordered steps.
type PlanPhaseInput struct {
	PlanItemInput
	Steps []PlanStepInput `json:"steps"`
}

// PlanStepInput is a step. Deps reference other steps as "s" (same phase) or "p.s".
type PlanStepInput struct {
	PlanItemInput
	Deps []string `json:"deps,omitempty"`
}

// PlanItemInput holds the shared creation attributes of plan items.
type PlanItemInput struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Priority    *int           `json:"priority,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}
