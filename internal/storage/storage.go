// Package storage defines the interface every issue store satisfies, along
// with the error taxonomy and option types shared by its implementations.
//
// The concrete implementation lives in the sqlite sub-package.
package storage

import (
	"context"
	"io"

	"github.com/trellis-tracker/trellis/internal/templates"
	"github.com/trellis-tracker/trellis/internal/types"
)

// CloseOptions tunes CloseIssue.
type CloseOptions struct {
	// Status picks the done state to move to. Empty selects the first declared
	// transition into a done state, falling back to the type's first done state.
	Status string
	// Reason is recorded as the comment of the status event.
	Reason string
	// Fields are merged before the transition is validated, so a hard gate can
	// be satisfied in the same call.
	Fields map[string]any
}

// Storage is the core API consumed by the CLI and other front-ends.
type Storage interface {
	// Issues
	CreateIssue(ctx context.Context, in *types.IssueCreate, actor string) (*types.Issue, error)
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	UpdateIssue(ctx context.Context, id string, upd types.IssueUpdate, actor string) (*types.Issue, error)
	CloseIssue(ctx context.Context, id string, opts CloseOptions, actor string) (*types.Issue, error)
	ReopenIssue(ctx context.Context, id string, actor string) (*types.Issue, error)
	ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)
	SearchIssues(ctx context.Context, query string, filter types.IssueFilter) ([]*types.Issue, error)

	// Dependencies and scheduling
	AddDependency(ctx context.Context, issueID, dependsOnID, actor string) (bool, error)
	RemoveDependency(ctx context.Context, issueID, dependsOnID, actor string) (bool, error)
	GetDependencyTree(ctx context.Context, id string, maxDepth int, reverse bool) ([]*types.TreeNode, error)
	GetReady(ctx context.Context, filter types.WorkFilter) ([]*types.Issue, error)
	GetBlocked(ctx context.Context, filter types.WorkFilter) ([]*types.BlockedIssue, error)
	GetCriticalPath(ctx context.Context) ([]*types.Issue, error)
	IsReady(ctx context.Context, id string) (bool, error)

	// Claims
	ClaimIssue(ctx context.Context, id, assignee, actor string) (*types.Issue, error)
	ClaimNext(ctx context.Context, assignee string, filter types.WorkFilter, actor string) (*types.Issue, error)
	ReleaseClaim(ctx context.Context, id, actor string) (*types.Issue, error)

	// Comments and labels
	AddComment(ctx context.Context, id, author, text string) (*types.Comment, error)
	GetComments(ctx context.Context, id string) ([]*types.Comment, error)
	AddLabel(ctx context.Context, id, label, actor string) (bool, error)
	RemoveLabel(ctx context.Context, id, label, actor string) (bool, error)

	// Event log
	GetEventsSince(ctx context.Context, since string, limit int) ([]*types.Event, error)
	GetIssueEvents(ctx context.Context, id string, limit int) ([]*types.Event, error)
	UndoLast(ctx context.Context, id, actor string) (*types.UndoResult, error)
	ArchiveClosed(ctx context.Context, daysOld int, actor string) ([]string, error)
	CompactEvents(ctx context.Context, keepRecent int) (int, error)

	// Plans and trees
	GetTree(ctx context.Context, rootID string) (*types.PlanNode, error)
	GetPlan(ctx context.Context, milestoneID string) (*types.PlanNode, error)
	GetReleaseTree(ctx context.Context, releaseID string) (*types.PlanNode, error)
	CreatePlan(ctx context.Context, in types.PlanInput, actor string) (*types.PlanNode, error)

	// Batch
	BatchClose(ctx context.Context, ids []string, reason, actor string) (*types.BatchResult, error)
	BatchUpdate(ctx context.Context, ids []string, upd types.IssueUpdate, actor string) (*types.BatchResult, error)

	// Interchange
	ExportJSONL(ctx context.Context, w io.Writer) (*ExportResult, error)
	ImportJSONL(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportResult, error)

	// Statistics
	GetStatistics(ctx context.Context) (*types.Statistics, error)

	// Registry returns the template registry the store validates against.
	Registry() *templates.Registry

	// Lifecycle
	Close() error
}
