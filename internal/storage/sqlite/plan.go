package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/trellis-tracker/trellis/internal/plan"
	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// Types with a dedicated tree accessor.
const (
	typeMilestone = "milestone"
	typePhase     = "phase"
	typeStep      = "step"
	typeRelease   = "release"
)

// GetTree returns the parent/child tree under rootID with progress
// aggregated from leaves. Archived descendants are included.
func (s *SQLiteStorage) GetTree(ctx context.Context, rootID string) (*types.PlanNode, error) {
	root, err := s.getIssue(ctx, s.db, rootID)
	if err != nil {
		return nil, err
	}
	return s.buildTree(ctx, root)
}

// GetPlan is GetTree restricted to milestones.
func (s *SQLiteStorage) GetPlan(ctx context.Context, milestoneID string) (*types.PlanNode, error) {
	return s.typedTree(ctx, milestoneID, typeMilestone)
}

// GetReleaseTree is GetTree restricted to releases.
func (s *SQLiteStorage) GetReleaseTree(ctx context.Context, releaseID string) (*types.PlanNode, error) {
	return s.typedTree(ctx, releaseID, typeRelease)
}

func (s *SQLiteStorage) typedTree(ctx context.Context, id, wantType string) (*types.PlanNode, error) {
	root, err := s.getIssue(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if root.Type != wantType {
		return nil, storage.Invalidf("%s is a %s, not a %s", id, root.Type, wantType)
	}
	return s.buildTree(ctx, root)
}

func (s *SQLiteStorage) buildTree(ctx context.Context, root *types.Issue) (*types.PlanNode, error) {
	// One level past the cap so Build can tell truncated nodes from leaves.
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE sub(id, depth) AS (
			SELECT id, 0 FROM issues WHERE parent_id = ?
			UNION
			SELECT i.id, sub.depth + 1 FROM issues i JOIN sub ON i.parent_id = sub.id
			WHERE sub.depth < ?
		)
		SELECT `+issueSelectColumns+` FROM issues WHERE id IN (SELECT id FROM sub)
	`, root.ID, plan.MaxDepth)
	if err != nil {
		return nil, wrapDBError("load descendants", err)
	}
	descendants, err := s.scanIssues(rows)
	if err != nil {
		return nil, err
	}
	all := append([]*types.Issue{root}, descendants...)
	if err := s.hydrate(ctx, s.db, all); err != nil {
		return nil, err
	}
	return plan.Build(root, plan.ChildIndex(descendants), plan.MaxDepth), nil
}

// CreatePlan creates a milestone, its phases and their steps, and wires the
// step dependencies, all in one transaction. Any invalid reference or cycle
// rolls the whole plan back.
//
// Step deps are zero-based references: "2" is step 2 of the same phase and
// "0.1" is step 1 of phase 0.
func (s *SQLiteStorage) CreatePlan(ctx context.Context, in types.PlanInput, actor string) (*types.PlanNode, error) {
	var milestoneID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		milestoneID, _, err = s.createIssueTx(ctx, tx, planItem(in.Milestone, typeMilestone, ""), actor)
		if err != nil {
			return fmt.Errorf("milestone: %w", err)
		}
		stepIDs := make([][]string, len(in.Phases))
		for p, phase := range in.Phases {
			phaseID, _, err := s.createIssueTx(ctx, tx, planItem(phase.PlanItemInput, typePhase, milestoneID), actor)
			if err != nil {
				return fmt.Errorf("phase %d: %w", p, err)
			}
			for i, step := range phase.Steps {
				stepID, _, err := s.createIssueTx(ctx, tx, planItem(step.PlanItemInput, typeStep, phaseID), actor)
				if err != nil {
					return fmt.Errorf("step %d.%d: %w", p, i, err)
				}
				stepIDs[p] = append(stepIDs[p], stepID)
			}
		}
		for p, phase := range in.Phases {
			for i, step := range phase.Steps {
				for _, ref := range step.Deps {
					dp, di, err := parseStepRef(ref, p)
					if err != nil {
						return fmt.Errorf("step %d.%d: %w", p, i, err)
					}
					if dp >= len(stepIDs) || di >= len(stepIDs[dp]) {
						return storage.Invalidf("step %d.%d: dependency %q is out of range", p, i, ref)
					}
					if dp == p && di == i {
						return storage.Invalidf("step %d.%d: cannot depend on itself", p, i)
					}
					if _, err := s.addDependencyTx(ctx, tx, stepIDs[p][i], stepIDs[dp][di], actor); err != nil {
						return fmt.Errorf("%w: step %d.%d: %w", storage.ErrValidation, p, i, err)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPlan(ctx, milestoneID)
}

func planItem(in types.PlanItemInput, typ, parent string) *types.IssueCreate {
	return &types.IssueCreate{
		Title:       in.Title,
		Type:        typ,
		Priority:    in.Priority,
		ParentID:    parent,
		Description: in.Description,
		Fields:      in.Fields,
	}
}

// parseStepRef resolves "s" (relative to phase) or "p.s".
func parseStepRef(ref string, phase int) (int, int, error) {
	ref = strings.TrimSpace(ref)
	phasePart, stepPart, qualified := strings.Cut(ref, ".")
	if !qualified {
		stepPart = phasePart
	}
	step, err := strconv.Atoi(stepPart)
	if err != nil || step < 0 {
		return 0, 0, storage.Invalidf("malformed step reference %q", ref)
	}
	if !qualified {
		return phase, step, nil
	}
	p, err := strconv.Atoi(phasePart)
	if err != nil || p < 0 {
		return 0, 0, storage.Invalidf("malformed step reference %q", ref)
	}
	return p, step, nil
}
