// Package plan builds parent/child trees (milestone → phase → step, release
// → items) and aggregates leaf progress up through them.
package plan

import (
	"math"
	"sort"

	"github.com/trellis-tracker/trellis/internal/types"
)

// MaxDepth caps recursion when building trees and walking dependencies.
const MaxDepth = 10

// ChildFunc returns the direct children of an issue.
type ChildFunc func(parentID string) []*types.Issue

// ChildIndex groups issues by ParentID, each group ordered by priority then
// creation time. The returned function is a ChildFunc over that index.
func ChildIndex(issues []*types.Issue) ChildFunc {
	byParent := make(map[string][]*types.Issue)
	for _, is := range issues {
		if is.ParentID != "" {
			byParent[is.ParentID] = append(byParent[is.ParentID], is)
		}
	}
	for _, kids := range byParent {
		sort.SliceStable(kids, func(i, j int) bool {
			if kids[i].Priority != kids[j].Priority {
				return kids[i].Priority < kids[j].Priority
			}
			if !kids[i].CreatedAt.Equal(kids[j].CreatedAt) {
				return kids[i].CreatedAt.Before(kids[j].CreatedAt)
			}
			return kids[i].ID < kids[j].ID
		})
	}
	return func(parentID string) []*types.Issue {
		return byParent[parentID]
	}
}

// Build returns the tree rooted at root. Nodes at depth maxDepth are not
// expanded further and are marked Truncated when they have children. An id
// already on the current branch is never revisited.
func Build(root *types.Issue, children ChildFunc, maxDepth int) *types.PlanNode {
	if maxDepth <= 0 || maxDepth > MaxDepth {
		maxDepth = MaxDepth
	}
	onBranch := make(map[string]bool)
	var build func(is *types.Issue, depth int) *types.PlanNode
	build = func(is *types.Issue, depth int) *types.PlanNode {
		n := &types.PlanNode{Issue: is}
		kids := children(is.ID)
		if len(kids) == 0 {
			return n
		}
		if depth >= maxDepth {
			n.Truncated = true
			return n
		}
		onBranch[is.ID] = true
		for _, k := range kids {
			if onBranch[k.ID] {
				continue
			}
			n.Children = append(n.Children, build(k, depth+1))
		}
		onBranch[is.ID] = false
		n.Progress = Aggregate(n)
		return n
	}
	return build(root, 0)
}

// Aggregate counts the leaf descendants of n by category. Truncated nodes
// count as leaves. A node without children has no progress.
func Aggregate(n *types.PlanNode) *types.Progress {
	if len(n.Children) == 0 {
		return nil
	}
	p := &types.Progress{}
	var walk func(*types.PlanNode)
	walk = func(c *types.PlanNode) {
		if len(c.Children) == 0 {
			p.Total++
			switch c.Issue.StatusCategory {
			case types.CategoryDone:
				p.Completed++
			case types.CategoryWIP:
				p.InProgress++
			default:
				p.Open++
			}
			return
		}
		for _, cc := range c.Children {
			walk(cc)
		}
	}
	for _, c := range n.Children {
		walk(c)
	}
	if p.Total > 0 {
		p.Pct = math.Round(float64(p.Completed)/float64(p.Total)*1000) / 10
	}
	return p
}

// Visit is one step of a depth-first walk.
type Visit struct {
	ID        string
	Depth     int
	ParentID  string
	Truncated bool
}

// Walk visits everything reachable from root through next, depth first,
// each id at most once. Ids at maxDepth with further neighbours are marked
// Truncated and not expanded.
func Walk(root string, next func(id string) []string, maxDepth int) []Visit {
	if maxDepth <= 0 || maxDepth > MaxDepth {
		maxDepth = MaxDepth
	}
	seen := map[string]bool{root: true}
	out := []Visit{{ID: root}}
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		for _, n := range next(id) {
			if seen[n] {
				continue
			}
			seen[n] = true
			v := Visit{ID: n, Depth: depth + 1, ParentID: id}
			if depth+1 >= maxDepth {
				v.Truncated = len(next(n)) > 0
				out = append(out, v)
				continue
			}
			out = append(out, v)
			walk(n, depth+1)
		}
	}
	walk(root, 0)
	return out
}
