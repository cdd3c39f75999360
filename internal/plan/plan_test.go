package plan

import (
	"fmt"
	"testing"
	"time"

	"github.com/trellis-tracker/trellis/internal/types"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func issue(id, parent string, cat types.Category, minute int) *types.Issue {
	return &types.Issue{
		ID:             id,
		ParentID:       parent,
		Priority:       types.DefaultPriority,
		StatusCategory: cat,
		CreatedAt:      t0.Add(time.Duration(minute) * time.Minute),
	}
}

func TestBuildPlanProgress(t *testing.T) {
	issues := []*types.Issue{
		issue("m", "", types.CategoryWIP, 0),
		issue("p1", "m", types.CategoryWIP, 1),
		issue("p2", "m", types.CategoryOpen, 2),
		issue("s1", "p1", types.CategoryDone, 3),
		issue("s2", "p1", types.CategoryWIP, 4),
		issue("s3", "p1", types.CategoryOpen, 5),
		issue("s4", "p2", types.CategoryDone, 6),
	}
	root := Build(issues[0], ChildIndex(issues), MaxDepth)

	if len(root.Children) != 2 || root.Children[0].Issue.ID != "p1" || root.Children[1].Issue.ID != "p2" {
		t.Fatalf("unexpected phases: %+v", root.Children)
	}
	p := root.Progress
	if p == nil || p.Total != 4 || p.Completed != 2 || p.InProgress != 1 || p.Open != 1 || p.Pct != 50 {
		t.Fatalf("milestone progress = %+v", p)
	}
	p1 := root.Children[0].Progress
	if p1.Total != 3 || p1.Completed != 1 || p1.Pct != 33.3 {
		t.Fatalf("phase progress = %+v", p1)
	}
	leaf := root.Children[0].Children[0]
	if leaf.Progress != nil || len(leaf.Children) != 0 {
		t.Fatalf("leaf should have no progress: %+v", leaf)
	}
}

func TestChildOrdering(t *testing.T) {
	a := issue("a", "root", types.CategoryOpen, 5)
	b := issue("b", "root", types.CategoryOpen, 1)
	c := issue("c", "root", types.CategoryOpen, 9)
	c.Priority = 0
	kids := ChildIndex([]*types.Issue{a, b, c})("root")
	got := kids[0].ID + " " + kids[1].ID + " " + kids[2].ID
	if got != "c b a" {
		t.Fatalf("order = %s", got)
	}
}

func TestBuildDepthCap(t *testing.T) {
	// a chain deeper than the cap
	var issues []*types.Issue
	for i := 0; i <= MaxDepth+3; i++ {
		parent := ""
		if i > 0 {
			parent = fmt.Sprintf("n%d", i-1)
		}
		issues = append(issues, issue(fmt.Sprintf("n%d", i), parent, types.CategoryOpen, i))
	}
	root := Build(issues[0], ChildIndex(issues), 0)

	depth := 0
	n := root
	for len(n.Children) > 0 {
		n = n.Children[0]
		depth++
	}
	if depth != MaxDepth {
		t.Fatalf("depth = %d, want %d", depth, MaxDepth)
	}
	if !n.Truncated {
		t.Fatal("deepest node should be marked truncated")
	}
	if root.Progress.Total != 1 {
		t.Fatalf("truncated node counts as one leaf, got %+v", root.Progress)
	}
}

func TestBuildSurvivesParentCycle(t *testing.T) {
	a := issue("a", "b", types.CategoryOpen, 0)
	b := issue("b", "a", types.CategoryOpen, 1)
	root := Build(a, ChildIndex([]*types.Issue{a, b}), MaxDepth)
	if len(root.Children) != 1 || len(root.Children[0].Children) != 0 {
		t.Fatalf("cycle should stop after one hop: %+v", root)
	}
}

func TestWalk(t *testing.T) {
	edges := map[string][]string{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d"},
		"d": {"e"},
	}
	next := func(id string) []string { return edges[id] }

	visits := Walk("a", next, MaxDepth)
	var got []string
	for _, v := range visits {
		got = append(got, fmt.Sprintf("%s@%d<%s", v.ID, v.Depth, v.ParentID))
	}
	want := "[a@0< b@1<a d@2<b e@3<d c@1<a]"
	if fmt.Sprint(got) != want {
		t.Fatalf("walk = %v, want %s", got, want)
	}

	capped := Walk("a", next, 2)
	last := capped[len(capped)-2] // d at depth 2
	if last.ID != "d" || !last.Truncated {
		t.Fatalf("expected d truncated at depth 2, got %+v", capped)
	}
}
