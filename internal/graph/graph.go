// Package graph holds the dependency algorithms used by the store: cycle
// detection, readiness, blocked sets and the critical path. A Graph is an
// immutable snapshot built from issue rows and the edge list, so every query
// runs without touching the database.
package graph

import (
	"slices"
	"strings"
	"time"

	"github.com/trellis-tracker/trellis/internal/types"
)

// Node is the slice of an issue the graph needs.
type Node struct {
	ID        string
	Priority  int
	Category  types.Category
	CreatedAt time.Time
}

// Edge records that From depends on (is blocked by) To.
type Edge struct {
	From string
	To   string
}

// Graph is a read-only dependency snapshot. Safe for concurrent reads.
type Graph struct {
	nodes map[string]Node

	// blockedBy: id → ids it depends on (forward edges).
	// blocks: id → ids that depend on it (reverse edges).
	blockedBy map[string]map[string]struct{}
	blocks    map[string]map[string]struct{}
}

// New builds a snapshot. Edges may reference ids missing from nodes;
// such blockers are treated as not done.
func New(nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		nodes:     make(map[string]Node, len(nodes)),
		blockedBy: make(map[string]map[string]struct{}),
		blocks:    make(map[string]map[string]struct{}),
	}
	for _, n := range nodes {
		g.nodes[n.ID] = n
	}
	for _, e := range edges {
		addEdge(g.blockedBy, e.From, e.To)
		addEdge(g.blocks, e.To, e.From)
	}
	return g
}

func addEdge(index map[string]map[string]struct{}, key, value string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[value] = struct{}{}
}

// WithEdge returns a copy of g with one extra edge. Used to evaluate a
// candidate edge against the full graph without mutating the snapshot.
func (g *Graph) WithEdge(e Edge) *Graph {
	out := &Graph{
		nodes:     g.nodes,
		blockedBy: cloneIndex(g.blockedBy),
		blocks:    cloneIndex(g.blocks),
	}
	addEdge(out.blockedBy, e.From, e.To)
	addEdge(out.blocks, e.To, e.From)
	return out
}

func cloneIndex(in map[string]map[string]struct{}) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(in))
	for k, set := range in {
		c := make(map[string]struct{}, len(set))
		for v := range set {
			c[v] = struct{}{}
		}
		out[k] = c
	}
	return out
}

// Len returns the number of nodes in the snapshot.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node for id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// BlockedBy returns the ids id depends on, sorted.
func (g *Graph) BlockedBy(id string) []string {
	return sortedKeys(g.blockedBy[id])
}

// Blocks returns the ids that depend on id, sorted.
func (g *Graph) Blocks(id string) []string {
	return sortedKeys(g.blocks[id])
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Path returns a shortest chain of dependency edges leading from one id to
// target, inclusive of both ends, or nil when target is unreachable.
func (g *Graph) Path(from, target string) []string {
	if from == target {
		return []string{from}
	}
	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range sortedKeys(g.blockedBy[current]) {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = current
			if next == target {
				var path []string
				for at := target; at != ""; at = parent[at] {
					path = append(path, at)
				}
				slices.Reverse(path)
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// CanReach reports whether from transitively depends on target.
func (g *Graph) CanReach(from, target string) bool {
	return from != target && g.Path(from, target) != nil
}

// WouldCycle reports the cycle that adding "from depends on to" would close.
// The returned path starts and ends with from; nil means the edge is safe.
// A self edge yields [from, from].
func (g *Graph) WouldCycle(from, to string) []string {
	if from == to {
		return []string{from, from}
	}
	back := g.Path(to, from)
	if back == nil {
		return nil
	}
	return append([]string{from}, back...)
}

func (g *Graph) isDone(id string) bool {
	n, ok := g.nodes[id]
	return ok && n.Category == types.CategoryDone
}

// OpenBlockers returns the blockers of id that are not done, sorted.
func (g *Graph) OpenBlockers(id string) []string {
	var out []string
	for _, b := range g.BlockedBy(id) {
		if !g.isDone(b) {
			out = append(out, b)
		}
	}
	return out
}

// IsReady reports whether id is in an open-category state with every
// blocker done.
func (g *Graph) IsReady(id string) bool {
	n, ok := g.nodes[id]
	if !ok || n.Category != types.CategoryOpen {
		return false
	}
	for b := range g.blockedBy[id] {
		if !g.isDone(b) {
			return false
		}
	}
	return true
}

// Ready returns every ready node sorted by priority, then creation time.
func (g *Graph) Ready() []Node {
	var out []Node
	for id, n := range g.nodes {
		if g.IsReady(id) {
			out = append(out, n)
		}
	}
	SortNodes(out)
	return out
}

// BlockedNode is a node held back by unfinished blockers.
type BlockedNode struct {
	Node
	Blockers []string
}

// Blocked returns open and wip nodes with at least one blocker that is not
// done, sorted like Ready.
func (g *Graph) Blocked() []BlockedNode {
	var out []BlockedNode
	for id, n := range g.nodes {
		if n.Category == types.CategoryDone {
			continue
		}
		if blockers := g.OpenBlockers(id); len(blockers) > 0 {
			out = append(out, BlockedNode{Node: n, Blockers: blockers})
		}
	}
	slices.SortFunc(out, func(a, b BlockedNode) int { return compareNodes(a.Node, b.Node) })
	return out
}

// SortNodes orders by priority ascending (0 first), then CreatedAt, then id.
func SortNodes(nodes []Node) {
	slices.SortFunc(nodes, compareNodes)
}

func compareNodes(a, b Node) int {
	if a.Priority != b.Priority {
		return a.Priority - b.Priority
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// CriticalPath returns the longest chain of unfinished nodes linked by
// dependency edges, in execution order: the first id has no unfinished
// blockers on the chain and each later id depends on the one before it.
// Ties between equally long chains go to the lower priority number, then
// the smaller id.
func (g *Graph) CriticalPath() []string {
	memo := make(map[string][]string, len(g.nodes))
	visiting := make(map[string]bool)

	// chain returns the longest unfinished chain starting at id and walking
	// towards its blockers.
	var chain func(id string) []string
	chain = func(id string) []string {
		if c, ok := memo[id]; ok {
			return c
		}
		if visiting[id] {
			return nil
		}
		visiting[id] = true
		var best []string
		for _, b := range g.BlockedBy(id) {
			if n, ok := g.nodes[b]; !ok || n.Category == types.CategoryDone {
				continue
			}
			if c := chain(b); g.better(c, best) {
				best = c
			}
		}
		visiting[id] = false
		c := append([]string{id}, best...)
		memo[id] = c
		return c
	}

	var best []string
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if g.nodes[id].Category == types.CategoryDone {
			continue
		}
		if c := chain(id); g.better(c, best) {
			best = c
		}
	}
	if len(best) == 0 {
		return nil
	}
	out := slices.Clone(best)
	slices.Reverse(out)
	return out
}

// better reports whether chain a beats chain b: longer wins, then the head
// with the lower priority number, then the smaller head id.
func (g *Graph) better(a, b []string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	if len(a) == 0 {
		return false
	}
	pa, pb := g.nodes[a[0]].Priority, g.nodes[b[0]].Priority
	if pa != pb {
		return pa < pb
	}
	return a[0] < b[0]
}

// NewlyReady returns ids present in after but not in before, preserving the
// order of after. Callers diff two Ready snapshots to find unblocked work.
func NewlyReady(before, after []Node) []Node {
	prev := make(map[string]struct{}, len(before))
	for _, n := range before {
		prev[n.ID] = struct{}{}
	}
	var out []Node
	for _, n := range after {
		if _, ok := prev[n.ID]; !ok {
			out = append(out, n)
		}
	}
	return out
}
