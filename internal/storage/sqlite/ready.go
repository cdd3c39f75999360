package sqlite

import (
	"context"

	"github.com/trellis-tracker/trellis/internal/types"
)

// orderedIssues loads ids as hydrated issues, preserving the order of ids.
// Archived issues are dropped.
func (s *SQLiteStorage) orderedIssues(ctx context.Context, ids []string) ([]*types.Issue, error) {
	byID, err := s.issuesByID(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Issue, 0, len(ids))
	for _, id := range ids {
		if is, ok := byID[id]; ok && !is.IsArchived() {
			out = append(out, is)
		}
	}
	if err := s.hydrate(ctx, s.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetReady returns open-category issues whose blockers are all done,
// ordered by priority then creation time.
func (s *SQLiteStorage) GetReady(ctx context.Context, filter types.WorkFilter) ([]*types.Issue, error) {
	g, err := s.loadGraph(ctx, s.db)
	if err != nil {
		return nil, err
	}
	ready := g.Ready()
	ids := make([]string, len(ready))
	for i, n := range ready {
		ids[i] = n.ID
	}
	issues, err := s.orderedIssues(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := issues[:0]
	for _, is := range issues {
		if !filter.Matches(is) {
			continue
		}
		out = append(out, is)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// GetBlocked returns open and wip issues with at least one blocker that is
// not done.
func (s *SQLiteStorage) GetBlocked(ctx context.Context, filter types.WorkFilter) ([]*types.BlockedIssue, error) {
	g, err := s.loadGraph(ctx, s.db)
	if err != nil {
		return nil, err
	}
	blocked := g.Blocked()
	ids := make([]string, len(blocked))
	open := make(map[string][]string, len(blocked))
	for i, b := range blocked {
		ids[i] = b.ID
		open[b.ID] = b.Blockers
	}
	issues, err := s.orderedIssues(ctx, ids)
	if err != nil {
		return nil, err
	}
	var out []*types.BlockedIssue
	for _, is := range issues {
		if !filter.Matches(is) {
			continue
		}
		out = append(out, &types.BlockedIssue{
			Issue:          *is,
			BlockedByCount: len(is.BlockedBy),
			OpenBlockers:   open[is.ID],
		})
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// GetCriticalPath returns the longest chain of unfinished issues in
// execution order.
func (s *SQLiteStorage) GetCriticalPath(ctx context.Context) ([]*types.Issue, error) {
	g, err := s.loadGraph(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return s.orderedIssues(ctx, g.CriticalPath())
}

// IsReady reports whether id is currently ready.
func (s *SQLiteStorage) IsReady(ctx context.Context, id string) (bool, error) {
	if err := s.requireIssue(ctx, s.db, id); err != nil {
		return false, err
	}
	g, err := s.loadGraph(ctx, s.db)
	if err != nil {
		return false, err
	}
	return g.IsReady(id), nil
}
