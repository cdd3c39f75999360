package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trellis-tracker/trellis/internal/graph"
	"github.com/trellis-tracker/trellis/internal/plan"
	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// loadGraph snapshots every issue and edge. Archived issues stay in the
// snapshot so that they still count as done blockers.
func (s *SQLiteStorage) loadGraph(ctx context.Context, q queryer) (*graph.Graph, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, type, status, priority, created_at FROM issues`)
	if err != nil {
		return nil, wrapDBError("load graph nodes", err)
	}
	var nodes []graph.Node
	for rows.Next() {
		var n graph.Node
		var typ, status, createdAt string
		if err := rows.Scan(&n.ID, &typ, &status, &n.Priority, &createdAt); err != nil {
			_ = rows.Close()
			return nil, wrapDBError("scan graph node", err)
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		n.Category = s.registry.GetCategory(typ, status)
		nodes = append(nodes, n)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := loadEdges(ctx, q)
	if err != nil {
		return nil, err
	}
	return graph.New(nodes, edges), nil
}

func loadEdges(ctx context.Context, q queryer) ([]graph.Edge, error) {
	rows, err := q.QueryContext(ctx, `SELECT issue_id, depends_on_id FROM dependencies ORDER BY issue_id, depends_on_id`)
	if err != nil {
		return nil, wrapDBError("load dependencies", err)
	}
	defer func() { _ = rows.Close() }()
	var edges []graph.Edge
	for rows.Next() {
		var e graph.Edge
		if err := rows.Scan(&e.From, &e.To); err != nil {
			return nil, wrapDBError("scan dependency", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *SQLiteStorage) insertEdge(ctx context.Context, tx *sql.Tx, from, to, actor string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO dependencies (issue_id, depends_on_id, created_at, created_by)
		VALUES (?, ?, ?, ?)
	`, from, to, formatTime(s.clock()), actor)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return fmt.Errorf("dependency %s -> %s already exists: %w", from, to, storage.ErrConflict)
		}
		return wrapDBError("insert dependency", err)
	}
	return nil
}

func (s *SQLiteStorage) insertDependency(ctx context.Context, tx *sql.Tx, from, to, actor string) error {
	if err := s.insertEdge(ctx, tx, from, to, actor); err != nil {
		return err
	}
	_, err := s.recordEvent(ctx, tx, eventRecord{
		issueID: from, eventType: types.EventDependencyAdded, actor: actor, newValue: strPtr(to),
	})
	return err
}

func (s *SQLiteStorage) deleteDependency(ctx context.Context, tx *sql.Tx, from, to, actor string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE issue_id = ? AND depends_on_id = ?`, from, to)
	if err != nil {
		return false, wrapDBError("delete dependency", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	_, err = s.recordEvent(ctx, tx, eventRecord{
		issueID: from, eventType: types.EventDependencyRemoved, actor: actor, oldValue: strPtr(to),
	})
	return err == nil, err
}

// addDependencyTx checks both endpoints and the cycle condition against a
// snapshot taken inside tx, then inserts the edge.
func (s *SQLiteStorage) addDependencyTx(ctx context.Context, tx *sql.Tx, from, to, actor string) (bool, error) {
	if from == to {
		return false, storage.Invalidf("issue %s cannot depend on itself", from)
	}
	if err := s.requireIssue(ctx, tx, from); err != nil {
		return false, err
	}
	if err := s.requireIssue(ctx, tx, to); err != nil {
		return false, err
	}
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dependencies WHERE issue_id = ? AND depends_on_id = ?`, from, to).Scan(&exists)
	if err != nil {
		return false, wrapDBError("check dependency", err)
	}
	if exists > 0 {
		return false, nil
	}

	edges, err := loadEdges(ctx, tx)
	if err != nil {
		return false, err
	}
	if path := graph.New(nil, edges).WouldCycle(from, to); path != nil {
		return false, &storage.CycleError{From: from, To: to, Path: path}
	}
	if err := s.insertDependency(ctx, tx, from, to, actor); err != nil {
		return false, err
	}
	return true, nil
}

// AddDependency records that issueID depends on dependsOnID. It returns
// false without error when the edge already exists, and a *CycleError when
// the edge would close a cycle.
func (s *SQLiteStorage) AddDependency(ctx context.Context, issueID, dependsOnID, actor string) (bool, error) {
	var added bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		added, err = s.addDependencyTx(ctx, tx, issueID, dependsOnID, actor)
		return err
	})
	return added, err
}

// RemoveDependency deletes an edge. Removing a missing edge is a no-op
// reported as false.
func (s *SQLiteStorage) RemoveDependency(ctx context.Context, issueID, dependsOnID, actor string) (bool, error) {
	var removed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = s.deleteDependency(ctx, tx, issueID, dependsOnID, actor)
		return err
	})
	return removed, err
}

// GetDependencyTree walks blockers of id (or dependents when reverse is set)
// depth first. The root is the first node at depth 0.
func (s *SQLiteStorage) GetDependencyTree(ctx context.Context, id string, maxDepth int, reverse bool) ([]*types.TreeNode, error) {
	root, err := s.getIssue(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	g, err := s.loadGraph(ctx, s.db)
	if err != nil {
		return nil, err
	}
	next := g.BlockedBy
	if reverse {
		next = g.Blocks
	}
	visits := plan.Walk(root.ID, next, maxDepth)

	ids := make([]string, len(visits))
	for i, v := range visits {
		ids[i] = v.ID
	}
	byID, err := s.issuesByID(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	nodes := make([]*types.TreeNode, 0, len(visits))
	hydrated := make([]*types.Issue, 0, len(visits))
	for _, v := range visits {
		is, ok := byID[v.ID]
		if !ok {
			continue
		}
		hydrated = append(hydrated, is)
		nodes = append(nodes, &types.TreeNode{Depth: v.Depth, ParentID: v.ParentID, Truncated: v.Truncated})
	}
	if err := s.hydrate(ctx, s.db, hydrated); err != nil {
		return nil, err
	}
	for i, is := range hydrated {
		nodes[i].Issue = *is
	}
	return nodes, nil
}

// issuesByID loads the given issues, in chunks to stay under SQLite's
// variable limit. Missing ids are absent from the map.
func (s *SQLiteStorage) issuesByID(ctx context.Context, q queryer, ids []string) (map[string]*types.Issue, error) {
	out := make(map[string]*types.Issue, len(ids))
	for start := 0; start < len(ids); start += maxQueryVars {
		end := min(start+maxQueryVars, len(ids))
		chunk := ids[start:end]
		rows, err := q.QueryContext(ctx,
			`SELECT `+issueSelectColumns+` FROM issues WHERE id IN (`+placeholders(len(chunk))+`)`,
			stringArgs(chunk)...)
		if err != nil {
			return nil, wrapDBError("get issues by id", err)
		}
		issues, err := s.scanIssues(rows)
		if err != nil {
			return nil, err
		}
		for _, is := range issues {
			out[is.ID] = is
		}
	}
	return out, nil
}

// maxQueryVars keeps IN lists well below SQLITE_MAX_VARIABLE_NUMBER.
const maxQueryVars = 500
