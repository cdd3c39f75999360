package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/trellis-tracker/trellis/internal/graph"
	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// undoField names the attribute an event type touched.
var undoField = map[types.EventType]string{
	types.EventStatusChanged:      "status",
	types.EventReopened:           "status",
	types.EventTitleChanged:       "title",
	types.EventPriorityChanged:    "priority",
	types.EventAssigneeChanged:    "assignee",
	types.EventDescriptionChanged: "description",
	types.EventNotesChanged:       "notes",
	types.EventClaimed:            "assignee",
	types.EventReleased:           "assignee",
	types.EventDependencyAdded:    "dependency",
	types.EventDependencyRemoved:  "dependency",
}

// lastUndoable returns the newest reversible event of id that no undone
// marker points at, or nil.
func (s *SQLiteStorage) lastUndoable(ctx context.Context, tx *sql.Tx, id string) (*types.Event, error) {
	reversible := types.ReversibleEventTypes()
	args := []any{id}
	for _, et := range reversible {
		args = append(args, string(et))
	}
	args = append(args, string(types.EventUndone))
	row := tx.QueryRowContext(ctx, `
		SELECT `+eventSelectColumns+`
		FROM events e
		WHERE e.issue_id = ?
		  AND e.event_type IN (`+placeholders(len(reversible))+`)
		  AND NOT EXISTS (
			SELECT 1 FROM events u WHERE u.event_type = ? AND u.undoes_event_id = e.id
		  )
		ORDER BY e.id DESC
		LIMIT 1
	`, args...)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError("find undoable event", err)
	}
	return ev, nil
}

// UndoLast reverts the newest reversible change to id that has not already
// been undone. The revert runs through the same validation as a normal
// update, so an undo that would cross a hard gate fails. A single undone
// event is written, pointing at the reverted one, so repeated calls step
// further back.
func (s *SQLiteStorage) UndoLast(ctx context.Context, id, actor string) (*types.UndoResult, error) {
	var result *types.UndoResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.getIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		ev, err := s.lastUndoable(ctx, tx, id)
		if err != nil {
			return err
		}
		if ev == nil {
			result = &types.UndoResult{Undone: false, Reason: "nothing to undo"}
			return nil
		}
		oldV, newV := deref(ev.OldValue), deref(ev.NewValue)
		if err := s.revert(ctx, tx, cur, ev.EventType, oldV, newV, actor); err != nil {
			return fmt.Errorf("undo %s event %d: %w", ev.EventType, ev.ID, err)
		}
		undoes := ev.ID
		if _, err := s.recordEvent(ctx, tx, eventRecord{
			issueID:   id,
			eventType: types.EventUndone,
			actor:     actor,
			oldValue:  ev.NewValue,
			newValue:  ev.OldValue,
			comment:   string(ev.EventType),
			undoes:    &undoes,
		}); err != nil {
			return err
		}
		result = &types.UndoResult{
			Undone:    true,
			EventID:   ev.ID,
			EventType: ev.EventType,
			Field:     undoField[ev.EventType],
			From:      newV,
			To:        oldV,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLiteStorage) revert(ctx context.Context, tx *sql.Tx, cur *types.Issue, et types.EventType, oldV, newV, actor string) error {
	quiet := applyOpts{allowUndeclared: true, suppressEvents: true}
	switch et {
	case types.EventStatusChanged, types.EventReopened:
		_, _, err := s.applyUpdate(ctx, tx, cur, types.IssueUpdate{Status: &oldV}, actor, quiet)
		return err
	case types.EventTitleChanged:
		_, _, err := s.applyUpdate(ctx, tx, cur, types.IssueUpdate{Title: &oldV}, actor, quiet)
		return err
	case types.EventPriorityChanged:
		p, err := strconv.Atoi(strings.TrimSpace(oldV))
		if err != nil {
			return storage.Invalidf("recorded priority %q is not a number", oldV)
		}
		_, _, err = s.applyUpdate(ctx, tx, cur, types.IssueUpdate{Priority: &p}, actor, quiet)
		return err
	case types.EventAssigneeChanged:
		_, _, err := s.applyUpdate(ctx, tx, cur, types.IssueUpdate{Assignee: &oldV}, actor, quiet)
		return err
	case types.EventDescriptionChanged:
		_, _, err := s.applyUpdate(ctx, tx, cur, types.IssueUpdate{Description: &oldV}, actor, quiet)
		return err
	case types.EventNotesChanged:
		_, _, err := s.applyUpdate(ctx, tx, cur, types.IssueUpdate{Notes: &oldV}, actor, quiet)
		return err
	case types.EventClaimed:
		if cur.Assignee != newV {
			return fmt.Errorf("%w: %s is now held by %q", storage.ErrConflict, cur.ID, cur.Assignee)
		}
		return s.releaseTx(ctx, tx, cur.ID, newV, actor, false)
	case types.EventReleased:
		res, err := tx.ExecContext(ctx, `UPDATE issues SET assignee = ?, updated_at = ? WHERE id = ? AND assignee = ''`,
			oldV, formatTime(s.clock()), cur.ID)
		if err != nil {
			return wrapDBError("restore claim", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s was claimed by %q since", storage.ErrAlreadyClaimed, cur.ID, cur.Assignee)
		}
		return nil
	case types.EventDependencyAdded:
		if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE issue_id = ? AND depends_on_id = ?`, cur.ID, newV); err != nil {
			return wrapDBError("remove dependency", err)
		}
		return s.touch(ctx, tx, cur.ID)
	case types.EventDependencyRemoved:
		if err := s.requireIssue(ctx, tx, oldV); err != nil {
			return err
		}
		edges, err := loadEdges(ctx, tx)
		if err != nil {
			return err
		}
		g := graph.New(nil, edges)
		for _, b := range g.BlockedBy(cur.ID) {
			if b == oldV {
				return s.touch(ctx, tx, cur.ID)
			}
		}
		if path := g.WouldCycle(cur.ID, oldV); path != nil {
			return &storage.CycleError{From: cur.ID, To: oldV, Path: path}
		}
		if err := s.insertEdge(ctx, tx, cur.ID, oldV, actor); err != nil {
			return err
		}
		return s.touch(ctx, tx, cur.ID)
	}
	return storage.Invalidf("event type %q cannot be undone", et)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
