package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trellis-tracker/trellis/internal/debug"
	"github.com/trellis-tracker/trellis/internal/types"
)

// eventRecord is one row to append to the events table.
type eventRecord struct {
	issueID   string
	eventType types.EventType
	actor     string
	oldValue  *string
	newValue  *string
	comment   string
	undoes    *int64
}

// recordEvent appends an event inside tx and returns its id.
func (s *SQLiteStorage) recordEvent(ctx context.Context, tx *sql.Tx, ev eventRecord) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, old_value, new_value, comment, undoes_event_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.issueID, string(ev.eventType), ev.actor, ev.oldValue, ev.newValue, ev.comment, ev.undoes, formatTime(s.clock()))
	if err != nil {
		return 0, fmt.Errorf("failed to record %s event: %w", ev.eventType, err)
	}
	return res.LastInsertId()
}

const eventSelectColumns = `id, issue_id, event_type, actor, old_value, new_value, comment, undoes_event_id, created_at`

func scanEvent(sc interface{ Scan(dest ...any) error }) (*types.Event, error) {
	var ev types.Event
	var eventType, createdAt string
	var oldValue, newValue sql.NullString
	var undoes sql.NullInt64
	if err := sc.Scan(&ev.ID, &ev.IssueID, &eventType, &ev.Actor, &oldValue, &newValue, &ev.Comment, &undoes, &createdAt); err != nil {
		return nil, err
	}
	ev.EventType = types.EventType(eventType)
	if oldValue.Valid {
		ev.OldValue = strPtr(oldValue.String)
	}
	if newValue.Valid {
		ev.NewValue = strPtr(newValue.String)
	}
	if undoes.Valid {
		id := undoes.Int64
		ev.UndoesEventID = &id
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	ev.CreatedAt = t
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]*types.Event, error) {
	defer func() { _ = rows.Close() }()
	var out []*types.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// GetEventsSince returns events created strictly after since, oldest first.
// A since value that does not parse as a timestamp yields no events.
// limit <= 0 means no limit.
func (s *SQLiteStorage) GetEventsSince(ctx context.Context, since string, limit int) ([]*types.Event, error) {
	after := ""
	if since != "" {
		t, err := parseTime(since)
		if err != nil {
			debug.Logf("events: ignoring malformed since %q: %v\n", since, err)
			return []*types.Event{}, nil
		}
		after = formatTime(t)
	}

	query := `SELECT ` + eventSelectColumns + ` FROM events WHERE created_at > ? ORDER BY created_at, id`
	args := []any{after}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("get events since", err)
	}
	return scanEvents(rows)
}

// GetIssueEvents returns the events of one issue, newest first.
func (s *SQLiteStorage) GetIssueEvents(ctx context.Context, id string, limit int) ([]*types.Event, error) {
	if err := s.requireIssue(ctx, s.db, id); err != nil {
		return nil, err
	}
	query := `SELECT ` + eventSelectColumns + ` FROM events WHERE issue_id = ? ORDER BY id DESC`
	args := []any{id}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("get issue events", err)
	}
	return scanEvents(rows)
}
