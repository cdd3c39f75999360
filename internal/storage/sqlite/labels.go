package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// checkLabel rejects labels that collide with a registered type name.
func (s *SQLiteStorage) checkLabel(label string) error {
	if s.registry.IsKnownType(label) {
		return storage.Invalidf("label %q is reserved: it names an issue type", label)
	}
	return nil
}

// labelsFor returns the sorted labels of each id.
func (s *SQLiteStorage) labelsFor(ctx context.Context, q queryer, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	for start := 0; start < len(ids); start += maxQueryVars {
		end := min(start+maxQueryVars, len(ids))
		chunk := ids[start:end]
		rows, err := q.QueryContext(ctx,
			`SELECT issue_id, label FROM labels WHERE issue_id IN (`+placeholders(len(chunk))+`) ORDER BY issue_id, label`,
			stringArgs(chunk)...)
		if err != nil {
			return nil, wrapDBError("get labels", err)
		}
		for rows.Next() {
			var id, label string
			if err := rows.Scan(&id, &label); err != nil {
				_ = rows.Close()
				return nil, wrapDBError("scan label", err)
			}
			out[id] = append(out[id], label)
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AddLabel attaches label to an issue. It returns false when the label was
// already present.
func (s *SQLiteStorage) AddLabel(ctx context.Context, id, label, actor string) (bool, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return false, storage.Invalidf("label is required")
	}
	if err := s.checkLabel(label); err != nil {
		return false, err
	}
	var added bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireIssue(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)`, id, label)
		if err != nil {
			return wrapDBError("add label", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if added = n > 0; !added {
			return nil
		}
		if err := s.touch(ctx, tx, id); err != nil {
			return err
		}
		_, err = s.recordEvent(ctx, tx, eventRecord{
			issueID: id, eventType: types.EventLabelAdded, actor: actor, newValue: strPtr(label),
		})
		return err
	})
	return added, err
}

// RemoveLabel detaches label. It returns false when the label was not present.
func (s *SQLiteStorage) RemoveLabel(ctx context.Context, id, label, actor string) (bool, error) {
	label = strings.TrimSpace(label)
	var removed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireIssue(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM labels WHERE issue_id = ? AND label = ?`, id, label)
		if err != nil {
			return wrapDBError("remove label", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if removed = n > 0; !removed {
			return nil
		}
		if err := s.touch(ctx, tx, id); err != nil {
			return err
		}
		_, err = s.recordEvent(ctx, tx, eventRecord{
			issueID: id, eventType: types.EventLabelRemoved, actor: actor, oldValue: strPtr(label),
		})
		return err
	})
	return removed, err
}

// touch bumps updated_at.
func (s *SQLiteStorage) touch(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `UPDATE issues SET updated_at = ? WHERE id = ?`, formatTime(s.clock()), id)
	return wrapDBError("touch issue", err)
}
