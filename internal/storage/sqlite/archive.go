package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// ArchiveClosed moves issues closed at least daysOld days ago out of default
// list scope. Archived issues remain readable by id. Returns the archived ids.
func (s *SQLiteStorage) ArchiveClosed(ctx context.Context, daysOld int, actor string) ([]string, error) {
	if daysOld < 0 {
		return nil, storage.Invalidf("days must be non-negative (got %d)", daysOld)
	}
	var archived []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		archived = nil
		now := s.clock()
		cutoff := formatTime(now.Add(-time.Duration(daysOld) * 24 * time.Hour))
		rows, err := tx.QueryContext(ctx, `
			SELECT `+issueSelectColumns+`
			FROM issues
			WHERE archived_at IS NULL AND closed_at IS NOT NULL AND closed_at <= ?
			ORDER BY closed_at, id
		`, cutoff)
		if err != nil {
			return wrapDBError("find archivable issues", err)
		}
		candidates, err := s.scanIssues(rows)
		if err != nil {
			return err
		}
		for _, is := range candidates {
			if is.StatusCategory != types.CategoryDone {
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE issues SET archived_at = ? WHERE id = ?`, formatTime(now), is.ID); err != nil {
				return wrapDBError("archive issue", err)
			}
			if _, err := s.recordEvent(ctx, tx, eventRecord{
				issueID: is.ID, eventType: types.EventArchived, actor: actor,
			}); err != nil {
				return err
			}
			archived = append(archived, is.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

// CompactEvents trims the history of archived issues down to the keepRecent
// newest events each. Events of live issues are never touched. Returns the
// number of events deleted.
func (s *SQLiteStorage) CompactEvents(ctx context.Context, keepRecent int) (int, error) {
	if keepRecent < 0 {
		return 0, storage.Invalidf("keep must be non-negative (got %d)", keepRecent)
	}
	var deleted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM events
			WHERE issue_id IN (SELECT id FROM issues WHERE archived_at IS NOT NULL)
			  AND id NOT IN (
				SELECT k.id FROM events k
				WHERE k.issue_id = events.issue_id
				ORDER BY k.id DESC
				LIMIT ?
			  )
		`, keepRecent)
		if err != nil {
			return wrapDBError("compact events", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(n)
		return nil
	})
	return deleted, err
}
