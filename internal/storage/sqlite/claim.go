package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/trellis-tracker/trellis/internal/debug"
	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// errClaimClosed marks a claim refused because the issue is in a done state.
var errClaimClosed = errors.New("cannot claim a closed issue")

// ClaimIssue atomically assigns an unclaimed issue to assignee. Status is
// left alone. The compare-and-swap is a single conditional UPDATE checked by
// affected rows, so of several concurrent claimers exactly one wins and the
// rest get storage.ErrAlreadyClaimed. Re-claiming by the current holder is a
// no-op.
func (s *SQLiteStorage) ClaimIssue(ctx context.Context, id, assignee, actor string) (*types.Issue, error) {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return nil, storage.Invalidf("assignee is required to claim")
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return s.claimTx(ctx, tx, id, assignee, actor)
	})
	if err != nil {
		return nil, err
	}
	return s.GetIssue(ctx, id)
}

func (s *SQLiteStorage) claimTx(ctx context.Context, tx *sql.Tx, id, assignee, actor string) error {
	now := formatTime(s.clock())
	res, err := tx.ExecContext(ctx, `
		UPDATE issues SET assignee = ?, updated_at = ?
		WHERE id = ? AND assignee = ''
	`, assignee, now, id)
	if err != nil {
		return wrapDBError("claim issue", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	cur, err := s.getIssue(ctx, tx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		if cur.Assignee == assignee {
			return nil
		}
		return fmt.Errorf("%w: %s is held by %s", storage.ErrAlreadyClaimed, id, cur.Assignee)
	}
	if cur.StatusCategory == types.CategoryDone {
		// Rolled back with the transaction.
		return fmt.Errorf("%w: %w: %s (status %q)", storage.ErrValidation, errClaimClosed, id, cur.Status)
	}
	_, err = s.recordEvent(ctx, tx, eventRecord{
		issueID: id, eventType: types.EventClaimed, actor: actor,
		oldValue: strPtr(""), newValue: strPtr(assignee),
	})
	return err
}

// ClaimNext claims the first unclaimed ready issue matching filter. A
// candidate lost to a concurrent claimer, or closed since the ready query,
// is skipped. It returns nil with no error when nothing is claimable.
func (s *SQLiteStorage) ClaimNext(ctx context.Context, assignee string, filter types.WorkFilter, actor string) (*types.Issue, error) {
	if strings.TrimSpace(assignee) == "" {
		return nil, storage.Invalidf("assignee is required to claim")
	}
	filter.Limit = 0
	ready, err := s.GetReady(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.claimFirst(ctx, ready, assignee, actor)
}

// claimFirst claims the first candidate that is still claimable.
func (s *SQLiteStorage) claimFirst(ctx context.Context, candidates []*types.Issue, assignee, actor string) (*types.Issue, error) {
	for _, candidate := range candidates {
		if candidate.Assignee != "" {
			continue
		}
		issue, err := s.ClaimIssue(ctx, candidate.ID, assignee, actor)
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, errClaimClosed) {
			debug.Logf("claim-next: %s no longer claimable (%v), trying next\n", candidate.ID, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		if issue.Assignee != strings.TrimSpace(assignee) {
			continue
		}
		return issue, nil
	}
	return nil, nil
}

// ReleaseClaim clears the assignee. Releasing an unclaimed issue is a
// validation error.
func (s *SQLiteStorage) ReleaseClaim(ctx context.Context, id, actor string) (*types.Issue, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.getIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Assignee == "" {
			return storage.Invalidf("%s is not claimed", id)
		}
		return s.releaseTx(ctx, tx, id, cur.Assignee, actor, true)
	})
	if err != nil {
		return nil, err
	}
	return s.GetIssue(ctx, id)
}

func (s *SQLiteStorage) releaseTx(ctx context.Context, tx *sql.Tx, id, holder, actor string, withEvent bool) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE issues SET assignee = '', updated_at = ?
		WHERE id = ? AND assignee = ?
	`, formatTime(s.clock()), id, holder)
	if err != nil {
		return wrapDBError("release claim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s is no longer held by %s", storage.ErrConflict, id, holder)
	}
	if !withEvent {
		return nil
	}
	_, err = s.recordEvent(ctx, tx, eventRecord{
		issueID: id, eventType: types.EventReleased, actor: actor,
		oldValue: strPtr(holder), newValue: strPtr(""),
	})
	return err
}
