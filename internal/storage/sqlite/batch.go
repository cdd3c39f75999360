package sqlite

import (
	"context"
	"errors"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// BatchClose closes each id in its own transaction. Per-item failures are
// collected rather than aborting the batch; only context cancellation stops
// it early.
func (s *SQLiteStorage) BatchClose(ctx context.Context, ids []string, reason, actor string) (*types.BatchResult, error) {
	return s.batch(ctx, ids, func(id string) error {
		_, err := s.CloseIssue(ctx, id, storage.CloseOptions{Reason: reason}, actor)
		return err
	})
}

// BatchUpdate applies the same update to each id, one transaction per item.
func (s *SQLiteStorage) BatchUpdate(ctx context.Context, ids []string, upd types.IssueUpdate, actor string) (*types.BatchResult, error) {
	if upd.IsEmpty() {
		return nil, storage.Invalidf("no changes requested")
	}
	return s.batch(ctx, ids, func(id string) error {
		_, err := s.UpdateIssue(ctx, id, upd, actor)
		return err
	})
}

func (s *SQLiteStorage) batch(ctx context.Context, ids []string, apply func(id string) error) (*types.BatchResult, error) {
	result := &types.BatchResult{Succeeded: []string{}, Failed: []types.BatchFailure{}}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := ctx.Err(); err != nil {
			return result, err
		}
		err := apply(id)
		switch {
		case err == nil:
			result.Succeeded = append(result.Succeeded, id)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return result, err
		default:
			result.Fail(id, err)
		}
	}
	return result, nil
}
