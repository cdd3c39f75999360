package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// AddComment appends a comment and a commented event.
func (s *SQLiteStorage) AddComment(ctx context.Context, id, author, text string) (*types.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, storage.Invalidf("comment text is required")
	}
	var comment *types.Comment
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireIssue(ctx, tx, id); err != nil {
			return err
		}
		now := s.clock()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO comments (issue_id, author, text, created_at)
			VALUES (?, ?, ?, ?)
		`, id, author, text, formatTime(now))
		if err != nil {
			return wrapDBError("add comment", err)
		}
		commentID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := s.touch(ctx, tx, id); err != nil {
			return err
		}
		if _, err := s.recordEvent(ctx, tx, eventRecord{
			issueID: id, eventType: types.EventCommented, actor: author, comment: text,
		}); err != nil {
			return err
		}
		comment = &types.Comment{ID: commentID, IssueID: id, Author: author, Text: text, CreatedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// GetComments returns an issue's comments oldest first.
func (s *SQLiteStorage) GetComments(ctx context.Context, id string) ([]*types.Comment, error) {
	if err := s.requireIssue(ctx, s.db, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, author, text, created_at
		FROM comments
		WHERE issue_id = ?
		ORDER BY id
	`, id)
	if err != nil {
		return nil, wrapDBError("get comments", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []*types.Comment
	for rows.Next() {
		var c types.Comment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Author, &c.Text, &createdAt); err != nil {
			return nil, wrapDBError("scan comment", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}
