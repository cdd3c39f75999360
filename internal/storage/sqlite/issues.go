package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/trellis-tracker/trellis/internal/idgen"
	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// issueSelectColumns is the canonical column list read by scanIssueFrom.
const issueSelectColumns = `id, title, type, status, priority, parent_id, assignee, description, notes,
	fields, created_at, updated_at, closed_at, archived_at`

type issueScanner interface {
	Scan(dest ...any) error
}

// scanIssueFrom scans one issue row and derives its status category.
func (s *SQLiteStorage) scanIssueFrom(sc issueScanner) (*types.Issue, error) {
	var issue types.Issue
	var parentID, closedAt, archivedAt sql.NullString
	var fields, createdAt, updatedAt string
	if err := sc.Scan(&issue.ID, &issue.Title, &issue.Type, &issue.Status, &issue.Priority, &parentID,
		&issue.Assignee, &issue.Description, &issue.Notes, &fields, &createdAt, &updatedAt,
		&closedAt, &archivedAt); err != nil {
		return nil, err
	}
	issue.ParentID = parentID.String

	var err error
	if issue.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if issue.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if issue.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, err
	}
	if issue.ArchivedAt, err = parseNullTime(archivedAt); err != nil {
		return nil, err
	}
	if issue.Fields, err = storage.DecodeFields(fields); err != nil {
		return nil, fmt.Errorf("issue %s: %w", issue.ID, err)
	}
	issue.StatusCategory = s.registry.GetCategory(issue.Type, issue.Status)
	return &issue, nil
}

func (s *SQLiteStorage) scanIssues(rows *sql.Rows) ([]*types.Issue, error) {
	defer func() { _ = rows.Close() }()
	var out []*types.Issue
	for rows.Next() {
		issue, err := s.scanIssueFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

// getIssue reads the bare row, without derived fields.
func (s *SQLiteStorage) getIssue(ctx context.Context, q queryer, id string) (*types.Issue, error) {
	row := q.QueryRowContext(ctx, `SELECT `+issueSelectColumns+` FROM issues WHERE id = ?`, id)
	issue, err := s.scanIssueFrom(row)
	if err == sql.ErrNoRows {
		return nil, storage.NotFoundf("issue %s", id)
	}
	if err != nil {
		return nil, wrapDBError("get issue "+id, err)
	}
	return issue, nil
}

func (s *SQLiteStorage) requireIssue(ctx context.Context, q queryer, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return storage.NotFoundf("issue %s", id)
	}
	return wrapDBError("check issue "+id, err)
}

// GetIssue returns an issue with labels, dependency links, children and
// readiness filled in. Archived issues are still returned.
func (s *SQLiteStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	issue, err := s.getIssue(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, s.db, []*types.Issue{issue}); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM issues WHERE parent_id = ? ORDER BY priority, created_at, id`, id)
	if err != nil {
		return nil, wrapDBError("get children", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, wrapDBError("scan child", err)
		}
		issue.Children = append(issue.Children, child)
	}
	return issue, rows.Err()
}

// hydrate fills labels, blocks/blocked_by and is_ready from one graph snapshot.
func (s *SQLiteStorage) hydrate(ctx context.Context, q queryer, issues []*types.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	ids := make([]string, len(issues))
	for i, is := range issues {
		ids[i] = is.ID
	}
	labels, err := s.labelsFor(ctx, q, ids)
	if err != nil {
		return err
	}
	g, err := s.loadGraph(ctx, q)
	if err != nil {
		return err
	}
	for _, is := range issues {
		is.Labels = labels[is.ID]
		is.BlockedBy = g.BlockedBy(is.ID)
		is.Blocks = g.Blocks(is.ID)
		is.IsReady = g.IsReady(is.ID)
	}
	return nil
}

// normalizeCreate validates input and resolves defaults from the registry.
func (s *SQLiteStorage) normalizeCreate(in *types.IssueCreate) (*types.Issue, []string, error) {
	issue := &types.Issue{
		Title:       strings.TrimSpace(in.Title),
		Type:        strings.TrimSpace(in.Type),
		Status:      strings.TrimSpace(in.Status),
		Priority:    types.DefaultPriority,
		ParentID:    strings.TrimSpace(in.ParentID),
		Assignee:    strings.TrimSpace(in.Assignee),
		Description: in.Description,
		Notes:       in.Notes,
	}
	if issue.Title == "" {
		return nil, nil, storage.Invalidf("title is required")
	}
	if len(issue.Title) > types.MaxTitleLength {
		return nil, nil, storage.Invalidf("title must be %d characters or less (got %d)", types.MaxTitleLength, len(issue.Title))
	}
	if issue.Type == "" {
		issue.Type = "task"
	}
	tmpl, known := s.registry.GetType(issue.Type)
	if !known && len(s.registry.ListTypes()) > 0 {
		return nil, nil, storage.Invalidf("unknown issue type %q (known types: %s)", issue.Type, strings.Join(s.knownTypeNames(), ", "))
	}
	if in.Priority != nil {
		issue.Priority = *in.Priority
	}
	if err := types.ValidatePriority(issue.Priority); err != nil {
		return nil, nil, storage.Invalidf("%v", err)
	}

	if issue.Status == "" {
		issue.Status = s.registry.GetInitialState(issue.Type)
	} else if known && !s.registry.IsValidState(issue.Type, issue.Status) {
		return nil, nil, storage.Invalidf("invalid status %q for type %q (valid: %s)",
			issue.Status, issue.Type, strings.Join(s.registry.GetValidStates(issue.Type), ", "))
	}
	issue.StatusCategory = s.registry.GetCategory(issue.Type, issue.Status)

	fields := make(map[string]any, len(in.Fields))
	for k, v := range in.Fields {
		if err := storage.ValidateFieldKey(k); err != nil {
			return nil, nil, err
		}
		if v != nil {
			fields[k] = v
		}
	}
	if known {
		for _, fs := range tmpl.FieldsSchema {
			if _, ok := fields[fs.Name]; !ok && fs.Default != nil {
				fields[fs.Name] = fs.Default
			}
		}
	}
	if problems := s.registry.ValidateFieldValues(issue.Type, fields); len(problems) > 0 {
		return nil, nil, storage.Invalidf("%s", strings.Join(problems, "; "))
	}
	if len(fields) > 0 {
		issue.Fields = fields
	}

	labels, err := s.normalizeLabels(in.Labels)
	if err != nil {
		return nil, nil, err
	}
	issue.Labels = labels

	var warnings []string
	for _, f := range s.registry.ValidateFieldsForState(issue.Type, issue.Status, issue.Fields) {
		warnings = append(warnings, fmt.Sprintf("field %q is expected in state %q", f, issue.Status))
	}
	return issue, warnings, nil
}

func (s *SQLiteStorage) knownTypeNames() []string {
	var names []string
	for _, t := range s.registry.ListTypes() {
		names = append(names, t.Type)
	}
	return names
}

// CreateIssue mints an id, resolves defaults and inserts the issue together
// with its labels and dependencies in one transaction.
func (s *SQLiteStorage) CreateIssue(ctx context.Context, in *types.IssueCreate, actor string) (*types.Issue, error) {
	if in == nil {
		return nil, storage.Invalidf("issue input is required")
	}
	var id string
	var warnings []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, warnings, err = s.createIssueTx(ctx, tx, in, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	issue, err := s.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	issue.Warnings = warnings
	return issue, nil
}

func (s *SQLiteStorage) createIssueTx(ctx context.Context, tx *sql.Tx, in *types.IssueCreate, actor string) (string, []string, error) {
	issue, warnings, err := s.normalizeCreate(in)
	if err != nil {
		return "", nil, err
	}
	if issue.ParentID != "" {
		if err := s.requireIssue(ctx, tx, issue.ParentID); err != nil {
			return "", nil, fmt.Errorf("parent: %w", err)
		}
	}

	now := s.clock()
	issue.CreatedAt, issue.UpdatedAt = now, now
	if issue.StatusCategory == types.CategoryDone {
		issue.ClosedAt = &now
	}
	id, err := s.mintID(ctx, tx, issue.Title, actor, now)
	if err != nil {
		return "", nil, err
	}
	issue.ID = id

	if err := insertIssueRow(ctx, tx, issue); err != nil {
		return "", nil, err
	}
	for _, label := range issue.Labels {
		if _, err := tx.ExecContext(ctx, `INSERT INTO labels (issue_id, label) VALUES (?, ?)`, id, label); err != nil {
			return "", nil, wrapDBError("insert label", err)
		}
	}
	if _, err := s.recordEvent(ctx, tx, eventRecord{
		issueID: id, eventType: types.EventCreated, actor: actor, newValue: strPtr(issue.Title),
	}); err != nil {
		return "", nil, err
	}

	seen := make(map[string]bool)
	for _, dep := range in.DependsOn {
		dep = strings.TrimSpace(dep)
		if dep == "" || seen[dep] {
			continue
		}
		seen[dep] = true
		if err := s.requireIssue(ctx, tx, dep); err != nil {
			return "", nil, fmt.Errorf("dependency: %w", err)
		}
		// A brand new issue has no dependents, so no edge out of it can close a cycle.
		if err := s.insertDependency(ctx, tx, id, dep, actor); err != nil {
			return "", nil, err
		}
	}
	return id, warnings, nil
}

// mintID derives a hash id, retrying with a fresh nonce on collision.
func (s *SQLiteStorage) mintID(ctx context.Context, tx *sql.Tx, title, actor string, now time.Time) (string, error) {
	for nonce := 0; nonce < idgen.MaxAttempts; nonce++ {
		candidate := idgen.GenerateHashID(s.prefix, title, actor, now, nonce)
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE id = ?`, candidate).Scan(&count); err != nil {
			return "", fmt.Errorf("failed to check for ID collision: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("failed to mint a unique id after %d attempts: %w", idgen.MaxAttempts, storage.ErrConflict)
}

func insertIssueRow(ctx context.Context, tx *sql.Tx, issue *types.Issue) error {
	fields, err := storage.EncodeFields(issue.Fields)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO issues (id, title, type, status, priority, parent_id, assignee, description, notes,
			fields, created_at, updated_at, closed_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, issue.ID, issue.Title, issue.Type, issue.Status, issue.Priority, nullString(issue.ParentID),
		issue.Assignee, issue.Description, issue.Notes, fields,
		formatTime(issue.CreatedAt), formatTime(issue.UpdatedAt),
		formatTimePtr(issue.ClosedAt), formatTimePtr(issue.ArchivedAt))
	if err != nil {
		if IsUniqueConstraintError(err) {
			return fmt.Errorf("issue %s already exists: %w", issue.ID, storage.ErrConflict)
		}
		return wrapDBError("insert issue", err)
	}
	return nil
}

// applyOpts tunes applyUpdate for callers other than UpdateIssue.
type applyOpts struct {
	// allowUndeclared lets a status change bypass an undeclared transition.
	// Hard gates on declared transitions still apply.
	allowUndeclared bool
	// suppressEvents skips the per-value events; undo writes its own marker.
	suppressEvents bool
	// statusEvent overrides the event type of a status change.
	statusEvent types.EventType
	// comment is attached to the status event.
	comment string
}

// applyUpdate is the single validated mutation path. It writes the changed
// columns of cur and one event per changed value. cur is updated in place.
// The returned bool reports whether anything changed.
func (s *SQLiteStorage) applyUpdate(ctx context.Context, tx *sql.Tx, cur *types.Issue, upd types.IssueUpdate, actor string, opts applyOpts) ([]string, bool, error) {
	var events []eventRecord
	var warnings []string
	emit := func(et types.EventType, oldV, newV string, comment string) {
		events = append(events, eventRecord{
			issueID: cur.ID, eventType: et, actor: actor,
			oldValue: strPtr(oldV), newValue: strPtr(newV), comment: comment,
		})
	}

	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, false, storage.Invalidf("title is required")
		}
		if len(title) > types.MaxTitleLength {
			return nil, false, storage.Invalidf("title must be %d characters or less (got %d)", types.MaxTitleLength, len(title))
		}
		if title != cur.Title {
			emit(types.EventTitleChanged, cur.Title, title, "")
			cur.Title = title
		}
	}
	if upd.Priority != nil && *upd.Priority != cur.Priority {
		if err := types.ValidatePriority(*upd.Priority); err != nil {
			return nil, false, storage.Invalidf("%v", err)
		}
		emit(types.EventPriorityChanged, fmt.Sprint(cur.Priority), fmt.Sprint(*upd.Priority), "")
		cur.Priority = *upd.Priority
	}
	if upd.Assignee != nil {
		assignee := strings.TrimSpace(*upd.Assignee)
		if assignee != cur.Assignee {
			emit(types.EventAssigneeChanged, cur.Assignee, assignee, "")
			cur.Assignee = assignee
		}
	}
	if upd.Description != nil && *upd.Description != cur.Description {
		emit(types.EventDescriptionChanged, cur.Description, *upd.Description, "")
		cur.Description = *upd.Description
	}
	if upd.Notes != nil && *upd.Notes != cur.Notes {
		emit(types.EventNotesChanged, cur.Notes, *upd.Notes, "")
		cur.Notes = *upd.Notes
	}
	if upd.ParentID != nil {
		parent := strings.TrimSpace(*upd.ParentID)
		if parent != cur.ParentID {
			if err := s.checkParent(ctx, tx, cur.ID, parent); err != nil {
				return nil, false, err
			}
			emit(types.EventParentChanged, cur.ParentID, parent, "")
			cur.ParentID = parent
		}
	}

	if len(upd.Fields) > 0 {
		merged, changed, err := storage.MergeFields(cur.Fields, upd.Fields)
		if err != nil {
			return nil, false, err
		}
		set := make(map[string]any, len(changed))
		for _, k := range changed {
			if v, ok := merged[k]; ok {
				set[k] = v
			}
		}
		if problems := s.registry.ValidateFieldValues(cur.Type, set); len(problems) > 0 {
			return nil, false, storage.Invalidf("%s", strings.Join(problems, "; "))
		}
		for _, k := range changed {
			emit(types.EventFieldChanged, storage.EncodeValue(cur.Fields[k]), storage.EncodeValue(merged[k]), k)
		}
		if len(merged) == 0 {
			merged = nil
		}
		cur.Fields = merged
	}

	if upd.Status != nil {
		to := strings.TrimSpace(*upd.Status)
		if to != cur.Status {
			w, err := s.checkTransition(cur, to, opts.allowUndeclared)
			if err != nil {
				return nil, false, err
			}
			warnings = append(warnings, w...)
			et := opts.statusEvent
			if et == "" {
				et = types.EventStatusChanged
			}
			emit(et, cur.Status, to, opts.comment)

			cur.Status = to
			cur.StatusCategory = s.registry.GetCategory(cur.Type, to)
			now := s.clock()
			if cur.StatusCategory == types.CategoryDone {
				cur.ClosedAt = &now
			} else {
				// an archived issue leaving done rejoins the live set
				cur.ClosedAt = nil
				cur.ArchivedAt = nil
			}
		}
	}

	if len(events) == 0 {
		return warnings, false, nil
	}

	cur.UpdatedAt = s.clock()
	fields, err := storage.EncodeFields(cur.Fields)
	if err != nil {
		return nil, false, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE issues SET title = ?, status = ?, priority = ?, parent_id = ?, assignee = ?,
			description = ?, notes = ?, fields = ?, updated_at = ?, closed_at = ?, archived_at = ?
		WHERE id = ?
	`, cur.Title, cur.Status, cur.Priority, nullString(cur.ParentID), cur.Assignee,
		cur.Description, cur.Notes, fields, formatTime(cur.UpdatedAt), formatTimePtr(cur.ClosedAt),
		formatTimePtr(cur.ArchivedAt), cur.ID)
	if err != nil {
		return nil, false, wrapDBError("update issue "+cur.ID, err)
	}

	if !opts.suppressEvents {
		for _, ev := range events {
			if _, err := s.recordEvent(ctx, tx, ev); err != nil {
				return nil, false, err
			}
		}
	}
	return warnings, true, nil
}

// checkTransition validates a status change against the type's workflow and
// returns soft-gate warnings.
func (s *SQLiteStorage) checkTransition(cur *types.Issue, to string, allowUndeclared bool) ([]string, error) {
	if to == "" {
		return nil, storage.Invalidf("status is required")
	}
	if s.registry.IsKnownType(cur.Type) && !s.registry.IsValidState(cur.Type, to) {
		return nil, storage.Invalidf("invalid status %q for type %q (valid: %s)",
			to, cur.Type, strings.Join(s.registry.GetValidStates(cur.Type), ", "))
	}
	res := s.registry.ValidateTransition(cur.Type, cur.Status, to, cur.Fields)
	if res.Allowed {
		return res.Warnings, nil
	}
	undeclared := res.Enforcement == ""
	if undeclared && allowUndeclared {
		return nil, nil
	}
	te := &storage.TransitionError{
		IssueID:       cur.ID,
		Type:          cur.Type,
		From:          cur.Status,
		To:            to,
		MissingFields: res.MissingFields,
		ValidNext:     s.registry.NextStateNames(cur.Type, cur.Status),
	}
	if undeclared {
		te.Reason = "not in the standard workflow"
	} else {
		te.Reason = "hard gate"
	}
	return nil, te
}

// checkParent rejects a parent that is missing, the issue itself, or one of
// its descendants.
func (s *SQLiteStorage) checkParent(ctx context.Context, q queryer, id, parent string) error {
	if parent == "" {
		return nil
	}
	if parent == id {
		return storage.Invalidf("issue cannot be its own parent")
	}
	if err := s.requireIssue(ctx, q, parent); err != nil {
		return fmt.Errorf("parent: %w", err)
	}
	cursor := parent
	for depth := 0; cursor != "" && depth < 1000; depth++ {
		var next sql.NullString
		if err := q.QueryRowContext(ctx, `SELECT parent_id FROM issues WHERE id = ?`, cursor).Scan(&next); err != nil {
			return wrapDBError("walk parents", err)
		}
		if next.String == id {
			return storage.Invalidf("setting parent of %s to %s would create a hierarchy cycle", id, parent)
		}
		cursor = next.String
	}
	return nil
}

// UpdateIssue applies upd through the validated mutation path.
func (s *SQLiteStorage) UpdateIssue(ctx context.Context, id string, upd types.IssueUpdate, actor string) (*types.Issue, error) {
	var warnings []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.getIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		warnings, _, err = s.applyUpdate(ctx, tx, cur, upd, actor, applyOpts{})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.withWarnings(ctx, id, warnings)
}

func (s *SQLiteStorage) withWarnings(ctx context.Context, id string, warnings []string) (*types.Issue, error) {
	issue, err := s.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	issue.Warnings = warnings
	return issue, nil
}

// CloseIssue moves an issue into a done state. Fields in opts are merged
// first so a hard gate can be satisfied in the same call.
func (s *SQLiteStorage) CloseIssue(ctx context.Context, id string, opts storage.CloseOptions, actor string) (*types.Issue, error) {
	var warnings []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.getIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		warnings, err = s.closeIssueTx(ctx, tx, cur, opts, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.withWarnings(ctx, id, warnings)
}

func (s *SQLiteStorage) closeIssueTx(ctx context.Context, tx *sql.Tx, cur *types.Issue, opts storage.CloseOptions, actor string) ([]string, error) {
	if cur.StatusCategory == types.CategoryDone {
		return nil, storage.Invalidf("%s is already closed (status %q)", cur.ID, cur.Status)
	}
	target, fallback, err := s.closeTarget(cur, opts.Status)
	if err != nil {
		return nil, err
	}
	var warnings []string
	if fallback {
		warnings = append(warnings, fmt.Sprintf("no declared transition from %q to a done state; closing to %q", cur.Status, target))
	}
	w, _, err := s.applyUpdate(ctx, tx, cur, types.IssueUpdate{Status: &target, Fields: opts.Fields}, actor,
		applyOpts{allowUndeclared: fallback, comment: opts.Reason})
	if err != nil {
		return nil, err
	}
	return append(warnings, w...), nil
}

// closeTarget picks the done state to close into. fallback reports that no
// declared transition leads there.
func (s *SQLiteStorage) closeTarget(cur *types.Issue, explicit string) (string, bool, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if s.registry.GetCategory(cur.Type, explicit) != types.CategoryDone {
			return "", false, storage.Invalidf("%q is not a done state for type %q", explicit, cur.Type)
		}
		return explicit, false, nil
	}
	if tmpl, ok := s.registry.GetType(cur.Type); ok {
		for _, tr := range tmpl.TransitionsFrom(cur.Status) {
			if s.registry.GetCategory(cur.Type, tr.To) == types.CategoryDone {
				return tr.To, false, nil
			}
		}
	}
	done, ok := s.registry.GetFirstStateOfCategory(cur.Type, types.CategoryDone)
	if !ok {
		return "", false, storage.Invalidf("type %q has no done state", cur.Type)
	}
	return done, true, nil
}

// ReopenIssue moves a done issue back to its type's first open state and
// clears closed_at and archived_at.
func (s *SQLiteStorage) ReopenIssue(ctx context.Context, id string, actor string) (*types.Issue, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.getIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.StatusCategory != types.CategoryDone {
			return storage.Invalidf("%s is not closed (status %q)", id, cur.Status)
		}
		target, ok := s.registry.GetFirstStateOfCategory(cur.Type, types.CategoryOpen)
		if !ok {
			return storage.Invalidf("type %q has no open state to reopen into", cur.Type)
		}
		_, _, err = s.applyUpdate(ctx, tx, cur, types.IssueUpdate{Status: &target}, actor,
			applyOpts{allowUndeclared: true, statusEvent: types.EventReopened})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetIssue(ctx, id)
}

// ListIssues returns issues matching filter. Archived issues are excluded
// unless filter.IncludeArchived is set.
func (s *SQLiteStorage) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	return s.queryIssues(ctx, filter, "", nil)
}

// SearchIssues matches every whitespace-separated term against id, title,
// description and notes, case-insensitively.
func (s *SQLiteStorage) SearchIssues(ctx context.Context, query string, filter types.IssueFilter) ([]*types.Issue, error) {
	var clauses []string
	var args []any
	for _, term := range strings.Fields(query) {
		pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
		clauses = append(clauses, `(lower(id) LIKE ? ESCAPE '\' OR lower(title) LIKE ? ESCAPE '\' OR lower(description) LIKE ? ESCAPE '\' OR lower(notes) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern, pattern)
	}
	return s.queryIssues(ctx, filter, strings.Join(clauses, " AND "), args)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *SQLiteStorage) queryIssues(ctx context.Context, filter types.IssueFilter, extra string, extraArgs []any) ([]*types.Issue, error) {
	var where []string
	var args []any
	if !filter.IncludeArchived {
		where = append(where, "archived_at IS NULL")
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Assignee != nil {
		where = append(where, "assignee = ?")
		args = append(args, *filter.Assignee)
	}
	if filter.ParentID != nil {
		if *filter.ParentID == "" {
			where = append(where, "parent_id IS NULL")
		} else {
			where = append(where, "parent_id = ?")
			args = append(args, *filter.ParentID)
		}
	}
	if filter.Label != "" {
		where = append(where, "EXISTS (SELECT 1 FROM labels l WHERE l.issue_id = issues.id AND l.label = ?)")
		args = append(args, filter.Label)
	}
	if filter.Priority != nil {
		where = append(where, "priority = ?")
		args = append(args, *filter.Priority)
	}
	if filter.PriorityMin != nil {
		where = append(where, "priority >= ?")
		args = append(args, *filter.PriorityMin)
	}
	if filter.PriorityMax != nil {
		where = append(where, "priority <= ?")
		args = append(args, *filter.PriorityMax)
	}
	if extra != "" {
		where = append(where, extra)
		args = append(args, extraArgs...)
	}

	query := `SELECT ` + issueSelectColumns + ` FROM issues`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderBy(filter.Sort)
	// Categories are derived from the registry, so that filter runs after the scan.
	if filter.Limit > 0 && filter.Category == "" {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list issues", err)
	}
	issues, err := s.scanIssues(rows)
	if err != nil {
		return nil, err
	}
	if filter.Category != "" {
		kept := issues[:0]
		for _, is := range issues {
			if is.StatusCategory == filter.Category {
				kept = append(kept, is)
			}
		}
		issues = kept
		if filter.Limit > 0 && len(issues) > filter.Limit {
			issues = issues[:filter.Limit]
		}
	}
	if err := s.hydrate(ctx, s.db, issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func orderBy(opts []types.IssueSortOption) string {
	if len(opts) == 0 {
		opts = types.DefaultIssueSortOptions()
	}
	var terms []string
	hasID := false
	for _, o := range opts {
		col := o.Field.Column()
		if col == "" {
			continue
		}
		dir := "ASC"
		if o.Direction == types.SortDesc {
			dir = "DESC"
		}
		terms = append(terms, col+" "+dir)
		hasID = hasID || col == "id"
	}
	if !hasID {
		terms = append(terms, "id ASC")
	}
	return strings.Join(terms, ", ")
}

// normalizeLabels trims and dedupes labels, rejecting names reserved as types.
func (s *SQLiteStorage) normalizeLabels(in []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, l := range in {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		if err := s.checkLabel(l); err != nil {
			return nil, err
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out, nil
}
