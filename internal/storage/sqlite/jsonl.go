package sqlite

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/trellis-tracker/trellis/internal/graph"
	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/types"
)

// jsonlRecord is one line of an export: {"kind": ..., "data": {...}}.
type jsonlRecord struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// issueRecord is the stored shape of an issue, without derived fields.
type issueRecord struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	Priority    int            `json:"priority"`
	ParentID    string         `json:"parent_id,omitempty"`
	Assignee    string         `json:"assignee,omitempty"`
	Description string         `json:"description,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	ArchivedAt  *time.Time     `json:"archived_at,omitempty"`
}

func toRecord(is *types.Issue) issueRecord {
	return issueRecord{
		ID: is.ID, Title: is.Title, Type: is.Type, Status: is.Status, Priority: is.Priority,
		ParentID: is.ParentID, Assignee: is.Assignee, Description: is.Description, Notes: is.Notes,
		Fields: is.Fields, CreatedAt: is.CreatedAt, UpdatedAt: is.UpdatedAt,
		ClosedAt: is.ClosedAt, ArchivedAt: is.ArchivedAt,
	}
}

func (r issueRecord) issue() *types.Issue {
	return &types.Issue{
		ID: r.ID, Title: r.Title, Type: r.Type, Status: r.Status, Priority: r.Priority,
		ParentID: r.ParentID, Assignee: r.Assignee, Description: r.Description, Notes: r.Notes,
		Fields: r.Fields, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
		ClosedAt: r.ClosedAt, ArchivedAt: r.ArchivedAt,
	}
}

type jsonlEncoder struct {
	enc    *json.Encoder
	counts map[string]int
}

func (e *jsonlEncoder) write(kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	if err := e.enc.Encode(jsonlRecord{Kind: kind, Data: data}); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	e.counts[kind]++
	return nil
}

// ExportJSONL writes every issue (archived included), dependency, label,
// comment and event as one JSON record per line. Issues come first.
func (s *SQLiteStorage) ExportJSONL(ctx context.Context, w io.Writer) (*storage.ExportResult, error) {
	bw := bufio.NewWriter(w)
	e := &jsonlEncoder{enc: json.NewEncoder(bw), counts: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT `+issueSelectColumns+` FROM issues ORDER BY created_at, id`)
	if err != nil {
		return nil, wrapDBError("export issues", err)
	}
	issues, err := s.scanIssues(rows)
	if err != nil {
		return nil, err
	}
	for _, is := range issues {
		if err := e.write(storage.KindIssue, toRecord(is)); err != nil {
			return nil, err
		}
	}

	if err := s.exportDependencies(ctx, e); err != nil {
		return nil, err
	}
	if err := s.exportLabels(ctx, e); err != nil {
		return nil, err
	}
	if err := s.exportComments(ctx, e); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT `+eventSelectColumns+` FROM events ORDER BY id`)
	if err != nil {
		return nil, wrapDBError("export events", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if err := e.write(storage.KindEvent, ev); err != nil {
			return nil, err
		}
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush export: %w", err)
	}
	return &storage.ExportResult{Counts: e.counts}, nil
}

func (s *SQLiteStorage) exportDependencies(ctx context.Context, e *jsonlEncoder) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, created_at, created_by
		FROM dependencies ORDER BY issue_id, depends_on_id
	`)
	if err != nil {
		return wrapDBError("export dependencies", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var d types.Dependency
		var createdAt string
		if err := rows.Scan(&d.IssueID, &d.DependsOnID, &createdAt, &d.CreatedBy); err != nil {
			return wrapDBError("scan dependency", err)
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		if err := e.write(storage.KindDependency, d); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) exportLabels(ctx context.Context, e *jsonlEncoder) error {
	rows, err := s.db.QueryContext(ctx, `SELECT issue_id, label FROM labels ORDER BY issue_id, label`)
	if err != nil {
		return wrapDBError("export labels", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var l types.Label
		if err := rows.Scan(&l.IssueID, &l.Label); err != nil {
			return wrapDBError("scan label", err)
		}
		if err := e.write(storage.KindLabel, l); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) exportComments(ctx context.Context, e *jsonlEncoder) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, issue_id, author, text, created_at FROM comments ORDER BY id`)
	if err != nil {
		return wrapDBError("export comments", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var c types.Comment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Author, &c.Text, &createdAt); err != nil {
			return wrapDBError("scan comment", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		if err := e.write(storage.KindComment, c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// importer carries the state of one ImportJSONL call.
type importer struct {
	s      *SQLiteStorage
	opts   storage.ImportOptions
	result *storage.ImportResult
	// known holds ids present in the database or in the import stream.
	known map[string]bool
	// existing holds ids that were in the database before the import; only
	// their comments and events can already be present.
	existing map[string]bool
	// eventIDs maps exported event ids to the local ids of the same events.
	eventIDs map[int64]int64
}

func (im *importer) ok(kind, key string) {
	im.result.Counts[kind]++
	im.result.Succeeded = append(im.result.Succeeded, key)
}

func (im *importer) fail(key string, err error) {
	im.result.Fail(key, err)
}

// ImportJSONL reads records written by ExportJSONL. Each record is applied
// in its own transaction and failures are collected per line. Issues are
// inserted before any other kind, then parent links are restored, so the
// order of lines in the stream does not matter. Imported records do not
// generate new events.
func (s *SQLiteStorage) ImportJSONL(ctx context.Context, r io.Reader, opts storage.ImportOptions) (*storage.ImportResult, error) {
	if opts.OrphanHandling == "" {
		opts.OrphanHandling = storage.OrphanAllow
	}
	im := &importer{
		s:      s,
		opts:   opts,
		result: &storage.ImportResult{Counts: make(map[string]int)},
		known:    make(map[string]bool),
		existing: make(map[string]bool),
		eventIDs: make(map[int64]int64),
	}
	im.result.Succeeded = []string{}
	im.result.Failed = []types.BatchFailure{}

	byKind := make(map[string][]lineRecord)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec jsonlRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			im.fail(fmt.Sprintf("line %d", n), storage.Invalidf("malformed record: %v", err))
			continue
		}
		byKind[rec.Kind] = append(byKind[rec.Kind], lineRecord{line: n, data: rec.Data})
		switch rec.Kind {
		case storage.KindIssue, storage.KindDependency, storage.KindLabel, storage.KindComment, storage.KindEvent:
		default:
			im.fail(fmt.Sprintf("line %d", n), storage.Invalidf("unknown record kind %q", rec.Kind))
		}
	}
	if err := scanner.Err(); err != nil {
		return im.result, fmt.Errorf("read import: %w", err)
	}

	if err := im.loadKnown(ctx, byKind[storage.KindIssue]); err != nil {
		return im.result, err
	}
	parents := im.importIssues(ctx, byKind[storage.KindIssue])
	im.restoreParents(ctx, parents)
	im.importDependencies(ctx, byKind[storage.KindDependency])
	im.importLabels(ctx, byKind[storage.KindLabel])
	im.importComments(ctx, byKind[storage.KindComment])
	im.importEvents(ctx, byKind[storage.KindEvent])
	return im.result, ctx.Err()
}

type lineRecord struct {
	line int
	data json.RawMessage
}

func (l lineRecord) key(id string) string {
	if id == "" {
		return fmt.Sprintf("line %d", l.line)
	}
	return id
}

func (im *importer) loadKnown(ctx context.Context, issues []lineRecord) error {
	rows, err := im.s.db.QueryContext(ctx, `SELECT id FROM issues`)
	if err != nil {
		return wrapDBError("list issue ids", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return wrapDBError("scan issue id", err)
		}
		im.known[id] = true
		im.existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, l := range issues {
		var head struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(l.data, &head) == nil && head.ID != "" {
			im.known[head.ID] = true
		}
	}
	return nil
}

// importIssues inserts issues without parents and returns the parent links
// to restore once every issue exists.
func (im *importer) importIssues(ctx context.Context, lines []lineRecord) map[string]string {
	parents := make(map[string]string)
	for _, l := range lines {
		var rec issueRecord
		if err := json.Unmarshal(l.data, &rec); err != nil {
			im.fail(l.key(""), storage.Invalidf("malformed issue: %v", err))
			continue
		}
		issue := rec.issue()
		if err := im.checkIssue(issue); err != nil {
			im.fail(l.key(issue.ID), err)
			continue
		}
		parent := issue.ParentID
		if parent != "" && !im.known[parent] {
			switch im.opts.OrphanHandling {
			case storage.OrphanStrict:
				im.fail(issue.ID, storage.NotFoundf("parent %s of %s", parent, issue.ID))
				continue
			case storage.OrphanSkip:
				im.result.Skipped = append(im.result.Skipped, issue.ID)
				continue
			default:
				parent = ""
			}
		}
		issue.ParentID = ""

		err := im.s.withTx(ctx, func(tx *sql.Tx) error {
			return insertIssueRow(ctx, tx, issue)
		})
		if errors.Is(err, storage.ErrConflict) && im.opts.Merge {
			im.result.Skipped = append(im.result.Skipped, issue.ID)
			continue
		}
		if err != nil {
			im.fail(issue.ID, err)
			continue
		}
		im.ok(storage.KindIssue, issue.ID)
		if parent != "" {
			parents[issue.ID] = parent
		}
	}
	return parents
}

// checkIssue validates an imported row. Unknown types and stale statuses
// are tolerated; closed_at is reconciled with the status category.
func (im *importer) checkIssue(issue *types.Issue) error {
	if issue.ID == "" {
		return storage.Invalidf("issue id is required")
	}
	if issue.Type == "" {
		issue.Type = "task"
	}
	if issue.Status == "" {
		issue.Status = im.s.registry.GetInitialState(issue.Type)
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = im.s.clock()
	}
	if issue.UpdatedAt.IsZero() {
		issue.UpdatedAt = issue.CreatedAt
	}
	issue.StatusCategory = im.s.registry.GetCategory(issue.Type, issue.Status)
	if issue.StatusCategory == types.CategoryDone && issue.ClosedAt == nil {
		closed := issue.UpdatedAt
		issue.ClosedAt = &closed
	}
	if issue.StatusCategory != types.CategoryDone {
		issue.ClosedAt = nil
		issue.ArchivedAt = nil
	}
	for k := range issue.Fields {
		if err := storage.ValidateFieldKey(k); err != nil {
			return err
		}
	}
	if err := issue.Validate(); err != nil {
		return storage.Invalidf("%v", err)
	}
	return nil
}

func (im *importer) restoreParents(ctx context.Context, parents map[string]string) {
	for id, parent := range parents {
		err := im.s.withTx(ctx, func(tx *sql.Tx) error {
			if err := im.s.checkParent(ctx, tx, id, parent); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `UPDATE issues SET parent_id = ? WHERE id = ?`, parent, id)
			return wrapDBError("restore parent", err)
		})
		if err != nil {
			im.fail(id, fmt.Errorf("parent %s: %w", parent, err))
		}
	}
}

func (im *importer) importDependencies(ctx context.Context, lines []lineRecord) {
	for _, l := range lines {
		var d types.Dependency
		if err := json.Unmarshal(l.data, &d); err != nil || d.IssueID == "" || d.DependsOnID == "" {
			im.fail(l.key(""), storage.Invalidf("malformed dependency"))
			continue
		}
		key := d.IssueID + "->" + d.DependsOnID
		var added bool
		err := im.s.withTx(ctx, func(tx *sql.Tx) error {
			added = false
			if d.IssueID == d.DependsOnID {
				return storage.Invalidf("self dependency on %s", d.IssueID)
			}
			if err := im.s.requireIssue(ctx, tx, d.IssueID); err != nil {
				return err
			}
			if err := im.s.requireIssue(ctx, tx, d.DependsOnID); err != nil {
				return err
			}
			edges, err := loadEdges(ctx, tx)
			if err != nil {
				return err
			}
			g := graph.New(nil, edges)
			for _, b := range g.BlockedBy(d.IssueID) {
				if b == d.DependsOnID {
					return nil
				}
			}
			if path := g.WouldCycle(d.IssueID, d.DependsOnID); path != nil {
				return &storage.CycleError{From: d.IssueID, To: d.DependsOnID, Path: path}
			}
			createdAt := d.CreatedAt
			if createdAt.IsZero() {
				createdAt = im.s.clock()
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO dependencies (issue_id, depends_on_id, created_at, created_by)
				VALUES (?, ?, ?, ?)
			`, d.IssueID, d.DependsOnID, formatTime(createdAt), d.CreatedBy)
			added = err == nil
			return wrapDBError("import dependency", err)
		})
		switch {
		case err != nil:
			im.fail(key, err)
		case added:
			im.ok(storage.KindDependency, key)
		default:
			im.result.Skipped = append(im.result.Skipped, key)
		}
	}
}

func (im *importer) importLabels(ctx context.Context, lines []lineRecord) {
	for _, l := range lines {
		var lb types.Label
		if err := json.Unmarshal(l.data, &lb); err != nil || lb.IssueID == "" || strings.TrimSpace(lb.Label) == "" {
			im.fail(l.key(""), storage.Invalidf("malformed label"))
			continue
		}
		key := lb.IssueID + ":" + lb.Label
		err := im.s.withTx(ctx, func(tx *sql.Tx) error {
			if err := im.s.requireIssue(ctx, tx, lb.IssueID); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)`, lb.IssueID, lb.Label)
			return wrapDBError("import label", err)
		})
		if err != nil {
			im.fail(key, err)
			continue
		}
		im.ok(storage.KindLabel, key)
	}
}

func (im *importer) importComments(ctx context.Context, lines []lineRecord) {
	for _, l := range lines {
		var c types.Comment
		if err := json.Unmarshal(l.data, &c); err != nil || c.IssueID == "" {
			im.fail(l.key(""), storage.Invalidf("malformed comment"))
			continue
		}
		key := fmt.Sprintf("comment %d", c.ID)
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = im.s.clock()
		}
		err := im.s.withTx(ctx, func(tx *sql.Tx) error {
			if err := im.s.requireIssue(ctx, tx, c.IssueID); err != nil {
				return err
			}
			if im.existing[c.IssueID] {
				dup, err := im.findRow(ctx, tx, `
					SELECT id FROM comments WHERE issue_id = ? AND author = ? AND text = ? AND created_at = ?
				`, c.IssueID, c.Author, c.Text, formatTime(createdAt))
				if err != nil {
					return err
				}
				if dup > 0 {
					return fmt.Errorf("%s already exists: %w", key, storage.ErrConflict)
				}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO comments (issue_id, author, text, created_at) VALUES (?, ?, ?, ?)
			`, c.IssueID, c.Author, c.Text, formatTime(createdAt))
			return wrapDBError("import comment", err)
		})
		im.record(storage.KindComment, key, err)
	}
}

type eventLine struct {
	lineRecord
	ev types.Event
}

// importEvents inserts events in exported id order, so an undo marker is
// stored after the event it reverts and points at that event's local id.
func (im *importer) importEvents(ctx context.Context, lines []lineRecord) {
	events := make([]eventLine, 0, len(lines))
	for _, l := range lines {
		var ev types.Event
		if err := json.Unmarshal(l.data, &ev); err != nil || ev.IssueID == "" || ev.EventType == "" {
			im.fail(l.key(""), storage.Invalidf("malformed event"))
			continue
		}
		events = append(events, eventLine{lineRecord: l, ev: ev})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].ev.ID < events[j].ev.ID })

	for _, e := range events {
		ev := e.ev
		key := fmt.Sprintf("event %d", ev.ID)
		createdAt := ev.CreatedAt
		if createdAt.IsZero() {
			createdAt = im.s.clock()
		}
		undoes := ev.UndoesEventID
		if undoes != nil {
			if mapped, ok := im.eventIDs[*undoes]; ok {
				undoes = &mapped
			}
		}
		err := im.s.withTx(ctx, func(tx *sql.Tx) error {
			if err := im.s.requireIssue(ctx, tx, ev.IssueID); err != nil {
				return err
			}
			if im.existing[ev.IssueID] {
				dup, err := im.findRow(ctx, tx, `
					SELECT id FROM events WHERE issue_id = ? AND event_type = ? AND actor = ? AND created_at = ?
				`, ev.IssueID, string(ev.EventType), ev.Actor, formatTime(createdAt))
				if err != nil {
					return err
				}
				if dup > 0 {
					if ev.ID > 0 {
						im.eventIDs[ev.ID] = dup
					}
					return fmt.Errorf("%s already exists: %w", key, storage.ErrConflict)
				}
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO events (issue_id, event_type, actor, old_value, new_value, comment, undoes_event_id, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, ev.IssueID, string(ev.EventType), ev.Actor, ev.OldValue, ev.NewValue, ev.Comment,
				undoes, formatTime(createdAt))
			if err != nil {
				return wrapDBError("import event", err)
			}
			if ev.ID > 0 {
				newID, err := res.LastInsertId()
				if err != nil {
					return wrapDBError("import event", err)
				}
				im.eventIDs[ev.ID] = newID
			}
			return nil
		})
		im.record(storage.KindEvent, key, err)
	}
}

// findRow returns the id of the first row the query matches, or 0.
func (im *importer) findRow(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, wrapDBError("find imported row", err)
}

// record books the outcome of an id-keyed insert, honouring merge mode.
func (im *importer) record(kind, key string, err error) {
	switch {
	case err == nil:
		im.ok(kind, key)
	case errors.Is(err, storage.ErrConflict) && im.opts.Merge:
		im.result.Skipped = append(im.result.Skipped, key)
	default:
		im.fail(key, err)
	}
}
