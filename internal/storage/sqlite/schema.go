package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// schemaVersion is bumped whenever schema changes shape.
const schemaVersion = 1

const schema = `
-- Issues table. Status is free text validated against the template registry;
-- closed_at is maintained by the store from the status category.
CREATE TABLE IF NOT EXISTS issues (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    type TEXT NOT NULL DEFAULT 'task',
    status TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 2 CHECK(priority >= 0 AND priority <= 4),
    parent_id TEXT REFERENCES issues(id),
    assignee TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    fields TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    closed_at TEXT,
    archived_at TEXT,
    CHECK (parent_id IS NULL OR parent_id <> id)
);

CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
CREATE INDEX IF NOT EXISTS idx_issues_type ON issues(type);
CREATE INDEX IF NOT EXISTS idx_issues_parent ON issues(parent_id);
CREATE INDEX IF NOT EXISTS idx_issues_assignee ON issues(assignee);
CREATE INDEX IF NOT EXISTS idx_issues_priority_created ON issues(priority, created_at);
CREATE INDEX IF NOT EXISTS idx_issues_closed_at ON issues(closed_at);

-- Dependencies: issue_id depends on (is blocked by) depends_on_id.
CREATE TABLE IF NOT EXISTS dependencies (
    issue_id TEXT NOT NULL REFERENCES issues(id),
    depends_on_id TEXT NOT NULL REFERENCES issues(id),
    created_at TEXT NOT NULL,
    created_by TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (issue_id, depends_on_id),
    CHECK (issue_id <> depends_on_id)
);

CREATE INDEX IF NOT EXISTS idx_dependencies_depends_on ON dependencies(depends_on_id);

CREATE TABLE IF NOT EXISTS labels (
    issue_id TEXT NOT NULL REFERENCES issues(id),
    label TEXT NOT NULL,
    PRIMARY KEY (issue_id, label)
);

CREATE INDEX IF NOT EXISTS idx_labels_label ON labels(label);

CREATE TABLE IF NOT EXISTS comments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    issue_id TEXT NOT NULL REFERENCES issues(id),
    author TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comments_issue ON comments(issue_id, id);

-- Events are append-only. undoes_event_id is not a foreign key so that
-- CompactEvents may trim the events an undo marker points at.
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    issue_id TEXT NOT NULL REFERENCES issues(id),
    event_type TEXT NOT NULL,
    actor TEXT NOT NULL DEFAULT '',
    old_value TEXT,
    new_value TEXT,
    comment TEXT NOT NULL DEFAULT '',
    undoes_event_id INTEGER,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_issue ON events(issue_id, id);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at, id);
CREATE INDEX IF NOT EXISTS idx_events_undoes ON events(undoes_event_id);

CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

func initSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = 'schema_version'`).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		_, err = db.ExecContext(ctx, `INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', ?)`,
			strconv.Itoa(schemaVersion))
		if err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("corrupt schema_version %q", raw)
	}
	if v > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than this binary supports (%d)", v, schemaVersion)
	}
	return nil
}
