// Package sqlite implements the storage interface using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	// Import SQLite driver
	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/trellis-tracker/trellis/internal/debug"
	"github.com/trellis-tracker/trellis/internal/idgen"
	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/templates"
)

// SQLiteStorage implements storage.Storage on a single SQLite file.
type SQLiteStorage struct {
	db       *sql.DB
	dbPath   string
	prefix   string
	registry *templates.Registry
	now      func() time.Time
	closed   atomic.Bool
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// Option configures a store at construction.
type Option func(*SQLiteStorage)

// WithRegistry injects the template registry. Without it the store loads the
// default built-in packs.
func WithRegistry(r *templates.Registry) Option {
	return func(s *SQLiteStorage) { s.registry = r }
}

// WithClock overrides time.Now, for tests that need deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStorage) { s.now = now }
}

// setupWASMCache configures WASM compilation caching to reduce SQLite startup time.
// Returns the cache directory path (empty string if using in-memory cache).
//
// The cache lives under os.UserCacheDir()/trellis/wasm and is keyed by wazero
// version, so stale entries from older builds are simply ignored.
func setupWASMCache() string {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "trellis", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}

	// Fallback to in-memory cache if dir creation failed
	if cache == nil {
		cache = wazero.NewCompilationCache()
		cacheDir = ""
	}

	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
	return cacheDir
}

func init() {
	dir := setupWASMCache()
	debug.Logf("sqlite: wasm cache %q\n", dir)
}

// New opens (creating if needed) the database at path. prefix is used when
// minting issue ids.
func New(ctx context.Context, path, prefix string, opts ...Option) (*SQLiteStorage, error) {
	prefix = idgen.NormalizePrefix(prefix)
	if !idgen.ValidPrefix(prefix) {
		return nil, storage.Invalidf("invalid id prefix %q", prefix)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// _txlock=immediate makes every BeginTx a BEGIN IMMEDIATE, so a writer
	// takes the lock before its first read instead of failing on upgrade.
	connStr := "file:" + path +
		"?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows one writer and any number of readers.
	db.SetMaxOpenConns(runtime.NumCPU() + 1)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	s := &SQLiteStorage{
		db:     db,
		dbPath: absPath,
		prefix: prefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = templates.NewDefaultRegistry()
	}
	return s, nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStorage) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Path returns the absolute path to the database file.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// Prefix returns the id prefix used for new issues.
func (s *SQLiteStorage) Prefix() string {
	return s.prefix
}

// Registry returns the template registry the store validates against.
func (s *SQLiteStorage) Registry() *templates.Registry {
	return s.registry
}

// UnderlyingDB exposes the connection pool for diagnostics.
func (s *SQLiteStorage) UnderlyingDB() *sql.DB {
	return s.db
}

func (s *SQLiteStorage) clock() time.Time {
	return s.now().UTC()
}
