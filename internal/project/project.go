// Package project locates, creates and opens a trellis project directory.
//
// A project directory is named .trellis and holds the config document, the
// SQLite database and the optional packs/ and templates/ directories that
// feed the template registry.
package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/trellis-tracker/trellis/internal/config"
	"github.com/trellis-tracker/trellis/internal/debug"
	"github.com/trellis-tracker/trellis/internal/storage"
	"github.com/trellis-tracker/trellis/internal/storage/sqlite"
	"github.com/trellis-tracker/trellis/internal/telemetry"
	"github.com/trellis-tracker/trellis/internal/templates"
)

const (
	// DirName is the project directory created by Init.
	DirName = ".trellis"
	// DBName is the SQLite file inside the project directory.
	DBName = "trellis.db"
	// EnvDir overrides discovery with an explicit project directory.
	EnvDir = "TRELLIS_DIR"
)

// ErrNoProject is returned when no project directory can be found.
var ErrNoProject = errors.New("no .trellis directory found (run 'trl init')")

// ErrExists is returned by Init when the project directory already exists.
var ErrExists = errors.New("project already initialized")

var prefixRe = regexp.MustCompile(`^[a-z][a-z0-9]{0,15}$`)

// FindDir returns the project directory for start: TRELLIS_DIR when set,
// otherwise the nearest .trellis in start or its ancestors.
func FindDir(start string) (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", EnvDir, err)
		}
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return abs, nil
		}
		return "", fmt.Errorf("%s=%s: %w", EnvDir, dir, ErrNoProject)
	}

	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	// Resolve symlinks so the same project is found under any alias.
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoProject
		}
		dir = parent
	}
}

// InitOptions configures Init.
type InitOptions struct {
	Prefix       string
	Mode         config.Mode
	EnabledPacks []string
}

// Init creates root/.trellis with a config document, empty packs/ and
// templates/ directories and an empty database. It returns the project
// directory.
func Init(ctx context.Context, root string, opts InitOptions) (string, error) {
	dir := filepath.Join(root, DirName)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%s: %w", dir, ErrExists)
	}

	cfg := config.Default()
	if opts.Prefix != "" {
		cfg.Prefix = opts.Prefix
	}
	if !prefixRe.MatchString(cfg.Prefix) {
		return "", storage.Invalidf("prefix %q must be lowercase alphanumeric, starting with a letter, at most 16 characters", cfg.Prefix)
	}
	if opts.Mode != "" {
		cfg.Mode = opts.Mode
	}
	cfg.EnabledPacks = opts.EnabledPacks

	reg := templates.NewRegistry()
	if err := reg.Load(templates.LoadOptions{EnabledPacks: opts.EnabledPacks}); err != nil {
		return "", err
	}
	for _, name := range opts.EnabledPacks {
		if _, ok := reg.GetPack(name); !ok {
			return "", storage.Invalidf("unknown pack %q", name)
		}
	}

	for _, sub := range []string{"", templates.PacksDir, templates.TemplatesDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", filepath.Join(dir, sub), err)
		}
	}
	if err := config.Save(dir, cfg); err != nil {
		return "", err
	}
	store, err := sqlite.New(ctx, filepath.Join(dir, DBName), cfg.Prefix, sqlite.WithRegistry(reg))
	if err != nil {
		return "", err
	}
	if err := store.Close(); err != nil {
		return "", err
	}
	debug.Logf("project: initialized %s with prefix %q\n", dir, cfg.Prefix)
	return dir, nil
}

// Project is an opened project: its config, registry and store.
type Project struct {
	Dir      string
	Config   *config.Config
	Registry *templates.Registry
	Store    storage.Storage
}

// Open loads the config and registry of dir and opens its database. The
// store is wrapped with telemetry when that is enabled.
func Open(ctx context.Context, dir string) (*Project, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	reg := templates.NewRegistry()
	if err := reg.Load(templates.LoadOptions{Dir: dir}); err != nil {
		return nil, err
	}
	store, err := sqlite.New(ctx, filepath.Join(dir, DBName), cfg.Prefix, sqlite.WithRegistry(reg))
	if err != nil {
		return nil, err
	}
	return &Project{
		Dir:      dir,
		Config:   cfg,
		Registry: reg,
		Store:    telemetry.WrapStorage(store),
	}, nil
}

// Close closes the store.
func (p *Project) Close() error {
	return p.Store.Close()
}
