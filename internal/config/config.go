// Package config reads and writes the project config document that lives in
// the .trellis directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/trellis-tracker/trellis/internal/debug"
)

const (
	// FileName is the config document written by Init.
	FileName = "config.json"

	DefaultPrefix = "trl"
)

// candidate document names, in lookup order
var fileNames = []string{"config.json", "config.yaml", "config.yml"}

// Mode describes how the project database is used.
type Mode string

const (
	ModeLocal  Mode = "local"  // a single process owns the database
	ModeShared Mode = "shared" // several agents on one machine share it
)

var validModes = map[Mode]bool{ModeLocal: true, ModeShared: true}

// Config is the parsed project config document.
type Config struct {
	Prefix string `json:"prefix"`
	Mode   Mode   `json:"mode"`
	// EnabledPacks is nil when the document omits the key or its value is
	// malformed; callers then fall back to their default pack set.
	EnabledPacks []string `json:"enabled_packs,omitempty"`
	Actor        string   `json:"actor,omitempty"`

	// Path is the document the values were read from, empty if none exists.
	Path string `json:"-"`
}

// Default returns the config used for a project without a document.
func Default() *Config {
	return &Config{Prefix: DefaultPrefix, Mode: ModeLocal}
}

// Path returns the existing config document in dir, or the default
// config.json location when none exists yet.
func Path(dir string) string {
	for _, name := range fileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, FileName)
}

// Load reads the config document from dir. A missing document is not an
// error; environment overrides (TRELLIS_PREFIX, TRELLIS_MODE, TRELLIS_ACTOR)
// apply either way.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRELLIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("prefix", DefaultPrefix)
	v.SetDefault("mode", string(ModeLocal))

	cfg := &Config{}
	path := Path(dir)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		cfg.Path = path
	}

	cfg.Prefix = strings.TrimSpace(v.GetString("prefix"))
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	cfg.Mode = parseMode(v.GetString("mode"))
	cfg.Actor = strings.TrimSpace(v.GetString("actor"))
	fromEnv := os.Getenv("TRELLIS_ENABLED_PACKS") != ""
	cfg.EnabledPacks = parseEnabledPacks(v.Get("enabled_packs"), fromEnv)
	return cfg, nil
}

func parseMode(value string) Mode {
	mode := Mode(strings.ToLower(strings.TrimSpace(value)))
	if mode == "" {
		return ModeLocal
	}
	if !validModes[mode] {
		debug.Warn("invalid mode in config, using default", "mode", value, "default", ModeLocal)
		return ModeLocal
	}
	return mode
}

// parseEnabledPacks accepts a list of strings, or a comma-separated string
// when the value comes from TRELLIS_ENABLED_PACKS. Any other shape is
// reported and treated as absent.
func parseEnabledPacks(raw any, fromEnv bool) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		return trimAll(v)
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				debug.Warn("enabled_packs must be a list of strings, using default packs",
					"index", i, "got", fmt.Sprintf("%T", item))
				return nil
			}
			out = append(out, s)
		}
		return trimAll(out)
	case string:
		if !fromEnv {
			debug.Warn("enabled_packs must be a list, using default packs", "got", v)
			return nil
		}
		// TRELLIS_ENABLED_PACKS="core,release"
		return trimAll(strings.Split(v, ","))
	default:
		debug.Warn("enabled_packs must be a list, using default packs", "got", fmt.Sprintf("%T", raw))
		return nil
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Save writes cfg as dir/config.json, creating dir if needed.
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	v := viper.New()
	v.Set("prefix", cfg.Prefix)
	v.Set("mode", string(cfg.Mode))
	if cfg.EnabledPacks != nil {
		v.Set("enabled_packs", cfg.EnabledPacks)
	}
	if cfg.Actor != "" {
		v.Set("actor", cfg.Actor)
	}
	path := filepath.Join(dir, FileName)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	cfg.Path = path
	return nil
}
