package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CODESCOPE_*). A missing file is not an
// error; the defaults apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// CODESCOPE_WATCH__DEBOUNCE -> watch.debounce
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// LoadForRoot loads <root>/.codescope.yml.
func LoadForRoot(root string) (*Config, error) {
	return Load(filepath.Join(root, FileName))
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// DBPath resolves the storage path against the index root.
func (c *Config) DBPath(root string) string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(root, filepath.FromSlash(c.Storage.Path))
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverModernc, DriverCgo:
	default:
		return fmt.Errorf("invalid storage.driver %q: must be one of sqlite, sqlite3", c.Storage.Driver)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Index.Workers < 0 {
		return fmt.Errorf("index.workers must be non-negative")
	}
	if c.Index.ParseTimeout <= 0 {
		return fmt.Errorf("index.parse_timeout must be positive")
	}
	if c.Index.ChunkLines < 1 {
		return fmt.Errorf("index.chunk_lines must be at least 1")
	}
	if c.Index.ChunkOverlap < 0 || 2*c.Index.ChunkOverlap > c.Index.ChunkLines {
		return fmt.Errorf("index.chunk_overlap must be between 0 and chunk_lines/2")
	}
	for _, p := range append(append([]string{}, c.Index.Include...), c.Index.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid glob %q", p)
		}
	}
	if c.Query.DefaultLimit < 1 {
		return fmt.Errorf("query.default_limit must be at least 1")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must be non-negative")
	}
	if c.Watch.QueueSize < 1 {
		return fmt.Errorf("watch.queue_size must be at least 1")
	}
	if c.Watch.EventsPerSecond < 0 {
		return fmt.Errorf("watch.events_per_second must be non-negative")
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format)
	}
	return nil
}
