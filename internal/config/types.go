package config

import (
	"runtime"
	"time"
)

// FileName is the per-project configuration file looked up in the index root.
const FileName = ".codescope.yml"

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore: CODESCOPE_INDEX__WORKERS=8 sets index.workers.
const EnvPrefix = "CODESCOPE_"

// Config is the top-level codescope configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage" koanf:"storage"`
	Index   IndexConfig   `yaml:"index" koanf:"index"`
	Query   QueryConfig   `yaml:"query" koanf:"query"`
	Cache   CacheConfig   `yaml:"cache" koanf:"cache"`
	Watch   WatchConfig   `yaml:"watch" koanf:"watch"`
	Log     LogConfig     `yaml:"log" koanf:"log"`
}

// StorageConfig selects the database location and driver.
type StorageConfig struct {
	// Path is relative to the index root unless absolute.
	Path        string        `yaml:"path" koanf:"path"`
	Driver      string        `yaml:"driver" koanf:"driver"`
	BusyTimeout time.Duration `yaml:"busy_timeout" koanf:"busy_timeout"`
}

// IndexConfig controls the indexing pipeline.
type IndexConfig struct {
	Workers         int           `yaml:"workers" koanf:"workers"`
	ParseTimeout    time.Duration `yaml:"parse_timeout" koanf:"parse_timeout"`
	MaxFileSize     int64         `yaml:"max_file_size" koanf:"max_file_size"`
	ChunkLines      int           `yaml:"chunk_lines" koanf:"chunk_lines"`
	ChunkOverlap    int           `yaml:"chunk_overlap" koanf:"chunk_overlap"`
	Include         []string      `yaml:"include" koanf:"include"`
	Exclude         []string      `yaml:"exclude" koanf:"exclude"`
	FollowGitignore bool          `yaml:"follow_gitignore" koanf:"follow_gitignore"`
}

// QueryConfig controls the query router.
type QueryConfig struct {
	DefaultLimit    int `yaml:"default_limit" koanf:"default_limit"`
	MaxSymbolLength int `yaml:"max_symbol_length" koanf:"max_symbol_length"`
}

// CacheConfig sizes the query result cache.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries" koanf:"max_entries"`
	TTL        time.Duration `yaml:"ttl" koanf:"ttl"`
}

// WatchConfig controls the file watcher and re-index queue.
type WatchConfig struct {
	Debounce        time.Duration `yaml:"debounce" koanf:"debounce"`
	QueueSize       int           `yaml:"queue_size" koanf:"queue_size"`
	Workers         int           `yaml:"workers" koanf:"workers"`
	EventsPerSecond float64       `yaml:"events_per_second" koanf:"events_per_second"`
	PollInterval    time.Duration `yaml:"poll_interval" koanf:"poll_interval"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:        ".codescope/index.db",
			Driver:      DriverModernc,
			BusyTimeout: 5 * time.Second,
		},
		Index: IndexConfig{
			Workers:         runtime.NumCPU(),
			ParseTimeout:    5 * time.Second,
			MaxFileSize:     1 << 20,
			ChunkLines:      50,
			ChunkOverlap:    10,
			FollowGitignore: true,
		},
		Query: QueryConfig{
			DefaultLimit:    20,
			MaxSymbolLength: 64,
		},
		Cache: CacheConfig{
			MaxEntries: 512,
			TTL:        5 * time.Minute,
		},
		Watch: WatchConfig{
			Debounce:     300 * time.Millisecond,
			QueueSize:    1024,
			Workers:      2,
			PollInterval: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Storage drivers.
const (
	DriverModernc = "sqlite"
	DriverCgo     = "sqlite3"
)
