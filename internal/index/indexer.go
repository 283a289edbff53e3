// Package index keeps a code index in sync with a source tree and exposes
// the Engine used by the CLI, the tool server and the terminal UI.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"codescope/internal/cache"
	"codescope/internal/config"
	"codescope/internal/parser"
	"codescope/internal/parser/languages"
	"codescope/internal/query"
	"codescope/internal/store"
	"codescope/internal/telemetry"
	"codescope/internal/walker"
	"codescope/internal/watch"

	"golang.org/x/sync/errgroup"
)

// Engine is the public API for indexing and querying one source tree.
type Engine struct {
	root     string
	cfg      *config.Config
	store    *store.SQLiteStore
	registry *parser.Registry
	matcher  *walker.Matcher
	pipeline *Pipeline
	cache    *cache.Cache[[]query.Result]
	latency  *telemetry.Latency
	router   *query.Router
	log      *slog.Logger
}

// Status describes the index and the query path.
type Status struct {
	Root                string        `json:"root"`
	DBPath              string        `json:"db_path"`
	FileCount           int64         `json:"file_count"`
	DegradedCount       int64         `json:"degraded_count"`
	SymbolCount         int64         `json:"symbol_count"`
	ChunkCount          int64         `json:"chunk_count"`
	CallCount           int64         `json:"call_count"`
	ImportCount         int64         `json:"import_count"`
	CacheHitRate        float64       `json:"cache_hit_rate"`
	CacheEntries        int           `json:"cache_entries"`
	LastIndexDurationMs int64         `json:"last_index_duration_ms"`
	LastIndexedAt       time.Time     `json:"last_indexed_at"`
	QueryP50            time.Duration `json:"query_p50"`
	QueryP95            time.Duration `json:"query_p95"`
	SchemaVersion       int           `json:"schema_version"`
}

// Open opens (creating if needed) the index for root with the built-in
// language adapters.
func Open(ctx context.Context, root string, cfg *config.Config, log *slog.Logger) (*Engine, error) {
	return OpenWithRegistry(ctx, root, cfg, languages.NewRegistry(), log)
}

// OpenWithRegistry is Open with an explicit adapter registry.
func OpenWithRegistry(ctx context.Context, root string, cfg *config.Config, reg *parser.Registry, log *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}

	dbPath := cfg.DBPath(abs)
	s, err := store.Open(ctx, dbPath, store.Options{
		Driver:      cfg.Storage.Driver,
		BusyTimeout: cfg.Storage.BusyTimeout,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	for _, problem := range reg.Validate() {
		log.Warn("parser.table.invalid", "problem", problem)
	}

	m := walker.NewMatcher(abs, walker.Options{
		Include:         cfg.Index.Include,
		Exclude:         cfg.Index.Exclude,
		FollowGitignore: cfg.Index.FollowGitignore,
		Supports:        reg.Supports,
	})
	c := cache.New[[]query.Result](cache.Options{MaxEntries: cfg.Cache.MaxEntries, TTL: cfg.Cache.TTL})
	lat := telemetry.NewLatency(telemetry.DefaultSamples)
	router := query.NewRouter(s, c, lat, query.Config{
		DefaultLimit:    cfg.Query.DefaultLimit,
		MaxSymbolLength: cfg.Query.MaxSymbolLength,
		Logger:          log,
	})

	e := &Engine{
		root:     abs,
		cfg:      cfg,
		store:    s,
		registry: reg,
		matcher:  m,
		pipeline: NewPipeline(abs, s, reg, m, cfg.Index, c, log),
		cache:    c,
		latency:  lat,
		router:   router,
		log:      log,
	}
	log.Debug("engine.open", "root", abs, "db", dbPath, "driver", cfg.Storage.Driver)
	return e, nil
}

func (e *Engine) Root() string { return e.root }

func (e *Engine) Config() *config.Config { return e.cfg }

// Index runs the pipeline over dir, which defaults to the engine root.
func (e *Engine) Index(ctx context.Context, dir string, opts Options) (Summary, error) {
	if dir == "" {
		dir = e.root
	}
	return e.pipeline.Run(ctx, dir, opts)
}

// IndexFile re-indexes a single root-relative path.
func (e *Engine) IndexFile(ctx context.Context, rel string) (Outcome, error) {
	return e.pipeline.IndexFile(ctx, rel)
}

// State returns the pipeline state of a root-relative path.
func (e *Engine) State(rel string) State {
	return e.pipeline.State(rel)
}

// Watch re-indexes changed files until ctx is cancelled.
func (e *Engine) Watch(ctx context.Context) error {
	wc := e.cfg.Watch
	q := watch.NewQueue(wc.QueueSize)
	w := watch.NewWatcher(e.root, e.matcher, q, watch.Options{
		Debounce:        wc.Debounce,
		PollInterval:    wc.PollInterval,
		EventsPerSecond: wc.EventsPerSecond,
		Logger:          e.log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q.Run(gctx, wc.Workers, func(ctx context.Context, rel string) {
			out, err := e.pipeline.IndexFile(ctx, rel)
			if err != nil {
				return
			}
			if out != OutcomeUnchanged {
				e.log.Info("watch.reindexed", "path", rel, "outcome", out)
			}
		})
		return nil
	})
	g.Go(func() error {
		return w.Run(gctx)
	})
	err := g.Wait()
	s := q.Stats()
	e.log.Info("watch.stop", "pushed", s.Pushed, "coalesced", s.Coalesced, "processed", s.Processed)
	return err
}

// Query answers a raw query string.
func (e *Engine) Query(ctx context.Context, raw string, opts query.Options) ([]query.Result, error) {
	return e.router.Query(ctx, raw, opts)
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	st := Status{Root: e.root, DBPath: e.cfg.DBPath(e.root)}

	counts, err := e.store.Counts(ctx)
	if err != nil {
		return st, err
	}
	st.FileCount = counts.Files
	st.DegradedCount = counts.Degraded
	st.SymbolCount = counts.Symbols
	st.ChunkCount = counts.Chunks
	st.CallCount = counts.Calls
	st.ImportCount = counts.Imports

	cs := e.cache.Stats()
	st.CacheHitRate = cs.HitRate
	st.CacheEntries = cs.Entries

	if v, err := e.store.GetMeta(ctx, MetaLastDurationMs); err != nil {
		return st, err
	} else if v != "" {
		st.LastIndexDurationMs, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, err := e.store.GetMeta(ctx, MetaLastIndexedAt); err != nil {
		return st, err
	} else if v != "" {
		st.LastIndexedAt, _ = time.Parse(time.RFC3339, v)
	}

	lat := e.latency.Snapshot()
	st.QueryP50 = lat.P50
	st.QueryP95 = lat.P95

	if st.SchemaVersion, err = e.store.SchemaVersion(ctx); err != nil {
		return st, err
	}
	return st, nil
}

func (e *Engine) limit(n int) int {
	if n <= 0 {
		return e.cfg.Query.DefaultLimit
	}
	return n
}

// Callers lists call sites of name.
func (e *Engine) Callers(ctx context.Context, name string, limit int) ([]store.CallHit, error) {
	return e.store.Callers(ctx, name, e.limit(limit))
}

// Callees lists the calls made from inside symbols called name.
func (e *Engine) Callees(ctx context.Context, name string, limit int) ([]store.CallHit, error) {
	return e.store.Callees(ctx, name, e.limit(limit))
}

// Importers lists the files importing module.
func (e *Engine) Importers(ctx context.Context, module string, limit int) ([]store.ImportRow, error) {
	return e.store.Importers(ctx, module, e.limit(limit))
}

// Imports lists what one file imports.
func (e *Engine) Imports(ctx context.Context, rel string) ([]store.ImportRow, error) {
	return e.store.ImportsOf(ctx, cleanRel(rel))
}

// Files lists indexed files, optionally for one language.
func (e *Engine) Files(ctx context.Context, language string) ([]store.FileRecord, error) {
	if language != "" {
		if lang, ok := parser.NormalizeLanguage(language); ok {
			language = lang
		}
	}
	return e.store.ListFiles(ctx, language)
}

// Reset drops every indexed file. Metadata survives.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.DeleteAll(ctx); err != nil {
		return err
	}
	e.cache.Clear()
	return nil
}

// Close releases resources.
func (e *Engine) Close() error {
	return e.store.Close()
}
