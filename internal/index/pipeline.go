package index

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"codescope/internal/chunker"
	"codescope/internal/config"
	"codescope/internal/parser"
	"codescope/internal/store"
	"codescope/internal/walker"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
)

// ErrIndexing marks failures of an index run or of a single file.
var ErrIndexing = errors.New("indexing failed")

// Keys written to the store's meta table after each run.
const (
	MetaLastDurationMs = "last_index_duration_ms"
	MetaLastIndexedAt  = "last_indexed_at"
	MetaLastRunID      = "last_run_id"
)

// State is the in-memory lifecycle of one file.
type State int

const (
	StateUnseen State = iota
	StateParsing
	StateIndexed
	StateFailed
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateParsing:
		return "parsing"
	case StateIndexed:
		return "indexed"
	case StateFailed:
		return "failed"
	case StateDegraded:
		return "degraded"
	default:
		return "unseen"
	}
}

// Outcome is what IndexFile did with a path.
type Outcome int

const (
	OutcomeIndexed Outcome = iota
	// OutcomeDegraded means symbol extraction failed and only chunks were stored.
	OutcomeDegraded
	// OutcomeUnchanged means the content hash matched and nothing was written.
	OutcomeUnchanged
	// OutcomeSkipped covers excluded, oversized and binary files.
	OutcomeSkipped
	OutcomeDeleted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIndexed:
		return "indexed"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDeleted:
		return "deleted"
	default:
		return "failed"
	}
}

// Invalidator is told about every write so cached query results can be
// dropped.
type Invalidator interface {
	InvalidateByFile(path string)
}

// ProgressFunc reports progress through a run. It is called from worker
// goroutines.
type ProgressFunc func(stage string, current, total int)

// Options control a Run.
type Options struct {
	// Force re-parses files whose hash is unchanged.
	Force    bool
	Workers  int
	Progress ProgressFunc
}

// Summary reports the results of a Run.
type Summary struct {
	RunID         string        `json:"run_id"`
	FilesTotal    int           `json:"files_total"`
	FilesIndexed  int           `json:"files_indexed"`
	FilesDegraded int           `json:"files_degraded"`
	FilesSkipped  int           `json:"files_skipped"`
	FilesExcluded int           `json:"files_excluded"`
	FilesFailed   int           `json:"files_failed"`
	FilesDeleted  int           `json:"files_deleted"`
	CallsResolved int64         `json:"calls_resolved"`
	Duration      time.Duration `json:"duration"`
}

// Pipeline indexes files below one root into a store. It is the only writer.
type Pipeline struct {
	root     string
	store    store.Store
	registry *parser.Registry
	matcher  *walker.Matcher
	cfg      config.IndexConfig
	cache    Invalidator
	log      *slog.Logger

	locks  *keyedMutex
	mu     sync.RWMutex
	states map[string]State
}

// NewPipeline builds a pipeline for root. cache may be nil.
func NewPipeline(root string, s store.Store, reg *parser.Registry, m *walker.Matcher, cfg config.IndexConfig, cache Invalidator, log *slog.Logger) *Pipeline {
	if cfg.ParseTimeout <= 0 {
		cfg.ParseTimeout = 5 * time.Second
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 1 << 20
	}
	if log == nil {
		log = slog.Default()
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Pipeline{
		root:     root,
		store:    s,
		registry: reg,
		matcher:  m,
		cfg:      cfg,
		cache:    cache,
		log:      log,
		locks:    newKeyedMutex(),
		states:   make(map[string]State),
	}
}

// Hash returns the hex xxh3-128 digest of src.
func Hash(src []byte) string {
	sum := xxh3.Hash128(src).Bytes()
	return hex.EncodeToString(sum[:])
}

// State returns the last known state of a slash-separated relative path.
func (p *Pipeline) State(rel string) State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.states[cleanRel(rel)]
}

func (p *Pipeline) setState(rel string, s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s == StateUnseen {
		delete(p.states, rel)
		return
	}
	p.states[rel] = s
}

func (p *Pipeline) invalidate(rel string) {
	if p.cache != nil {
		p.cache.InvalidateByFile(rel)
	}
}

func cleanRel(rel string) string {
	return strings.TrimPrefix(path.Clean(filepath.ToSlash(rel)), "./")
}

// IndexFile brings the stored copy of one file in line with the disk. rel
// is relative to the pipeline root. A non-nil error always comes with
// OutcomeFailed.
func (p *Pipeline) IndexFile(ctx context.Context, rel string) (Outcome, error) {
	return p.indexFile(ctx, cleanRel(rel), false)
}

func (p *Pipeline) indexFile(ctx context.Context, rel string, force bool) (Outcome, error) {
	unlock := p.locks.Lock(rel)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return OutcomeFailed, fmt.Errorf("%w: %s: %w", ErrIndexing, rel, err)
	}

	abs := filepath.Join(p.root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return p.remove(ctx, rel)
	}
	if err != nil {
		return p.fail(rel, fmt.Errorf("stat: %w", err))
	}
	if info.IsDir() {
		return OutcomeSkipped, nil
	}
	if !info.Mode().IsRegular() || p.matcher.Excluded(rel) {
		return p.drop(ctx, rel, "excluded")
	}
	if info.Size() > p.cfg.MaxFileSize {
		return p.drop(ctx, rel, "too_large")
	}

	src, err := os.ReadFile(abs)
	if err != nil {
		return p.fail(rel, fmt.Errorf("read: %w", err))
	}
	if parser.IsBinary(src) {
		return p.drop(ctx, rel, "binary")
	}

	hash := Hash(src)
	if !force {
		prev, err := p.store.GetFileMeta(ctx, rel)
		if err != nil {
			return p.fail(rel, err)
		}
		if prev != nil && prev.Hash == hash && !retryDegraded(prev) {
			if prev.Degraded {
				p.setState(rel, StateDegraded)
			} else {
				p.setState(rel, StateIndexed)
			}
			return OutcomeUnchanged, nil
		}
	}

	p.setState(rel, StateParsing)
	adapter, lang := p.registry.Lookup(rel)
	content := string(src)
	var contents store.Contents
	var parseErr error

	if err := parser.CheckContent(src); err != nil {
		parseErr = err
		content = strings.ToValidUTF8(content, "\uFFFD")
	} else if adapter != nil {
		res, err := p.parse(ctx, adapter, src)
		switch {
		case ctx.Err() != nil:
			p.setState(rel, StateUnseen)
			return OutcomeFailed, fmt.Errorf("%w: %s: %w", ErrIndexing, rel, ctx.Err())
		case err != nil:
			parseErr = err
		default:
			contents.Symbols = res.Symbols
			contents.Calls = res.Calls
			contents.Imports = res.Imports
			contents.Chunks = chunker.Collect(content, p.cfg.ChunkLines, p.cfg.ChunkOverlap)
			chunker.Tag(contents.Chunks, res.Outline)
		}
	}
	if contents.Chunks == nil {
		contents.Chunks = chunker.Collect(content, p.cfg.ChunkLines, p.cfg.ChunkOverlap)
	}

	rec := store.FileRecord{
		Path:      rel,
		Hash:      hash,
		Language:  lang,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
		IndexedAt: time.Now(),
	}
	if parseErr != nil {
		p.setState(rel, StateFailed)
		rec.Degraded = true
		rec.ParseError = parseErr.Error()
		p.log.Warn("index.file.degraded", "path", rel, "language", lang, "err", parseErr)
	}

	if _, err := p.store.UpsertFile(ctx, rec, contents); err != nil {
		if ctx.Err() != nil {
			return p.fail(rel, err)
		}
		p.log.Warn("index.store.retry", "path", rel, "err", err)
		if _, err := p.store.UpsertFile(ctx, rec, contents); err != nil {
			return p.fail(rel, err)
		}
	}
	p.invalidate(rel)

	if rec.Degraded {
		p.setState(rel, StateDegraded)
		return OutcomeDegraded, nil
	}
	p.setState(rel, StateIndexed)
	p.log.Debug("index.file.done", "path", rel, "language", lang,
		"symbols", len(contents.Symbols), "calls", len(contents.Calls), "chunks", len(contents.Chunks))
	return OutcomeIndexed, nil
}

type parseResult struct {
	res *parser.Result
	err error
}

// parse runs the adapter under the parse budget. Adapters that ignore the
// context are abandoned when the deadline passes.
func (p *Pipeline) parse(ctx context.Context, a parser.Adapter, src []byte) (*parser.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ParseTimeout)
	defer cancel()

	done := make(chan parseResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- parseResult{err: fmt.Errorf("parser panic: %v", r)}
			}
		}()
		res, err := a.Parse(ctx, src)
		if err == nil && res == nil {
			res = &parser.Result{}
		}
		done <- parseResult{res: res, err: err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s after %s", parser.ErrParseTimeout, a.Language(), p.cfg.ParseTimeout)
	}
}

func (p *Pipeline) fail(rel string, err error) (Outcome, error) {
	p.setState(rel, StateFailed)
	p.log.Warn("index.file.failed", "path", rel, "err", err)
	return OutcomeFailed, fmt.Errorf("%w: %s: %w", ErrIndexing, rel, err)
}

// drop removes rows for a file that exists but must not be indexed.
func (p *Pipeline) drop(ctx context.Context, rel, reason string) (Outcome, error) {
	deleted, err := p.store.DeleteFile(ctx, rel)
	if err != nil {
		return p.fail(rel, err)
	}
	if deleted {
		p.invalidate(rel)
	}
	p.setState(rel, StateUnseen)
	p.log.Debug("index.file.skipped", "path", rel, "reason", reason)
	return OutcomeSkipped, nil
}

// remove deletes a path that is gone from disk. It may have been a
// directory, in which case every file below it goes too.
func (p *Pipeline) remove(ctx context.Context, rel string) (Outcome, error) {
	deleted, err := p.store.DeleteFile(ctx, rel)
	if err != nil {
		return p.fail(rel, err)
	}
	if !deleted {
		paths, err := p.store.ListFilePaths(ctx)
		if err != nil {
			return p.fail(rel, err)
		}
		for _, fp := range paths {
			if !strings.HasPrefix(fp, rel+"/") {
				continue
			}
			gone, err := p.removeChild(ctx, fp)
			if err != nil {
				return p.fail(rel, err)
			}
			deleted = deleted || gone
		}
	}
	if deleted {
		p.invalidate(rel)
		p.log.Info("index.file.deleted", "path", rel)
	}
	p.setState(rel, StateUnseen)
	return OutcomeDeleted, nil
}

// removeChild deletes one file below a removed directory under its own
// lock. A file recreated in the meantime is left to its own event.
func (p *Pipeline) removeChild(ctx context.Context, rel string) (bool, error) {
	unlock := p.locks.Lock(rel)
	defer unlock()
	if _, err := os.Lstat(filepath.Join(p.root, filepath.FromSlash(rel))); err == nil {
		return false, nil
	}
	deleted, err := p.store.DeleteFile(ctx, rel)
	if err != nil {
		return false, err
	}
	p.setState(rel, StateUnseen)
	return deleted, nil
}

// retryDegraded reports whether a degraded file is parsed again although
// its content is unchanged. Invalid UTF-8 depends on content alone.
func retryDegraded(prev *store.FileRecord) bool {
	return prev.Degraded && !strings.HasPrefix(prev.ParseError, parser.ErrInvalidUTF8.Error())
}

// Run indexes every admitted file below dir, which must be the pipeline
// root or a directory inside it, then deletes stored files below dir that
// the walk no longer finds. Per-file failures are counted, not returned.
func (p *Pipeline) Run(ctx context.Context, dir string, opts Options) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.NewString()}

	prefix, err := p.relDir(dir)
	if err != nil {
		return sum, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = p.cfg.Workers
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	progress := opts.Progress
	if progress == nil {
		progress = func(string, int, int) {}
	}

	p.log.Info("index.run.start", "run_id", sum.RunID, "root", p.root, "dir", prefix, "force", opts.Force, "workers", workers)

	progress("walking", 0, 0)
	files, err := walker.CollectUnder(ctx, p.root, prefix, p.matcher)
	if err != nil {
		return sum, fmt.Errorf("%w: walking %s: %w", ErrIndexing, dir, err)
	}
	sum.FilesTotal = len(files)
	p.log.Info("index.run.discovered", "run_id", sum.RunID, "files", len(files))

	var counts [OutcomeFailed + 1]atomic.Int64
	var done atomic.Int64
	seen := make(map[string]bool, len(files))

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, f := range files {
		seen[f.RelPath] = true
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := p.indexFile(ctx, f.RelPath, opts.Force)
			if err != nil && ctx.Err() == nil {
				p.log.Debug("index.run.file_error", "path", f.RelPath, "err", err)
			}
			counts[out].Add(1)
			progress("indexing", int(done.Add(1)), len(files))
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return p.tally(sum, &counts, start), fmt.Errorf("%w: %w", ErrIndexing, err)
	}

	progress("cleaning", 0, 0)
	deleted, err := p.deleteUnseen(ctx, prefix, seen)
	counts[OutcomeDeleted].Add(int64(deleted))
	if err != nil {
		return p.tally(sum, &counts, start), fmt.Errorf("%w: removing stale files: %w", ErrIndexing, err)
	}

	progress("resolving", 0, 0)
	resolved, err := p.store.ResolveCalls(ctx)
	if err != nil {
		return p.tally(sum, &counts, start), fmt.Errorf("%w: resolving calls: %w", ErrIndexing, err)
	}
	sum.CallsResolved = resolved

	sum = p.tally(sum, &counts, start)
	meta := map[string]string{
		MetaLastDurationMs: strconv.FormatInt(sum.Duration.Milliseconds(), 10),
		MetaLastIndexedAt:  time.Now().UTC().Format(time.RFC3339),
		MetaLastRunID:      sum.RunID,
	}
	for k, v := range meta {
		if err := p.store.SetMeta(ctx, k, v); err != nil {
			return sum, fmt.Errorf("%w: recording %s: %w", ErrIndexing, k, err)
		}
	}

	p.log.Info("index.run.done",
		"run_id", sum.RunID,
		"indexed", sum.FilesIndexed,
		"degraded", sum.FilesDegraded,
		"unchanged", sum.FilesSkipped,
		"excluded", sum.FilesExcluded,
		"failed", sum.FilesFailed,
		"deleted", sum.FilesDeleted,
		"resolved", sum.CallsResolved,
		"elapsed", sum.Duration,
	)
	return sum, nil
}

func (p *Pipeline) tally(sum Summary, counts *[OutcomeFailed + 1]atomic.Int64, start time.Time) Summary {
	sum.FilesIndexed = int(counts[OutcomeIndexed].Load())
	sum.FilesDegraded = int(counts[OutcomeDegraded].Load())
	sum.FilesSkipped = int(counts[OutcomeUnchanged].Load())
	sum.FilesExcluded = int(counts[OutcomeSkipped].Load())
	sum.FilesFailed = int(counts[OutcomeFailed].Load())
	sum.FilesDeleted = int(counts[OutcomeDeleted].Load())
	sum.Duration = time.Since(start)
	return sum
}

func (p *Pipeline) deleteUnseen(ctx context.Context, prefix string, seen map[string]bool) (int, error) {
	paths, err := p.store.ListFilePaths(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rel := range paths {
		if seen[rel] || (prefix != "" && !strings.HasPrefix(rel, prefix+"/")) {
			continue
		}
		unlock := p.locks.Lock(rel)
		deleted, err := p.store.DeleteFile(ctx, rel)
		unlock()
		if err != nil {
			return n, err
		}
		if deleted {
			n++
			p.setState(rel, StateUnseen)
			p.invalidate(rel)
			p.log.Debug("index.file.deleted", "path", rel)
		}
	}
	return n, nil
}

// relDir maps dir to a slash-separated path relative to the root; "" is
// the root itself.
func (p *Pipeline) relDir(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: resolving %s: %w", ErrIndexing, dir, err)
	}
	rel, err := filepath.Rel(p.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the index root %s", ErrIndexing, dir, p.root)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}
