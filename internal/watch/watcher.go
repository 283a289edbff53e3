package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codescope/internal/walker"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

const (
	DefaultDebounce     = 300 * time.Millisecond
	DefaultPollInterval = 5 * time.Second
)

// Options configure a Watcher.
type Options struct {
	Debounce     time.Duration
	PollInterval time.Duration
	// EventsPerSecond caps dispatch into the queue. Zero means unlimited.
	EventsPerSecond float64
	// Poll skips fsnotify and always scans.
	Poll   bool
	Logger *slog.Logger
}

// Watcher watches a tree and pushes debounced, slash-separated relative
// paths of changed files into a Queue.
type Watcher struct {
	root    string
	matcher *walker.Matcher
	queue   *Queue
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

func NewWatcher(root string, m *walker.Matcher, q *Queue, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	w := &Watcher{
		root:    root,
		matcher: m,
		queue:   q,
		opts:    opts,
		log:     opts.Logger,
		pending: make(map[string]time.Time),
	}
	if opts.EventsPerSecond > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(opts.EventsPerSecond), max(1, int(opts.EventsPerSecond)))
	}
	return w
}

// Run watches until ctx is cancelled. It falls back to polling when
// fsnotify cannot be initialised.
func (w *Watcher) Run(ctx context.Context) error {
	abs, err := filepath.Abs(w.root)
	if err != nil {
		return fmt.Errorf("resolving watch root: %w", err)
	}
	w.root = abs

	go w.dispatch(ctx)

	if !w.opts.Poll {
		fw, err := fsnotify.NewWatcher()
		if err == nil {
			defer fw.Close()
			return w.notify(ctx, fw)
		}
		w.log.Warn("watch.fsnotify.unavailable", "err", err, "poll_interval", w.opts.PollInterval)
	}
	return w.poll(ctx)
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// mark records a change; dispatch sends it once it has been quiet for the
// debounce interval.
func (w *Watcher) mark(rel string) {
	w.mu.Lock()
	w.pending[rel] = time.Now()
	w.mu.Unlock()
}

// addTree watches dir and its non-ignored subdirectories. With markFiles,
// files found below dir are marked as changed.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string, markFiles bool) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, ok := w.rel(p)
		if d.IsDir() {
			if ok && w.matcher.SkipDir(rel) {
				return filepath.SkipDir
			}
			if err := fw.Add(p); err != nil {
				w.log.Debug("watch.add.failed", "path", p, "err", err)
			}
			return nil
		}
		if markFiles && ok && !w.matcher.Excluded(rel) {
			w.mark(rel)
		}
		return nil
	})
}

func (w *Watcher) notify(ctx context.Context, fw *fsnotify.Watcher) error {
	w.addTree(fw, w.root, false)
	w.log.Info("watch.start", "root", w.root, "mode", "fsnotify", "debounce", w.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch.error", "err", err)
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event) {
	rel, ok := w.rel(ev.Name)
	if !ok {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.matcher.SkipDir(rel) {
				w.addTree(fw, ev.Name, true)
			}
			return
		}
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		// could have been a file or a whole directory; the indexer sorts
		// out which
		w.mark(rel)
		return
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
		if !w.matcher.Excluded(rel) {
			w.mark(rel)
		}
	}
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

func (w *Watcher) scan(ctx context.Context) (map[string]fileStamp, error) {
	files, err := walker.Collect(ctx, w.root, w.matcher)
	if err != nil {
		return nil, err
	}
	out := make(map[string]fileStamp, len(files))
	for _, f := range files {
		out[f.RelPath] = fileStamp{size: f.Size, modTime: f.ModTime}
	}
	return out, nil
}

func (w *Watcher) poll(ctx context.Context) error {
	w.log.Info("watch.start", "root", w.root, "mode", "poll", "interval", w.opts.PollInterval)
	known, err := w.scan(ctx)
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current, err := w.scan(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.log.Warn("watch.poll.failed", "err", err)
				continue
			}
			for rel, st := range current {
				if old, ok := known[rel]; !ok || old != st {
					w.mark(rel)
				}
			}
			for rel := range known {
				if _, ok := current[rel]; !ok {
					w.mark(rel)
				}
			}
			known = current
		}
	}
}

// dispatch moves quiet paths from the pending map into the queue.
func (w *Watcher) dispatch(ctx context.Context) {
	tick := min(max(w.opts.Debounce/3, 10*time.Millisecond), 100*time.Millisecond)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now()
		var ready []string
		w.mu.Lock()
		for rel, at := range w.pending {
			if now.Sub(at) >= w.opts.Debounce {
				ready = append(ready, rel)
				delete(w.pending, rel)
			}
		}
		w.mu.Unlock()

		for _, rel := range ready {
			if w.limiter != nil {
				if err := w.limiter.Wait(ctx); err != nil {
					return
				}
			}
			if err := w.queue.Push(ctx, rel); err != nil {
				return
			}
			w.log.Debug("watch.dispatch", "path", rel)
		}
	}
}

// Pending is the number of changes waiting out the debounce interval.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
