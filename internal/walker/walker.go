// Package walker discovers indexable files under a root directory.
package walker

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFile is the per-project ignore file, read from the index root. It
// uses gitignore syntax.
const IgnoreFile = ".codescopeignore"

// FileInfo holds metadata about a discovered source file.
type FileInfo struct {
	Path    string
	RelPath string
	Size    int64
	ModTime time.Time
}

// DefaultIgnores are applied before the ignore files.
var DefaultIgnores = []string{
	".git/",
	".svn/",
	".hg/",
	".codescope/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".venv/",
	".idea/",
	".vscode/",
	"dist/",
	"build/",
	"target/",
	".next/",
	".DS_Store",
}

// Options control which files are considered.
type Options struct {
	// Include and Exclude are doublestar globs matched against the
	// slash-separated relative path and the base name. An empty Include
	// admits everything.
	Include []string
	Exclude []string
	// FollowGitignore applies the root .gitignore.
	FollowGitignore bool
	// Supports filters by path, typically the parser registry. Nil admits
	// everything.
	Supports func(relPath string) bool
}

type rule struct {
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
}

func parseRules(lines []string) []rule {
	var rules []rule
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var r rule
		if strings.HasPrefix(line, "!") {
			r.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimRight(line, "/")
		}
		if strings.HasPrefix(line, "/") {
			r.anchored = true
			line = strings.TrimLeft(line, "/")
		} else if strings.Contains(line, "/") {
			r.anchored = true
		}
		if line == "" || !doublestar.ValidatePattern(line) {
			continue
		}
		r.pattern = line
		rules = append(rules, r)
	}
	return rules
}

func (r rule) match(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	if r.anchored {
		ok, _ := doublestar.Match(r.pattern, rel)
		return ok
	}
	ok, _ := doublestar.Match(r.pattern, path.Base(rel))
	return ok
}

// Matcher decides whether a relative path is indexed.
type Matcher struct {
	rules    []rule
	include  []string
	exclude  []string
	supports func(string) bool
}

// NewMatcher builds a Matcher for root from the default ignores, the ignore
// file, the optional .gitignore and opts.
func NewMatcher(root string, opts Options) *Matcher {
	lines := append([]string(nil), DefaultIgnores...)
	if opts.FollowGitignore {
		lines = append(lines, readLines(filepath.Join(root, ".gitignore"))...)
	}
	lines = append(lines, readLines(filepath.Join(root, IgnoreFile))...)
	return &Matcher{
		rules:    parseRules(lines),
		include:  opts.Include,
		exclude:  opts.Exclude,
		supports: opts.Supports,
	}
}

func readLines(p string) []string {
	f, err := os.Open(p)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

// ignored applies ignore rules; the last matching rule wins.
func (m *Matcher) ignored(rel string, isDir bool) bool {
	ignored := false
	for _, r := range m.rules {
		if r.match(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// SkipDir reports whether a directory and everything below it is ignored.
func (m *Matcher) SkipDir(rel string) bool {
	return m.ignored(filepath.ToSlash(rel), true)
}

// Excluded reports whether a file is not indexed: it sits in an ignored
// directory, is ignored itself, fails the include/exclude globs, or is not
// supported.
func (m *Matcher) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	dirs := strings.Split(rel, "/")
	for i := 1; i < len(dirs); i++ {
		if m.ignored(strings.Join(dirs[:i], "/"), true) {
			return true
		}
	}
	if m.ignored(rel, false) {
		return true
	}
	if len(m.include) > 0 && !matchesAny(rel, m.include) {
		return true
	}
	if matchesAny(rel, m.exclude) {
		return true
	}
	return m.supports != nil && !m.supports(rel)
}

func matchesAny(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, p := range patterns {
		p = filepath.ToSlash(p)
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
	}
	return false
}

// Walk traverses the tree rooted at root and sends every file the matcher
// admits on the returned channel. Unreadable entries are skipped. Both
// channels are closed when the walk ends or ctx is cancelled.
func Walk(ctx context.Context, root string, m *Matcher) (<-chan FileInfo, <-chan error) {
	return WalkUnder(ctx, root, "", m)
}

// WalkUnder is Walk restricted to the slash-separated directory sub below
// root. Relative paths stay relative to root.
func WalkUnder(ctx context.Context, root, sub string, m *Matcher) (<-chan FileInfo, <-chan error) {
	files := make(chan FileInfo, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		absRoot, err := filepath.Abs(root)
		if err != nil {
			errs <- err
			return
		}

		start := filepath.Join(absRoot, filepath.FromSlash(sub))
		err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == start {
					return err
				}
				return nil // skip errors, keep walking
			}
			if p == absRoot {
				return nil
			}
			rel, err := filepath.Rel(absRoot, p)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if m.SkipDir(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if m.Excluded(rel) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			select {
			case files <- FileInfo{Path: p, RelPath: rel, Size: info.Size(), ModTime: info.ModTime()}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errs <- err
		}
	}()

	return files, errs
}

// Collect drains Walk into a slice.
func Collect(ctx context.Context, root string, m *Matcher) ([]FileInfo, error) {
	return CollectUnder(ctx, root, "", m)
}

// CollectUnder drains WalkUnder into a slice.
func CollectUnder(ctx context.Context, root, sub string, m *Matcher) ([]FileInfo, error) {
	filesCh, errCh := WalkUnder(ctx, root, sub, m)
	var files []FileInfo
	for f := range filesCh {
		files = append(files, f)
	}
	if err := <-errCh; err != nil {
		return files, err
	}
	return files, nil
}
