package walker

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func relPaths(t *testing.T, root string, m *Matcher) []string {
	t.Helper()
	files, err := Collect(context.Background(), root, m)
	require.NoError(t, err)
	var out []string
	for _, f := range files {
		out = append(out, f.RelPath)
		assert.Equal(t, filepath.Join(root, filepath.FromSlash(f.RelPath)), f.Path)
	}
	sort.Strings(out)
	return out
}

func TestWalkSkipsDefaultIgnores(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":                 "package main",
		"pkg/util.go":             "package pkg",
		".git/config":             "[core]",
		"node_modules/x/index.js": "module.exports = 1",
		".codescope/index.db":     "db",
		"web/node_modules/a/b.js": "x",
		"web/src/app.ts":          "export {}",
	})

	got := relPaths(t, root, NewMatcher(root, Options{}))
	assert.Equal(t, []string{"main.go", "pkg/util.go", "web/src/app.ts"}, got)
}

func TestWalkIgnoreFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		IgnoreFile:       "# generated code\ngen/\n*.pb.go\n!keep.pb.go\n/top.go\n",
		"gen/a.go":       "package gen",
		"api/x.pb.go":    "package api",
		"api/keep.pb.go": "package api",
		"top.go":         "package main",
		"sub/top.go":     "package sub",
	})

	got := relPaths(t, root, NewMatcher(root, Options{}))
	assert.Equal(t, []string{IgnoreFile, "api/keep.pb.go", "sub/top.go"}, got)
}

func TestWalkGitignoreOptional(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore": "*.log\n",
		"app.log":    "line",
		"app.go":     "package main",
	})

	got := relPaths(t, root, NewMatcher(root, Options{}))
	assert.Contains(t, got, "app.log")

	got = relPaths(t, root, NewMatcher(root, Options{FollowGitignore: true}))
	assert.NotContains(t, got, "app.log")
	assert.Contains(t, got, "app.go")
}

func TestWalkIncludeExcludeSupports(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go":           "package a",
		"a_test.go":      "package a",
		"b.py":           "x = 1",
		"docs/readme.md": "# hi",
	})

	m := NewMatcher(root, Options{Include: []string{"*.go", "*.py"}, Exclude: []string{"*_test.go"}})
	assert.Equal(t, []string{"a.go", "b.py"}, relPaths(t, root, m))

	m = NewMatcher(root, Options{Supports: func(rel string) bool { return filepath.Ext(rel) == ".md" }})
	assert.Equal(t, []string{"docs/readme.md"}, relPaths(t, root, m))
}

func TestExcludedChecksAncestors(t *testing.T) {
	root := writeTree(t, map[string]string{IgnoreFile: "generated/\n"})
	m := NewMatcher(root, Options{})

	assert.True(t, m.Excluded("generated/deep/x.go"))
	assert.True(t, m.Excluded("node_modules/pkg/index.js"))
	assert.False(t, m.Excluded("src/generated.go"))
	assert.True(t, m.SkipDir("generated"))
	assert.False(t, m.SkipDir("src"))
}

func TestWalkHonoursCancellation(t *testing.T) {
	files := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d"} {
		files[n+".go"] = "package x"
	}
	root := writeTree(t, files)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch, errs := Walk(ctx, root, NewMatcher(root, Options{}))
	for range ch {
	}
	err := <-errs
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestCollectUnderKeepsRootRelativePaths(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":            "package main",
		"pkg/a/a.go":         "package a",
		"pkg/a/generated.go": "package a",
		"pkg/b/b.go":         "package b",
		IgnoreFile:           "/pkg/a/generated.go\n",
	})

	files, err := CollectUnder(context.Background(), root, "pkg/a", NewMatcher(root, Options{}))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "pkg/a/a.go", files[0].RelPath)

	_, err = CollectUnder(context.Background(), root, "missing", NewMatcher(root, Options{}))
	assert.Error(t, err)
}
