package query

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"codescope/internal/cache"
	"codescope/internal/chunker"
	"codescope/internal/logging"
	"codescope/internal/parser"
	"codescope/internal/store"
	"codescope/internal/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *store.SQLiteStore
	cache  *cache.Cache[[]Result]
	router *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"), store.Options{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := cache.New[[]Result](cache.Options{})
	r := NewRouter(s, c, telemetry.NewLatency(16), Config{Logger: logging.Discard()})
	return &fixture{store: s, cache: c, router: r}
}

func (f *fixture) put(t *testing.T, path, lang, content string, c store.Contents) {
	t.Helper()
	c.Chunks = chunker.Collect(content, 50, 10)
	_, err := f.store.UpsertFile(context.Background(), store.FileRecord{
		Path: path, Language: lang, Hash: "h", ModTime: time.Now(),
	}, c)
	require.NoError(t, err)
	f.cache.InvalidateByFile(path)
}

// a.go defines foo, b.go calls it, c.go only mentions it in a comment.
func seedFoo(t *testing.T, f *fixture) {
	f.put(t, "a.go", "go", "package a\n\nfunc foo() int {\n\treturn 1\n}\n", store.Contents{
		Symbols: []parser.Symbol{{Name: "foo", Kind: parser.KindFunction, StartLine: 3, EndLine: 5, Parent: -1, Signature: "func foo() int"}},
	})
	f.put(t, "b.go", "go", "package a\n\nfunc bar() int {\n\treturn foo()\n}\n", store.Contents{
		Symbols: []parser.Symbol{{Name: "bar", Kind: parser.KindFunction, StartLine: 3, EndLine: 5, Parent: -1}},
		Calls:   []parser.Call{{Caller: 0, Callee: "foo", Line: 4, Excerpt: "return foo()"}},
	})
	f.put(t, "c.go", "go", "package a\n\n// the literal foo appears only here\nvar x = 2\n", store.Contents{
		Symbols: []parser.Symbol{{Name: "x", Kind: parser.KindVariable, StartLine: 4, EndLine: 4, Parent: -1}},
	})
}

func TestSymbolHitsPrecedeTextHits(t *testing.T) {
	f := newFixture(t)
	seedFoo(t, f)

	res, err := f.router.Query(context.Background(), "foo", Options{})
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.Equal(t, "a.go", res[0].Path)
	assert.Equal(t, SourceDefinition, res[0].Source)
	assert.Equal(t, 3, res[0].StartLine)

	assert.Equal(t, "b.go", res[1].Path)
	assert.Equal(t, SourceCall, res[1].Source)
	assert.Equal(t, 4, res[1].StartLine)
	assert.Equal(t, "return foo()", res[1].Excerpt)

	assert.Equal(t, "c.go", res[2].Path)
	assert.Equal(t, SourceText, res[2].Source)
	assert.Equal(t, "// the literal foo appears only here", res[2].Excerpt)
}

func TestPhraseQueryUsesText(t *testing.T) {
	f := newFixture(t)
	seedFoo(t, f)

	res, err := f.router.Query(context.Background(), `"literal foo"`, Options{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "c.go", res[0].Path)
	assert.Equal(t, SourceText, res[0].Source)
}

func TestSymbolFallsBackToText(t *testing.T) {
	f := newFixture(t)
	seedFoo(t, f)

	res, err := f.router.Query(context.Background(), "literal", Options{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "c.go", res[0].Path)
	assert.Equal(t, SourceText, res[0].Source)
}

func TestCaseInsensitiveFallback(t *testing.T) {
	f := newFixture(t)
	seedFoo(t, f)

	res, err := f.router.Query(context.Background(), "FOO", Options{Mode: ModeSymbol})
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "a.go", res[0].Path)
	assert.Equal(t, SourceDefinition, res[0].Source)
}

func TestModesAndLimit(t *testing.T) {
	f := newFixture(t)
	seedFoo(t, f)
	ctx := context.Background()

	res, err := f.router.Query(ctx, "foo", Options{Mode: ModeText})
	require.NoError(t, err)
	for _, r := range res {
		assert.Equal(t, SourceText, r.Source)
	}
	assert.Len(t, res, 3)

	res, err = f.router.Query(ctx, "foo", Options{Limit: 1})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a.go", res[0].Path)
}

func TestFiltersApplyToBothBranches(t *testing.T) {
	f := newFixture(t)
	seedFoo(t, f)
	f.put(t, "lib/foo.py", "python", "def foo():\n    pass\n", store.Contents{
		Symbols: []parser.Symbol{{Name: "foo", Kind: parser.KindFunction, StartLine: 1, EndLine: 2, Parent: -1}},
	})
	ctx := context.Background()

	res, err := f.router.Query(ctx, "foo lang:python", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, res)
	for _, r := range res {
		assert.Equal(t, "python", r.Language)
	}

	res, err = f.router.Query(ctx, "literal path:lib/**", Options{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestQualifiedLookupPrefersParent(t *testing.T) {
	f := newFixture(t)
	f.put(t, "s.go", "go", "type Server struct{}\nfunc (s *Server) Start() {}\ntype Client struct{}\nfunc (c *Client) Start() {}\n", store.Contents{
		Symbols: []parser.Symbol{
			{Name: "Server", Kind: parser.KindStruct, StartLine: 1, EndLine: 1, Parent: -1},
			{Name: "Start", Kind: parser.KindMethod, StartLine: 2, EndLine: 2, Parent: 0},
			{Name: "Client", Kind: parser.KindStruct, StartLine: 3, EndLine: 3, Parent: -1},
			{Name: "Start", Kind: parser.KindMethod, StartLine: 4, EndLine: 4, Parent: 2},
		},
	})

	res, err := f.router.Query(context.Background(), "Client.Start", Options{Mode: ModeSymbol})
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, 4, res[0].StartLine)
	assert.Equal(t, SourceDefinition, res[0].Source)
	if len(res) > 1 {
		assert.NotEqual(t, SourceDefinition, res[1].Source)
	}
}

func TestFiltersOnlyListsSymbols(t *testing.T) {
	f := newFixture(t)
	seedFoo(t, f)

	res, err := f.router.Query(context.Background(), "kind:variable", Options{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "x", res[0].Symbol)

	res, err = f.router.Query(context.Background(), "   ", Options{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestCacheHitsAndInvalidation(t *testing.T) {
	f := newFixture(t)
	seedFoo(t, f)
	ctx := context.Background()

	first, err := f.router.Query(ctx, "foo", Options{})
	require.NoError(t, err)
	second, err := f.router.Query(ctx, "  FOO ", Options{Mode: ModeAuto})
	require.NoError(t, err)
	// normalized keys collide, so the second call is served from cache
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), f.cache.Stats().Hits)

	f.put(t, "d.go", "go", "package a\n\nfunc foo2() {}\n", store.Contents{})
	_, err = f.router.Query(ctx, "foo", Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.cache.Stats().Hits)
}

type failingStore struct {
	store.Store
}

var errBoom = errors.New("boom")

func (failingStore) QuerySymbolExact(context.Context, string, store.SymbolQuery) ([]store.SymbolHit, error) {
	return nil, errBoom
}

func (failingStore) QueryFullText(context.Context, string, store.TextQuery) ([]store.TextHit, error) {
	return nil, errBoom
}

func TestStoreFailurePropagates(t *testing.T) {
	r := NewRouter(failingStore{}, nil, nil, Config{Logger: logging.Discard()})

	_, err := r.Query(context.Background(), "foo", Options{})
	assert.ErrorIs(t, err, errBoom)

	_, err = r.Query(context.Background(), "two words", Options{})
	assert.ErrorIs(t, err, errBoom)
}

func TestCachedResultsAreCopies(t *testing.T) {
	f := newFixture(t)
	seedFoo(t, f)
	ctx := context.Background()

	res, err := f.router.Query(ctx, "foo", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, res)
	res[0].Path = "changed.go"

	res, err = f.router.Query(ctx, "foo", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "a.go", res[0].Path)
	res[0].Path = "changed.go"

	res, err = f.router.Query(ctx, "foo", Options{})
	require.NoError(t, err)
	assert.Equal(t, "a.go", res[0].Path)
	assert.Equal(t, int64(2), f.cache.Stats().Hits)
}

func TestScoresFollowResultOrder(t *testing.T) {
	f := newFixture(t)
	seedFoo(t, f)

	res, err := f.router.Query(context.Background(), "foo", Options{})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, ScoreDefinition, res[0].Score)
	assert.Equal(t, ScoreCall, res[1].Score)
	assert.Less(t, res[2].Score, 1.0)
	assert.GreaterOrEqual(t, res[2].Score, 0.0)
	assert.IsNonIncreasing(t, []float64{res[0].Score, res[1].Score, res[2].Score})
}

func TestCaseInsensitiveFallbackKeepsCallSitesExact(t *testing.T) {
	f := newFixture(t)
	seedFoo(t, f)

	res, err := f.router.Query(context.Background(), "FOO", Options{Mode: ModeSymbol})
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, SourceDefinition, res[0].Source)
	for _, r := range res {
		assert.NotEqual(t, SourceCall, r.Source, "call site %s:%d", r.Path, r.StartLine)
	}
}
