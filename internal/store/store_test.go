package store

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"codescope/internal/chunker"
	"codescope/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "index.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(path, lang, hash string) FileRecord {
	return FileRecord{Path: path, Language: lang, Hash: hash, SizeBytes: 10, ModTime: time.Unix(1700000000, 0)}
}

// defines foo and bar; bar calls foo and an unknown helper
func fooFile() Contents {
	return Contents{
		Symbols: []parser.Symbol{
			{Name: "foo", Kind: parser.KindFunction, StartLine: 1, EndLine: 3, Parent: -1, Signature: "func foo()"},
			{Name: "bar", Kind: parser.KindFunction, StartLine: 5, EndLine: 8, Parent: -1},
			{Name: "inner", Kind: parser.KindVariable, StartLine: 6, EndLine: 6, Parent: 1},
		},
		Calls: []parser.Call{
			{Caller: 1, Callee: "foo", Line: 6, Excerpt: "foo()"},
			{Caller: 1, Callee: "helper", Line: 7, Excerpt: "helper()"},
		},
		Imports: []parser.Import{{Path: "github.com/acme/log", Names: []string{"log"}, Line: 1}},
		Chunks: []chunker.Chunk{
			{StartLine: 1, EndLine: 8, Content: "func foo() {}\n\nfunc bar() {\n\tinner := 1\n\tfoo()\n\thelper()\n}", Symbol: "foo"},
		},
	}
}

func TestOpenRecordsSchemaVersion(t *testing.T) {
	s := openTest(t)
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion(), v)
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	_, err = s.UpsertFile(ctx, record("a.go", "go", "h1"), fooFile())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, Options{})
	require.NoError(t, err)
	defer s.Close()
	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Files)
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.SetMeta(ctx, metaSchemaVersion, strconv.Itoa(SchemaVersion()+1)))
	require.NoError(t, s.Close())

	_, err = Open(ctx, path, Options{})
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db"), Options{Driver: "postgres"})
	assert.Error(t, err)
}

func TestUpsertAndGetFileMeta(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	rec := record("pkg/a.go", "go", "abc")
	rec.Degraded = true
	rec.ParseError = "parse timed out"
	id, err := s.UpsertFile(ctx, rec, fooFile())
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := s.GetFileMeta(ctx, "pkg/a.go")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.Hash)
	assert.Equal(t, "go", got.Language)
	assert.True(t, got.Degraded)
	assert.Equal(t, "parse timed out", got.ParseError)
	assert.True(t, got.ModTime.Equal(rec.ModTime))
	assert.False(t, got.IndexedAt.IsZero())

	missing, err := s.GetFileMeta(ctx, "nope.go")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.UpsertFile(ctx, record("a.go", "go", "h1"), fooFile())
	require.NoError(t, err)
	first, err := s.Counts(ctx)
	require.NoError(t, err)

	_, err = s.UpsertFile(ctx, record("a.go", "go", "h1"), fooFile())
	require.NoError(t, err)
	second, err := s.Counts(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, Counts{Files: 1, Symbols: 3, Calls: 2, Imports: 1, Chunks: 1}, second)
}

func TestUpsertReplacesContents(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.UpsertFile(ctx, record("a.go", "go", "h1"), fooFile())
	require.NoError(t, err)

	_, err = s.UpsertFile(ctx, record("a.go", "go", "h2"), Contents{
		Symbols: []parser.Symbol{{Name: "renamed", Kind: parser.KindFunction, StartLine: 1, EndLine: 2, Parent: -1}},
		Chunks:  []chunker.Chunk{{StartLine: 1, EndLine: 2, Content: "func renamed() {}"}},
	})
	require.NoError(t, err)

	hits, err := s.QuerySymbolExact(ctx, "foo", SymbolQuery{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.QuerySymbolExact(ctx, "renamed", SymbolQuery{})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	text, err := s.QueryFullText(ctx, "helper", TextQuery{})
	require.NoError(t, err)
	assert.Empty(t, text, "old chunks must leave the full-text index")

	text, err = s.QueryFullText(ctx, "renamed", TextQuery{})
	require.NoError(t, err)
	assert.Len(t, text, 1)
}

func TestDeleteFileCascades(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.UpsertFile(ctx, record("a.go", "go", "h1"), fooFile())
	require.NoError(t, err)

	ok, err := s.DeleteFile(ctx, "a.go")
	require.NoError(t, err)
	assert.True(t, ok)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, c)

	text, err := s.QueryFullText(ctx, "foo", TextQuery{})
	require.NoError(t, err)
	assert.Empty(t, text)

	ok, err = s.DeleteFile(ctx, "a.go")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSymbolLookupModes(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.UpsertFile(ctx, record("a.go", "go", "h1"), Contents{Symbols: []parser.Symbol{
		{Name: "ParseConfig", Kind: parser.KindFunction, StartLine: 1, EndLine: 2, Parent: -1},
		{Name: "parseConfigFile", Kind: parser.KindFunction, StartLine: 4, EndLine: 9, Parent: -1},
		{Name: "Server", Kind: parser.KindStruct, StartLine: 10, EndLine: 20, Parent: -1,
			Metadata: map[string]string{"note": "x"}},
		{Name: "Start", Kind: parser.KindMethod, StartLine: 12, EndLine: 14, Parent: 2},
	}})
	require.NoError(t, err)

	hits, err := s.QuerySymbolExact(ctx, "parseconfig", SymbolQuery{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.QuerySymbolExact(ctx, "parseconfig", SymbolQuery{CaseInsensitive: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ParseConfig", hits[0].Name)

	hits, err = s.QuerySymbolExact(ctx, "parseConfig", SymbolQuery{Prefix: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "parseConfigFile", hits[0].Name)

	hits, err = s.QuerySymbolExact(ctx, "parseconfig", SymbolQuery{Prefix: true, CaseInsensitive: true})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = s.QuerySymbolExact(ctx, "Start", SymbolQuery{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Server", hits[0].Parent)
	assert.Equal(t, "method", hits[0].Kind)

	hits, err = s.QuerySymbolExact(ctx, "Server", SymbolQuery{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, map[string]string{"note": "x"}, hits[0].Metadata)

	// empty name lists everything matching the filters
	hits, err = s.QuerySymbolExact(ctx, "", SymbolQuery{Filters: Filters{Kinds: []string{"function"}}})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestFiltersCombine(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	sym := func(kind parser.Kind) Contents {
		return Contents{Symbols: []parser.Symbol{{Name: "run", Kind: kind, StartLine: 1, EndLine: 1, Parent: -1}}}
	}
	for _, f := range []struct {
		path, lang string
		kind       parser.Kind
	}{
		{"cmd/main.go", "go", parser.KindFunction},
		{"internal/store/store.go", "go", parser.KindMethod},
		{"scripts/run.py", "python", parser.KindFunction},
		{"web/src/run.ts", "typescript", parser.KindFunction},
	} {
		_, err := s.UpsertFile(ctx, record(f.path, f.lang, "h"), sym(f.kind))
		require.NoError(t, err)
	}

	paths := func(f Filters) []string {
		hits, err := s.QuerySymbolExact(ctx, "run", SymbolQuery{Filters: f})
		require.NoError(t, err)
		var out []string
		for _, h := range hits {
			out = append(out, h.Path)
		}
		return out
	}

	assert.Equal(t, []string{"cmd/main.go", "internal/store/store.go"}, paths(Filters{Languages: []string{"go"}}))
	assert.Equal(t, []string{"cmd/main.go", "scripts/run.py"}, paths(Filters{Languages: []string{"go", "python"}, Kinds: []string{"function"}}))
	assert.Equal(t, []string{"internal/store/store.go"}, paths(Filters{Paths: []string{"internal/**"}}))
	assert.Equal(t, []string{"internal/store/store.go"}, paths(Filters{Paths: []string{"internal/store"}}))
	assert.Equal(t, []string{"scripts/run.py", "web/src/run.ts"}, paths(Filters{Paths: []string{"*.{py,ts}"}}))
	assert.Equal(t, []string{"web/src/run.ts"}, paths(Filters{Exts: []string{"ts"}}))
	assert.Empty(t, paths(Filters{Languages: []string{"go"}, Exts: []string{"py"}}))
}

func TestFullTextRanking(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	text := func(path string, lines ...string) {
		var c Contents
		for i, l := range lines {
			c.Chunks = append(c.Chunks, chunker.Chunk{StartLine: i + 1, EndLine: i + 1, Content: l})
		}
		_, err := s.UpsertFile(ctx, record(path, "text", "h"), c)
		require.NoError(t, err)
	}
	text("b.txt", "retry budget")
	text("a.txt", "retry budget", "unrelated words here")
	text("c.txt", "retry budget retry budget")
	text("d.txt", "alpha beta gamma", "delta epsilon zeta", "eta theta iota", "kappa lambda mu", "nu xi omicron")

	hits, err := s.QueryFullText(ctx, "retry budget", TextQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "c.txt", hits[0].Path)
	// equal scores break ties by path
	assert.Equal(t, "a.txt", hits[1].Path)
	assert.Equal(t, "b.txt", hits[2].Path)
	assert.Greater(t, hits[0].Score, hits[1].Score)

	hits, err = s.QueryFullText(ctx, "retry budget", TextQuery{Filters: Filters{Paths: []string{"b.txt"}}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b.txt", hits[0].Path)

	hits, err = s.QueryFullText(ctx, `"words here"`, TextQuery{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = s.QueryFullText(ctx, `"here words"`, TextQuery{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.QueryFullText(ctx, "unrel*", TextQuery{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].StartLine)

	hits, err = s.QueryFullText(ctx, `AND OR ( "`, TextQuery{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFullTextKindFilter(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.UpsertFile(ctx, record("a.go", "go", "h"), Contents{
		Symbols: []parser.Symbol{{Name: "Cfg", Kind: parser.KindStruct, StartLine: 10, EndLine: 12, Parent: -1}},
		Chunks: []chunker.Chunk{
			{StartLine: 1, EndLine: 5, Content: "timeout comment"},
			{StartLine: 10, EndLine: 12, Content: "timeout field"},
		},
	})
	require.NoError(t, err)

	hits, err := s.QueryFullText(ctx, "timeout", TextQuery{Filters: Filters{Kinds: []string{"struct"}}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 10, hits[0].StartLine)
}

func TestCallResolution(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	// caller first: the edge starts unresolved
	_, err := s.UpsertFile(ctx, record("b.go", "go", "h"), Contents{
		Symbols: []parser.Symbol{{Name: "main", Kind: parser.KindFunction, StartLine: 1, EndLine: 3, Parent: -1}},
		Calls:   []parser.Call{{Caller: 0, Callee: "helper", Line: 2, Excerpt: "helper()"}},
	})
	require.NoError(t, err)

	calls, err := s.Callers(ctx, "helper", 10)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].CalleePath)
	assert.Equal(t, "main", calls[0].Caller)

	// defining the callee links existing edges
	_, err = s.UpsertFile(ctx, record("a.go", "go", "h"), Contents{
		Symbols: []parser.Symbol{{Name: "helper", Kind: parser.KindFunction, StartLine: 1, EndLine: 1, Parent: -1}},
	})
	require.NoError(t, err)

	calls, err = s.Callers(ctx, "helper", 10)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "a.go", calls[0].CalleePath)

	callees, err := s.Callees(ctx, "main", 10)
	require.NoError(t, err)
	require.Len(t, callees, 1)
	assert.Equal(t, "helper", callees[0].Callee)

	// deleting the callee's file keeps the edge, unresolved
	_, err = s.DeleteFile(ctx, "a.go")
	require.NoError(t, err)
	calls, err = s.Callers(ctx, "helper", 10)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].CalleePath)

	n, err := s.ResolveCalls(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertChunkOnlyFile(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.UpsertFile(ctx, record("notes.txt", "text", "h"), Contents{
		Chunks: []chunker.Chunk{{StartLine: 1, EndLine: 1, Content: "just words"}},
	})
	require.NoError(t, err)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Files)
	assert.Equal(t, int64(1), c.Chunks)
}

func TestCallResolutionPrefersCallingFile(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	helper := func() Contents {
		return Contents{
			Symbols: []parser.Symbol{
				{Name: "helper", Kind: parser.KindFunction, StartLine: 1, EndLine: 1, Parent: -1},
				{Name: "run", Kind: parser.KindFunction, StartLine: 3, EndLine: 5, Parent: -1},
			},
			Calls: []parser.Call{{Caller: 1, Callee: "helper", Line: 4, Excerpt: "helper()"}},
		}
	}
	_, err := s.UpsertFile(ctx, record("a.go", "go", "h1"), helper())
	require.NoError(t, err)
	_, err = s.UpsertFile(ctx, record("b.go", "go", "h2"), helper())
	require.NoError(t, err)

	calls, err := s.Callers(ctx, "helper", 10)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, c.Path, c.CalleePath)
	}
}

func TestImports(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.UpsertFile(ctx, record("a.go", "go", "h"), fooFile())
	require.NoError(t, err)
	_, err = s.UpsertFile(ctx, record("b.go", "go", "h"), Contents{
		Imports: []parser.Import{{Path: "github.com/acme/logx", Line: 3}, {Path: "fmt", Line: 4}},
	})
	require.NoError(t, err)

	imps, err := s.ImportsOf(ctx, "b.go")
	require.NoError(t, err)
	require.Len(t, imps, 2)
	assert.Equal(t, "github.com/acme/logx", imps[0].Module)

	rows, err := s.Importers(ctx, "log", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a.go", rows[0].Path)
	assert.Equal(t, []string{"log"}, rows[0].Names)

	rows, err = s.Importers(ctx, "github.com/acme/log", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestListAndMeta(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.UpsertFile(ctx, record("z.py", "python", "h"), Contents{})
	require.NoError(t, err)
	_, err = s.UpsertFile(ctx, record("a.go", "go", "h"), Contents{})
	require.NoError(t, err)

	paths, err := s.ListFilePaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "z.py"}, paths)

	files, err := s.ListFiles(ctx, "python")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "z.py", files[0].Path)

	v, err := s.GetMeta(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMeta(ctx, "k", "1"))
	require.NoError(t, s.SetMeta(ctx, "k", "2"))
	v, err = s.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	require.NoError(t, s.DeleteAll(ctx))
	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, c.Files)
	v, err = s.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestMatchPath(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{"internal/**", "internal/store/store.go", true},
		{"internal", "internal/store/store.go", true},
		{"internal/", "internal/a.go", true},
		{"*.go", "cmd/main.go", true},
		{"cmd/*.go", "cmd/main.go", true},
		{"cmd/*.go", "cmd/sub/main.go", false},
		{"**/*_test.go", "a/b/c_test.go", true},
		{"web", "webapp/x.ts", false},
		{"", "a.go", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchPath(tt.pattern, tt.path), "%s vs %s", tt.pattern, tt.path)
	}
}

func TestMatchExpression(t *testing.T) {
	assert.Equal(t, `"foo" "bar"`, MatchExpression("foo bar"))
	assert.Equal(t, `"foo bar" "baz"`, MatchExpression(`"foo bar" baz`))
	assert.Equal(t, `"conf"*`, MatchExpression("conf*"))
	assert.Equal(t, `"a-b"`, MatchExpression("a-b"))
	assert.Empty(t, MatchExpression(`( ) *`))
}

func TestHotspotsAndLanguages(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.UpsertFile(ctx, record("a.go", "go", "h1"), fooFile())
	require.NoError(t, err)
	_, err = s.UpsertFile(ctx, record("notes.txt", "", "h2"), Contents{})
	require.NoError(t, err)

	hot, err := s.Hotspots(ctx, 5)
	require.NoError(t, err)
	require.Len(t, hot, 1)
	assert.Equal(t, Hotspot{Name: "foo", Kind: "function", Path: "a.go", Line: 1, Callers: 1}, hot[0])

	langs, err := s.Languages(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []LanguageCount{
		{Language: "go", Files: 1, Symbols: 3},
		{Language: "", Files: 1, Symbols: 0},
	}, langs)
}
