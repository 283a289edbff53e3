package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFilters(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		text    string
		filters Filters
	}{
		{
			name: "plain text",
			raw:  "retry budget",
			text: "retry budget",
		},
		{
			name:    "language alias",
			raw:     "lang:golang Server",
			text:    "Server",
			filters: Filters{Languages: []string{"go"}},
		},
		{
			name:    "comma separated values",
			raw:     "lang:go,py handler",
			text:    "handler",
			filters: Filters{Languages: []string{"go", "python"}},
		},
		{
			name:    "same key accumulates",
			raw:     "kind:function type:method parse",
			text:    "parse",
			filters: Filters{Kinds: []string{"function", "method"}},
		},
		{
			name:    "keys are case insensitive",
			raw:     "LANG:Go PATH:internal/** EXT:.GO run",
			text:    "run",
			filters: Filters{Languages: []string{"go"}, Paths: []string{"internal/**"}, Exts: []string{"go"}},
		},
		{
			name:    "kind alias",
			raw:     "kind:fn x",
			text:    "x",
			filters: Filters{Kinds: []string{"function"}},
		},
		{
			name: "unknown key stays literal",
			raw:  "http://example.com foo:bar",
			text: "http://example.com foo:bar",
		},
		{
			name: "empty value stays literal",
			raw:  "lang: foo",
			text: "lang: foo",
		},
		{
			name: "unknown kind stays literal",
			raw:  "kind:widget foo",
			text: "kind:widget foo",
		},
		{
			name: "unknown language stays literal",
			raw:  "lang:klingon foo",
			text: "lang:klingon foo",
		},
		{
			name: "invalid glob stays literal",
			raw:  "path:[abc foo",
			text: "path:[abc foo",
		},
		{
			name:    "phrases survive",
			raw:     `"retry budget" lang:go`,
			text:    `"retry budget"`,
			filters: Filters{Languages: []string{"go"}},
		},
		{
			name:    "quoted path value",
			raw:     `path:"my dir/**" foo`,
			text:    "foo",
			filters: Filters{Paths: []string{"my dir/**"}},
		},
		{
			name:    "filters only",
			raw:     "kind:struct",
			filters: Filters{Kinds: []string{"struct"}},
		},
		{
			name:    "duplicates collapse",
			raw:     "lang:go lang:golang",
			filters: Filters{Languages: []string{"go"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFilters(tt.raw)
			assert.Equal(t, tt.text, got.FreeText)
			assert.Equal(t, tt.filters, got.Filters)
		})
	}
}

func TestCanonicalIsOrderIndependent(t *testing.T) {
	a := ParseFilters("lang:python,go kind:method path:cmd/**").Filters
	b := ParseFilters("path:cmd/** kind:method lang:go lang:python").Filters
	assert.Equal(t, a.Canonical(), b.Canonical())
	assert.Equal(t, "kind:method lang:go,python path:cmd/**", a.Canonical())
	assert.Empty(t, Filters{}.Canonical())
}

func TestSymbolTerm(t *testing.T) {
	tests := []struct {
		term      string
		name      string
		qualifier string
		prefix    bool
		ok        bool
	}{
		{"foo", "foo", "", false, true},
		{"$scope", "$scope", "", false, true},
		{"Parse*", "Parse", "", true, true},
		{"Server.Start", "Start", "Server", false, true},
		{"std::vec::Vec", "Vec", "vec", false, true},
		{"Array#map", "map", "Array", false, true},
		{"foo bar", "", "", false, false},
		{"1abc", "", "", false, false},
		{"foo()", "", "", false, false},
		{"a.", "", "", false, false},
		{"", "", "", false, false},
	}
	for _, tt := range tests {
		name, qualifier, prefix, ok := SymbolTerm(tt.term, 64)
		assert.Equal(t, tt.ok, ok, tt.term)
		assert.Equal(t, tt.name, name, tt.term)
		assert.Equal(t, tt.qualifier, qualifier, tt.term)
		assert.Equal(t, tt.prefix, prefix, tt.term)
	}

	_, _, _, ok := SymbolTerm("averyveryverylongidentifier", 10)
	assert.False(t, ok)
}

func TestSnippet(t *testing.T) {
	content := "package a\n\n// Retry the request\nfunc do() {}\n"
	assert.Equal(t, "// Retry the request", Snippet(content, "retry"))
	assert.Equal(t, "package a", Snippet(content, "missing"))
	assert.Empty(t, Snippet("", "x"))
}

func TestMarkdown(t *testing.T) {
	assert.Equal(t, "No results found for query: \"nothing\"\n", Markdown("nothing", nil))

	md := Markdown("foo", []Result{
		{Path: "a.go", StartLine: 3, EndLine: 5, Kind: "function", Symbol: "foo", Language: "go", Source: SourceDefinition, Excerpt: "func foo() int"},
		{Path: "c.go", StartLine: 1, EndLine: 4, Language: "go", Source: SourceText},
	})
	assert.Contains(t, md, `## Results for "foo" (2)`)
	assert.Contains(t, md, "### 1. `a.go:3`")
	assert.Contains(t, md, "**Symbol:** foo")
	assert.Contains(t, md, "```go\nfunc foo() int\n```")
	assert.Contains(t, md, "### 2. `c.go:1`")
	assert.NotContains(t, md, "**Symbol:** \n")
}
