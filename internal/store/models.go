package store

import (
	"time"

	"codescope/internal/chunker"
	"codescope/internal/parser"
)

// FileRecord represents an indexed source file.
type FileRecord struct {
	ID         int64
	Path       string
	Hash       string
	Language   string
	SizeBytes  int64
	ModTime    time.Time
	IndexedAt  time.Time
	Degraded   bool
	ParseError string
}

// Contents is everything stored for one file. Symbol parents and call
// callers index into Symbols.
type Contents struct {
	Symbols []parser.Symbol
	Calls   []parser.Call
	Imports []parser.Import
	Chunks  []chunker.Chunk
}

// Filters restrict queries. Each field is an OR-set; fields combine with AND.
// Paths are doublestar globs.
type Filters struct {
	Languages []string
	Kinds     []string
	Paths     []string
	Exts      []string
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return len(f.Languages) == 0 && len(f.Kinds) == 0 && len(f.Paths) == 0 && len(f.Exts) == 0
}

// SymbolQuery controls symbol lookups. An empty name matches every symbol.
type SymbolQuery struct {
	Filters         Filters
	CaseInsensitive bool
	Prefix          bool
	Limit           int
}

// TextQuery controls full-text lookups.
type TextQuery struct {
	Filters Filters
	Limit   int
}

// SymbolHit is a symbol definition.
type SymbolHit struct {
	ID        int64
	Name      string
	Kind      string
	Path      string
	Language  string
	StartLine int
	EndLine   int
	Signature string
	Parent    string
	Metadata  map[string]string
}

// CallHit is a call site.
type CallHit struct {
	Path       string
	Language   string
	Line       int
	Excerpt    string
	Caller     string
	CallerKind string
	Callee     string
	// CalleePath is the file of the resolved callee, or "" when unresolved.
	CalleePath string
}

// TextHit is a ranked chunk match. Higher Score is better.
type TextHit struct {
	Path      string
	Language  string
	StartLine int
	EndLine   int
	Symbol    string
	Content   string
	Score     float64
}

// ImportRow is one stored import.
type ImportRow struct {
	Path   string
	Module string
	Names  []string
	Line   int
}

// Counts are row totals across the index.
type Counts struct {
	Files    int64
	Degraded int64
	Symbols  int64
	Calls    int64
	Imports  int64
	Chunks   int64
}

// Hotspot is a definition ranked by how many call sites resolve to it.
type Hotspot struct {
	Name    string
	Kind    string
	Path    string
	Line    int
	Callers int64
}

// LanguageCount totals files and symbols for one language. Files without a
// language are reported under "".
type LanguageCount struct {
	Language string
	Files    int64
	Symbols  int64
}
