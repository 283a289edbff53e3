// Package parser extracts symbols, call edges and imports from source files.
//
// Each supported grammar is exposed as an Adapter. Adapters are collected in
// a Registry that also knows how to detect a file's language from its path,
// including languages that have no adapter and are indexed as plain text.
package parser

import (
	"bytes"
	"context"
	"errors"
	"unicode/utf8"
)

// Kind is the shared symbol kind enumeration.
type Kind string

const (
	KindFunction   Kind = "function"
	KindMethod     Kind = "method"
	KindClass      Kind = "class"
	KindStruct     Kind = "struct"
	KindInterface  Kind = "interface"
	KindEnum       Kind = "enum"
	KindType       Kind = "type"
	KindVariable   Kind = "variable"
	KindConstant   Kind = "constant"
	KindModule     Kind = "module"
	KindProperty   Kind = "property"
	KindSection    Kind = "section"
	KindDependency Kind = "dependency"
	KindOther      Kind = "other"
)

// Kinds lists every valid Kind.
var Kinds = []Kind{
	KindFunction, KindMethod, KindClass, KindStruct, KindInterface, KindEnum, KindType,
	KindVariable, KindConstant, KindModule, KindProperty, KindSection, KindDependency, KindOther,
}

var kindAliases = map[string]Kind{
	"func":  KindFunction,
	"fn":    KindFunction,
	"def":   KindFunction,
	"trait": KindInterface,
	"var":   KindVariable,
	"const": KindConstant,
	"dep":   KindDependency,
}

// ParseKind resolves a kind name or common alias.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	k, ok := kindAliases[s]
	return k, ok
}

// Symbol is a named definition. Parent indexes into Result.Symbols, or -1.
type Symbol struct {
	Name      string
	Kind      Kind
	StartLine int
	EndLine   int
	StartCol  int
	EndCol    int
	Signature string
	Parent    int
	Metadata  map[string]string
}

// Call is a call site. Caller indexes into Result.Symbols, or -1 for
// file-level calls.
type Call struct {
	Caller  int
	Callee  string
	Line    int
	Excerpt string
}

// Import is a module or path the file depends on.
type Import struct {
	Path  string
	Names []string
	Line  int
}

// Span is a top-level syntax region used to label chunks.
type Span struct {
	Name      string
	Kind      Kind
	StartLine int
	EndLine   int
}

// Result is everything an adapter extracts from one file.
type Result struct {
	Language string
	Symbols  []Symbol
	Calls    []Call
	Imports  []Import
	Outline  []Span
}

// Adapter parses one language.
type Adapter interface {
	Language() string
	Parse(ctx context.Context, src []byte) (*Result, error)
}

// Validator is implemented by adapters whose node tables can be checked
// against their grammar.
type Validator interface {
	Validate() []string
}

var (
	ErrBinaryContent = errors.New("binary content")
	ErrInvalidUTF8   = errors.New("invalid utf-8")
	ErrParseTimeout  = errors.New("parse timed out")
)

// sniffLen is how much of a file is inspected for NUL bytes.
const sniffLen = 8 << 10

// IsBinary reports whether src looks like binary data.
func IsBinary(src []byte) bool {
	n := len(src)
	if n > sniffLen {
		n = sniffLen
	}
	return bytes.IndexByte(src[:n], 0) >= 0
}

// CheckContent rejects content no adapter should see.
func CheckContent(src []byte) error {
	if IsBinary(src) {
		return ErrBinaryContent
	}
	if !utf8.Valid(src) {
		return ErrInvalidUTF8
	}
	return nil
}

// BuildOutline returns the top-level symbols as spans, in source order.
func BuildOutline(symbols []Symbol) []Span {
	var out []Span
	for _, s := range symbols {
		if s.Parent >= 0 {
			continue
		}
		out = append(out, Span{Name: s.Name, Kind: s.Kind, StartLine: s.StartLine, EndLine: s.EndLine})
	}
	return out
}
