// Package query parses raw query strings and routes them to symbol or
// full-text lookups.
package query

import (
	"slices"
	"strings"

	"codescope/internal/parser"
	"codescope/internal/store"

	"github.com/bmatcuk/doublestar/v4"
)

// Filters are the structured predicates extracted from a query. Each field
// is an OR-set; fields combine with AND.
type Filters struct {
	Languages []string
	Kinds     []string
	Paths     []string
	Exts      []string
}

func (f Filters) Empty() bool {
	return len(f.Languages) == 0 && len(f.Kinds) == 0 && len(f.Paths) == 0 && len(f.Exts) == 0
}

// Canonical is a stable serialization with sorted, de-duplicated values,
// used in cache keys.
func (f Filters) Canonical() string {
	var parts []string
	add := func(key string, values []string) {
		if len(values) == 0 {
			return
		}
		v := slices.Clone(values)
		slices.Sort(v)
		parts = append(parts, key+":"+strings.Join(slices.Compact(v), ","))
	}
	add("ext", f.Exts)
	add("kind", f.Kinds)
	add("lang", f.Languages)
	add("path", f.Paths)
	return strings.Join(parts, " ")
}

// Store converts to the storage filter type.
func (f Filters) Store() store.Filters {
	return store.Filters{
		Languages: f.Languages,
		Kinds:     f.Kinds,
		Paths:     f.Paths,
		Exts:      f.Exts,
	}
}

// Parsed is a raw query split into free text and filters.
type Parsed struct {
	// FreeText is what remains after filters are removed. Phrases keep
	// their quotes.
	FreeText string
	// Terms are the free-text tokens.
	Terms   []store.Token
	Filters Filters
}

type filterKey int

const (
	keyLanguage filterKey = iota
	keyKind
	keyPath
	keyExt
)

var filterKeys = map[string]filterKey{
	"lang":     keyLanguage,
	"language": keyLanguage,
	"kind":     keyKind,
	"type":     keyKind,
	"file":     keyPath,
	"path":     keyPath,
	"ext":      keyExt,
}

// ParseFilters extracts key:value filters from raw. Recognized keys are
// lang|language, kind|type, file|path and ext, matched case-insensitively.
// Values may be comma-separated. A token with an unknown key, an empty
// value, or any invalid value is kept as free text.
func ParseFilters(raw string) Parsed {
	var p Parsed
	tokens := store.Tokenize(raw)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Phrase {
			p.Terms = append(p.Terms, tok)
			continue
		}
		key, value, ok := strings.Cut(tok.Text, ":")
		if !ok {
			p.Terms = append(p.Terms, tok)
			continue
		}
		fk, known := filterKeys[strings.ToLower(key)]
		if !known {
			p.Terms = append(p.Terms, tok)
			continue
		}
		// path:"dir with spaces/**"
		if value == "" && i+1 < len(tokens) && tokens[i+1].Phrase {
			value = tokens[i+1].Text
			i++
			if !p.Filters.add(fk, []string{value}) {
				p.Terms = append(p.Terms, tok, tokens[i])
			}
			continue
		}
		if !p.Filters.add(fk, strings.Split(value, ",")) {
			p.Terms = append(p.Terms, tok)
		}
	}
	p.FreeText = joinTerms(p.Terms)
	return p
}

// add validates and normalizes every value, appending them only if all are
// valid.
func (f *Filters) add(k filterKey, values []string) bool {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			return false
		}
		switch k {
		case keyLanguage:
			lang, ok := parser.NormalizeLanguage(v)
			if !ok {
				return false
			}
			v = lang
		case keyKind:
			kind, ok := parser.ParseKind(strings.ToLower(v))
			if !ok {
				return false
			}
			v = string(kind)
		case keyPath:
			v = strings.TrimPrefix(v, "./")
			if !doublestar.ValidatePattern(v) {
				return false
			}
		case keyExt:
			v = strings.ToLower(strings.TrimPrefix(v, "."))
			if v == "" || strings.ContainsAny(v, "/*?[") {
				return false
			}
		}
		out = append(out, v)
	}

	dst := map[filterKey]*[]string{
		keyLanguage: &f.Languages,
		keyKind:     &f.Kinds,
		keyPath:     &f.Paths,
		keyExt:      &f.Exts,
	}[k]
	for _, v := range out {
		if !slices.Contains(*dst, v) {
			*dst = append(*dst, v)
		}
	}
	return true
}

func joinTerms(terms []store.Token) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		if t.Phrase {
			parts[i] = `"` + t.Text + `"`
		} else {
			parts[i] = t.Text
		}
	}
	return strings.Join(parts, " ")
}
