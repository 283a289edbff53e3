package store

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchPath reports whether a slash-separated path matches a path filter.
// Patterns match as doublestar globs, as directory prefixes ("internal/store"
// matches everything below it), and patterns without a slash match at any
// depth ("*.go").
func MatchPath(pattern, path string) bool {
	pattern = strings.TrimPrefix(strings.TrimSuffix(pattern, "/"), "./")
	if pattern == "" {
		return false
	}
	if ok, _ := doublestar.Match(pattern, path); ok {
		return true
	}
	if ok, _ := doublestar.Match(pattern+"/**", path); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if ok, _ := doublestar.Match("**/"+pattern, path); ok {
			return true
		}
	}
	return false
}

// matchAny reports whether path matches any of patterns. No patterns
// matches everything.
func matchAny(patterns []string, path string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if MatchPath(p, path) {
			return true
		}
	}
	return false
}

// sqlGlob converts a doublestar pattern into a SQLite GLOB that matches a
// superset of the paths MatchPath accepts. ok is false when no such
// pre-filter can be expressed.
func sqlGlob(pattern string) (string, bool) {
	if strings.ContainsAny(pattern, `{}\`) {
		return "", false
	}
	pattern = strings.TrimPrefix(strings.TrimSuffix(pattern, "/"), "./")
	for strings.Contains(pattern, "**") {
		pattern = strings.ReplaceAll(pattern, "**", "*")
	}
	pattern = strings.ReplaceAll(pattern, "[!", "[^")
	return "*" + pattern + "*", true
}

// where accumulates AND-ed SQL predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (w *where) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	w.add(column+" IN ("+placeholders(len(values))+")", args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return "1 = 1"
	}
	return strings.Join(w.clauses, " AND ")
}

// applyFilters pushes f into w. kindClause renders the kind predicate for
// the query at hand given its placeholder list.
func applyFilters(w *where, f Filters, kindClause func(ph string) string) {
	w.in("f.language", f.Languages)

	if len(f.Kinds) > 0 {
		args := make([]any, len(f.Kinds))
		for i, k := range f.Kinds {
			args[i] = k
		}
		w.add(kindClause(placeholders(len(f.Kinds))), args...)
	}

	if len(f.Exts) > 0 {
		ors := make([]string, len(f.Exts))
		args := make([]any, len(f.Exts))
		for i, ext := range f.Exts {
			ors[i] = "f.path LIKE ? ESCAPE '\\'"
			args[i] = "%." + likeEscape(strings.TrimPrefix(ext, "."))
		}
		w.add("("+strings.Join(ors, " OR ")+")", args...)
	}

	if len(f.Paths) > 0 {
		var (
			ors  []string
			args []any
		)
		prefilter := true
		for _, p := range f.Paths {
			g, ok := sqlGlob(p)
			if !ok {
				prefilter = false
				break
			}
			ors = append(ors, "f.path GLOB ?")
			args = append(args, g)
		}
		// otherwise refined in Go only
		if prefilter {
			w.add("("+strings.Join(ors, " OR ")+")", args...)
		}
	}
}

// sqlLimit widens the row limit when results will be refined by path.
func sqlLimit(limit int, f Filters) int {
	if limit <= 0 {
		limit = 20
	}
	if len(f.Paths) > 0 {
		return limit*10 + 100
	}
	return limit
}

func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `[*]`, `?`, `[?]`, `[`, `[[]`)
	return r.Replace(s)
}

// namePredicate renders the name match for symbol-like lookups.
func namePredicate(w *where, column, name string, caseInsensitive, prefix bool) {
	switch {
	case name == "":
	case prefix && caseInsensitive:
		w.add(column+" LIKE ? ESCAPE '\\'", likeEscape(name)+"%")
	case prefix:
		w.add(column+" GLOB ?", globEscape(name)+"*")
	case caseInsensitive:
		w.add(column+" = ? COLLATE NOCASE", name)
	default:
		w.add(column+" = ?", name)
	}
}
