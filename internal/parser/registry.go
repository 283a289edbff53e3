package parser

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry maps file extensions and exact file names to adapters.
type Registry struct {
	mu     sync.RWMutex
	byExt  map[string]Adapter // extension (without dot) -> adapter
	byName map[string]Adapter // base name -> adapter
	langs  map[string]Adapter // language name -> adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt:  make(map[string]Adapter),
		byName: make(map[string]Adapter),
		langs:  make(map[string]Adapter),
	}
}

// Register adds an adapter for the given extensions (without dot).
func (r *Registry) Register(a Adapter, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.langs[a.Language()] = a
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = a
	}
}

// RegisterFile adds an adapter for exact base names such as "go.mod".
func (r *Registry) RegisterFile(a Adapter, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.langs[a.Language()] = a
	for _, n := range names {
		r.byName[n] = a
	}
}

// Lookup returns the adapter and language for a path. The adapter is nil
// when the language is known but only indexed as text; both are empty when
// the file is not recognised at all.
func (r *Registry) Lookup(path string) (Adapter, string) {
	base := filepath.Base(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.byName[base]; ok {
		return a, a.Language()
	}
	lang := DetectLanguage(path)
	if a, ok := r.langs[lang]; ok && lang != "" {
		return a, lang
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	if a, ok := r.byExt[ext]; ok {
		return a, a.Language()
	}
	return nil, lang
}

// LanguageName returns the language name for a file path, or "".
func (r *Registry) LanguageName(path string) string {
	_, lang := r.Lookup(path)
	return lang
}

// Supports reports whether the path is indexable, with or without an adapter.
func (r *Registry) Supports(path string) bool {
	return r.LanguageName(path) != ""
}

// Adapter returns the adapter registered for a language name.
func (r *Registry) Adapter(lang string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.langs[lang]
	return a, ok
}

// Languages returns the names of languages with an adapter, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.langs))
	for name := range r.langs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Extensions returns the set of all registered file extensions (without dot).
func (r *Registry) Extensions() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make(map[string]bool, len(r.byExt))
	for ext := range r.byExt {
		exts[ext] = true
	}
	return exts
}

// Validate checks every adapter's node tables against its grammar and
// returns one message per problem.
func (r *Registry) Validate() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var problems []string
	for _, name := range sortedKeys(r.langs) {
		v, ok := r.langs[name].(Validator)
		if !ok {
			continue
		}
		for _, p := range v.Validate() {
			problems = append(problems, fmt.Sprintf("%s: %s", name, p))
		}
	}
	return problems
}

func sortedKeys(m map[string]Adapter) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
