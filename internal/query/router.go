package query

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"codescope/internal/cache"
	"codescope/internal/store"
	"codescope/internal/telemetry"
)

// Mode forces a branch. The zero value detects intent.
type Mode string

const (
	ModeAuto   Mode = ""
	ModeSymbol Mode = "symbol"
	ModeText   Mode = "text"
)

// ParseMode accepts "", "auto", "symbol" and "text".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ModeAuto, nil
	case "symbol":
		return ModeSymbol, nil
	case "text":
		return ModeText, nil
	}
	return ModeAuto, fmt.Errorf("unknown query mode %q", s)
}

// Source says where a result came from.
type Source string

const (
	SourceDefinition Source = "definition"
	SourceCall       Source = "call"
	SourceText       Source = "text"
)

// Scores are tiered so that sorting by Score keeps the router's order:
// definitions, then call sites, then text hits in (0, 1).
const (
	ScoreDefinition = 3.0
	ScoreCall       = 2.0
)

// Result is one ranked hit.
type Result struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Kind      string  `json:"kind,omitempty"`
	Symbol    string  `json:"symbol,omitempty"`
	Score     float64 `json:"score"`
	Excerpt   string  `json:"excerpt"`
	Language  string  `json:"language"`
	Source    Source  `json:"source"`
}

type Options struct {
	Limit int
	Mode  Mode
}

// Config tunes a Router.
type Config struct {
	DefaultLimit    int
	MaxSymbolLength int
	Logger          *slog.Logger
}

// Router answers raw queries from the store, through the cache.
type Router struct {
	store   store.Store
	cache   *cache.Cache[[]Result]
	latency *telemetry.Latency
	cfg     Config
	log     *slog.Logger
}

// NewRouter creates a Router. cache and latency may be nil.
func NewRouter(s store.Store, c *cache.Cache[[]Result], latency *telemetry.Latency, cfg Config) *Router {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxSymbolLength <= 0 {
		cfg.MaxSymbolLength = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{store: s, cache: c, latency: latency, cfg: cfg, log: cfg.Logger}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(?:(?:::|\.|#)[A-Za-z_$][A-Za-z0-9_$]*)*\*?$`)

// SymbolTerm reports whether term reads as an identifier lookup. It returns
// the trailing name, its qualifier ("" when unqualified) and whether a
// prefix lookup was requested.
func SymbolTerm(term string, maxLen int) (name, qualifier string, prefix, ok bool) {
	if term == "" || len(term) > maxLen || !identPattern.MatchString(term) {
		return "", "", false, false
	}
	if strings.HasSuffix(term, "*") {
		prefix = true
		term = strings.TrimSuffix(term, "*")
	}
	cut := strings.LastIndexAny(term, ".:#")
	if cut < 0 {
		return term, "", prefix, true
	}
	qualifier = strings.TrimRight(term[:cut], ".:#")
	if i := strings.LastIndexAny(qualifier, ".:#"); i >= 0 {
		qualifier = qualifier[i+1:]
	}
	return term[cut+1:], qualifier, prefix, true
}

// Query parses raw, routes it, and returns symbol hits ahead of text hits.
// It fails only when the store does.
func (r *Router) Query(ctx context.Context, raw string, opts Options) ([]Result, error) {
	start := time.Now()
	if r.latency != nil {
		defer r.latency.Since(start)
	}
	if opts.Limit <= 0 {
		opts.Limit = r.cfg.DefaultLimit
	}

	parsed := ParseFilters(raw)
	key := cache.Key(parsed.FreeText, parsed.Filters.Canonical(), fmt.Sprintf("limit=%d mode=%s", opts.Limit, opts.Mode))

	var gen uint64
	if r.cache != nil {
		if hit, ok := r.cache.Get(key); ok {
			r.log.Debug("query.cache.hit", "query", raw, "results", len(hit))
			return slices.Clone(hit), nil
		}
		gen = r.cache.Generation()
	}

	results, branch, err := r.route(ctx, parsed, opts)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Put(key, slices.Clone(results), gen)
	}
	r.log.Debug("query.done", "query", raw, "branch", branch, "results", len(results),
		"elapsed", time.Since(start))
	return results, nil
}

func (r *Router) route(ctx context.Context, p Parsed, opts Options) ([]Result, string, error) {
	filters := p.Filters.Store()

	if p.FreeText == "" {
		if filters.Empty() {
			return nil, "empty", nil
		}
		hits, err := r.store.QuerySymbolExact(ctx, "", store.SymbolQuery{Filters: filters, Limit: opts.Limit})
		if err != nil {
			return nil, "", fmt.Errorf("listing symbols: %w", err)
		}
		return definitions(hits), "list", nil
	}

	term := ""
	if len(p.Terms) == 1 && !p.Terms[0].Phrase {
		term = p.Terms[0].Text
	}
	name, qualifier, prefix, isSymbol := SymbolTerm(term, r.cfg.MaxSymbolLength)

	switch {
	case opts.Mode == ModeText:
		isSymbol = false
	case opts.Mode == ModeSymbol && !isSymbol:
		// forced symbol lookup on a non-identifier uses the text as given
		name, qualifier, prefix, isSymbol = strings.TrimSuffix(p.FreeText, "*"), "", strings.HasSuffix(p.FreeText, "*"), true
	}

	if !isSymbol {
		res, err := r.text(ctx, p.FreeText, filters, opts.Limit, nil)
		return res, "text", err
	}

	symbols, err := r.symbols(ctx, name, qualifier, prefix, filters, opts.Limit)
	if err != nil {
		return nil, "", err
	}
	if len(symbols) == 0 {
		res, err := r.text(ctx, p.FreeText, filters, opts.Limit, nil)
		return res, "symbol->text", err
	}
	if len(symbols) >= opts.Limit {
		return symbols[:opts.Limit], "symbol", nil
	}
	text, err := r.text(ctx, p.FreeText, filters, opts.Limit-len(symbols), symbols)
	if err != nil {
		return nil, "", err
	}
	return append(symbols, text...), "symbol+text", nil
}

// symbols looks up definitions, case-sensitively first, then call sites of
// the same name.
func (r *Router) symbols(ctx context.Context, name, qualifier string, prefix bool, f store.Filters, limit int) ([]Result, error) {
	q := store.SymbolQuery{Filters: f, Prefix: prefix, Limit: limit}
	defs, err := r.store.QuerySymbolExact(ctx, name, q)
	if err != nil {
		return nil, fmt.Errorf("symbol lookup: %w", err)
	}
	if len(defs) == 0 {
		fold := q
		fold.CaseInsensitive = true
		if defs, err = r.store.QuerySymbolExact(ctx, name, fold); err != nil {
			return nil, fmt.Errorf("symbol lookup: %w", err)
		}
	}
	if qualifier != "" {
		defs = preferParent(defs, qualifier)
	}

	calls, err := r.store.QueryCallSites(ctx, name, q)
	if err != nil {
		return nil, fmt.Errorf("call site lookup: %w", err)
	}

	out := definitions(defs)
	for _, c := range calls {
		out = append(out, Result{
			Path:      c.Path,
			StartLine: c.Line,
			EndLine:   c.Line,
			Kind:      c.CallerKind,
			Symbol:    c.Callee,
			Score:     ScoreCall,
			Excerpt:   c.Excerpt,
			Language:  c.Language,
			Source:    SourceCall,
		})
	}
	return out, nil
}

// preferParent keeps definitions nested under qualifier when there are any.
func preferParent(defs []store.SymbolHit, qualifier string) []store.SymbolHit {
	var kept []store.SymbolHit
	for _, d := range defs {
		if strings.EqualFold(d.Parent, qualifier) {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		return defs
	}
	return kept
}

func definitions(hits []store.SymbolHit) []Result {
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		excerpt := h.Signature
		if excerpt == "" {
			excerpt = h.Name
		}
		out = append(out, Result{
			Path:      h.Path,
			StartLine: h.StartLine,
			EndLine:   h.EndLine,
			Kind:      h.Kind,
			Symbol:    h.Name,
			Score:     ScoreDefinition,
			Excerpt:   excerpt,
			Language:  h.Language,
			Source:    SourceDefinition,
		})
	}
	return out
}

// text runs a full-text lookup, dropping chunks that already contain one of
// the seen hits.
func (r *Router) text(ctx context.Context, text string, f store.Filters, limit int, seen []Result) ([]Result, error) {
	hits, err := r.store.QueryFullText(ctx, text, store.TextQuery{Filters: f, Limit: limit + len(seen)})
	if err != nil {
		return nil, fmt.Errorf("full-text lookup: %w", err)
	}
	var out []Result
	for _, h := range hits {
		if covers(seen, h) {
			continue
		}
		out = append(out, Result{
			Path:      h.Path,
			StartLine: h.StartLine,
			EndLine:   h.EndLine,
			Symbol:    h.Symbol,
			Score:     textScore(h.Score),
			Excerpt:   Snippet(h.Content, text),
			Language:  h.Language,
			Source:    SourceText,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// textScore maps a non-negative bm25 relevance into [0, 1), keeping order.
func textScore(relevance float64) float64 {
	if relevance <= 0 {
		return 0
	}
	return relevance / (1 + relevance)
}

func covers(seen []Result, h store.TextHit) bool {
	for _, s := range seen {
		if s.Path == h.Path && s.StartLine >= h.StartLine && s.StartLine <= h.EndLine {
			return true
		}
	}
	return false
}

// Snippet returns the first line of content that mentions a query term, or
// its first non-blank line.
func Snippet(content, text string) string {
	var terms []string
	for _, t := range store.Tokenize(text) {
		if w := strings.ToLower(strings.TrimRight(t.Text, "*")); w != "" {
			terms = append(terms, w)
		}
	}
	first := ""
	for line := range strings.Lines(content) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if first == "" {
			first = line
		}
		lower := strings.ToLower(line)
		for _, t := range terms {
			if strings.Contains(lower, t) {
				return line
			}
		}
	}
	return first
}
