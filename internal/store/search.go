package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"unicode"
)

func (s *SQLiteStore) QuerySymbolExact(ctx context.Context, name string, q SymbolQuery) ([]SymbolHit, error) {
	w := &where{}
	namePredicate(w, "s.name", name, q.CaseInsensitive, q.Prefix)
	applyFilters(w, q.Filters, func(ph string) string { return "s.kind IN (" + ph + ")" })

	query := `
		SELECT s.id, s.name, s.kind, f.path, f.language, s.start_line, s.end_line, s.signature,
		       COALESCE(p.name, ''), s.metadata
		FROM symbols s
		JOIN files f ON f.id = s.file_id
		LEFT JOIN symbols p ON p.id = s.parent_id
		WHERE ` + w.String() + `
		ORDER BY f.path, s.start_line, s.id
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, append(w.args, sqlLimit(q.Limit, q.Filters))...)
	if err != nil {
		return nil, dbErr("query symbols", err)
	}
	defer rows.Close()

	var hits []SymbolHit
	for rows.Next() {
		var h SymbolHit
		var meta string
		err := rows.Scan(&h.ID, &h.Name, &h.Kind, &h.Path, &h.Language, &h.StartLine, &h.EndLine,
			&h.Signature, &h.Parent, &meta)
		if err != nil {
			return nil, dbErr("query symbols", err)
		}
		if !matchAny(q.Filters.Paths, h.Path) {
			continue
		}
		if meta != "" {
			// a corrupt metadata blob only loses the metadata
			_ = json.Unmarshal([]byte(meta), &h.Metadata)
		}
		hits = append(hits, h)
		if q.Limit > 0 && len(hits) >= q.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query symbols", err)
	}
	return hits, nil
}

const callSelect = `
	SELECT f.path, f.language, c.line, c.excerpt, COALESCE(cs.name, ''), COALESCE(cs.kind, ''),
	       c.callee_name, COALESCE(tf.path, '')
	FROM calls c
	JOIN files f ON f.id = c.file_id
	LEFT JOIN symbols cs ON cs.id = c.caller_id
	LEFT JOIN symbols t ON t.id = c.callee_id
	LEFT JOIN files tf ON tf.id = t.file_id`

func scanCalls(rows *sql.Rows, paths []string, limit int) ([]CallHit, error) {
	defer rows.Close()
	var hits []CallHit
	for rows.Next() {
		var h CallHit
		if err := rows.Scan(&h.Path, &h.Language, &h.Line, &h.Excerpt, &h.Caller, &h.CallerKind,
			&h.Callee, &h.CalleePath); err != nil {
			return nil, dbErr("query calls", err)
		}
		if !matchAny(paths, h.Path) {
			continue
		}
		hits = append(hits, h)
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query calls", err)
	}
	return hits, nil
}

// QueryCallSites returns call edges whose callee name matches. A kind
// filter applies to the calling symbol.
func (s *SQLiteStore) QueryCallSites(ctx context.Context, name string, q SymbolQuery) ([]CallHit, error) {
	w := &where{}
	namePredicate(w, "c.callee_name", name, q.CaseInsensitive, q.Prefix)
	applyFilters(w, q.Filters, func(ph string) string { return "cs.kind IN (" + ph + ")" })

	query := callSelect + " WHERE " + w.String() + " ORDER BY f.path, c.line, c.id LIMIT ?"
	rows, err := s.db.QueryContext(ctx, query, append(w.args, sqlLimit(q.Limit, q.Filters))...)
	if err != nil {
		return nil, dbErr("query calls", err)
	}
	return scanCalls(rows, q.Filters.Paths, q.Limit)
}

// QueryFullText ranks chunks by bm25, breaking ties by path then line. A
// kind filter keeps chunks overlapping a symbol of that kind.
func (s *SQLiteStore) QueryFullText(ctx context.Context, text string, q TextQuery) ([]TextHit, error) {
	match := MatchExpression(text)
	if match == "" {
		return nil, nil
	}
	w := &where{}
	w.add("chunks_fts MATCH ?", match)
	applyFilters(w, q.Filters, func(ph string) string {
		return `EXISTS (SELECT 1 FROM symbols s WHERE s.file_id = c.file_id AND s.kind IN (` + ph + `)
			AND s.start_line <= c.end_line AND s.end_line >= c.start_line)`
	})

	query := `
		SELECT f.path, f.language, c.start_line, c.end_line, c.symbol, c.content, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		JOIN files f ON f.id = c.file_id
		WHERE ` + w.String() + `
		ORDER BY rank, f.path, c.start_line
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, append(w.args, sqlLimit(q.Limit, q.Filters))...)
	if err != nil {
		return nil, dbErr("query text", err)
	}
	defer rows.Close()

	var hits []TextHit
	for rows.Next() {
		var h TextHit
		var rank float64
		if err := rows.Scan(&h.Path, &h.Language, &h.StartLine, &h.EndLine, &h.Symbol, &h.Content, &rank); err != nil {
			return nil, dbErr("query text", err)
		}
		if !matchAny(q.Filters.Paths, h.Path) {
			continue
		}
		h.Score = -rank
		hits = append(hits, h)
		if q.Limit > 0 && len(hits) >= q.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query text", err)
	}
	return hits, nil
}

// MatchExpression turns user text into an FTS5 query: double-quoted spans
// stay phrases, other words become AND-ed terms, and a trailing * on a word
// requests a prefix match. Every term is quoted. It returns "" when nothing
// searchable remains.
func MatchExpression(text string) string {
	var terms []string
	for _, tok := range Tokenize(text) {
		word := tok.Text
		prefix := false
		if !tok.Phrase && strings.HasSuffix(word, "*") {
			word = strings.TrimRight(word, "*")
			prefix = true
		}
		if !strings.ContainsFunc(word, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			continue
		}
		term := `"` + strings.ReplaceAll(word, `"`, `""`) + `"`
		if prefix {
			term += "*"
		}
		terms = append(terms, term)
	}
	return strings.Join(terms, " ")
}

// Token is one unit of user query text.
type Token struct {
	Text   string
	Phrase bool
}

// Tokenize splits on whitespace, keeping double-quoted spans together. An
// unterminated quote runs to the end of the input.
func Tokenize(text string) []Token {
	var (
		out     []Token
		b       strings.Builder
		inQuote bool
	)
	flush := func(phrase bool) {
		if t := strings.TrimSpace(b.String()); t != "" {
			out = append(out, Token{Text: t, Phrase: phrase})
		}
		b.Reset()
	}
	for _, r := range text {
		switch {
		case r == '"':
			flush(inQuote)
			inQuote = !inQuote
		case unicode.IsSpace(r) && !inQuote:
			flush(false)
		default:
			b.WriteRune(r)
		}
	}
	flush(inQuote)
	return out
}
