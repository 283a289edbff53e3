package store

import (
	"context"
	"database/sql"
	"strings"
)

// callableKinds are the symbol kinds a call edge can resolve to.
const callableKinds = "'function', 'method', 'class', 'struct', 'type'"

// execer is implemented by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// resolve links unresolved calls matching cond to a definition with the
// same name, preferring one in the calling file. cond refers to the calls
// table by its name; SQLite rejects aliases on the UPDATE target inside
// correlated subqueries.
func resolve(ctx context.Context, q execer, cond string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE calls SET callee_id = COALESCE(
			(SELECT s.id FROM symbols s
			 WHERE s.name = calls.callee_name AND s.file_id = calls.file_id AND s.kind IN (`+callableKinds+`)
			 ORDER BY s.id LIMIT 1),
			(SELECT s.id FROM symbols s
			 WHERE s.name = calls.callee_name AND s.kind IN (`+callableKinds+`)
			 ORDER BY s.id LIMIT 1))
		WHERE calls.callee_id IS NULL AND `+cond+`
		  AND EXISTS (SELECT 1 FROM symbols s WHERE s.name = calls.callee_name AND s.kind IN (`+callableKinds+`))`,
		args...)
	if err != nil {
		return 0, dbErr("resolve calls", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbErr("resolve calls", err)
	}
	return n, nil
}

func (s *SQLiteStore) ResolveCalls(ctx context.Context) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return resolve(ctx, s.db, "1 = 1")
}

// Callers returns the call sites of name.
func (s *SQLiteStore) Callers(ctx context.Context, name string, limit int) ([]CallHit, error) {
	return s.QueryCallSites(ctx, name, SymbolQuery{Limit: limit})
}

// Callees returns the calls made from inside symbols called name.
func (s *SQLiteStore) Callees(ctx context.Context, name string, limit int) ([]CallHit, error) {
	if limit <= 0 {
		limit = 100
	}
	query := callSelect + " WHERE cs.name = ? ORDER BY f.path, c.line, c.id LIMIT ?"
	rows, err := s.db.QueryContext(ctx, query, name, limit)
	if err != nil {
		return nil, dbErr("query callees", err)
	}
	return scanCalls(rows, nil, limit)
}

func scanImports(rows *sql.Rows) ([]ImportRow, error) {
	defer rows.Close()
	var out []ImportRow
	for rows.Next() {
		var r ImportRow
		var names string
		if err := rows.Scan(&r.Path, &r.Module, &names, &r.Line); err != nil {
			return nil, dbErr("query imports", err)
		}
		if names != "" {
			r.Names = strings.Split(names, ",")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query imports", err)
	}
	return out, nil
}

// ImportsOf lists what one file imports, in source order.
func (s *SQLiteStore) ImportsOf(ctx context.Context, path string) ([]ImportRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.path, i.path, i.names, i.line
		FROM imports i JOIN files f ON f.id = i.file_id
		WHERE f.path = ?
		ORDER BY i.line, i.id`, path)
	if err != nil {
		return nil, dbErr("query imports", err)
	}
	return scanImports(rows)
}

// Importers lists files importing module, matched exactly or as the final
// path segments ("uuid" matches "github.com/google/uuid").
func (s *SQLiteStore) Importers(ctx context.Context, module string, limit int) ([]ImportRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.path, i.path, i.names, i.line
		FROM imports i JOIN files f ON f.id = i.file_id
		WHERE i.path = ? OR i.path LIKE ? ESCAPE '\'
		ORDER BY f.path, i.line
		LIMIT ?`, module, "%/"+likeEscape(module), limit)
	if err != nil {
		return nil, dbErr("query importers", err)
	}
	return scanImports(rows)
}

// Hotspots returns the definitions with the most resolved call sites.
func (s *SQLiteStore) Hotspots(ctx context.Context, limit int) ([]Hotspot, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.name, s.kind, f.path, s.start_line, COUNT(c.id) AS n
		FROM calls c
		JOIN symbols s ON s.id = c.callee_id
		JOIN files f ON f.id = s.file_id
		GROUP BY s.id
		ORDER BY n DESC, f.path, s.start_line
		LIMIT ?`, limit)
	if err != nil {
		return nil, dbErr("query hotspots", err)
	}
	defer rows.Close()

	var out []Hotspot
	for rows.Next() {
		var h Hotspot
		if err := rows.Scan(&h.Name, &h.Kind, &h.Path, &h.Line, &h.Callers); err != nil {
			return nil, dbErr("query hotspots", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query hotspots", err)
	}
	return out, nil
}

// Languages returns per-language totals, largest first.
func (s *SQLiteStore) Languages(ctx context.Context) ([]LanguageCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.language, COUNT(*),
			COALESCE(SUM((SELECT COUNT(*) FROM symbols s WHERE s.file_id = f.id)), 0)
		FROM files f
		GROUP BY f.language
		ORDER BY COUNT(*) DESC, f.language`)
	if err != nil {
		return nil, dbErr("query languages", err)
	}
	defer rows.Close()

	var out []LanguageCount
	for rows.Next() {
		var lc LanguageCount
		if err := rows.Scan(&lc.Language, &lc.Files, &lc.Symbols); err != nil {
			return nil, dbErr("query languages", err)
		}
		out = append(out, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query languages", err)
	}
	return out, nil
}
