// Package store persists files, symbols, call edges, imports and full-text
// chunks in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	DriverModernc = "sqlite"
	DriverCgo     = "sqlite3"
)

var (
	// ErrDatabase wraps every failure reported by the SQL driver.
	ErrDatabase = errors.New("database")
	// ErrSchemaTooNew is returned when the database was written by a newer build.
	ErrSchemaTooNew = errors.New("schema too new")
)

func dbErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDatabase, op, err)
}

const upsertMetaSQL = "INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value"

// Store provides persistence for the code index.
type Store interface {
	// UpsertFile replaces a file and everything it owns in one transaction.
	UpsertFile(ctx context.Context, f FileRecord, c Contents) (int64, error)
	// DeleteFile removes a file and everything it owns. It reports whether
	// the file existed.
	DeleteFile(ctx context.Context, path string) (bool, error)
	// GetFileMeta returns the stored record for a path, or nil if not indexed.
	GetFileMeta(ctx context.Context, path string) (*FileRecord, error)
	ListFilePaths(ctx context.Context) ([]string, error)
	ListFiles(ctx context.Context, language string) ([]FileRecord, error)
	Counts(ctx context.Context) (Counts, error)

	QuerySymbolExact(ctx context.Context, name string, q SymbolQuery) ([]SymbolHit, error)
	QueryCallSites(ctx context.Context, name string, q SymbolQuery) ([]CallHit, error)
	QueryFullText(ctx context.Context, text string, q TextQuery) ([]TextHit, error)

	// ResolveCalls links unresolved call edges to definitions and returns
	// how many were linked.
	ResolveCalls(ctx context.Context) (int64, error)
	Callers(ctx context.Context, name string, limit int) ([]CallHit, error)
	Callees(ctx context.Context, name string, limit int) ([]CallHit, error)
	ImportsOf(ctx context.Context, path string) ([]ImportRow, error)
	Importers(ctx context.Context, module string, limit int) ([]ImportRow, error)

	// GetMeta returns a metadata value by key, or "" if not set.
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
	// DeleteAll removes every indexed file.
	DeleteAll(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	Close() error
}

// Options configure Open.
type Options struct {
	Driver      string
	BusyTimeout time.Duration
	Logger      *slog.Logger
}

// SQLiteStore implements Store. Readers run concurrently; writers are
// serialized by writeMu.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex
	log     *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

func dsn(driver, path string, busy time.Duration) string {
	ms := busy.Milliseconds()
	if driver == DriverCgo {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, ms)
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, ms)
}

// Open creates or opens the database at dbPath and migrates it.
func Open(ctx context.Context, dbPath string, opts Options) (*SQLiteStore, error) {
	if opts.Driver == "" {
		opts.Driver = DriverModernc
	}
	if opts.Driver != DriverModernc && opts.Driver != DriverCgo {
		return nil, fmt.Errorf("unknown sqlite driver %q", opts.Driver)
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open(opts.Driver, dsn(opts.Driver, dbPath, opts.BusyTimeout))
	if err != nil {
		return nil, dbErr("open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, dbErr("ping", err)
	}

	s := &SQLiteStore{db: db, log: opts.Logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	v, err := readVersion(ctx, s.db)
	if err != nil {
		return 0, dbErr("read schema version", err)
	}
	return v, nil
}

func (s *SQLiteStore) UpsertFile(ctx context.Context, f FileRecord, c Contents) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, dbErr("begin", err)
	}
	defer tx.Rollback()

	if f.IndexedAt.IsZero() {
		f.IndexedAt = time.Now()
	}

	var fileID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM files WHERE path = ?", f.Path).Scan(&fileID)
	switch {
	case err == nil:
		// Calls in other files that pointed at this file's symbols fall back
		// to unresolved through ON DELETE SET NULL.
		for _, table := range []string{"calls", "imports", "chunks", "symbols"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE file_id = ?", fileID); err != nil {
				return 0, dbErr("clear "+table, err)
			}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE files SET hash = ?, language = ?, size_bytes = ?, mod_time = ?, indexed_at = ?,
			       degraded = ?, parse_error = ?
			WHERE id = ?`,
			f.Hash, f.Language, f.SizeBytes, f.ModTime.UnixNano(), f.IndexedAt.UnixNano(),
			f.Degraded, f.ParseError, fileID,
		)
		if err != nil {
			return 0, dbErr("update file", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `
			INSERT INTO files (path, hash, language, size_bytes, mod_time, indexed_at, degraded, parse_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.Path, f.Hash, f.Language, f.SizeBytes, f.ModTime.UnixNano(), f.IndexedAt.UnixNano(),
			f.Degraded, f.ParseError,
		)
		if err != nil {
			return 0, dbErr("insert file", err)
		}
		if fileID, err = res.LastInsertId(); err != nil {
			return 0, dbErr("insert file", err)
		}
	default:
		return 0, dbErr("lookup file", err)
	}

	symbolIDs, err := insertSymbols(ctx, tx, fileID, c)
	if err != nil {
		return 0, err
	}
	if err := insertCalls(ctx, tx, fileID, c, symbolIDs); err != nil {
		return 0, err
	}
	if err := insertImports(ctx, tx, fileID, c); err != nil {
		return 0, err
	}
	if err := insertChunks(ctx, tx, fileID, c); err != nil {
		return 0, err
	}

	// Link this file's calls, and other files' dangling calls to the
	// symbols it now defines.
	if _, err := resolve(ctx, tx, "calls.file_id = ?", fileID); err != nil {
		return 0, err
	}
	if len(symbolIDs) > 0 {
		if _, err := resolve(ctx, tx, "calls.callee_name IN (SELECT name FROM symbols WHERE file_id = ?)", fileID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, dbErr("commit", err)
	}
	return fileID, nil
}

func insertSymbols(ctx context.Context, tx *sql.Tx, fileID int64, c Contents) ([]int64, error) {
	if len(c.Symbols) == 0 {
		return nil, nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (file_id, parent_id, name, kind, start_line, end_line, start_col, end_col, signature, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, dbErr("prepare symbols", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(c.Symbols))
	for i, sym := range c.Symbols {
		var parent sql.NullInt64
		// parents always precede their children
		if sym.Parent >= 0 && sym.Parent < i {
			parent = sql.NullInt64{Int64: ids[sym.Parent], Valid: true}
		}
		meta := ""
		if len(sym.Metadata) > 0 {
			b, err := json.Marshal(sym.Metadata)
			if err != nil {
				return nil, fmt.Errorf("encode metadata for %s: %w", sym.Name, err)
			}
			meta = string(b)
		}
		res, err := stmt.ExecContext(ctx, fileID, parent, sym.Name, string(sym.Kind),
			sym.StartLine, sym.EndLine, sym.StartCol, sym.EndCol, sym.Signature, meta)
		if err != nil {
			return nil, dbErr("insert symbol", err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return nil, dbErr("insert symbol", err)
		}
	}
	return ids, nil
}

func insertCalls(ctx context.Context, tx *sql.Tx, fileID int64, c Contents, symbolIDs []int64) error {
	if len(c.Calls) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO calls (file_id, caller_id, callee_name, line, excerpt) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return dbErr("prepare calls", err)
	}
	defer stmt.Close()

	for _, call := range c.Calls {
		var caller sql.NullInt64
		if call.Caller >= 0 && call.Caller < len(symbolIDs) {
			caller = sql.NullInt64{Int64: symbolIDs[call.Caller], Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, fileID, caller, call.Callee, call.Line, call.Excerpt); err != nil {
			return dbErr("insert call", err)
		}
	}
	return nil
}

func insertImports(ctx context.Context, tx *sql.Tx, fileID int64, c Contents) error {
	if len(c.Imports) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO imports (file_id, path, names, line) VALUES (?, ?, ?, ?)")
	if err != nil {
		return dbErr("prepare imports", err)
	}
	defer stmt.Close()

	for _, imp := range c.Imports {
		if _, err := stmt.ExecContext(ctx, fileID, imp.Path, strings.Join(imp.Names, ","), imp.Line); err != nil {
			return dbErr("insert import", err)
		}
	}
	return nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, fileID int64, c Contents) error {
	if len(c.Chunks) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (file_id, start_line, end_line, symbol, content) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return dbErr("prepare chunks", err)
	}
	defer stmt.Close()

	for _, ch := range c.Chunks {
		if _, err := stmt.ExecContext(ctx, fileID, ch.StartLine, ch.EndLine, ch.Symbol, ch.Content); err != nil {
			return dbErr("insert chunk", err)
		}
	}
	return nil
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, path string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE path = ?", path)
	if err != nil {
		return false, dbErr("delete file", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr("delete file", err)
	}
	return n > 0, nil
}

const fileColumns = "id, path, hash, language, size_bytes, mod_time, indexed_at, degraded, parse_error"

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (FileRecord, error) {
	var (
		f                FileRecord
		modTime, indexed int64
	)
	err := row.Scan(&f.ID, &f.Path, &f.Hash, &f.Language, &f.SizeBytes, &modTime, &indexed, &f.Degraded, &f.ParseError)
	if err != nil {
		return f, err
	}
	f.ModTime = time.Unix(0, modTime)
	f.IndexedAt = time.Unix(0, indexed)
	return f, nil
}

func (s *SQLiteStore) GetFileMeta(ctx context.Context, path string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE path = ?", path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("get file", err)
	}
	return &f, nil
}

func (s *SQLiteStore) ListFilePaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path FROM files ORDER BY path")
	if err != nil {
		return nil, dbErr("list paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, dbErr("list paths", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list paths", err)
	}
	return paths, nil
}

// ListFiles returns file records ordered by path, optionally restricted to
// one language.
func (s *SQLiteStore) ListFiles(ctx context.Context, language string) ([]FileRecord, error) {
	query := "SELECT " + fileColumns + " FROM files"
	var args []any
	if language != "" {
		query += " WHERE language = ?"
		args = append(args, language)
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY path", args...)
	if err != nil {
		return nil, dbErr("list files", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, dbErr("list files", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list files", err)
	}
	return files, nil
}

func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM files),
			(SELECT COUNT(*) FROM files WHERE degraded = 1),
			(SELECT COUNT(*) FROM symbols),
			(SELECT COUNT(*) FROM calls),
			(SELECT COUNT(*) FROM imports),
			(SELECT COUNT(*) FROM chunks)`,
	).Scan(&c.Files, &c.Degraded, &c.Symbols, &c.Calls, &c.Imports, &c.Chunks)
	if err != nil {
		return c, dbErr("counts", err)
	}
	return c, nil
}

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", dbErr("get meta", err)
	}
	return value, nil
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, upsertMetaSQL, key, value); err != nil {
		return dbErr("set meta", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr("begin", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"calls", "imports", "chunks", "symbols", "files"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return dbErr("clear "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return dbErr("commit", err)
	}
	return nil
}
