package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

const metaSchemaVersion = "schema_version"

// bootstrap is applied before migrations so the version can be read.
const bootstrap = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

type migration struct {
	version int
	name    string
	sql     string
}

// migrations are applied in order, each in its own transaction.
var migrations = []migration{
	{version: 1, name: "core tables", sql: `
CREATE TABLE files (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    path        TEXT NOT NULL UNIQUE,
    hash        TEXT NOT NULL,
    language    TEXT NOT NULL DEFAULT '',
    size_bytes  INTEGER NOT NULL DEFAULT 0,
    mod_time    INTEGER NOT NULL DEFAULT 0,
    indexed_at  INTEGER NOT NULL DEFAULT 0,
    degraded    INTEGER NOT NULL DEFAULT 0,
    parse_error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE symbols (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id    INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    parent_id  INTEGER REFERENCES symbols(id) ON DELETE CASCADE,
    name       TEXT NOT NULL,
    kind       TEXT NOT NULL,
    start_line INTEGER NOT NULL,
    end_line   INTEGER NOT NULL,
    start_col  INTEGER NOT NULL DEFAULT 0,
    end_col    INTEGER NOT NULL DEFAULT 0,
    signature  TEXT NOT NULL DEFAULT '',
    metadata   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX idx_symbols_name ON symbols(name);
CREATE INDEX idx_symbols_name_nocase ON symbols(name COLLATE NOCASE);
CREATE INDEX idx_symbols_file ON symbols(file_id);
CREATE INDEX idx_symbols_parent ON symbols(parent_id);

CREATE TABLE calls (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id     INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    caller_id   INTEGER REFERENCES symbols(id) ON DELETE CASCADE,
    callee_name TEXT NOT NULL,
    callee_id   INTEGER REFERENCES symbols(id) ON DELETE SET NULL,
    line        INTEGER NOT NULL,
    excerpt     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX idx_calls_callee_name ON calls(callee_name);
CREATE INDEX idx_calls_callee ON calls(callee_id);
CREATE INDEX idx_calls_caller ON calls(caller_id);
CREATE INDEX idx_calls_file ON calls(file_id);

CREATE TABLE imports (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    path    TEXT NOT NULL,
    names   TEXT NOT NULL DEFAULT '',
    line    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_imports_path ON imports(path);
CREATE INDEX idx_imports_file ON imports(file_id);

CREATE TABLE chunks (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id    INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    start_line INTEGER NOT NULL,
    end_line   INTEGER NOT NULL,
    symbol     TEXT NOT NULL DEFAULT '',
    content    TEXT NOT NULL
);
CREATE INDEX idx_chunks_file ON chunks(file_id);
`},
	{version: 2, name: "chunk full-text index", sql: `
CREATE VIRTUAL TABLE chunks_fts USING fts5(
    content,
    content='chunks',
    content_rowid='id',
    tokenize='unicode61'
);

CREATE TRIGGER chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;

CREATE TRIGGER chunks_au AFTER UPDATE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
    INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
END;

INSERT INTO chunks_fts(chunks_fts) VALUES ('rebuild');
`},
}

// SchemaVersion is the newest schema this build understands.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

func readVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v string
	err := db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", metaSchemaVersion).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("bad schema version %q", v)
	}
	return n, nil
}

// migrate brings the schema up to date. It refuses databases written by a
// newer build.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, bootstrap); err != nil {
		return dbErr("bootstrap schema", err)
	}
	current, err := readVersion(ctx, s.db)
	if err != nil {
		return dbErr("read schema version", err)
	}
	if current > SchemaVersion() {
		return fmt.Errorf("%w: database is v%d, this build supports v%d", ErrSchemaTooNew, current, SchemaVersion())
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		s.log.Debug("store.migrate", "version", m.version, "name", m.name)
	}
	return nil
}

func (s *SQLiteStore) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr("begin migration", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return dbErr(fmt.Sprintf("migration %d (%s)", m.version, m.name), err)
	}
	if _, err := tx.ExecContext(ctx, upsertMetaSQL, metaSchemaVersion, strconv.Itoa(m.version)); err != nil {
		return dbErr("record schema version", err)
	}
	if err := tx.Commit(); err != nil {
		return dbErr("commit migration", err)
	}
	return nil
}
