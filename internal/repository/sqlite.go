package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverCGO    = "sqlite3"
	DriverPureGo = "sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. driver is "sqlite3" (cgo) or
// "sqlite" (pure Go); an empty driver selects "sqlite3".
func NewSQLiteStore(driver, dsn string) (*SQLiteStore, error) {
	if driver == "" {
		driver = DriverCGO
	}
	if driver != DriverCGO && driver != DriverPureGo {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// each connection to :memory: is its own database; pin to one
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// chunk ids are only unique within their run
const (
	chunksTable = `CREATE TABLE IF NOT EXISTS chunks (
			chunk_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			source_id TEXT,
			start_offset INTEGER NOT NULL DEFAULT 0,
			end_offset INTEGER NOT NULL DEFAULT 0,
			hash TEXT NOT NULL,
			text TEXT NOT NULL,
			PRIMARY KEY (run_id, chunk_id),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`
	chunksIndex = `CREATE INDEX IF NOT EXISTS idx_chunks_run ON chunks(run_id, source_id, start_offset)`
)

// migrate runs database migrations. Timestamps are unix milliseconds so both
// drivers read them back identically.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			source_company TEXT NOT NULL,
			target_company TEXT,
			status TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'pending',
			tokens_used INTEGER NOT NULL DEFAULT 0,
			cost REAL NOT NULL DEFAULT 0,
			error TEXT,
			created_at INTEGER NOT NULL,
			started_at INTEGER,
			completed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status_created ON runs(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source_company, created_at)`,
		chunksTable,
		chunksIndex,
		`CREATE TABLE IF NOT EXISTS phase_results (
			run_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			status TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			payload TEXT,
			citations TEXT,
			warnings TEXT,
			error TEXT,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, phase),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			run_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			type TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, phase, type),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS artifact_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			type TEXT NOT NULL,
			schema_version INTEGER NOT NULL DEFAULT 1,
			data TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artifact_history_key ON artifact_history(run_id, phase, type, id)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, ts)`,
		`CREATE TABLE IF NOT EXISTS diversity_reports (
			run_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			clearance TEXT NOT NULL,
			report TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS synthesis_bundles (
			run_id TEXT PRIMARY KEY,
			bundle TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// columns added after the first release
	if err := s.ensureColumn("runs", "cancel_requested", "ALTER TABLE runs ADD COLUMN cancel_requested INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if err := s.rekeyChunks(); err != nil {
		return err
	}
	if err := s.ensureColumn("artifacts", "schema_version", "ALTER TABLE artifacts ADD COLUMN schema_version INTEGER NOT NULL DEFAULT 1"); err != nil {
		return err
	}
	return nil
}

// rekeyChunks rebuilds a chunks table created with a global chunk_id key.
func (s *SQLiteStore) rekeyChunks() error {
	var ddl string
	if err := s.db.QueryRow(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'chunks'`).Scan(&ddl); err != nil {
		return fmt.Errorf("failed to read chunks table: %w", err)
	}
	if strings.Contains(ddl, "PRIMARY KEY (run_id, chunk_id)") {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	steps := []string{
		`ALTER TABLE chunks RENAME TO chunks_legacy`,
		chunksTable,
		`INSERT OR REPLACE INTO chunks (chunk_id, run_id, source_id, start_offset, end_offset, hash, text)
		 SELECT chunk_id, run_id, source_id, start_offset, end_offset, hash, text FROM chunks_legacy`,
		`DROP TABLE chunks_legacy`,
		chunksIndex,
	}
	for _, step := range steps {
		if _, err := tx.Exec(step); err != nil {
			return fmt.Errorf("rekey chunks: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
