// Package store manages durable persistence of the calsync event map.
//
// The default backend is a single JSON file replaced atomically on every
// save. SQLite in WAL mode is available for deployments that prefer a
// database file; it keeps the same whole-snapshot contract by replacing
// every row inside one transaction.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/daviddao/calsync/pkg/model"

	_ "modernc.org/sqlite"
)

// Backend kinds accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
)

// Open returns the backend named by kind. An empty kind is inferred from
// the path: .db, .sqlite and .sqlite3 select SQLite, anything else the JSON
// file.
func Open(kind, path string) (StoreInterface, error) {
	if kind == "" {
		kind = inferKind(path)
	}
	switch kind {
	case KindFile:
		return NewFile(path)
	case KindSQLite:
		return NewSQLite(path)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", kind)
	}
}

func inferKind(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return KindSQLite
	default:
		return KindFile
	}
}

// SQLiteStore keeps one row per event with the JSON record in doc.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the SQLite database and initializes the schema.
func NewSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id         TEXT PRIMARY KEY,
		updated_at INTEGER NOT NULL,
		deleted    INTEGER NOT NULL DEFAULT 0,
		doc        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_updated ON events(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns every stored event. Query failures and undecodable rows
// degrade to an empty or partial snapshot rather than an error.
func (s *SQLiteStore) Load() model.Snapshot {
	snap := model.Snapshot{}
	rows, err := s.db.Query(`SELECT id, doc FROM events`)
	if err != nil {
		return snap
	}
	defer rows.Close()
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return model.Snapshot{}
		}
		var e model.Event
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			continue
		}
		e.ID = id
		snap[id] = e
	}
	if rows.Err() != nil {
		return model.Snapshot{}
	}
	return snap
}

// Save replaces the whole table with snap in a single transaction.
func (s *SQLiteStore) Save(snap model.Snapshot) error {
	return retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		if _, err := tx.Exec(`DELETE FROM events`); err != nil {
			return fmt.Errorf("clear events: %w", err)
		}
		stmt, err := tx.Prepare(`INSERT INTO events (id, updated_at, deleted, doc) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for id, e := range snap {
			e.ID = id
			doc, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode event %s: %w", id, err)
			}
			if _, err := stmt.Exec(id, e.UpdatedAt, boolToInt(e.Deleted), string(doc)); err != nil {
				return fmt.Errorf("insert event %s: %w", id, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit snapshot: %w", err)
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
