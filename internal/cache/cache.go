// Package cache provides a SQLite-backed local mirror of the entity store
// for offline/refresh resilience. Every mutation path that changes the
// store also updates this cache under the same id-keyed replace-or-append
// discipline.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/raido/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS initiatives (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT '',
	owner_id   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_initiatives_owner ON initiatives(owner_id);
`

// DB wraps a sql.DB with cache-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the cache database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Upsert mirrors one initiative into the cache, replacing any previous
// document under the same id.
func (db *DB) Upsert(ini *domain.Initiative) error {
	doc, err := json.Marshal(ini)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO initiatives (id, doc, status, owner_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doc        = excluded.doc,
			status     = excluded.status,
			owner_id   = excluded.owner_id,
			updated_at = excluded.updated_at
	`, ini.ID, string(doc), string(ini.Status), ini.OwnerID, time.Now())
	if err != nil {
		return fmt.Errorf("cache: upsert: %w", err)
	}
	return nil
}

// ReplaceAll mirrors a full reload: the cache is cleared and repopulated in
// one transaction so a crash never leaves a half-written mirror.
func (db *DB) ReplaceAll(items []*domain.Initiative) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM initiatives`); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO initiatives (id, doc, status, owner_id, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cache: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, ini := range items {
		doc, err := json.Marshal(ini)
		if err != nil {
			return fmt.Errorf("cache: marshal %s: %w", ini.ID, err)
		}
		if _, err := stmt.Exec(ini.ID, string(doc), string(ini.Status), ini.OwnerID, now); err != nil {
			return fmt.Errorf("cache: insert %s: %w", ini.ID, err)
		}
	}
	return tx.Commit()
}

// Delete removes the cached document for id.
func (db *DB) Delete(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM initiatives WHERE id = ?`, id); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// LoadAll returns every cached initiative. Corrupt rows are skipped.
func (db *DB) LoadAll() ([]*domain.Initiative, error) {
	rows, err := db.conn.Query(`SELECT doc FROM initiatives ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("cache: load all: %w", err)
	}
	defer rows.Close()

	var out []*domain.Initiative
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var ini domain.Initiative
		if err := json.Unmarshal([]byte(doc), &ini); err != nil {
			continue
		}
		out = append(out, &ini)
	}
	return out, rows.Err()
}

// Count returns the number of cached records.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM initiatives`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache: count: %w", err)
	}
	return n, nil
}
