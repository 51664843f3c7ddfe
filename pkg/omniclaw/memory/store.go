// Package memory provides the SQLite-backed long-term memory and journal
// store. A single omniclaw.db file holds free-form memories and dated
// journal entries; conversation history lives in its own JSON store.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every open (idempotent via IF NOT EXISTS).
const schema = `
CREATE TABLE IF NOT EXISTS memories (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    content    TEXT NOT NULL,
    source     TEXT DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);

CREATE TABLE IF NOT EXISTS journal_entries (
    date       TEXT PRIMARY KEY,
    content    TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// Store is the SQLite memory and journal store. Safe for concurrent use;
// database/sql serializes access to the single connection pool.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path, enabling WAL mode and
// creating the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddMemory stores one free-form memory. Source labels where it came from
// ("chat", "life", ...) and may be empty.
func (s *Store) AddMemory(ctx context.Context, content, source string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("memory content is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (content, source, created_at) VALUES (?, ?, ?)`,
		content, source, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// RecentMemories returns the newest memories, newest first.
func (s *Store) RecentMemories(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM memories ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// SearchMemories returns memories whose content matches the query,
// newest first. Matching is a case-insensitive substring match.
func (s *Store) SearchMemories(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM memories WHERE content LIKE ? ESCAPE '\' ORDER BY id DESC LIMIT ?`,
		pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// SaveEntry writes the journal entry for a date (YYYY-MM-DD), replacing any
// previous entry for that day.
func (s *Store) SaveEntry(ctx context.Context, date, content string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid journal date %q: %w", date, err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal_entries (date, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		date, content, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save journal entry: %w", err)
	}
	return nil
}

// EntryFor returns the journal entry for a date, or "" when none exists.
func (s *Store) EntryFor(ctx context.Context, date string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM journal_entries WHERE date = ?`, date).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query journal entry: %w", err)
	}
	return content, nil
}

// ListDates returns the most recent journal dates, newest first.
func (s *Store) ListDates(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 14
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT date FROM journal_entries ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal dates: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// escapeLike escapes LIKE metacharacters so user queries match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
