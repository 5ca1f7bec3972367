package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/controlqa/model"
)

// SqliteChunkStore implements ChunkStore using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteChunkStore struct {
	db      *sql.DB
	baseDir string
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Relative chunk paths are resolved against baseDir.
// Creates parent directories if they don't exist.
func OpenSqlite(path, baseDir string) (*SqliteChunkStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SqliteChunkStore{db: db, baseDir: baseDir}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteChunkStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	store := &SqliteChunkStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SqliteChunkStore) Close() error {
	return s.db.Close()
}

func (s *SqliteChunkStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			chunk_id TEXT PRIMARY KEY,
			path TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			book_id TEXT NOT NULL,
			theory TEXT NOT NULL,
			page_start INTEGER NOT NULL DEFAULT 0,
			page_end INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_chunks_book
		ON chunks(book_id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Put inserts or replaces a chunk record.
func (s *SqliteChunkStore) Put(ctx context.Context, rec ChunkRecord) error {
	if rec.ChunkID == "" {
		return fmt.Errorf("chunk id cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO chunks
		(chunk_id, path, text, book_id, theory, page_start, page_end)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ChunkID,
		rec.Path,
		rec.Text,
		rec.BookID,
		string(rec.Theory),
		rec.PageStart,
		rec.PageEnd,
	)
	if err != nil {
		return fmt.Errorf("failed to store chunk: %w", err)
	}
	return nil
}

// Get returns the record for a chunk id. Returns nil, nil if not found.
func (s *SqliteChunkStore) Get(ctx context.Context, chunkID string) (*ChunkRecord, error) {
	var rec ChunkRecord
	var theory string

	err := s.db.QueryRowContext(ctx, `
		SELECT chunk_id, path, text, book_id, theory, page_start, page_end
		FROM chunks WHERE chunk_id = ?`,
		chunkID).Scan(
		&rec.ChunkID,
		&rec.Path,
		&rec.Text,
		&rec.BookID,
		&theory,
		&rec.PageStart,
		&rec.PageEnd,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	rec.Theory = model.Theory(theory)

	return &rec, nil
}

// Lookup returns the text of a chunk, or "" when the id or file is missing.
func (s *SqliteChunkStore) Lookup(ctx context.Context, chunkID string) (string, error) {
	rec, err := s.Get(ctx, chunkID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrBackendUnavailable, err)
	}
	if rec == nil {
		return "", nil
	}
	return resolveText(*rec, s.baseDir)
}

// Count returns the number of stored chunks.
func (s *SqliteChunkStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// Delete removes a chunk record.
func (s *SqliteChunkStore) Delete(ctx context.Context, chunkID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE chunk_id = ?", chunkID)
	if err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}
	return nil
}

var _ ChunkStore = (*SqliteChunkStore)(nil)
