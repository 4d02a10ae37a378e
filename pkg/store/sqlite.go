package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the concrete Store backing this server, adapted from the
// teacher's pkg/database (same embedded-migrations bootstrap, same
// ON CONFLICT upsert), generalized to carry a version column.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates a SQLite-backed Store and runs pending migrations.
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get retrieves a document's current persisted state.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	var updatedAtUnix int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, version, updated_at FROM document WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Content, &rec.Version, &updatedAtUnix)

	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: get: %w", err)
	}

	rec.UpdatedAt = time.Unix(updatedAtUnix, 0)
	return rec, nil
}

// UpsertByID writes the latest {content, version} for a document,
// creating the row if it does not already exist.
func (s *SQLiteStore) UpsertByID(ctx context.Context, rec Record) error {
	query := `
	INSERT INTO document (id, content, version, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		content = excluded.content,
		version = excluded.version,
		updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, rec.ID, rec.Content, rec.Version, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: upsert: %w", err)
	}
	return nil
}

// Create inserts a brand-new document with seed content at version 0,
// returning its generated id (spec.md §4.2 createDocument).
func (s *SQLiteStore) Create(ctx context.Context, seed string) (string, error) {
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document (id, content, version, updated_at) VALUES (?, ?, 0, ?)`,
		id, seed, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("store: create: %w", err)
	}
	return id, nil
}
