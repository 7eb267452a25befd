// Package storage provides the SQLite implementation of VectorStore.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/obro79/Tower/internal/models"
	"github.com/obro79/Tower/pkg/utils"
)

// SQLiteStore implements VectorStore using SQLite. Embeddings are stored as
// little-endian float32 blobs keyed by the externally-owned file id.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
// dimension is the fixed embedding width all inserts are validated against.
func NewSQLiteStore(dbPath string, dimension int) (*SQLiteStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dimension: dimension}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vector_embeddings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL UNIQUE,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_vector_embeddings_file_id ON vector_embeddings(file_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Insert stores the embedding for fileID. The UNIQUE constraint on file_id is
// the authority on duplicates; a constraint violation maps to ErrDuplicateRecord.
func (s *SQLiteStore) Insert(ctx context.Context, fileID int64, embedding []float32) error {
	if len(embedding) != s.dimension {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(embedding), s.dimension)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vector_embeddings (file_id, embedding) VALUES (?, ?)`,
		fileID, utils.Float32sToBytes(embedding),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: file_id %d", ErrDuplicateRecord, fileID)
		}
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// Delete removes the embedding for fileID and reports whether a row was removed.
func (s *SQLiteStore) Delete(ctx context.Context, fileID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM vector_embeddings WHERE file_id = ?`, fileID)
	if err != nil {
		return false, fmt.Errorf("delete embedding: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LoadAll returns all records in ascending row id order (original insertion order).
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*models.VectorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, embedding, created_at FROM vector_embeddings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	var records []*models.VectorRecord
	for rows.Next() {
		var rec models.VectorRecord
		var blob []byte
		if err := rows.Scan(&rec.FileID, &blob, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Embedding = utils.BytesToFloat32s(blob)
		if len(rec.Embedding) != s.dimension {
			return nil, fmt.Errorf("corrupt embedding blob for file_id %d: %d floats, expected %d",
				rec.FileID, len(rec.Embedding), s.dimension)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Stats returns the total number of stored records.
func (s *SQLiteStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_embeddings`).Scan(&count); err != nil {
		return nil, fmt.Errorf("count embeddings: %w", err)
	}
	return &models.StoreStats{RecordCount: count}, nil
}

// Dimension returns the configured embedding width.
func (s *SQLiteStore) Dimension() int {
	return s.dimension
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
