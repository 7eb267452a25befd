// Package storage defines the persistence interface for vector records.
package storage

import (
	"context"
	"errors"

	"github.com/obro79/Tower/internal/models"
)

// ErrDuplicateRecord is returned by Insert when an embedding already exists
// for the given file ID. Update semantics are an explicit delete + insert.
var ErrDuplicateRecord = errors.New("embedding already exists for file")

// ErrDimensionMismatch is returned by Insert when the embedding length does
// not equal the store's configured dimension. Nothing is written.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// VectorStore is the durable source of truth for which embeddings exist.
// The in-memory similarity index is always derivable from it.
type VectorStore interface {
	// Insert stores an embedding for fileID. Fails with ErrDuplicateRecord if
	// fileID is already present and ErrDimensionMismatch if the vector width
	// is wrong; both are checked before any write.
	Insert(ctx context.Context, fileID int64, embedding []float32) error

	// Delete removes the embedding for fileID. Removing an absent id is a
	// no-op: it returns (false, nil), not an error.
	Delete(ctx context.Context, fileID int64) (removed bool, err error)

	// LoadAll returns every record ordered by original insertion (ascending
	// internal row id) so that index positions can be rebuilt deterministically.
	LoadAll(ctx context.Context) ([]*models.VectorRecord, error)

	// Stats returns record counts.
	Stats(ctx context.Context) (*models.StoreStats, error)

	// Dimension returns the configured embedding width.
	Dimension() int

	Close() error
}
