// Package keyword provides filename keyword search over indexed files.
package keyword

import (
	"context"

	"github.com/obro79/Tower/internal/models"
)

// Index defines filename keyword search operations.
type Index interface {
	// Index registers a filename under the given file id, replacing any
	// previous entry for that id.
	Index(ctx context.Context, fileID int64, filename string) error
	// Search returns up to limit files whose filename contains the query.
	// Wildcard characters (* and ?) in the query are honored as-is.
	Search(ctx context.Context, query string, limit int) ([]*models.KeywordResult, error)
	// Delete removes the entry for fileID. Deleting an absent id is a no-op.
	Delete(ctx context.Context, fileID int64) error
	// Count returns the number of indexed filenames.
	Count() (uint64, error)
	Close() error
}
