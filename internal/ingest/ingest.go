// Package ingest ties extraction, embedding, and indexing into one pipeline:
// a file's text is embedded and registered under its file id in both the
// similarity index and the filename keyword index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/obro79/Tower/internal/embedding"
	"github.com/obro79/Tower/internal/extract"
	"github.com/obro79/Tower/internal/keyword"
	"github.com/obro79/Tower/internal/lifecycle"
	"github.com/obro79/Tower/internal/storage"
)

// ErrEmptyContent is returned when a file yields no extractable text.
var ErrEmptyContent = errors.New("no extractable text")

// Ingestor runs the ingest pipeline.
type Ingestor struct {
	extractor *extract.Extractor
	embedder  embedding.Embedder
	manager   *lifecycle.Manager
	keyword   keyword.Index
	logger    *zap.Logger
}

// NewIngestor creates an ingestor over the given components.
func NewIngestor(extractor *extract.Extractor, embedder embedding.Embedder, manager *lifecycle.Manager, kw keyword.Index, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		extractor: extractor,
		embedder:  embedder,
		manager:   manager,
		keyword:   kw,
		logger:    logger,
	}
}

// IngestText embeds text and registers it under fileID. The filename is added
// to the keyword index. Duplicate file ids are rejected with
// storage.ErrDuplicateRecord before any index is touched.
func (in *Ingestor) IngestText(ctx context.Context, fileID int64, filename, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyContent
	}

	emb, err := in.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed file %d: %w", fileID, err)
	}
	if err := in.manager.Insert(ctx, fileID, emb); err != nil {
		return err
	}
	if err := in.keyword.Index(ctx, fileID, filename); err != nil {
		// The embedding is already searchable; a missing keyword entry only
		// degrades filename search.
		in.logger.Warn("keyword index update failed",
			zap.Int64("file_id", fileID), zap.String("filename", filename), zap.Error(err))
	}

	in.logger.Info("file ingested",
		zap.Int64("file_id", fileID), zap.String("filename", filename), zap.Int("text_len", len(text)))
	return nil
}

// IngestFile extracts text from the file at path and ingests it under fileID.
func (in *Ingestor) IngestFile(ctx context.Context, fileID int64, filename, path string) error {
	text, err := in.extractor.Extract(path)
	if err != nil {
		return fmt.Errorf("extract file %d: %w", fileID, err)
	}
	return in.IngestText(ctx, fileID, filename, text)
}

// IngestSpool ingests a spool file and removes it afterwards. A duplicate id
// means the file was already ingested; the spool file is still consumed so
// redelivery does not pile up.
func (in *Ingestor) IngestSpool(ctx context.Context, fileID int64, filename, path string) error {
	err := in.IngestFile(ctx, fileID, filename, path)
	if err != nil && !errors.Is(err, storage.ErrDuplicateRecord) {
		return err
	}
	if errors.Is(err, storage.ErrDuplicateRecord) {
		in.logger.Info("spool file already ingested, skipping",
			zap.Int64("file_id", fileID), zap.String("filename", filename))
	}
	if rmErr := os.Remove(path); rmErr != nil {
		in.logger.Warn("failed to remove spool file",
			zap.String("path", path), zap.Error(rmErr))
	}
	return nil
}

// DeleteFile removes fileID from the similarity index, record store, and
// keyword index. Returns false when the id was not present.
func (in *Ingestor) DeleteFile(ctx context.Context, fileID int64) (bool, error) {
	removed, err := in.manager.Delete(ctx, fileID)
	if err != nil {
		return removed, err
	}
	if kwErr := in.keyword.Delete(ctx, fileID); kwErr != nil {
		in.logger.Warn("keyword index delete failed",
			zap.Int64("file_id", fileID), zap.Error(kwErr))
	}
	return removed, nil
}
