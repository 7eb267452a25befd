package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"

	"github.com/obro79/Tower/internal/models"
)

// filenameDoc is the indexed document. The filename field is lowercased and
// keyword-analyzed (one token) so wildcard queries match substrings anywhere;
// display preserves the original casing for responses.
type filenameDoc struct {
	Filename string `json:"filename"`
	Display  string `json:"display"`
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// opened and reused; remove the directory to force a full re-index after a
// mapping change.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Keyword analyzer keeps the whole filename as a single term so that
	// wildcard queries like *report* match inside it.
	keywordField := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("filename", keywordField)
	displayField := bleve.NewKeywordFieldMapping()
	displayField.Index = false
	docMapping.AddFieldMappingsAt("display", displayField)
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index registers filename under fileID, replacing any previous entry.
func (b *BleveIndex) Index(ctx context.Context, fileID int64, filename string) error {
	doc := &filenameDoc{
		Filename: strings.ToLower(filename),
		Display:  filename,
	}
	if err := b.index.Index(docID(fileID), doc); err != nil {
		return fmt.Errorf("failed to index filename: %w", err)
	}
	return nil
}

// Search returns up to limit files whose filename matches the query. A query
// without wildcard characters is wrapped as *query* for substring matching.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*models.KeywordResult, error) {
	pattern := strings.ToLower(strings.TrimSpace(query))
	if pattern == "" {
		return []*models.KeywordResult{}, nil
	}
	if !strings.ContainsAny(pattern, "*?") {
		pattern = "*" + pattern + "*"
	}

	wq := bleve.NewWildcardQuery(pattern)
	wq.SetField("filename")
	req := bleve.NewSearchRequest(wq)
	req.Size = limit
	req.Fields = []string{"display"}

	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]*models.KeywordResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		fileID, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		display, _ := hit.Fields["display"].(string)
		out = append(out, &models.KeywordResult{
			FileID:   fileID,
			Filename: display,
			Score:    hit.Score,
		})
	}
	return out, nil
}

// Delete removes the entry for fileID.
func (b *BleveIndex) Delete(ctx context.Context, fileID int64) error {
	return b.index.Delete(docID(fileID))
}

// Count returns the number of indexed filenames.
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func docID(fileID int64) string {
	return strconv.FormatInt(fileID, 10)
}
