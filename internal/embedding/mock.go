package embedding

import (
	"context"
	"math"

	"github.com/obro79/Tower/pkg/utils"
)

// MockEmbedder is a deterministic embedder for development and tests. The
// same text always yields the same unit-length vector, and different texts
// almost always yield different ones.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder producing vectors of the given width.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding derived from the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := HashString(text)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding width.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockEmbedder) Close() error {
	return nil
}
