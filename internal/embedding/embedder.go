// Package embedding provides text embedding with caching. The subsystem only
// requires that an embedder's output width equals the configured dimension;
// the model behind it is opaque.
package embedding

import "context"

// Embedder produces fixed-width vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}
