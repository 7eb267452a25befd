// Package vector provides the fixed-dimension similarity index and its
// on-disk snapshot codec.
package vector

import "errors"

// ErrDimensionMismatch is returned when a vector's length does not equal the
// index's configured dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Neighbor is a single nearest-neighbor hit: the vector's position (assignment
// order, 0-based) and its squared Euclidean distance to the query.
type Neighbor struct {
	Position int
	Distance float64
}

// Index is an append-only nearest-neighbor structure over a fixed-dimension
// vector space. Positions are assigned in strictly increasing order starting
// at 0 and are never reused within one instance. There is no delete: removal
// is handled one layer up by rebuilding a fresh Index from the record store,
// which yields a fresh position assignment.
type Index interface {
	// Add appends a vector and returns its position.
	Add(vec []float32) (int, error)

	// Search returns up to k neighbors ordered by ascending distance, ties
	// broken by ascending position. k is clamped to the number of indexed
	// vectors; an empty index yields an empty result.
	Search(query []float32, k int) ([]Neighbor, error)

	// Size returns the number of indexed vectors.
	Size() int

	// Dimension returns the configured vector width.
	Dimension() int
}
