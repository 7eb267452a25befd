package vector

import (
	"fmt"
	"sort"
	"sync"
)

// FlatIndex is a brute-force squared-L2 index. Searches scan every stored
// vector, which keeps the structure trivially consistent: no tombstones, no
// position reuse, no compaction. Faster backends can be swapped behind the
// Index interface.
type FlatIndex struct {
	dimension int
	vectors   [][]float32
	mu        sync.RWMutex
}

var _ Index = (*FlatIndex)(nil)

// NewFlatIndex creates an empty index over the given vector width.
func NewFlatIndex(dimension int) (*FlatIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	return &FlatIndex{dimension: dimension}, nil
}

// Add appends vec and returns its position. The vector is copied.
func (f *FlatIndex) Add(vec []float32) (int, error) {
	if len(vec) != f.dimension {
		return 0, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), f.dimension)
	}
	stored := make([]float32, f.dimension)
	copy(stored, vec)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = append(f.vectors, stored)
	return len(f.vectors) - 1, nil
}

// Search returns up to k neighbors ordered by ascending squared L2 distance,
// ties broken by ascending position.
func (f *FlatIndex) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != f.dimension {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(query), f.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	neighbors := make([]Neighbor, len(f.vectors))
	for i, vec := range f.vectors {
		neighbors[i] = Neighbor{Position: i, Distance: SquaredL2(query, vec)}
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].Position < neighbors[j].Position
	})
	if k > len(neighbors) {
		k = len(neighbors)
	}
	return neighbors[:k], nil
}

// Size returns the number of indexed vectors.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Dimension returns the configured vector width.
func (f *FlatIndex) Dimension() int {
	return f.dimension
}

// vectorAt returns the stored vector at position (shared, not copied).
// Used by the snapshot writer, which never mutates it.
func (f *FlatIndex) vectorAt(position int) []float32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.vectors[position]
}
