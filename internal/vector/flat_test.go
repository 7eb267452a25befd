package vector

import (
	"errors"
	"testing"
)

func TestFlatIndex_AddAssignsPositions(t *testing.T) {
	idx, err := NewFlatIndex(2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		pos, err := idx.Add([]float32{float32(i), 0})
		if err != nil {
			t.Fatal(err)
		}
		if pos != i {
			t.Errorf("position = %d, want %d", pos, i)
		}
	}
	if idx.Size() != 3 {
		t.Errorf("Size = %d, want 3", idx.Size())
	}
}

func TestFlatIndex_SearchExactMatch(t *testing.T) {
	idx, _ := NewFlatIndex(3)
	vecs := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	for _, v := range vecs {
		if _, err := idx.Add(v); err != nil {
			t.Fatal(err)
		}
	}

	got, err := idx.Search([]float32{0, 1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Position != 1 || got[0].Distance != 0 {
		t.Errorf("top hit = %+v, want position 1 at distance 0", got[0])
	}
	if got[1].Distance < got[0].Distance {
		t.Error("results not sorted ascending by distance")
	}
}

func TestFlatIndex_TieBreakByPosition(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	// Positions 0 and 1 are equidistant from the query.
	_, _ = idx.Add([]float32{1, 0})
	_, _ = idx.Add([]float32{-1, 0})
	_, _ = idx.Add([]float32{5, 5})

	got, err := idx.Search([]float32{0, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Position != 0 || got[1].Position != 1 {
		t.Errorf("tie should resolve to ascending position, got %d then %d", got[0].Position, got[1].Position)
	}
}

func TestFlatIndex_KClampedToSize(t *testing.T) {
	idx, _ := NewFlatIndex(1)
	_, _ = idx.Add([]float32{1})
	_, _ = idx.Add([]float32{2})

	got, err := idx.Search([]float32{0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected all 2 vectors, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Error("results not sorted ascending by distance")
		}
	}
}

func TestFlatIndex_EmptySearch(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	got, err := idx.Search([]float32{1, 1}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("empty index should return no results, got %d", len(got))
	}
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewFlatIndex(4)
	if _, err := idx.Add([]float32{1, 2, 3}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add: expected ErrDimensionMismatch, got %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("index should be unchanged, size = %d", idx.Size())
	}
	if _, err := idx.Search([]float32{1, 2, 3}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search: expected ErrDimensionMismatch, got %v", err)
	}
}
