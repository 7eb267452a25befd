package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/obro79/Tower/internal/storage"
)

func newTestManager(t *testing.T, dimension int) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "vectors.db"), dimension)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	snapshotPath := filepath.Join(dir, "index.snapshot")
	m, err := NewManager(context.Background(), store, snapshotPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	return m, dir
}

func TestManager_InsertThenSearchSelf(t *testing.T) {
	m, _ := newTestManager(t, 3)
	ctx := context.Background()

	vec := []float32{0.5, -0.25, 1}
	if err := m.Insert(ctx, 1, vec); err != nil {
		t.Fatal(err)
	}

	matches, err := m.Search(ctx, vec, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].FileID != 1 || matches[0].Distance != 0 {
		t.Errorf("self search = %+v, want file 1 at distance 0", matches[0])
	}
}

func TestManager_DuplicateInsertLeavesOneEntry(t *testing.T) {
	m, _ := newTestManager(t, 2)
	ctx := context.Background()

	if err := m.Insert(ctx, 5, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	err := m.Insert(ctx, 5, []float32{0, 1})
	if !errors.Is(err, storage.ErrDuplicateRecord) {
		t.Errorf("expected ErrDuplicateRecord, got %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}

	matches, _ := m.Search(ctx, []float32{1, 0}, 10)
	seen := 0
	for _, match := range matches {
		if match.FileID == 5 {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("file 5 appears %d times in results, want 1", seen)
	}
}

func TestManager_DimensionMismatchLeavesCountsUnchanged(t *testing.T) {
	m, _ := newTestManager(t, 4)
	ctx := context.Background()

	err := m.Insert(ctx, 1, []float32{1, 2, 3})
	if !errors.Is(err, storage.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 0 || stats.Indexed != 0 {
		t.Errorf("counts should stay 0, got %+v", stats)
	}
}

func TestManager_DeleteRebuildsIndex(t *testing.T) {
	m, _ := newTestManager(t, 2)
	ctx := context.Background()

	a, b, c := []float32{1, 0}, []float32{0, 1}, []float32{-1, 0}
	if err := m.Insert(ctx, 1, a); err != nil {
		t.Fatal(err)
	}
	if err := m.Insert(ctx, 2, b); err != nil {
		t.Fatal(err)
	}
	if err := m.Insert(ctx, 3, c); err != nil {
		t.Fatal(err)
	}

	removed, err := m.Delete(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("expected removed=true")
	}
	if m.Count() != 2 {
		t.Errorf("Count after delete = %d, want 2", m.Count())
	}

	// Searching near B must never return the deleted id.
	matches, err := m.Search(ctx, b, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, match := range matches {
		if match.FileID == 2 {
			t.Error("deleted file 2 still returned by search")
		}
	}

	// A and C are still found by their own vectors.
	for _, tc := range []struct {
		vec  []float32
		want int64
	}{{a, 1}, {c, 3}} {
		matches, err := m.Search(ctx, tc.vec, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 1 || matches[0].FileID != tc.want {
			t.Errorf("search near file %d returned %+v", tc.want, matches)
		}
	}
}

func TestManager_DeleteAbsentIsNoOp(t *testing.T) {
	m, _ := newTestManager(t, 2)
	ctx := context.Background()

	if err := m.Insert(ctx, 1, []float32{1, 1}); err != nil {
		t.Fatal(err)
	}
	removed, err := m.Delete(ctx, 99)
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("absent id should report removed=false")
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}
}

func TestManager_RebuildIdempotence(t *testing.T) {
	m, _ := newTestManager(t, 2)
	ctx := context.Background()

	vecs := map[int64][]float32{
		1: {1, 0},
		2: {0, 1},
		3: {0.7, 0.7},
	}
	for id, vec := range vecs {
		if err := m.Insert(ctx, id, vec); err != nil {
			t.Fatal(err)
		}
	}

	query := []float32{0.6, 0.8}
	before, err := m.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}

	after, err := m.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != len(after) {
		t.Fatalf("result count changed: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].FileID != after[i].FileID || before[i].Distance != after[i].Distance {
			t.Errorf("result %d changed: %+v vs %+v", i, before[i], after[i])
		}
	}
}

func TestManager_SearchKGreaterThanSize(t *testing.T) {
	m, _ := newTestManager(t, 1)
	ctx := context.Background()

	_ = m.Insert(ctx, 1, []float32{1})
	_ = m.Insert(ctx, 2, []float32{3})

	matches, err := m.Search(ctx, []float32{0}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected all 2 vectors, got %d", len(matches))
	}
	if matches[0].FileID != 1 {
		t.Errorf("closest should be file 1, got %d", matches[0].FileID)
	}
}

func TestManager_SnapshotReloadOnRestart(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "vectors.db")
	snapshotPath := filepath.Join(dir, "index.snapshot")
	ctx := context.Background()

	store, err := storage.NewSQLiteStore(dbPath, 2)
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(ctx, store, snapshotPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Insert(ctx, 11, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := m.Insert(ctx, 12, []float32{0, 1}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	store2, err := storage.NewSQLiteStore(dbPath, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer store2.Close()
	m2, err := NewManager(ctx, store2, snapshotPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	if m2.Count() != 2 {
		t.Errorf("Count after restart = %d, want 2", m2.Count())
	}
	matches, err := m2.Search(ctx, []float32{0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].FileID != 12 {
		t.Errorf("search after restart = %+v", matches)
	}
}

func TestManager_CorruptSnapshotTriggersRebuild(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "vectors.db")
	snapshotPath := filepath.Join(dir, "index.snapshot")
	ctx := context.Background()

	store, err := storage.NewSQLiteStore(dbPath, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.Insert(ctx, 1, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(snapshotPath, []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(ctx, store, snapshotPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	matches, err := m.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].FileID != 1 {
		t.Errorf("search after recovery = %+v", matches)
	}
}

func TestManager_SearchDuringRebuildFails(t *testing.T) {
	m, _ := newTestManager(t, 2)
	ctx := context.Background()
	_ = m.Insert(ctx, 1, []float32{1, 0})

	m.rebuilding.Store(true)
	_, err := m.Search(ctx, []float32{1, 0}, 1)
	if !errors.Is(err, ErrIndexNotReady) {
		t.Errorf("expected ErrIndexNotReady, got %v", err)
	}
	m.rebuilding.Store(false)
	if _, err := m.Search(ctx, []float32{1, 0}, 1); err != nil {
		t.Errorf("search after rebuild flag cleared: %v", err)
	}
}
