// Package lifecycle keeps the in-memory similarity index consistent with the
// durable vector record store: load-or-rebuild on startup, append on insert,
// full rebuild on delete, snapshot persistence after every mutation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/obro79/Tower/internal/storage"
	"github.com/obro79/Tower/internal/vector"
)

// ErrIndexNotReady is returned by Search while a rebuild is in flight.
// Callers may retry.
var ErrIndexNotReady = errors.New("index is rebuilding")

// Match is a search hit translated from index position to file id.
type Match struct {
	FileID   int64
	Distance float64
}

// Stats reports store and index state for the stats endpoint.
type Stats struct {
	Records   int64 `json:"records"`
	Indexed   int   `json:"indexed_vectors"`
	Dimension int   `json:"dimension"`
}

// indexState is an immutable pairing of an index with its position/fileID
// mapping. Readers dereference it with a single atomic load; writers publish
// complete replacements only, so a reader never observes a half-built index.
type indexState struct {
	index   *vector.FlatIndex
	posToID []int64
	idToPos map[int64]int
}

// Manager owns the active similarity index. Writes (insert, delete, rebuild)
// are serialized by writeMu; searches run concurrently against the current
// published state and never take the write lock.
type Manager struct {
	store        storage.VectorStore
	snapshotPath string
	logger       *zap.Logger

	writeMu    sync.Mutex
	current    atomic.Pointer[indexState]
	rebuilding atomic.Bool
}

// NewManager loads the persisted snapshot if it is present, readable, and
// matches both the configured dimension and the store's record count;
// otherwise it rebuilds the index from the store. An unreadable store is
// fatal. The returned manager is ready to serve searches.
func NewManager(ctx context.Context, store storage.VectorStore, snapshotPath string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:        store,
		snapshotPath: snapshotPath,
		logger:       logger,
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector store unreadable: %w", err)
	}

	idx, fileIDs, err := vector.LoadSnapshot(snapshotPath, store.Dimension())
	if err != nil {
		logger.Warn("index snapshot unreadable, rebuilding from store",
			zap.String("path", snapshotPath), zap.Error(err))
	}
	if idx != nil && int64(len(fileIDs)) == stats.RecordCount {
		m.current.Store(newIndexState(idx, fileIDs))
		logger.Info("index snapshot loaded",
			zap.String("path", snapshotPath), zap.Int("vectors", idx.Size()))
		return m, nil
	}
	if idx != nil {
		logger.Warn("index snapshot stale, rebuilding from store",
			zap.Int("snapshot_vectors", len(fileIDs)), zap.Int64("store_records", stats.RecordCount))
	}

	if err := m.rebuildAndSwap(ctx); err != nil {
		return nil, fmt.Errorf("initial index build: %w", err)
	}
	return m, nil
}

func newIndexState(idx *vector.FlatIndex, fileIDs []int64) *indexState {
	idToPos := make(map[int64]int, len(fileIDs))
	for pos, id := range fileIDs {
		idToPos[id] = pos
	}
	return &indexState{index: idx, posToID: fileIDs, idToPos: idToPos}
}

// Insert validates and stores the embedding, appends it to the active index,
// and persists a new snapshot. Duplicate and dimension errors come from the
// store before the index is touched.
func (m *Manager) Insert(ctx context.Context, fileID int64, embedding []float32) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.Insert(ctx, fileID, embedding); err != nil {
		return err
	}

	st := m.current.Load()
	pos, err := st.index.Add(embedding)
	if err != nil {
		// Store and index diverged; restore the invariant by rebuilding.
		m.logger.Error("index append failed after store insert, rebuilding", zap.Error(err))
		return m.rebuildAndSwap(ctx)
	}

	posToID := make([]int64, len(st.posToID), len(st.posToID)+1)
	copy(posToID, st.posToID)
	posToID = append(posToID, fileID)
	if pos != len(posToID)-1 {
		return fmt.Errorf("index position %d does not match mapping length %d", pos, len(posToID))
	}
	m.current.Store(newIndexState(st.index, posToID))

	m.persistSnapshot()
	m.logger.Debug("embedding inserted",
		zap.Int64("file_id", fileID), zap.Int("position", pos))
	return nil
}

// Delete removes the embedding from the store and, because the flat index has
// no delete primitive, rebuilds a brand-new index from the store and swaps it
// in atomically. Deleting an absent id returns (false, nil) with no side
// effects. Searches during the rebuild fail with ErrIndexNotReady.
func (m *Manager) Delete(ctx context.Context, fileID int64) (bool, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	removed, err := m.store.Delete(ctx, fileID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}

	m.rebuilding.Store(true)
	if err := m.rebuildAndSwap(ctx); err != nil {
		// The store changed but the index did not. Stay in the rebuilding
		// state so searches fail retryably instead of returning the deleted
		// id; Rebuild or a restart re-derives the index from the store.
		m.logger.Error("index rebuild after delete failed", zap.Int64("file_id", fileID), zap.Error(err))
		return true, fmt.Errorf("rebuild after delete: %w", err)
	}
	m.rebuilding.Store(false)

	m.logger.Debug("embedding deleted", zap.Int64("file_id", fileID))
	return true, nil
}

// Rebuild discards the active index and rebuilds it from the store.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.rebuilding.Store(true)
	if err := m.rebuildAndSwap(ctx); err != nil {
		return err
	}
	m.rebuilding.Store(false)
	return nil
}

// rebuildAndSwap stages a complete new index off to the side, publishes it
// with one atomic store, and persists the snapshot. Callers hold writeMu.
func (m *Manager) rebuildAndSwap(ctx context.Context) error {
	records, err := m.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	idx, err := vector.NewFlatIndex(m.store.Dimension())
	if err != nil {
		return err
	}
	fileIDs := make([]int64, 0, len(records))
	for _, rec := range records {
		if _, err := idx.Add(rec.Embedding); err != nil {
			return fmt.Errorf("index vector for file_id %d: %w", rec.FileID, err)
		}
		fileIDs = append(fileIDs, rec.FileID)
	}

	m.current.Store(newIndexState(idx, fileIDs))
	m.persistSnapshot()
	m.logger.Info("index rebuilt", zap.Int("vectors", len(fileIDs)))
	return nil
}

// persistSnapshot writes the current state to disk. Failure is logged but not
// fatal: the store is the durable source of truth and the next startup
// rebuilds from it.
func (m *Manager) persistSnapshot() {
	if m.snapshotPath == "" {
		return
	}
	st := m.current.Load()
	if err := vector.SaveSnapshot(m.snapshotPath, st.index, st.posToID); err != nil {
		m.logger.Warn("index snapshot write failed",
			zap.String("path", m.snapshotPath), zap.Error(err))
	}
}

// Search runs a k-NN query against the current index and translates positions
// to file ids. It fails with ErrIndexNotReady while a rebuild is in flight
// and never blocks concurrent searches.
func (m *Manager) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if m.rebuilding.Load() {
		return nil, ErrIndexNotReady
	}
	st := m.current.Load()

	neighbors, err := st.index.Search(query, k)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		// An in-flight insert may have appended to the shared index after this
		// state was published; such positions are not settled in this mapping.
		if n.Position >= len(st.posToID) {
			continue
		}
		matches = append(matches, Match{FileID: st.posToID[n.Position], Distance: n.Distance})
	}
	return matches, nil
}

// Count returns the number of settled vectors in the active index.
func (m *Manager) Count() int {
	return len(m.current.Load().posToID)
}

// Dimension returns the configured embedding width.
func (m *Manager) Dimension() int {
	return m.store.Dimension()
}

// Stats returns store and index counts.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	storeStats, err := m.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Records:   storeStats.RecordCount,
		Indexed:   m.Count(),
		Dimension: m.Dimension(),
	}, nil
}
