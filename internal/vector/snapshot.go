package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/obro79/Tower/pkg/utils"
)

// ErrCorruptSnapshot is returned when a persisted snapshot cannot be decoded
// or is incompatible with the configured dimension. Callers treat it as if
// the snapshot were absent and rebuild from the record store.
var ErrCorruptSnapshot = errors.New("corrupt or incompatible index snapshot")

// Snapshot file layout, little-endian:
//
//	magic    uint32
//	version  uint16
//	dimension uint32
//	count    uint32
//	count × { fileID int64, vector dimension×float32 }
//
// Entry order is position order, so the snapshot carries the position↔fileID
// mapping implicitly.
const (
	snapshotMagic   uint32 = 0x54575258 // "TWRX"
	snapshotVersion uint16 = 1
)

// SaveSnapshot writes the index and its position→fileID mapping to path.
// The file is staged with a .tmp suffix and renamed into place so readers
// never observe a partial snapshot. len(fileIDs) must equal idx.Size().
func SaveSnapshot(path string, idx *FlatIndex, fileIDs []int64) error {
	if path == "" {
		return nil
	}
	if idx.Size() != len(fileIDs) {
		return fmt.Errorf("snapshot mapping length %d does not match index size %d", len(fileIDs), idx.Size())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}

	if err := writeSnapshot(f, idx, fileIDs); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func writeSnapshot(w io.Writer, idx *FlatIndex, fileIDs []int64) error {
	header := []any{snapshotMagic, snapshotVersion, uint32(idx.Dimension()), uint32(len(fileIDs))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write snapshot header: %w", err)
		}
	}
	for pos, fileID := range fileIDs {
		if err := binary.Write(w, binary.LittleEndian, fileID); err != nil {
			return fmt.Errorf("write snapshot entry %d: %w", pos, err)
		}
		if _, err := w.Write(utils.Float32sToBytes(idx.vectorAt(pos))); err != nil {
			return fmt.Errorf("write snapshot vector %d: %w", pos, err)
		}
	}
	return nil
}

// LoadSnapshot reads a snapshot from path and reconstructs the index and its
// position→fileID mapping. A missing file returns (nil, nil, nil). Any decode
// failure or a dimension different from the configured one returns an error
// wrapping ErrCorruptSnapshot.
func LoadSnapshot(path string, dimension int) (*FlatIndex, []int64, error) {
	if path == "" {
		return nil, nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var (
		magic   uint32
		version uint16
		dim     uint32
		count   uint32
	)
	for _, v := range []any{&magic, &version, &dim, &count} {
		if err := binary.Read(f, binary.LittleEndian, v); err != nil {
			return nil, nil, fmt.Errorf("%w: short header: %v", ErrCorruptSnapshot, err)
		}
	}
	if magic != snapshotMagic {
		return nil, nil, fmt.Errorf("%w: bad magic %#x", ErrCorruptSnapshot, magic)
	}
	if version != snapshotVersion {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, version)
	}
	if int(dim) != dimension {
		return nil, nil, fmt.Errorf("%w: snapshot dimension %d, configured %d", ErrCorruptSnapshot, dim, dimension)
	}

	// The header count sizes the allocations below, so it must be proven
	// against the actual file length before being trusted.
	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat snapshot: %w", err)
	}
	const headerSize = 4 + 2 + 4 + 4
	entrySize := int64(8 + dimension*4)
	if want := headerSize + int64(count)*entrySize; info.Size() != want {
		return nil, nil, fmt.Errorf("%w: file size %d does not match %d entries (want %d)",
			ErrCorruptSnapshot, info.Size(), count, want)
	}

	idx, err := NewFlatIndex(dimension)
	if err != nil {
		return nil, nil, err
	}
	fileIDs := make([]int64, 0, count)
	buf := make([]byte, dimension*4)
	for i := uint32(0); i < count; i++ {
		var fileID int64
		if err := binary.Read(f, binary.LittleEndian, &fileID); err != nil {
			return nil, nil, fmt.Errorf("%w: short entry %d: %v", ErrCorruptSnapshot, i, err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, nil, fmt.Errorf("%w: short vector %d: %v", ErrCorruptSnapshot, i, err)
		}
		if _, err := idx.Add(utils.BytesToFloat32s(buf)); err != nil {
			return nil, nil, err
		}
		fileIDs = append(fileIDs, fileID)
	}
	return idx, fileIDs, nil
}
