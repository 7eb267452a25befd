package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestParseSpoolName(t *testing.T) {
	fileID, filename, err := ParseSpoolName("42_quarterly_report.pdf")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if fileID != 42 {
		t.Errorf("expected file id 42, got %d", fileID)
	}
	// Only the first underscore separates the id.
	if filename != "quarterly_report.pdf" {
		t.Errorf("expected quarterly_report.pdf, got %q", filename)
	}
}

func TestParseSpoolNameMalformed(t *testing.T) {
	cases := []string{"noseparator", "abc_file.txt", "7_", "_file.txt"}
	for _, name := range cases {
		if _, _, err := ParseSpoolName(name); err == nil {
			t.Errorf("expected error for %q", name)
		}
	}
}

// collector records dispatched spool files.
type collector struct {
	mu    sync.Mutex
	files map[int64]string
}

func newCollector() *collector {
	return &collector{files: make(map[int64]string)}
}

func (c *collector) onFile(fileID int64, filename, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[fileID] = filename
}

func (c *collector) get(fileID int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.files[fileID]
	return name, ok
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcherDispatchesNewSpoolFile(t *testing.T) {
	dir := t.TempDir()
	c := newCollector()

	w := NewSpoolWatcher(dir, c.onFile, nil)
	w.debounce = 50 * time.Millisecond
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "7_notes.txt")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatalf("write spool file: %v", err)
	}

	if !waitFor(t, 3*time.Second, func() bool {
		_, ok := c.get(7)
		return ok
	}) {
		t.Fatal("spool file was not dispatched")
	}
	if name, _ := c.get(7); name != "notes.txt" {
		t.Errorf("expected notes.txt, got %q", name)
	}
}

func TestWatcherIgnoresMalformedNames(t *testing.T) {
	dir := t.TempDir()
	c := newCollector()

	w := NewSpoolWatcher(dir, c.onFile, nil)
	w.debounce = 50 * time.Millisecond
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	os.WriteFile(filepath.Join(dir, "not-a-spool-file.txt"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "3_good.txt"), []byte("x"), 0o644)

	if !waitFor(t, 3*time.Second, func() bool {
		_, ok := c.get(3)
		return ok
	}) {
		t.Fatal("valid spool file was not dispatched")
	}

	c.mu.Lock()
	count := len(c.files)
	c.mu.Unlock()
	if count != 1 {
		t.Errorf("expected only the well-formed file, got %d dispatches", count)
	}
}

func TestWatcherCreatesSpoolDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "spool")

	w := NewSpoolWatcher(dir, nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("spool directory was not created: %v", err)
	}
}

func TestSyncExistingDispatchesPresentFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "11_backlog.md"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write spool file: %v", err)
	}

	c := newCollector()
	w := NewSpoolWatcher(dir, c.onFile, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	if err := w.SyncExisting(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if name, ok := c.get(11); !ok || name != "backlog.md" {
		t.Fatalf("expected pre-existing file dispatched, got %q (ok=%v)", name, ok)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w := NewSpoolWatcher(t.TempDir(), nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcherRestartsAfterStop(t *testing.T) {
	dir := t.TempDir()
	c := newCollector()

	w := NewSpoolWatcher(dir, c.onFile, nil)
	w.debounce = 50 * time.Millisecond
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	w.Stop()

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "9_after_restart.txt")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatalf("write spool file: %v", err)
	}

	if !waitFor(t, 3*time.Second, func() bool {
		_, ok := c.get(9)
		return ok
	}) {
		t.Fatal("restarted watcher did not dispatch the new spool file")
	}
	if name, _ := c.get(9); name != "after_restart.txt" {
		t.Errorf("expected after_restart.txt, got %q", name)
	}
}
