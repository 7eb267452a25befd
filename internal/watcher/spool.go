// Package watcher watches the ingest spool directory. Files fetched from
// remote devices land there named "<fileID>_<filename>" and are handed to the
// ingest pipeline once writes settle.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// SpoolFunc is invoked for each settled spool file.
type SpoolFunc func(fileID int64, filename, path string)

// SpoolWatcher watches a single spool directory (non-recursive) and invokes
// the callback after a file stops changing for the debounce window, so a file
// still being written is not ingested half-copied.
type SpoolWatcher struct {
	dir      string
	onFile   SpoolFunc
	debounce time.Duration
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timers  map[string]*time.Timer
	done    chan struct{}
	started bool
}

// NewSpoolWatcher creates a watcher over dir. onFile is called once per
// settled spool file.
func NewSpoolWatcher(dir string, onFile SpoolFunc, logger *zap.Logger) *SpoolWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpoolWatcher{
		dir:      dir,
		onFile:   onFile,
		debounce: defaultDebounce,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
}

// ParseSpoolName splits a spool filename of the form "<fileID>_<filename>"
// into its id and original filename.
func ParseSpoolName(name string) (int64, string, error) {
	id, rest, found := strings.Cut(name, "_")
	if !found || rest == "" {
		return 0, "", fmt.Errorf("spool name %q is not <fileID>_<filename>", name)
	}
	fileID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("spool name %q has non-numeric file id: %w", name, err)
	}
	return fileID, rest, nil
}

// Start begins watching. The spool directory is created if missing. The
// watcher runs until ctx is cancelled or Stop is called; a stopped watcher
// may be started again.
func (w *SpoolWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("create spool directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		w.mu.Unlock()
		return fmt.Errorf("watch spool directory: %w", err)
	}
	w.watcher = watcher
	w.done = make(chan struct{})
	w.started = true
	done := w.done
	w.mu.Unlock()

	w.logger.Info("spool watcher started", zap.String("dir", w.dir))
	go w.run(ctx, watcher, done)
	return nil
}

// run owns the watcher and done channel of the Start call that spawned it, so
// a Stop/Start pair never leaves a loop selecting on a replaced watcher.
func (w *SpoolWatcher) run(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("spool watcher error", zap.Error(err))
			}
		}
	}
}

func (w *SpoolWatcher) handleEvent(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return
		}
		w.debounceFile(ev.Name)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		// Spool files are consumed after ingest; removals carry no work.
		w.cancelTimer(ev.Name)
	}
}

func (w *SpoolWatcher) debounceFile(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.dispatch(path)
	})
}

func (w *SpoolWatcher) cancelTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *SpoolWatcher) dispatch(path string) {
	fileID, filename, err := ParseSpoolName(filepath.Base(path))
	if err != nil {
		w.logger.Warn("ignoring malformed spool file", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Debug("spool file settled",
		zap.Int64("file_id", fileID), zap.String("filename", filename))
	if w.onFile != nil {
		w.onFile(fileID, filename, path)
	}
}

// SyncExisting dispatches files already present in the spool directory.
// Call after Start to pick up files that arrived while the process was down.
func (w *SpoolWatcher) SyncExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read spool directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.dispatch(filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// Stop stops the watcher and cancels pending debounce timers. The watcher can
// be restarted with Start.
func (w *SpoolWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.watcher.Close()
	w.watcher = nil
	w.started = false
	close(w.done)
}
