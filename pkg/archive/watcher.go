package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the session store directory and re-indexes sessions
// whose files change.
type Watcher struct {
	archive    *Archive
	dir        string
	watcher    *fsnotify.Watcher
	debounceMs int

	running bool
	stopCh  chan struct{}
	mu      sync.RWMutex

	// Debouncing state
	pending   map[string]time.Time
	pendingMu sync.Mutex
}

// NewWatcher creates a watcher over the given session store directory.
func NewWatcher(archive *Archive, dir string, debounceMs int) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounceMs <= 0 {
		debounceMs = 500
	}

	return &Watcher{
		archive:    archive,
		dir:        dir,
		watcher:    fsWatcher,
		debounceMs: debounceMs,
		stopCh:     make(chan struct{}),
		pending:    make(map[string]time.Time),
	}, nil
}

// Start begins watching for session file changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	go w.processEvents()
	go w.processDebounced()

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	return w.watcher.Close()
}

// IsRunning returns whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// processEvents handles file system events.
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only session records; temp files from atomic saves are
			// renamed away before they settle.
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			w.pendingMu.Lock()
			w.pending[event.Name] = time.Now()
			w.pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "archive watcher error: %v\n", err)
		}
	}
}

// processDebounced processes pending changes after the debounce delay.
func (w *Watcher) processDebounced() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case <-ticker.C:
			w.processPendingFiles()
		}
	}
}

// processPendingFiles re-indexes sessions whose files have been stable
// long enough.
func (w *Watcher) processPendingFiles() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	now := time.Now()
	debounce := time.Duration(w.debounceMs) * time.Millisecond

	for path, ts := range w.pending {
		if now.Sub(ts) < debounce {
			continue
		}
		delete(w.pending, path)

		id := strings.TrimSuffix(filepath.Base(path), ".json")
		ctx := context.Background()

		if _, err := os.Stat(path); os.IsNotExist(err) {
			w.archive.RemoveSession(ctx, id)
			continue
		}

		s, err := w.archive.store.Load(id)
		if err != nil {
			continue // File may be mid-rewrite or not a session record
		}
		if err := w.archive.IndexSession(ctx, s); err != nil {
			fmt.Fprintf(os.Stderr, "error indexing session %s: %v\n", id, err)
		}
	}
}
