// Package watcher reruns test cases when their files change.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lance13c/qarun/internal/logging"
)

// DefaultDebounce is how long a file must be quiet before it is reported.
const DefaultDebounce = 500 * time.Millisecond

// FileWatcher monitors a directory and reports changed files with a given
// extension once they stop changing.
type FileWatcher struct {
	dir      string
	ext      string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu           sync.Mutex
	isWatching   bool
	pendingFiles map[string]time.Time

	onFileChanged func(files []string) error
}

// NewFileWatcher creates a watcher over dir for files ending in ext.
func NewFileWatcher(dir, ext string, debounce time.Duration) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &FileWatcher{
		dir:          dir,
		ext:          ext,
		debounce:     debounce,
		watcher:      w,
		pendingFiles: make(map[string]time.Time),
	}, nil
}

// SetChangeCallback sets the function called with the sorted base names of
// the files that changed.
func (fw *FileWatcher) SetChangeCallback(callback func(files []string) error) {
	fw.onFileChanged = callback
}

// Start watches until ctx is done. Callback errors are logged, not fatal.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	if fw.isWatching {
		fw.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	fw.isWatching = true
	fw.mu.Unlock()
	defer fw.Stop()

	if err := fw.watcher.Add(fw.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", fw.dir, err)
	}
	logging.Info("watching %s for *%s changes (debounce %s)", fw.dir, fw.ext, fw.debounce)

	ticker := time.NewTicker(fw.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if fw.shouldIgnoreEvent(event) {
				continue
			}
			fw.mu.Lock()
			fw.pendingFiles[event.Name] = time.Now()
			fw.mu.Unlock()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logging.Warn("file watcher error: %v", err)

		case <-ticker.C:
			if err := fw.processPendingFiles(time.Now()); err != nil {
				logging.Error("error handling file changes: %v", err)
			}
		}
	}
}

// Stop closes the underlying watcher.
func (fw *FileWatcher) Stop() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.isWatching {
		fw.watcher.Close()
		fw.isWatching = false
	}
}

// shouldIgnoreEvent keeps only writes and creates of matching files.
func (fw *FileWatcher) shouldIgnoreEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return true
	}
	return filepath.Ext(event.Name) != fw.ext
}

// processPendingFiles reports files that have been quiet for the debounce
// period as of now.
func (fw *FileWatcher) processPendingFiles(now time.Time) error {
	fw.mu.Lock()
	threshold := now.Add(-fw.debounce)
	var files []string
	for file, ts := range fw.pendingFiles {
		if !ts.After(threshold) {
			files = append(files, filepath.Base(file))
			delete(fw.pendingFiles, file)
		}
	}
	fw.mu.Unlock()

	if len(files) == 0 || fw.onFileChanged == nil {
		return nil
	}
	sort.Strings(files)
	logging.Info("detected changes in %d file(s): %v", len(files), files)
	return fw.onFileChanged(files)
}
