package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldIgnoreEvent(t *testing.T) {
	fw := &FileWatcher{ext: ".txt"}

	assert.False(t, fw.shouldIgnoreEvent(fsnotify.Event{Name: "/cases/a.txt", Op: fsnotify.Write}))
	assert.False(t, fw.shouldIgnoreEvent(fsnotify.Event{Name: "/cases/a.txt", Op: fsnotify.Create}))
	assert.True(t, fw.shouldIgnoreEvent(fsnotify.Event{Name: "/cases/a.txt", Op: fsnotify.Remove}))
	assert.True(t, fw.shouldIgnoreEvent(fsnotify.Event{Name: "/cases/a.swp", Op: fsnotify.Write}))
}

func TestProcessPendingFiles_Debounces(t *testing.T) {
	now := time.Now()
	var got []string
	fw := &FileWatcher{
		debounce: time.Second,
		pendingFiles: map[string]time.Time{
			"/cases/b.txt": now.Add(-2 * time.Second),
			"/cases/a.txt": now.Add(-3 * time.Second),
			"/cases/c.txt": now,
		},
	}
	fw.SetChangeCallback(func(files []string) error {
		got = files
		return nil
	})

	require.NoError(t, fw.processPendingFiles(now))
	assert.Equal(t, []string{"a.txt", "b.txt"}, got)
	assert.Len(t, fw.pendingFiles, 1)
}

func TestStart_ReportsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWatcher(dir, ".txt", 50*time.Millisecond)
	require.NoError(t, err)

	var mu sync.Mutex
	var changed []string
	fw.SetChangeCallback(func(files []string) error {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, files...)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fw.Start(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "login.txt"), []byte("goto"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, changed, "login.txt")
	assert.NotContains(t, changed, "notes.md")
}
