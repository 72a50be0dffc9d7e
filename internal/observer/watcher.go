// Package observer watches the task list file for edits.
package observer

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called when the tasks file changes.
type ChangeCallback func()

// TasksWatcher monitors the tasks file and fires a debounced callback
// when it is written. The parent directory is watched because most
// editors replace the file via rename.
type TasksWatcher struct {
	watcher   *fsnotify.Watcher
	tasksFile string
	callback  ChangeCallback
	debounce  time.Duration

	timer  *time.Timer
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewTasksWatcher creates a watcher for the given tasks file.
func NewTasksWatcher(tasksFile string, callback ChangeCallback) (*TasksWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(tasksFile)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &TasksWatcher{
		watcher:   watcher,
		tasksFile: filepath.Clean(tasksFile),
		callback:  callback,
		debounce:  500 * time.Millisecond, // Debounce rapid changes
	}, nil
}

// Start begins watching for file changes.
func (w *TasksWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case _, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				// Keep watching after transient errors
			}
		}
	}()
}

// Stop stops watching for file changes.
func (w *TasksWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

// SetDebounce sets the debounce duration for batching file changes.
func (w *TasksWatcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

func (w *TasksWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.tasksFile {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *TasksWatcher) fire() {
	if w.callback != nil {
		w.callback()
	}
}
