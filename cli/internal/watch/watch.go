// Package watch re-runs a callback when files in a directory change.
package watch

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 300 * time.Millisecond

// Watcher watches a directory for files matching a pattern
type Watcher struct {
	dir      string
	pattern  string
	debounce time.Duration
	callback func() error
	onError  func(error)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher watches dir for created, written or renamed files whose base
// name matches pattern (filepath.Match syntax). Callback errors go to
// onError.
func NewWatcher(dir, pattern string, callback func() error, onError func(error)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Watcher{
		dir:      dir,
		pattern:  pattern,
		debounce: DefaultDebounce,
		callback: callback,
		onError:  onError,
		watcher:  watcher,
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce changes the settle delay. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start runs the callback once and then after every burst of changes.
func (w *Watcher) Start() error {
	if err := w.callback(); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}

	go func() {
		timer := time.NewTimer(w.debounce)
		timer.Stop()
		var fire <-chan time.Time

		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if w.relevant(event) {
					timer.Reset(w.debounce)
					fire = timer.C
				}

			case <-fire:
				if err := w.callback(); err != nil {
					w.onError(err)
				}
				fire = nil

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.onError(err)

			case <-w.done:
				return
			}
		}
	}()

	return nil
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	ok, err := filepath.Match(w.pattern, filepath.Base(event.Name))
	return err == nil && ok
}

// Stop stops watching
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
