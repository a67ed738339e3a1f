// Package filewatcher reports corpus files that appear or change in a
// directory.
package filewatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 300 * time.Millisecond

// Watcher emits a path once its create/write events have been quiet for the
// debounce window, so a file copied in several writes is reported once.
type Watcher struct {
	watcher  *fsnotify.Watcher
	accept   func(path string) bool
	debounce time.Duration
}

// New builds a watcher. accept filters paths; nil accepts everything.
func New(accept func(path string) bool, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if accept == nil {
		accept = func(string) bool { return true }
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{watcher: w, accept: accept, debounce: debounce}, nil
}

// Watch starts monitoring dir. The returned channel closes when ctx is done
// or the watcher is stopped.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan string, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	out := make(chan string, 100)
	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
		wg      sync.WaitGroup
	)
	emit := func(path string) {
		defer wg.Done()
		mu.Lock()
		delete(pending, path)
		mu.Unlock()
		select {
		case out <- path:
		case <-ctx.Done():
		}
	}

	go func() {
		defer func() {
			mu.Lock()
			for path, t := range pending {
				if t.Stop() {
					wg.Done()
				}
				delete(pending, path)
			}
			mu.Unlock()
			wg.Wait()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				if !w.accept(event.Name) {
					continue
				}
				mu.Lock()
				if t, ok := pending[event.Name]; ok && t.Stop() {
					wg.Done()
				}
				path := event.Name
				wg.Add(1)
				pending[path] = time.AfterFunc(w.debounce, func() { emit(path) })
				mu.Unlock()
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("filewatcher_error", "dir", dir, "error", err)
			}
		}
	}()

	return out, nil
}

func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
