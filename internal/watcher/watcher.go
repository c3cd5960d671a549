package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before onChange fires
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a set of files for changes
type Watcher struct {
	paths    []string
	onChange func(path string)
	debounce time.Duration
	logger   *slog.Logger
}

// New creates a new file watcher. onChange receives the absolute path of the
// file that changed.
func New(paths []string, onChange func(path string)) *Watcher {
	return &Watcher{
		paths:    paths,
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// WithLogger sets the logger
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Watch starts watching the files for changes.
// It blocks until the context is cancelled or an error occurs.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directories rather than the files, so that files replaced
	// by editors or rename-into-place writers keep being seen
	watchedDirs := make(map[string]bool)
	fileSet := make(map[string]bool)

	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				w.logger.Warn("failed to watch directory", "dir", dir, "error", err)
				continue
			}
			watchedDirs[dir] = true
		}

		fileSet[absPath] = true
		w.logger.Info("watching file", "path", absPath)
	}

	debounceTimers := make(map[string]*time.Timer)
	defer func() {
		for _, timer := range debounceTimers {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil || !fileSet[absPath] {
				continue
			}

			// Handle write or create events
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if timer, exists := debounceTimers[absPath]; exists {
					timer.Stop()
				}

				debounceTimers[absPath] = time.AfterFunc(w.debounce, func() {
					if ctx.Err() != nil {
						return
					}
					w.logger.Info("file changed", "path", absPath)
					w.onChange(absPath)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
