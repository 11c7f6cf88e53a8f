package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the configuration file and invokes a callback after it
// changes. Writes are debounced because editors and config management tools
// produce bursts of events for a single logical change.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func()
	log      *slog.Logger
	fw       *fsnotify.Watcher
}

// NewWatcher creates a watcher for path invoking onChange after each
// debounced modification.
func NewWatcher(path string, debounce time.Duration, onChange func(), logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	// Watch the directory: most editors replace the file on save, which
	// would drop a watch registered on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		log:      logger.With("component", "configwatch"),
		fw:       fw,
	}, nil
}

// Run blocks processing file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fw.Close()

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Error("config watch error", "error", err)

		case <-fire:
			w.log.Info("configuration file changed", "path", w.path)
			w.onChange()
		}
	}
}
