package chatstore

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ExportWatcher watches a directory of chat export files and fires a
// debounced callback when anything changes.
type ExportWatcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	onDirty  func()
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// NewExportWatcher creates a new export watcher.
func NewExportWatcher(logger zerolog.Logger, onDirty func()) (*ExportWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &ExportWatcher{
		watcher:  watcher,
		logger:   logger,
		onDirty:  onDirty,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// Watch starts watching a directory.
func (w *ExportWatcher) Watch(path string) error {
	return w.watcher.Add(path)
}

// Stop stops the watcher.
func (w *ExportWatcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *ExportWatcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only chat export files are interesting.
			if !strings.HasSuffix(strings.ToLower(event.Name), ".json") {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				w.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Export change detected")

				w.scheduleMarkDirty()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Export watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *ExportWatcher) scheduleMarkDirty() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onDirty)
}
