// Package reset watches a filesystem flag and triggers the
// snapshot-save/reload/restore cycle when the flag is touched.
package reset

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/flowpilot/internal/logger"
)

// Watcher invokes a callback whenever the reset flag file is written or
// created. The parent directory is watched rather than the file itself so a
// remove-and-recreate still fires.
type Watcher struct {
	flagPath string
	watcher  *fsnotify.Watcher
	onReset  func()
	done     chan struct{}
}

// New starts watching flagPath and calls onReset for each trigger
func New(flagPath string, onReset func()) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsWatcher.Add(filepath.Dir(flagPath)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		flagPath: flagPath,
		watcher:  fsWatcher,
		onReset:  onReset,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.flagPath {
				continue
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				logger.Info("reset flag triggered: %s", event.Name)
				if w.onReset != nil {
					w.onReset()
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("reset watcher error: %v", err)
		}
	}
}

// Close stops the watcher
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
