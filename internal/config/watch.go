package config

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the app sections when their files change on disk, so edits
// made in an external editor take effect without a restart. It blocks until
// ctx is cancelled.
func (r *Registry) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(r.appDir()); err != nil {
		return err
	}

	// Editors write with a burst of events; debounce before reloading.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if strings.HasSuffix(ev.Name, ".tmp") {
				// Our own atomic-write staging files.
				continue
			}
			if filepath.Ext(ev.Name) != ".json" {
				continue
			}
			pending = time.After(200 * time.Millisecond)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", "err", err)
		case <-pending:
			pending = nil
			r.mu.Lock()
			r.loadApp()
			r.mu.Unlock()
			r.notify("reload")
			log.Debug("config reloaded after external change")
		}
	}
}
