package automation

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch hot-reloads the automations file until ctx is cancelled. The parent
// directory is watched rather than the file itself because editors replace
// files by rename. Reload errors keep the previous definition set.
func Watch(ctx context.Context, path string, logger *slog.Logger, apply func([]Definition)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("automation watcher: started", slog.String("file", abs))

	// Debounce bursts of events from a single save.
	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("automation watcher: stopped")
			return nil

		case <-reloadCh:
			defs, loadErr := LoadFile(abs)
			if loadErr != nil {
				logger.Warn("automation watcher: reload failed, keeping previous definitions",
					slog.String("error", loadErr.Error()))
				continue
			}
			apply(defs)
			logger.Info("automation watcher: definitions reloaded",
				slog.Int("count", len(defs)))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("automation watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
