package gwconfig

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/aokihu/atom-message-gateway/internal/gwlog"
)

// WatchDrift re-validates path every time it changes on disk and logs the
// outcome. It never mutates a running Manager — spec.md §4.9 "the manager
// does not restart" a channel, and this extends the same rule to the
// config file itself: drift is surfaced to the operator, not applied.
func WatchDrift(ctx context.Context, path string, logger gwlog.Logger) error {
	if logger == nil {
		logger = gwlog.Nop{}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return err
	}

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if _, err := Load(path); err != nil {
					logger.Warn("config file changed and no longer validates; running channels are unaffected", map[string]any{"path": path, "error": err.Error()})
				} else {
					logger.Info("config file changed and re-validated cleanly; restart to apply", map[string]any{"path": path})
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Error("config watcher error", map[string]any{"error": err.Error()})
			}
		}
	}()
	return nil
}
