package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"coopledger/internal/logger"
)

const debounceTick = 250 * time.Millisecond

// Watch triggers an inbox scan once new statements stop changing. It blocks
// until ctx is cancelled.
func Watch(ctx context.Context, importer *InboxImporter) error {
	log := logger.Named("watcher")

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(importer.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", importer.Dir(), err)
	}
	log.Infow("watching bank inbox", "dir", importer.Dir())

	pending := map[string]time.Time{}
	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isStatement(filepath.Base(ev.Name)) {
				continue
			}
			pending[filepath.Base(ev.Name)] = time.Now()
		case <-ticker.C:
			ready := false
			for name, t := range pending {
				if time.Since(t) > importer.Settle() {
					delete(pending, name)
					ready = true
				}
			}
			if ready {
				if _, err := importer.ScanOnce(ctx); err != nil && ctx.Err() == nil {
					log.Errorw("inbox scan failed", "error", err)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warnw("watch error", "error", err)
		}
	}
}
