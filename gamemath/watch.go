package gamemath

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads rtp.yaml whenever it changes on disk until ctx is done, so
// edits made by casinoctl or by hand reach a running server. A file that
// fails to parse or validate is logged and the current settings are kept.
func (s *SettingsStore) Watch(ctx context.Context, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rtp watcher: %w", err)
	}
	defer w.Close()
	// The directory, not the file: saves replace rtp.yaml by rename.
	if err := w.Add(s.dataDir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dataDir, err)
	}
	target := filepath.Clean(s.path())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if err := s.load(); err != nil {
				log.Warn("rtp reload failed, keeping current settings", zap.Error(err))
				continue
			}
			log.Info("rtp settings reloaded", zap.String("path", target))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("rtp watcher error", zap.Error(err))
		}
	}
}
