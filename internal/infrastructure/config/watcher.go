package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/ports"
)

// debounceWindow absorbs editor write bursts into one reload.
const debounceWindow = 200 * time.Millisecond

// Watcher reloads configuration when the config file changes on disk and
// hands the fresh Config to a callback. Long-running commands use it to
// hot-swap the judge backend; one-shot commands just Load per query.
type Watcher struct {
	loader *FileLoader
	log    ports.Logger
	fw     *fsnotify.Watcher
}

// NewWatcher builds a Watcher over the loader's config path. The parent
// directory is watched rather than the file itself, so atomic replace
// (write temp, rename) is still observed.
func NewWatcher(loader *FileLoader, log ports.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(loader.Path())); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{loader: loader, log: log, fw: fw}, nil
}

// Run blocks, invoking onChange for every settled config change, until ctx
// is cancelled.
func (w *Watcher) Run(ctx context.Context, onChange func(domain.Config)) {
	target := w.loader.Path()
	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			cfg, err := w.loader.Load(ctx)
			if err != nil {
				w.log.Warn("config reload failed, keeping previous", map[string]interface{}{
					"path":  target,
					"error": err.Error(),
				})
				continue
			}
			w.log.Info("configuration reloaded", map[string]interface{}{"path": target})
			onChange(cfg)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fw.Close()
}
