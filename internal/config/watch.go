package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file when it changes on disk so timing
// thresholds can be tuned without restarting the daemon.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	onReload func(*Config)
	done     chan struct{}
}

// Watch starts watching the config directory and invokes onReload with the
// re-parsed configuration after each write to config.yaml.
func Watch(logger zerolog.Logger, onReload func(*Config)) (*Watcher, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors often replace the file,
	// which would invalidate a file-level watch.
	if err := fsw.Add(configDir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fsw,
		logger:   logger.With().Str("component", "config-watch").Logger(),
		onReload: onReload,
		done:     make(chan struct{}),
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != "config.yaml" {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load()
			if err != nil {
				w.logger.Warn().Err(err).Msg("Config reload failed, keeping previous values")
				continue
			}
			w.logger.Info().Msg("Config reloaded")
			if w.onReload != nil {
				w.onReload(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
