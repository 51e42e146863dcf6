package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands the
// validated result to onReload. Invalid edits are logged and ignored, so the
// running config stays in effect.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload func(*Config)
	watcher  *fsnotify.Watcher
	logger   *logrus.Entry

	mu      sync.Mutex
	current *Config
	timer   *time.Timer
}

// NewWatcher watches the directory containing path. Editors often replace
// files by rename, so watching the file itself would lose track of it.
func NewWatcher(path string, current *Config, debounce time.Duration, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onReload: onReload,
		watcher:  fw,
		logger:   logging.NewLogger("config-watcher"),
		current:  current,
	}, nil
}

// Start processes file events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		}
	}
}

// schedule coalesces bursts of writes into one reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("Config reload failed; keeping current config")
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.WithError(err).Warn("Reloaded config is invalid; keeping current config")
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	if old != nil {
		changes := Diff(old, cfg)
		if len(changes) == 0 {
			w.logger.Debug("Config file touched without changes")
			return
		}
		for _, c := range changes {
			w.logger.Infof("Config changed: %s", c)
		}
	}
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// SetCurrent records a config written by the process itself, so the reload
// it triggers is recognised as a no-op.
func (w *Watcher) SetCurrent(cfg *Config) {
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
}
