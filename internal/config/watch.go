package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"github.com/konkon3660/graduationP/internal/logger"
)

// DefaultReloadDebounce coalesces the burst of events editors produce on save.
const DefaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	fs        *fsnotify.Watcher
	path      string
	overrides Overrides
	apply     func(*Config)
	clock     clockwork.Clock
	debounce  time.Duration

	mu      sync.Mutex
	pending clockwork.Timer
	done    chan struct{}
}

// Watch starts watching path. Each settled change is re-read with the same
// overrides as the initial Load; valid results go to apply, invalid ones are
// logged and dropped. The directory is watched so editors that replace the
// file are handled.
func Watch(path string, overrides Overrides, apply func(*Config)) (*Watcher, error) {
	return watch(path, overrides, apply, clockwork.NewRealClock(), DefaultReloadDebounce)
}

func watch(path string, overrides Overrides, apply func(*Config), clock clockwork.Clock, debounce time.Duration) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config: watch: no config file")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}

	overrides.ConfigPath = &abs
	w := &Watcher{
		fs:        fsw,
		path:      abs,
		overrides: overrides,
		apply:     apply,
		clock:     clock,
		debounce:  debounce,
		done:      make(chan struct{}),
	}
	go w.run()
	logger.Infof("[config] watching %s", abs)
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warnf("[config] watcher error: %v", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = w.clock.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.overrides)
	if err != nil {
		logger.Warnf("[config] reload of %s rejected: %v", w.path, err)
		return
	}
	logger.Infof("[config] reloaded %s", w.path)
	w.apply(cfg)
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()
	err := w.fs.Close()
	<-w.done
	return err
}
