package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/wsalloc/internal/logfields"
)

// Watcher monitors the configuration file and exposes an atomic snapshot.
// The applicability policy re-reads the snapshot on every request, so a
// root-pattern change takes effect without a restart. A reload that fails
// to parse or validate keeps the previous snapshot.
type Watcher struct {
	path     string
	current  atomic.Pointer[Config]
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	debounce time.Duration
}

// NewWatcher loads the initial configuration and prepares the file watcher.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	w := &Watcher{
		path:     absPath,
		watcher:  fsw,
		stopChan: make(chan struct{}),
		debounce: 2 * time.Second,
	}
	w.current.Store(cfg)
	return w, nil
}

// NewStaticWatcher wraps a fixed configuration with no file watching.
// Used by one-shot CLI commands and tests.
func NewStaticWatcher(cfg *Config) *Watcher {
	w := &Watcher{stopChan: make(chan struct{})}
	w.current.Store(cfg)
	return w
}

// Snapshot returns the current valid configuration. Never nil.
func (w *Watcher) Snapshot() *Config {
	return w.current.Load()
}

// Start begins monitoring the configuration file. Watching the containing
// directory is more reliable than watching the file directly (editors often
// rename-and-replace).
func (w *Watcher) Start(ctx context.Context) error {
	if w.watcher == nil {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}
	slog.Info("Starting configuration watcher", logfields.Path(w.path))
	go w.watchLoop(ctx)
	return nil
}

// Stop ends monitoring.
func (w *Watcher) Stop() {
	close(w.stopChan)
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	configFile := filepath.Base(w.path)
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce rapid successive writes into one reload.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("Config reload failed, keeping previous configuration",
			logfields.Path(w.path), logfields.Error(err))
		return
	}
	w.current.Store(cfg)
	slog.Info("Configuration reloaded",
		logfields.Path(w.path),
		logfields.Budget(cfg.Allocator.LengthBudget),
		logfields.Pattern(cfg.Allocator.RootPattern))
}
