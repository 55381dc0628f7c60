package rules

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period before a changed rule file is
// reloaded.
const DefaultDebounceInterval = 100 * time.Millisecond

// Watcher reloads a rule file into a Registry whenever it changes. A reload
// only replaces the rules the file contributed last time, so presets and rules
// added at runtime survive it. A file that fails to load or validate leaves the
// current rule set in place.
type Watcher struct {
	path     string
	registry *Registry
	watcher  *fsnotify.Watcher
	debounce *Debouncer
	logger   *slog.Logger

	// onReload is called after every reload attempt
	onReload func(error)

	// reloadMu serialises reloads so fileIDs always matches the registry
	reloadMu sync.Mutex
	fileIDs  []string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the rule file at path.
func NewWatcher(path string, registry *Registry, interval time.Duration, logger *slog.Logger) (*Watcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:     filepath.Clean(path),
		registry: registry,
		watcher:  fsw,
		debounce: NewDebouncer(interval),
		logger:   logger.With("component", "rules.watcher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// OnReload sets a callback invoked with the result of every reload.
func (w *Watcher) OnReload(fn func(error)) {
	w.mu.Lock()
	w.onReload = fn
	w.mu.Unlock()
}

// Track records rules as already loaded from the file, so the next reload
// replaces them.
func (w *Watcher) Track(rules []*Rule) {
	w.reloadMu.Lock()
	w.fileIDs = ruleIDs(rules)
	w.reloadMu.Unlock()
}

// Reload loads the rule file and swaps its rules for the ones the previous
// load contributed.
func (w *Watcher) Reload() error {
	w.reloadMu.Lock()
	rules, err := LoadFile(w.path)
	if err == nil {
		if err = w.registry.ReplaceLayer(w.fileIDs, rules); err == nil {
			w.fileIDs = ruleIDs(rules)
		}
	}
	w.reloadMu.Unlock()

	if err != nil {
		w.logger.Error("rule reload failed, keeping previous rule set", "path", w.path, "error", err)
	} else {
		w.logger.Info("rules reloaded", "path", w.path, "rules", len(rules))
	}

	w.mu.Lock()
	cb := w.onReload
	w.mu.Unlock()
	if cb != nil {
		cb(err)
	}
	return err
}

// Watch blocks until ctx is cancelled or Stop is called, reloading the rule
// file after each debounced change. The parent directory is watched so
// editors that replace the file by rename are picked up.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.path, err)
	}

	w.logger.Info("rule watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.stopCh:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("rule file event", "path", event.Name, "op", event.Op.String())
			w.debounce.Trigger(func() { _ = w.Reload() })

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("rule watcher error", "error", err)
		}
	}
}

// Stop stops watching and releases the fsnotify handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	w.debounce.Stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func ruleIDs(rules []*Rule) []string {
	out := make([]string, len(rules))
	for i, rule := range rules {
		out[i] = rule.ID
	}
	return out
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// Debouncer collects rapid events and runs the latest callback once a quiet
// period has passed.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopped  bool
}

// NewDebouncer creates a debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.callback = nil
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Stop is idempotent.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
