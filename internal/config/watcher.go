package config

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/giantswarm/mcpref/internal/logging"
	"github.com/giantswarm/mcpref/internal/scope"
)

// Watcher watches a config file for changes and republishes the subset
// of settings that are safe to swap on a live server: the scope policy
// and the allowed-origins list. Every other field requires a restart.
type Watcher struct {
	path string

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	running  bool

	policy  atomic.Pointer[scope.Policy]
	origins atomic.Pointer[[]string]
}

// NewWatcher builds a Watcher seeded with the scope policy and allowed
// origins from the initial Config, without starting the filesystem
// watch yet.
func NewWatcher(path string, initial Config) *Watcher {
	w := &Watcher{path: path}
	w.policy.Store(scope.NewPolicy(initial.Scope.Overrides))
	origins := append([]string(nil), initial.HTTP.AllowedOrigins...)
	w.origins.Store(&origins)
	return w
}

// Policy returns the currently active scope policy.
func (w *Watcher) Policy() *scope.Policy {
	return w.policy.Load()
}

// AllowedOrigins returns the currently active allowed-origins list.
func (w *Watcher) AllowedOrigins() []string {
	return *w.origins.Load()
}

// Start begins watching the config file for writes, reloading and
// republishing Policy/AllowedOrigins on each change. Parse or validation
// failures are logged and the previous values are kept in place.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		w.mu.Unlock()
		return err
	}

	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	go w.processEvents()
	logging.Info(subsystem, "watching %s for scope/origin hot-reload", w.path)
	return nil
}

// Stop ends the filesystem watch. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	w.watcher.Close()
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn(subsystem, "watcher error for %s: %v", w.path, err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logging.Warn(subsystem, "hot-reload of %s failed, keeping previous scope/origins: %v", w.path, err)
		return
	}

	w.policy.Store(scope.NewPolicy(cfg.Scope.Overrides))
	origins := append([]string(nil), cfg.HTTP.AllowedOrigins...)
	w.origins.Store(&origins)
	logging.Info(subsystem, "reloaded scope policy and allowed origins from %s", w.path)
}
