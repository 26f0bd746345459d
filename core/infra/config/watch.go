package config

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/filegate/filegate/core/infra/logging"
)

const reloadDebounce = 500 * time.Millisecond

// PolicyWatcher loads the policy document and hot-reloads it on file
// changes. A malformed document leaves the core with no policy at all:
// nothing is blocked until a valid document is loaded, so the failure is
// logged loudly.
type PolicyWatcher struct {
	path    string
	current atomic.Pointer[PolicyDocument]
	loaded  atomic.Bool
	watcher *fsnotify.Watcher
}

// NewPolicyWatcher performs the initial load and sets up the file watcher.
// Watcher construction failures disable hot-reload but never the service.
func NewPolicyWatcher(path string) *PolicyWatcher {
	w := &PolicyWatcher{path: path}
	w.reload()

	if path == "" {
		return w
	}
	if _, err := os.Stat(path); err != nil {
		logging.Info("policy", "policy file absent, hot-reload disabled", "path", path)
		return w
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Error("policy", "file watcher unavailable, hot-reload disabled", "error", err)
		return w
	}
	if err := fw.Add(path); err != nil {
		logging.Error("policy", "failed to watch policy file, hot-reload disabled", "path", path, "error", err)
		_ = fw.Close()
		return w
	}
	w.watcher = fw
	return w
}

// Current returns the live policy document, or nil when none is loaded.
func (w *PolicyWatcher) Current() *PolicyDocument {
	return w.current.Load()
}

// Run blocks consuming watcher events until ctx is cancelled. Writes are
// debounced so editors that truncate-then-write reload once.
func (w *PolicyWatcher) Run(ctx context.Context) {
	if w.watcher == nil {
		<-ctx.Done()
		return
	}
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, w.reload)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("policy", "file watcher error", "error", err)
		}
	}
}

// Close releases the underlying file watcher.
func (w *PolicyWatcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

func (w *PolicyWatcher) reload() {
	doc, err := LoadPolicy(w.path)
	if err != nil {
		// Fail-open: with no valid policy nothing is ever blocked.
		logging.Error("policy", "POLICY LOAD FAILED - operating with no policy, downloads will not be blocked", "path", w.path, "error", err)
		w.current.Store(nil)
		w.loaded.Store(false)
		return
	}
	w.current.Store(doc)
	w.loaded.Store(doc != nil)
	if doc == nil {
		logging.Info("policy", "no policy document, operating allow-all", "path", w.path)
		return
	}
	logging.Info("policy", "policy loaded", "path", w.path, "rules", len(doc.Rules), "alert_subject", doc.AlertSubject())
}

// String describes the watcher state for status logging.
func (w *PolicyWatcher) String() string {
	if w.loaded.Load() {
		return fmt.Sprintf("policy(%s)", w.path)
	}
	return "policy(none)"
}
