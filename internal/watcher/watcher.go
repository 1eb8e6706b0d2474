// Package watcher reports external edits to the file-backed local cache so a
// running process can reload. Changes are debounced, and a file whose content
// did not change (our own rewrite of the same data) is ignored.
package watcher

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"todosync/internal/utils"
)

// DefaultDebounceDuration is the default debounce window for batching rapid changes.
const DefaultDebounceDuration = 500 * time.Millisecond

// Config holds file watcher configuration.
type Config struct {
	Dir              string        // Directory to watch
	Files            []string      // Base names to react to; empty means every file
	DebounceDuration time.Duration // Debounce window to batch rapid changes
	OnChange         func()        // Called after a debounced batch of real changes
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(dir string, onChange func(), files ...string) *Config {
	return &Config{
		Dir:              dir,
		Files:            files,
		DebounceDuration: DefaultDebounceDuration,
		OnChange:         onChange,
	}
}

// Watcher monitors the cache directory.
type Watcher struct {
	cfg     *Config
	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	stopped bool
	started bool
	mu      sync.Mutex

	digests map[string][32]byte
}

// New creates a new Watcher instance.
func New(cfg *Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = DefaultDebounceDuration
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		stopCh:  make(chan struct{}),
		digests: make(map[string][32]byte),
	}, nil
}

// Start records the current file contents and begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return fmt.Errorf("watcher has been stopped and cannot be restarted")
	}
	if w.started {
		return nil
	}

	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to read %q: %w", w.cfg.Dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !w.relevant(e.Name()) {
			continue
		}
		if sum, ok := digest(filepath.Join(w.cfg.Dir, e.Name())); ok {
			w.digests[e.Name()] = sum
		}
	}

	// The directory is watched rather than the files: atomic renames replace them.
	if err := w.fsw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch path %q: %w", w.cfg.Dir, err)
	}
	w.started = true

	go w.eventLoop()
	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
	_ = w.fsw.Close()
}

func (w *Watcher) relevant(name string) bool {
	if len(w.cfg.Files) == 0 {
		return true
	}
	for _, f := range w.cfg.Files {
		if f == name {
			return true
		}
	}
	return false
}

// changed reports whether name's content differs from what was last seen.
func (w *Watcher) changed(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	sum, ok := digest(filepath.Join(w.cfg.Dir, name))
	prev, seen := w.digests[name]
	switch {
	case !ok && !seen:
		return false
	case !ok:
		delete(w.digests, name)
		return true
	case seen && prev == sum:
		return false
	}
	w.digests[name] = sum
	return true
}

func digest(path string) ([32]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, false
	}
	return sha256.Sum256(data), true
}

// eventLoop debounces fsnotify events and calls OnChange once per batch.
func (w *Watcher) eventLoop() {
	var debounceTimer *time.Timer
	debounceCh := make(chan struct{}, 1)
	pending := map[string]bool{}

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !w.relevant(name) {
				continue
			}
			pending[name] = true

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.cfg.DebounceDuration, func() {
				select {
				case debounceCh <- struct{}{}:
				default:
				}
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			utils.Warnf("Cache watcher error: %v", err)

		case <-debounceCh:
			fire := false
			for name := range pending {
				if w.changed(name) {
					fire = true
				}
			}
			pending = map[string]bool{}
			if fire && w.cfg.OnChange != nil {
				utils.Debugf("Cache changed on disk, reloading")
				w.cfg.OnChange()
			}
		}
	}
}
