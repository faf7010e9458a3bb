// Package watch observes the storage trees for changes made by
// external tools. A host application (GUI, plugin host) subscribes to
// debounced change batches and refreshes its view of the library.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/files"
)

// LibraryWatcher monitors the library and archive trees and reports
// batches of changed files after a debounce interval.
type LibraryWatcher struct {
	watcher   *fsnotify.Watcher
	layout    *files.Layout
	debouncer *Debouncer
	patterns  []string
	onChange  func([]string) error
	logger    *zap.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewLibraryWatcher creates a watcher over a storage layout. patterns
// filters the reported files (defaults to .blend and .json when empty).
func NewLibraryWatcher(layout *files.Layout, patterns []string, onChange func([]string) error, logger *zap.Logger) (*LibraryWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(patterns) == 0 {
		patterns = []string{"*.blend", "*.json"}
	}

	lw := &LibraryWatcher{
		watcher:   watcher,
		layout:    layout,
		debouncer: NewDebouncer(250 * time.Millisecond),
		patterns:  patterns,
		onChange:  onChange,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}

	lw.debouncer.SetCallback(func(changed []string) {
		if err := lw.onChange(changed); err != nil {
			lw.logger.Warn("change handler failed", zap.Error(err))
		}
	})
	return lw, nil
}

// Start registers the storage trees and begins watching. New
// directories created under a watched tree are picked up as they
// appear.
func (lw *LibraryWatcher) Start() error {
	roots := []string{
		lw.layout.LibraryRoot(),
		lw.layout.ArchiveRoot(),
	}

	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		if err := lw.addTree(root); err != nil {
			return err
		}
	}

	lw.wg.Add(1)
	go lw.run()
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (lw *LibraryWatcher) Stop() error {
	select {
	case <-lw.stopChan:
		return nil
	default:
		close(lw.stopChan)
	}
	lw.wg.Wait()
	lw.debouncer.Stop()
	return lw.watcher.Close()
}

func (lw *LibraryWatcher) run() {
	defer lw.wg.Done()

	for {
		select {
		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			if lw.shouldIgnore(event.Name) {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := lw.addTree(event.Name); err != nil {
						lw.logger.Warn("could not watch new directory",
							zap.String("path", event.Name), zap.Error(err))
					}
					continue
				}
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				if lw.matchesPattern(event.Name) {
					lw.logger.Debug("library file changed", zap.String("path", event.Name))
					lw.debouncer.Add(event.Name)
				}
			}

		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			lw.logger.Warn("watcher error", zap.Error(err))

		case <-lw.stopChan:
			return
		}
	}
}

// addTree watches a directory and every directory below it.
func (lw *LibraryWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := lw.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (lw *LibraryWatcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	// Temp files from atomic sidecar writes.
	if strings.HasSuffix(base, ".tmp") {
		return true
	}
	return false
}

func (lw *LibraryWatcher) matchesPattern(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range lw.patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// Debouncer collects changed paths and fires one callback per quiet
// interval.
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	paths    map[string]struct{}
	mutex    sync.Mutex
	callback func([]string)
	stopChan chan struct{}
}

// NewDebouncer creates a debouncer with the given quiet interval.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		paths:    make(map[string]struct{}),
		stopChan: make(chan struct{}),
	}
}

// Add records a changed path and restarts the quiet timer.
func (d *Debouncer) Add(path string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.paths[path] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.paths) == 0 {
		return
	}
	changed := make([]string, 0, len(d.paths))
	for path := range d.paths {
		changed = append(changed, path)
	}
	d.paths = make(map[string]struct{})

	if d.callback != nil {
		d.callback(changed)
	}
}

// SetCallback sets the function invoked with each change batch.
func (d *Debouncer) SetCallback(callback func([]string)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.callback = callback
}

// Stop cancels any pending flush.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}
}
