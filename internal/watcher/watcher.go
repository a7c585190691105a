// Package watcher delivers debounced, source-tagged change notifications for
// individual files.
package watcher

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Source tags which watched file a Change belongs to.
type Source string

// Target is a file to watch and the tag its changes carry.
type Target struct {
	Source Source
	Path   string
}

// Change is a delivered notification. The write that caused it has settled.
type Change struct {
	// Source is the tag of the Target that changed.
	Source Source
	// Path is the absolute path of the changed file.
	Path string
	// At is when the notification was delivered.
	At time.Time
}

// Scope selects how the debounce window is tracked.
type Scope int

const (
	// ScopeShared uses one window for every path on the watcher. A change on
	// one file shortly after a delivered change on another is dropped.
	ScopeShared Scope = iota
	// ScopePerPath tracks the window separately for each path.
	ScopePerPath
)

// String returns the config spelling of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeShared:
		return "shared"
	case ScopePerPath:
		return "per-path"
	default:
		return "unknown"
	}
}

// ParseScope parses "shared" or "per-path".
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "shared":
		return ScopeShared, nil
	case "per-path", "per_path", "perpath":
		return ScopePerPath, nil
	default:
		return ScopeShared, fmt.Errorf("unknown debounce scope %q (want shared or per-path)", s)
	}
}

var (
	// ErrAlreadyWatching is returned by Watch on a running watcher.
	ErrAlreadyWatching = errors.New("watcher already running")

	// ErrClosed is returned by Watch after Close.
	ErrClosed = errors.New("watcher closed")
)

// Config holds watcher configuration.
type Config struct {
	// Debounce is the minimum time between delivered notifications (default: 500ms)
	Debounce time.Duration

	// Stability is the quiet period a file must see with no further
	// writes before its change counts as complete (default: 500ms)
	Stability time.Duration

	// Scope selects shared or per-path debounce tracking (default: shared)
	Scope Scope

	// Logger for watcher activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce:  500 * time.Millisecond,
		Stability: 500 * time.Millisecond,
		Scope:     ScopeShared,
		Logger:    log.New(os.Stderr, "[watcher] ", log.LstdFlags),
	}
}

// FileWatcher watches a small set of files for changes.
//
// Parent directories are watched rather than the files themselves so that
// editors which save by writing a temporary file and renaming it over the
// original are still observed.
type FileWatcher struct {
	config  *Config
	watcher *fsnotify.Watcher

	targets  map[string]Source
	onChange func(Change)

	ready chan string
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	running bool
	closed  bool

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	// touched only by the dispatch goroutine
	lastDelivered map[string]time.Time

	now func() time.Time
}

// NewFileWatcher creates a new FileWatcher instance. A nil config uses
// DefaultConfig. The watcher emits nothing until Watch is called.
func NewFileWatcher(config *Config) (*FileWatcher, error) {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Debounce < 0 {
		config.Debounce = 0
	}
	if config.Stability <= 0 {
		config.Stability = defaults.Stability
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		config:        config,
		watcher:       watcher,
		targets:       make(map[string]Source),
		ready:         make(chan string, 16),
		done:          make(chan struct{}),
		timers:        make(map[string]*time.Timer),
		lastDelivered: make(map[string]time.Time),
		now:           time.Now,
	}, nil
}

// Watch starts monitoring targets and calls onChange for each delivered
// change. Calls to onChange are serialized on one goroutine. An empty target
// list is valid and produces no notifications.
func (fw *FileWatcher) Watch(targets []Target, onChange func(Change)) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return ErrClosed
	}
	if fw.running {
		return ErrAlreadyWatching
	}
	if onChange == nil {
		return fmt.Errorf("onChange callback cannot be nil")
	}

	added := make(map[string]bool)
	for _, t := range targets {
		abs, err := filepath.Abs(t.Path)
		if err != nil {
			fw.removeDirs(added)
			return fmt.Errorf("failed to resolve %s: %w", t.Path, err)
		}

		dir := filepath.Dir(abs)
		if !added[dir] {
			if err := fw.watcher.Add(dir); err != nil {
				fw.removeDirs(added)
				return fmt.Errorf("failed to watch directory %s: %w", dir, err)
			}
			added[dir] = true
		}
		fw.targets[abs] = t.Source
	}

	fw.onChange = onChange
	fw.running = true

	fw.wg.Add(2)
	go fw.processEvents()
	go fw.dispatch()

	return nil
}

func (fw *FileWatcher) removeDirs(dirs map[string]bool) {
	for dir := range dirs {
		_ = fw.watcher.Remove(dir)
	}
	fw.targets = make(map[string]Source)
}

// Close stops watching and releases the fsnotify handle. It blocks until
// any in-progress onChange call returns. Close is idempotent and may be
// called on a watcher that never started.
func (fw *FileWatcher) Close() error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.closed = true
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	fw.timersMu.Lock()
	for path, timer := range fw.timers {
		timer.Stop()
		delete(fw.timers, path)
	}
	fw.timersMu.Unlock()

	err := fw.watcher.Close()

	fw.wg.Wait()

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// IsRunning returns true if the watcher is currently armed.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

// processEvents turns raw fsnotify events into stability timers.
func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if path, ok := fw.relevant(event); ok {
				fw.touch(path)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// relevant reports whether event is a content change to a watched file.
func (fw *FileWatcher) relevant(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		// Chmod is noise, Remove and Rename are followed by a Create
		// when the file is replaced
		return "", false
	}

	path := filepath.Clean(event.Name)
	if _, ok := fw.targets[path]; !ok {
		return "", false
	}
	return path, true
}

// touch (re)starts the quiet-period timer for path.
func (fw *FileWatcher) touch(path string) {
	fw.timersMu.Lock()
	defer fw.timersMu.Unlock()

	if timer, ok := fw.timers[path]; ok {
		timer.Reset(fw.config.Stability)
		return
	}

	fw.timers[path] = time.AfterFunc(fw.config.Stability, func() {
		fw.timersMu.Lock()
		delete(fw.timers, path)
		fw.timersMu.Unlock()

		select {
		case fw.ready <- path:
		case <-fw.done:
		}
	})
}

// dispatch delivers settled changes that pass the debounce gate.
func (fw *FileWatcher) dispatch() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case path := <-fw.ready:
			if _, err := os.Stat(path); err != nil {
				// replaced file not yet back in place, or deleted
				continue
			}
			change, ok := fw.gate(path)
			if !ok {
				fw.config.Logger.Printf("Debounced change to %s", path)
				continue
			}
			fw.onChange(change)
		}
	}
}

// gate applies the debounce window and records the delivery.
func (fw *FileWatcher) gate(path string) (Change, bool) {
	now := fw.now()

	key := ""
	if fw.config.Scope == ScopePerPath {
		key = path
	}

	if last, ok := fw.lastDelivered[key]; ok && now.Sub(last) < fw.config.Debounce {
		return Change{}, false
	}
	fw.lastDelivered[key] = now

	return Change{
		Source: fw.targets[path],
		Path:   path,
		At:     now,
	}, true
}
