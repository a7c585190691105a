package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mdsync/mdsync/internal/convert"
	"github.com/mdsync/mdsync/internal/watcher"
	"github.com/oklog/ulid/v2"
)

// Config holds configuration shared by every session in a registry.
type Config struct {
	// EchoWindow is how long after a write changes to the written file are
	// treated as the engine's own echo (default: 1s)
	EchoWindow time.Duration

	// ContentHash decides echoes by comparing file content with the last
	// write instead of by time alone
	ContentHash bool

	// TextExt and RenderedExt are used to derive a missing path
	// (default: .md and .docx)
	TextExt     string
	RenderedExt string

	// Watcher is copied for each session's watcher (default: watcher.DefaultConfig())
	Watcher *watcher.Config

	// Observer receives session events (optional)
	Observer Observer

	// Verbose logs every dropped echo
	Verbose bool

	// Logger for sync activity
	Logger *log.Logger
}

// EchoMargin is the minimum slack kept between the watcher's stability
// period and the echo window. The watcher reports a write only after the
// file has been quiet for the stability period, so a window shorter than
// that would let the engine's own writes through as edits.
const EchoMargin = 250 * time.Millisecond

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		EchoWindow:  time.Second,
		TextExt:     convert.TextExt,
		RenderedExt: convert.RenderedExt,
		Watcher:     watcher.DefaultConfig(),
		Logger:      log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// Registry creates and tracks sessions.
type Registry struct {
	config    *Config
	converter Converter
	writer    Writer
	opener    Opener

	mu       sync.RWMutex
	sessions map[string]*Session

	newWatcher func() (Watcher, error)
	newID      func() string
	now        func() time.Time
}

// NewRegistry creates a registry. A nil config uses DefaultConfig; a nil
// opener disables opening documents.
func NewRegistry(config *Config, converter Converter, writer Writer, opener Opener) *Registry {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.EchoWindow <= 0 {
		config.EchoWindow = defaults.EchoWindow
	}
	if config.TextExt == "" {
		config.TextExt = defaults.TextExt
	}
	if config.RenderedExt == "" {
		config.RenderedExt = defaults.RenderedExt
	}
	if config.Watcher == nil {
		config.Watcher = defaults.Watcher
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	stability := config.Watcher.Stability
	if stability <= 0 {
		stability = defaults.Watcher.Stability
	}
	if floor := stability + EchoMargin; config.EchoWindow < floor {
		config.Logger.Printf("Warning: echo window %v is shorter than watcher stability %v; using %v", config.EchoWindow, stability, floor)
		config.EchoWindow = floor
	}

	r := &Registry{
		config:    config,
		converter: converter,
		writer:    writer,
		opener:    opener,
		sessions:  make(map[string]*Session),
		newID:     func() string { return ulid.Make().String() },
		now:       time.Now,
	}
	r.newWatcher = func() (Watcher, error) {
		cfg := *r.config.Watcher
		return watcher.NewFileWatcher(&cfg)
	}
	return r
}

func (r *Registry) logger() *log.Logger {
	return r.config.Logger
}

// CreateAndStart registers a new session and starts it, returning its id
// once the initial seeding has completed. A session whose start fails is
// stopped and removed before the error is returned.
func (r *Registry) CreateAndStart(ctx context.Context, opts Options) (string, error) {
	if opts.TextPath == "" && opts.RenderedPath == "" {
		return "", ErrNoPath
	}

	id := r.newID()
	s, err := newSession(id, opts, r)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		_ = s.Stop()
		return "", err
	}

	st := s.Status()
	r.logger().Printf("Session %s started (%s <-> %s, watching=%v)", id, st.TextPath, st.RenderedPath, st.Active)
	return id, nil
}

// Session returns the session with id.
func (r *Registry) Session(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Status returns the status of one session; ok is false for an unknown id.
func (r *Registry) Status(id string) (Status, bool) {
	s, ok := r.Session(id)
	if !ok {
		return Status{}, false
	}
	return s.Status(), true
}

// StatusAll returns the status of every session, ordered by id (and so by
// creation time).
func (r *Registry) StatusAll() []Status {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stop stops a session and removes it from the registry.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := s.Stop(); err != nil {
		return fmt.Errorf("failed to stop session %s: %w", id, err)
	}
	r.logger().Printf("Session %s stopped", id)
	return nil
}

// Close stops every session.
func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var errs []error
	for id, s := range sessions {
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
