package engine

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mdsync/mdsync/internal/durable"
	"github.com/mdsync/mdsync/internal/watcher"
	"golang.org/x/sync/singleflight"
)

// Session synchronizes one text/rendered file pair.
type Session struct {
	id  string
	reg *Registry

	bidirectional bool
	watch         bool
	openRendered  bool
	preferPrimary bool

	// conversions driven by the watcher run under ctx, cancelled by Stop
	ctx    context.Context
	cancel context.CancelFunc

	flights singleflight.Group

	mu            sync.Mutex
	paths         [2]string
	state         State
	lastSyncAt    time.Time
	suppressUntil [2]time.Time
	lastWritten   [2][sha256.Size]byte
	hasWritten    [2]bool
	lastErr       string
	watcher       Watcher
}

func newSession(id string, opts Options, reg *Registry) (*Session, error) {
	if opts.TextPath == "" && opts.RenderedPath == "" {
		return nil, ErrNoPath
	}

	s := &Session{
		id:            id,
		reg:           reg,
		bidirectional: opts.Bidirectional,
		watch:         opts.Watch,
		openRendered:  opts.OpenRendered,
		preferPrimary: opts.PreferPrimaryApp,
		state:         StateIdle,
	}

	for side, p := range map[Side]string{SideText: opts.TextPath, SideRendered: opts.RenderedPath} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		s.paths[side] = abs
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Path returns the absolute path of one side, empty if not yet known.
func (s *Session) Path(side Side) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paths[side]
}

// Start seeds the missing file, opens the rendered document if asked to and
// arms the watcher. It returns once seeding has finished.
func (s *Session) Start(ctx context.Context) error {
	cfg := s.reg.config

	s.mu.Lock()
	textPath, renderedPath := s.paths[SideText], s.paths[SideRendered]
	switch {
	case renderedPath == "":
		s.paths[SideRendered] = Counterpart(textPath, cfg.RenderedExt)
		s.state = StateSeeding
	case textPath == "":
		s.paths[SideText] = Counterpart(renderedPath, cfg.TextExt)
		s.state = StateSeeding
	}
	seeding := s.state == StateSeeding
	s.mu.Unlock()

	if seeding {
		dir := TextToRendered
		if textPath == "" {
			dir = RenderedToText
		}
		if err := s.seed(ctx, dir); err != nil {
			return err
		}
	}

	if s.openRendered {
		s.open(ctx)
	}

	if s.watch {
		if err := s.arm(); err != nil {
			s.setState(StateIdle)
			return err
		}
	} else {
		s.setState(StateIdle)
	}

	s.emit(Event{Kind: EventStarted, Source: s.Path(SideText), Target: s.Path(SideRendered)})
	return nil
}

func (s *Session) seed(ctx context.Context, dir Direction) error {
	src, dst := s.Path(dir.From()), s.Path(dir.To())
	s.reg.logger().Printf("Seeding %s: %s => %s", dir, src, dst)

	err := s.convert(ctx, dir)
	switch {
	case err == nil:
		s.emit(Event{Kind: EventSeeded, Direction: dir.String(), Source: src, Target: dst})
		return nil
	case errors.Is(err, durable.ErrPending):
		// the pending copy exists; keep going so the user can recover
		s.reportFailure(dir, err)
		return nil
	default:
		return fmt.Errorf("initial %s conversion failed: %w", dir, err)
	}
}

func (s *Session) open(ctx context.Context) {
	if s.reg.opener == nil {
		return
	}
	path := s.Path(SideRendered)

	res, err := s.reg.opener.Open(ctx, path, s.preferPrimary)
	if err != nil {
		s.reg.logger().Printf("Could not open %s: %v", path, err)
		s.emit(Event{Kind: EventOpenFailed, Target: path, Detail: err.Error()})
		return
	}
	s.emit(Event{Kind: EventOpened, Target: path, Detail: res.Method})
}

func (s *Session) arm() error {
	w, err := s.reg.newWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	targets := []watcher.Target{{Source: SourceText, Path: s.Path(SideText)}}
	if s.bidirectional {
		targets = append(targets, watcher.Target{Source: SourceRendered, Path: s.Path(SideRendered)})
	}

	if err := w.Watch(targets, s.handleChange); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch session files: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		// stopped while arming
		_ = w.Close()
		return ErrStopped
	}
	s.watcher = w
	s.state = StateWatching
	return nil
}

// Stop releases the watcher and cancels in-flight waits. Stop is idempotent.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	s.cancel()

	var err error
	if w != nil {
		err = w.Close()
	}
	s.emit(Event{Kind: EventStopped})
	return err
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:            s.id,
		TextPath:      s.paths[SideText],
		RenderedPath:  s.paths[SideRendered],
		Active:        s.watcher != nil,
		State:         s.state,
		Bidirectional: s.bidirectional,
		LastError:     s.lastErr,
	}
	if !s.lastSyncAt.IsZero() {
		ms := s.lastSyncAt.UnixMilli()
		st.LastSyncAt = &ms
	}
	return st
}

// handleChange is the watcher callback.
func (s *Session) handleChange(change watcher.Change) {
	var dir Direction
	switch change.Source {
	case SourceText:
		dir = TextToRendered
	case SourceRendered:
		if !s.bidirectional {
			return
		}
		dir = RenderedToText
	default:
		return
	}

	if err := s.Sync(s.ctx, dir); err != nil && !errors.Is(err, ErrStopped) {
		s.reportFailure(dir, err)
	}
}

// Sync runs one conversion in direction dir unless the change that would
// trigger it is an echo of the session's own write. Concurrent calls for the
// same direction share a single conversion.
func (s *Session) Sync(ctx context.Context, dir Direction) error {
	_, err, _ := s.flights.Do(dir.String(), func() (interface{}, error) {
		if s.stopped() {
			return nil, ErrStopped
		}

		from := dir.From()
		if s.isEcho(from) {
			if s.reg.config.Verbose {
				s.reg.logger().Printf("Ignoring %s change to %s (own write)", from, s.Path(from))
			}
			s.emit(Event{Kind: EventEchoSuppressed, Direction: dir.String(), Source: s.Path(from)})
			return nil, nil
		}

		src, dst := s.Path(from), s.Path(dir.To())
		s.reg.logger().Printf("%s %s => %s", dir, src, dst)

		if err := s.convert(ctx, dir); err != nil {
			return nil, err
		}
		s.emit(Event{Kind: EventConverted, Direction: dir.String(), Source: src, Target: dst})
		return nil, nil
	})
	return err
}

// isEcho decides whether a change to side was caused by the session itself.
func (s *Session) isEcho(side Side) bool {
	s.mu.Lock()
	until := s.suppressUntil[side]
	written, has := s.lastWritten[side], s.hasWritten[side]
	path := s.paths[side]
	s.mu.Unlock()

	inWindow := s.reg.now().Before(until)
	if !s.reg.config.ContentHash {
		return inWindow
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return inWindow
	}
	return has && sha256.Sum256(data) == written
}

// convert reads the source side, converts it and writes the other side.
// On success it records the sync time and opens the echo window for the
// side just written.
func (s *Session) convert(ctx context.Context, dir Direction) error {
	src, dst := s.Path(dir.From()), s.Path(dir.To())

	input, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	var output []byte
	switch dir {
	case TextToRendered:
		output, err = s.reg.converter.ToRendered(ctx, input)
	default:
		output, err = s.reg.converter.ToText(ctx, input)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConversion, err)
	}

	if err := s.reg.writer.Write(ctx, dst, output); err != nil {
		return err
	}

	now := s.reg.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSyncAt = now
	s.lastErr = ""
	to := dir.To()
	if until := now.Add(s.reg.config.EchoWindow); until.After(s.suppressUntil[to]) {
		s.suppressUntil[to] = until
	}
	s.lastWritten[to] = sha256.Sum256(output)
	s.hasWritten[to] = true
	return nil
}

func (s *Session) reportFailure(dir Direction, err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()

	kind := EventConversionFailed
	if errors.Is(err, durable.ErrPending) {
		kind = EventWritePending
	}
	s.reg.logger().Printf("%s failed for session %s: %v", dir, s.id, err)
	s.emit(Event{
		Kind:      kind,
		Direction: dir.String(),
		Source:    s.Path(dir.From()),
		Target:    s.Path(dir.To()),
		Detail:    err.Error(),
	})
}

func (s *Session) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStopped
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		s.state = state
	}
}

func (s *Session) emit(e Event) {
	if s.reg.config.Observer == nil {
		return
	}
	e.SessionID = s.id
	if e.At.IsZero() {
		e.At = s.reg.now()
	}
	s.reg.config.Observer.Observe(e)
}
