package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mdsync/mdsync/internal/opener"
	"github.com/mdsync/mdsync/internal/watcher"
)

// fakeConverter prefixes its input so each direction is recognizable.
type fakeConverter struct {
	mu       sync.Mutex
	toRender int
	toText   int
	fail     error
	block    chan struct{}
	entered  chan struct{}
}

func (c *fakeConverter) ToRendered(ctx context.Context, text []byte) ([]byte, error) {
	c.mu.Lock()
	c.toRender++
	fail, block, entered := c.fail, c.block, c.entered
	c.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if fail != nil {
		return nil, fail
	}
	return append([]byte("R:"), text...), nil
}

func (c *fakeConverter) ToText(ctx context.Context, rendered []byte) ([]byte, error) {
	c.mu.Lock()
	c.toText++
	fail := c.fail
	c.mu.Unlock()

	if fail != nil {
		return nil, fail
	}
	return append([]byte("T:"), rendered...), nil
}

func (c *fakeConverter) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toRender, c.toText
}

func (c *fakeConverter) setFail(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

// fileWriter writes straight to disk unless err is set.
type fileWriter struct {
	mu     sync.Mutex
	writes map[string]int
	err    error
}

func (w *fileWriter) Write(ctx context.Context, path string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writes == nil {
		w.writes = make(map[string]int)
	}
	if w.err != nil {
		return w.err
	}
	w.writes[path]++
	return os.WriteFile(path, data, 0644)
}

func (w *fileWriter) count(path string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes[path]
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []string
	err    error
}

func (o *fakeOpener) Open(ctx context.Context, path string, preferPrimary bool) (opener.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, path)
	if o.err != nil {
		return opener.Result{}, o.err
	}
	return opener.Result{Method: "fake"}, nil
}

// fakeWatcher records targets and lets tests fire changes by hand.
type fakeWatcher struct {
	mu       sync.Mutex
	targets  []watcher.Target
	onChange func(watcher.Change)
	closed   bool
}

func (w *fakeWatcher) Watch(targets []watcher.Target, onChange func(watcher.Change)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.targets = targets
	w.onChange = onChange
	return nil
}

func (w *fakeWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWatcher) fire(src watcher.Source) {
	w.mu.Lock()
	cb := w.onChange
	w.mu.Unlock()
	cb(watcher.Change{Source: src})
}

// eventLog collects observer events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

func (l *eventLog) has(kind EventKind) bool {
	for _, k := range l.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	reg     *Registry
	conv    *fakeConverter
	writer  *fileWriter
	opener  *fakeOpener
	events  *eventLog
	clock   *fakeClock
	watcher *fakeWatcher
	dir     string
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	h := &harness{
		conv:   &fakeConverter{},
		writer: &fileWriter{},
		opener: &fakeOpener{},
		events: &eventLog{},
		clock:  &fakeClock{t: time.Unix(1_700_000_000, 0)},
		dir:    t.TempDir(),
	}

	cfg := &Config{
		EchoWindow: time.Second,
		Observer:   h.events,
		Logger:     log.New(io.Discard, "", 0),
	}
	if mutate != nil {
		mutate(cfg)
	}

	h.reg = NewRegistry(cfg, h.conv, h.writer, h.opener)
	h.reg.now = h.clock.Now
	h.reg.newWatcher = func() (Watcher, error) {
		h.watcher = &fakeWatcher{}
		return h.watcher, nil
	}

	t.Cleanup(func() { _ = h.reg.Close() })
	return h
}

func (h *harness) path(name string) string {
	return filepath.Join(h.dir, name)
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	p := h.path(name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return p
}

func (h *harness) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(h.path(name))
	if err != nil {
		t.Fatalf("Failed to read %s: %v", name, err)
	}
	return string(data)
}

var errBoom = errors.New("boom")
