package engine

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mdsync/mdsync/internal/convert"
	"github.com/mdsync/mdsync/internal/durable"
	"github.com/mdsync/mdsync/internal/watcher"
)

func TestNewRegistry_Defaults(t *testing.T) {
	reg := NewRegistry(nil, &fakeConverter{}, &fileWriter{}, nil)

	if reg.config.EchoWindow != time.Second {
		t.Errorf("Expected 1s echo window, got %v", reg.config.EchoWindow)
	}
	if reg.config.TextExt != ".md" || reg.config.RenderedExt != ".docx" {
		t.Errorf("Unexpected extensions %q/%q", reg.config.TextExt, reg.config.RenderedExt)
	}
	if reg.Len() != 0 {
		t.Error("New registry should be empty")
	}
}

func TestNewRegistry_EchoWindowCoversStability(t *testing.T) {
	tests := []struct {
		name      string
		window    time.Duration
		stability time.Duration
		want      time.Duration
	}{
		{"window already wide", time.Second, 500 * time.Millisecond, time.Second},
		{"window shorter than stability", time.Second, 1200 * time.Millisecond, 1200*time.Millisecond + EchoMargin},
		{"window equal to stability", 300 * time.Millisecond, 300 * time.Millisecond, 300*time.Millisecond + EchoMargin},
		{"default stability", 100 * time.Millisecond, 0, 500*time.Millisecond + EchoMargin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(&Config{
				EchoWindow: tt.window,
				Watcher:    &watcher.Config{Stability: tt.stability},
				Logger:     log.New(io.Discard, "", 0),
			}, &fakeConverter{}, &fileWriter{}, nil)

			if got := reg.config.EchoWindow; got != tt.want {
				t.Errorf("EchoWindow = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistry_StatusUnknown(t *testing.T) {
	h := newHarness(t, nil)

	if _, ok := h.reg.Status("01ARZ3NDEKTSV4RRFFQ69G5FAV"); ok {
		t.Error("Status() of unknown id should report not found")
	}
	if err := h.reg.Stop("nope"); !IsNotFound(err) {
		t.Errorf("Stop() of unknown id should be not found, got %v", err)
	}
}

func TestRegistry_StatusAll(t *testing.T) {
	h := newHarness(t, nil)
	h.write(t, "one.md", "1")
	h.write(t, "two.md", "2")

	ids := make(map[string]bool)
	for _, name := range []string{"one.md", "two.md"} {
		opts := DefaultOptions()
		opts.TextPath = h.path(name)
		opts.Watch = false
		opts.OpenRendered = false

		id, err := h.reg.CreateAndStart(context.Background(), opts)
		if err != nil {
			t.Fatalf("CreateAndStart(%s) failed: %v", name, err)
		}
		ids[id] = true
	}

	if len(ids) != 2 {
		t.Fatalf("Expected 2 distinct ids, got %v", ids)
	}

	all := h.reg.StatusAll()
	if len(all) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(all))
	}
	if all[0].ID >= all[1].ID {
		t.Error("StatusAll() should be ordered by id")
	}
	for _, st := range all {
		if !ids[st.ID] {
			t.Errorf("Unexpected session %s", st.ID)
		}
	}
}

func TestRegistry_CloseStopsAll(t *testing.T) {
	h := newHarness(t, nil)
	s := startBoth(t, h, nil)

	if err := h.reg.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if h.reg.Len() != 0 {
		t.Error("Close() should empty the registry")
	}
	if s.Status().State != StateStopped {
		t.Error("Close() should stop every session")
	}
	if !h.watcher.closed {
		t.Error("Close() should release watchers")
	}
}

func TestStatusJSONShape(t *testing.T) {
	h := newHarness(t, nil)
	s := startBoth(t, h, func(o *Options) { o.Watch = false })

	st := s.Status()
	if !st.LastSync().IsZero() {
		t.Error("LastSync() should be zero before any sync")
	}

	if err := s.Sync(context.Background(), TextToRendered); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	st = s.Status()
	if got := st.LastSync(); !got.Equal(h.clock.Now().Truncate(time.Millisecond)) {
		t.Errorf("LastSync() = %v, want %v", got, h.clock.Now())
	}
}

// countingConverter wraps the real converter and counts calls.
type countingConverter struct {
	inner    Converter
	mu       sync.Mutex
	toRender int
	toText   int
}

func (c *countingConverter) ToRendered(ctx context.Context, text []byte) ([]byte, error) {
	c.mu.Lock()
	c.toRender++
	c.mu.Unlock()
	return c.inner.ToRendered(ctx, text)
}

func (c *countingConverter) ToText(ctx context.Context, rendered []byte) ([]byte, error) {
	c.mu.Lock()
	c.toText++
	c.mu.Unlock()
	return c.inner.ToText(ctx, rendered)
}

func (c *countingConverter) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toRender, c.toText
}

func TestRegistry_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watch test in short mode")
	}

	tests := []struct {
		name      string
		window    time.Duration
		stability time.Duration
	}{
		{"window wider than stability", time.Second, 50 * time.Millisecond},
		{"window shorter than stability", 100 * time.Millisecond, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runEndToEnd(t, tt.window, tt.stability)
		})
	}
}

func runEndToEnd(t *testing.T, window, stability time.Duration) {
	dir := t.TempDir()
	mdPath := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(mdPath, []byte("# Notes\n\nfirst\n"), 0644); err != nil {
		t.Fatal(err)
	}

	quiet := log.New(io.Discard, "", 0)
	conv := &countingConverter{inner: convert.New()}
	writer := durable.NewWriter(&durable.Config{Logger: quiet})
	reg := NewRegistry(&Config{
		EchoWindow: window,
		Watcher: &watcher.Config{
			Debounce:  100 * time.Millisecond,
			Stability: stability,
			Logger:    quiet,
		},
		Logger: quiet,
	}, conv, writer, nil)
	defer reg.Close()

	opts := DefaultOptions()
	opts.TextPath = mdPath
	opts.OpenRendered = false

	id, err := reg.CreateAndStart(context.Background(), opts)
	if err != nil {
		t.Fatalf("CreateAndStart() failed: %v", err)
	}
	if toRender, _ := conv.counts(); toRender != 1 {
		t.Fatalf("Expected seeding conversion, got %d", toRender)
	}

	// Let the seed settle before editing
	time.Sleep(stability + 150*time.Millisecond)
	if err := os.WriteFile(mdPath, []byte("# Notes\n\nsecond\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if toRender, _ := conv.counts(); toRender >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for text change to be synced")
		case <-time.After(20 * time.Millisecond):
		}
	}

	// Give the echo of the rendered write time to arrive and be dropped
	time.Sleep(2*stability + 400*time.Millisecond)

	toRender, toText := conv.counts()
	if toRender != 2 || toText != 0 {
		t.Errorf("Expected exactly one hop per edit (2/0), got %d/%d", toRender, toText)
	}

	st, _ := reg.Status(id)
	data, err := os.ReadFile(st.RenderedPath)
	if err != nil {
		t.Fatalf("Failed to read rendered file: %v", err)
	}
	back, err := convert.New().ToText(context.Background(), data)
	if err != nil {
		t.Fatalf("Rendered file is not readable: %v", err)
	}
	if !strings.Contains(string(back), "second") {
		t.Errorf("Rendered file does not contain the edit: %q", back)
	}
}
