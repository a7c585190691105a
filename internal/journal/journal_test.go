package journal

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdsync/mdsync/internal/engine"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpen_CreatesSchema(t *testing.T) {
	j := openTest(t)

	var count int
	err := j.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='events'`).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query schema: %v", err)
	}
	if count != 1 {
		t.Error("events table does not exist")
	}

	if err := j.InitSchema(context.Background()); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")
	j, err := Open(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer j.Close()

	if j.Path() != path {
		t.Errorf("Path() = %q, want %q", j.Path(), path)
	}
}

func TestRecordAndQuery(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	events := []engine.Event{
		{SessionID: "A", Kind: engine.EventStarted, At: base},
		{SessionID: "A", Kind: engine.EventConverted, Direction: "text->rendered", Source: "/a.md", Target: "/a.docx", At: base.Add(time.Second)},
		{SessionID: "B", Kind: engine.EventStarted, At: base.Add(2 * time.Second)},
		{SessionID: "A", Kind: engine.EventConversionFailed, Detail: "boom", At: base.Add(3 * time.Second)},
	}
	for _, e := range events {
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"session", Filter{SessionID: "A"}, 3},
		{"since", Filter{Since: base.Add(1500 * time.Millisecond)}, 2},
		{"kinds", Filter{Kinds: []engine.EventKind{engine.EventStarted, engine.EventConversionFailed}}, 3},
		{"limit", Filter{Limit: 1}, 1},
		{"session and since", Filter{SessionID: "A", Since: base.Add(500 * time.Millisecond)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Query() returned %d events, want %d", len(got), tt.want)
			}
		})
	}

	latest, err := j.Query(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(latest) != 2 || latest[0].SessionID != "B" || latest[1].Kind != engine.EventConversionFailed {
		t.Errorf("Limit should keep the newest events in order, got %+v", latest)
	}

	got, err := j.Query(ctx, Filter{SessionID: "A"})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	second := got[1]
	if second.Kind != engine.EventConverted || second.Direction != "text->rendered" ||
		second.Source != "/a.md" || second.Target != "/a.docx" {
		t.Errorf("Event fields not preserved: %+v", second)
	}
	if !second.At.Equal(base.Add(time.Second)) {
		t.Errorf("At = %v, want %v", second.At, base.Add(time.Second))
	}
	if got[0].At.After(got[1].At) || got[1].At.After(got[2].At) {
		t.Error("Query() should return events oldest first")
	}
}

func TestObserve_WritesInBackground(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	var obs engine.Observer = j
	for i := 0; i < 10; i++ {
		obs.Observe(engine.Event{SessionID: "S", Kind: engine.EventConverted, At: time.Now()})
	}

	// Close drains the queue
	if err := j.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	obs.Observe(engine.Event{SessionID: "S", Kind: engine.EventConverted})

	j, err = Open(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer j.Close()

	n, err := j.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 10 {
		t.Errorf("Expected 10 persisted events, got %d", n)
	}
	if j.Dropped() != 0 {
		t.Errorf("Expected no dropped events, got %d", j.Dropped())
	}
}

func TestPrune(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	now := time.Now()

	for _, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Hour), now} {
		if err := j.Record(ctx, engine.Event{SessionID: "S", Kind: engine.EventConverted, At: at}); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	removed, err := j.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 pruned event, got %d", removed)
	}
	if n, _ := j.Count(ctx); n != 2 {
		t.Errorf("Expected 2 remaining events, got %d", n)
	}
}

func TestCloseIdempotent(t *testing.T) {
	j := openTest(t)
	if err := j.Close(); err != nil {
		t.Fatalf("First Close() failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("Second Close() should be a no-op, got %v", err)
	}
}
