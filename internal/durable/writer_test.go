package durable

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// lockedFS fails writes to one path with a transient error a fixed number
// of times before letting them through.
type lockedFS struct {
	path     string
	failures int
	err      error
	calls    int
}

func (l *lockedFS) writeFile(name string, data []byte, perm os.FileMode) error {
	if name == l.path {
		l.calls++
		if l.failures < 0 || l.calls <= l.failures {
			return &os.PathError{Op: "open", Path: name, Err: l.err}
		}
	}
	return os.WriteFile(name, data, perm)
}

func newTestWriter(fs *lockedFS) (*Writer, *[]time.Duration) {
	w := NewWriter(&Config{Logger: log.New(io.Discard, "", 0)})
	var slept []time.Duration
	w.writeFile = fs.writeFile
	w.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return w, &slept
}

func TestWrite_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.docx")
	w := NewWriter(&Config{Logger: log.New(io.Discard, "", 0)})

	if err := w.Write(context.Background(), path, []byte("hello")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read back: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Expected %q, got %q", "hello", got)
	}
}

func TestWrite_RecoversFromTransientLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.docx")
	fs := &lockedFS{path: path, failures: 5, err: lockErr()}
	w, slept := newTestWriter(fs)

	if err := w.Write(context.Background(), path, []byte("v2")); err != nil {
		t.Fatalf("Write() should recover from a transient lock: %v", err)
	}

	if fs.calls != 6 {
		t.Errorf("Expected 6 attempts, got %d", fs.calls)
	}

	want := []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3000 * time.Millisecond,
	}
	if !reflect.DeepEqual(*slept, want) {
		t.Errorf("Expected backoff %v, got %v", want, *slept)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "v2" {
		t.Errorf("Expected canonical file to hold v2, got %q", got)
	}
	if _, err := os.Stat(path + PendingSuffix); !os.IsNotExist(err) {
		t.Error("No pending file should exist after a successful retry")
	}
}

func TestWrite_ExhaustedFallsBackToPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.docx")
	if err := os.WriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	fs := &lockedFS{path: path, failures: -1, err: lockErr()}
	w, slept := newTestWriter(fs)

	err := w.Write(context.Background(), path, []byte("intended"))
	if err == nil {
		t.Fatal("Write() should report a partial success")
	}
	if !errors.Is(err, ErrPending) {
		t.Fatalf("Expected ErrPending, got %v", err)
	}

	var pending *PendingError
	if !errors.As(err, &pending) {
		t.Fatalf("Expected *PendingError, got %T", err)
	}
	if pending.Attempts != 8 {
		t.Errorf("Expected 8 attempts, got %d", pending.Attempts)
	}
	if fs.calls != 8 {
		t.Errorf("Expected 8 writes to the destination, got %d", fs.calls)
	}
	if len(*slept) != 7 {
		t.Errorf("Expected 7 waits between 8 attempts, got %d", len(*slept))
	}

	data, err := os.ReadFile(pending.PendingPath)
	if err != nil {
		t.Fatalf("Pending file missing: %v", err)
	}
	if string(data) != "intended" {
		t.Errorf("Pending file should hold the intended bytes, got %q", data)
	}

	canonical, _ := os.ReadFile(path)
	if string(canonical) != "original" {
		t.Errorf("Canonical file should be unchanged, got %q", canonical)
	}
}

func TestWrite_NonTransientErrorNotRetried(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "note.docx")
	w, slept := newTestWriter(&lockedFS{})

	err := w.Write(context.Background(), path, []byte("x"))
	if err == nil {
		t.Fatal("Write() into a missing directory should fail")
	}
	if errors.Is(err, ErrPending) {
		t.Error("Non-transient errors must not produce a pending file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected wrapped ErrNotExist, got %v", err)
	}
	if len(*slept) != 0 {
		t.Errorf("Expected no retries, got %d waits", len(*slept))
	}
}

func TestWrite_ContextCancelledDuringBackoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.docx")
	fs := &lockedFS{path: path, failures: -1, err: lockErr()}
	w, _ := newTestWriter(fs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Write(ctx, path, []byte("x"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if fs.calls != 1 {
		t.Errorf("Expected a single attempt before cancellation, got %d", fs.calls)
	}
}

func TestBackoffSchedule(t *testing.T) {
	w := NewWriter(nil)
	want := []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3 * time.Second,
		3 * time.Second,
		3 * time.Second,
	}
	if got := w.Backoff(); !reflect.DeepEqual(got, want) {
		t.Errorf("Backoff() = %v, want %v", got, want)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil is not transient")
	}
	if !IsTransient(&os.PathError{Op: "open", Path: "x", Err: lockErr()}) {
		t.Error("lock error should be transient")
	}
	if IsTransient(os.ErrNotExist) {
		t.Error("ErrNotExist should not be transient")
	}
}
