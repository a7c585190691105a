package durable

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

// PendingSuffix is appended to the destination path when retries are exhausted.
const PendingSuffix = ".pending"

// ErrPending is matched by errors.Is for a write that landed in the
// ".pending" sibling instead of its destination.
var ErrPending = errors.New("destination locked, data saved to pending file")

// PendingError reports a write that could only be persisted to the
// fallback path.
type PendingError struct {
	// Path is the destination that could not be written.
	Path string
	// PendingPath is where the data was saved instead.
	PendingPath string
	// Attempts is how many times the destination write was tried.
	Attempts int
	// Err is the last transient error seen on the destination.
	Err error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("write %s failed after %d attempts (%v); data saved to %s",
		e.Path, e.Attempts, e.Err, e.PendingPath)
}

// Is makes errors.Is(err, ErrPending) true for a *PendingError.
func (e *PendingError) Is(target error) bool {
	return target == ErrPending
}

func (e *PendingError) Unwrap() error {
	return e.Err
}

// Config controls retry behavior.
type Config struct {
	// MaxAttempts is the total number of write attempts (default: 8)
	MaxAttempts int

	// InitialDelay is the wait after the first failed attempt (default: 200ms)
	InitialDelay time.Duration

	// MaxDelay caps each individual wait (default: 3s)
	MaxDelay time.Duration

	// FileMode is used when creating files (default: 0644)
	FileMode os.FileMode

	// Logger for retry activity
	Logger *log.Logger
}

// DefaultConfig returns the retry schedule 200ms, 400ms, ... capped at 3s,
// over 8 attempts.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  8,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     3 * time.Second,
		FileMode:     0644,
		Logger:       log.New(os.Stderr, "[durable] ", log.LstdFlags),
	}
}

// Writer persists data to files that may be transiently locked.
// A Writer is safe for concurrent use.
type Writer struct {
	config *Config

	writeFile func(name string, data []byte, perm os.FileMode) error
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewWriter creates a Writer. A nil config uses DefaultConfig.
func NewWriter(config *Config) *Writer {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.FileMode == 0 {
		config.FileMode = defaults.FileMode
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Writer{
		config:    config,
		writeFile: os.WriteFile,
		sleep:     sleepContext,
	}
}

// Write stores data at path.
//
// Transient lock errors are retried; other errors are returned as is. If the
// destination stays locked through every attempt, data is written to
// path+".pending" and a *PendingError is returned. If even the pending file
// cannot be written, that error is returned instead.
func (w *Writer) Write(ctx context.Context, path string, data []byte) error {
	delay := w.config.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= w.config.MaxAttempts; attempt++ {
		err := w.writeFile(path, data, w.config.FileMode)
		if err == nil {
			if attempt > 1 {
				w.config.Logger.Printf("Wrote %s on attempt %d", path, attempt)
			}
			return nil
		}
		if !IsTransient(err) {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}

		lastErr = err
		if attempt == w.config.MaxAttempts {
			break
		}

		w.config.Logger.Printf("%s is locked (attempt %d/%d), retrying in %v: %v",
			path, attempt, w.config.MaxAttempts, delay, err)
		if err := w.sleep(ctx, delay); err != nil {
			return fmt.Errorf("write %s interrupted: %w", path, err)
		}

		delay *= 2
		if delay > w.config.MaxDelay {
			delay = w.config.MaxDelay
		}
	}

	pendingPath := path + PendingSuffix
	if err := w.writeFile(pendingPath, data, w.config.FileMode); err != nil {
		return fmt.Errorf("failed to write pending file %s: %w", pendingPath, err)
	}

	w.config.Logger.Printf("Gave up on %s after %d attempts, saved %s", path, w.config.MaxAttempts, pendingPath)
	return &PendingError{
		Path:        path,
		PendingPath: pendingPath,
		Attempts:    w.config.MaxAttempts,
		Err:         lastErr,
	}
}

// Backoff returns the waits Write performs between attempts when every
// attempt fails.
func (w *Writer) Backoff() []time.Duration {
	waits := make([]time.Duration, 0, w.config.MaxAttempts-1)
	delay := w.config.InitialDelay
	for i := 1; i < w.config.MaxAttempts; i++ {
		waits = append(waits, delay)
		delay *= 2
		if delay > w.config.MaxDelay {
			delay = w.config.MaxDelay
		}
	}
	return waits
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
