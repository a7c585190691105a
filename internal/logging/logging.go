// Package logging builds the component loggers. Output goes to stderr, or
// to a size-rotated file when a log file is configured.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/mdsync/mdsync/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Loggers hands out one prefixed *log.Logger per component, all writing to
// the same destination.
type Loggers struct {
	out    io.Writer
	closer io.Closer

	mu      sync.Mutex
	loggers map[string]*log.Logger
}

// New creates loggers for cfg. An empty cfg.File writes to stderr.
func New(cfg config.LogConfig) (*Loggers, error) {
	if cfg.File == "" {
		return NewWriter(os.Stderr), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	l := NewWriter(rotator)
	l.closer = rotator
	return l, nil
}

// NewWriter creates loggers writing to w.
func NewWriter(w io.Writer) *Loggers {
	return &Loggers{
		out:     w,
		loggers: make(map[string]*log.Logger),
	}
}

// Discard returns loggers that drop everything.
func Discard() *Loggers {
	return NewWriter(io.Discard)
}

// For returns the logger for component, prefixed "[component] ".
func (l *Loggers) For(component string) *log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lg, ok := l.loggers[component]; ok {
		return lg
	}
	lg := log.New(l.out, "["+component+"] ", log.LstdFlags)
	l.loggers[component] = lg
	return lg
}

// Writer returns the shared destination.
func (l *Loggers) Writer() io.Writer {
	return l.out
}

// Close closes the log file, if any.
func (l *Loggers) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
