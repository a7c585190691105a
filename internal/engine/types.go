package engine

import (
	"context"
	"time"

	"github.com/mdsync/mdsync/internal/opener"
	"github.com/mdsync/mdsync/internal/watcher"
)

// Side identifies one file of a pair.
type Side int

const (
	// SideText is the plain-text (Markdown) file.
	SideText Side = iota
	// SideRendered is the rendered (DOCX) file.
	SideRendered
)

// String returns a human-readable representation of the side.
func (s Side) String() string {
	switch s {
	case SideText:
		return "text"
	case SideRendered:
		return "rendered"
	default:
		return "unknown"
	}
}

// Watcher sources used for a session's files.
const (
	SourceText     watcher.Source = "text"
	SourceRendered watcher.Source = "rendered"
)

// Direction is the way a conversion runs.
type Direction int

const (
	// TextToRendered converts the text file into the rendered file.
	TextToRendered Direction = iota
	// RenderedToText converts the rendered file back into text.
	RenderedToText
)

// String returns a human-readable representation of the direction.
func (d Direction) String() string {
	switch d {
	case TextToRendered:
		return "text->rendered"
	case RenderedToText:
		return "rendered->text"
	default:
		return "unknown"
	}
}

// From is the side read by the conversion.
func (d Direction) From() Side {
	if d == RenderedToText {
		return SideRendered
	}
	return SideText
}

// To is the side written by the conversion.
func (d Direction) To() Side {
	if d == RenderedToText {
		return SideText
	}
	return SideRendered
}

// State is a session's lifecycle state.
type State string

const (
	StateSeeding  State = "seeding"
	StateWatching State = "watching"
	StateIdle     State = "idle"
	StateStopped  State = "stopped"
)

// Converter transforms document content in one direction at a time.
// Implementations must be deterministic; round trips may lose formatting.
type Converter interface {
	ToRendered(ctx context.Context, text []byte) ([]byte, error)
	ToText(ctx context.Context, rendered []byte) ([]byte, error)
}

// Writer persists converted output.
type Writer interface {
	Write(ctx context.Context, path string, data []byte) error
}

// Opener shows the rendered document to the user.
type Opener interface {
	Open(ctx context.Context, path string, preferPrimary bool) (opener.Result, error)
}

// Watcher is the subset of *watcher.FileWatcher a session uses.
type Watcher interface {
	Watch(targets []watcher.Target, onChange func(watcher.Change)) error
	Close() error
}

// Options describe a session request. Use DefaultOptions for the defaults.
type Options struct {
	TextPath     string
	RenderedPath string

	// Bidirectional propagates rendered-file changes back to the text file.
	Bidirectional bool
	// Watch arms a file watcher after start.
	Watch bool
	// OpenRendered opens the rendered document once the session starts.
	OpenRendered bool
	// PreferPrimaryApp favors Microsoft Word when opening.
	PreferPrimaryApp bool
}

// DefaultOptions returns options with every switch enabled.
func DefaultOptions() Options {
	return Options{
		Bidirectional:    true,
		Watch:            true,
		OpenRendered:     true,
		PreferPrimaryApp: true,
	}
}

// Status is a point-in-time snapshot of a session.
type Status struct {
	ID           string `json:"id" yaml:"id"`
	TextPath     string `json:"textPath,omitempty" yaml:"text_path,omitempty"`
	RenderedPath string `json:"renderedPath,omitempty" yaml:"rendered_path,omitempty"`

	// Active is true while a watcher is armed.
	Active bool `json:"active" yaml:"active"`

	// LastSyncAt is the epoch-millisecond time of the last completed
	// conversion, nil before the first one.
	LastSyncAt *int64 `json:"lastSyncAt,omitempty" yaml:"last_sync_at,omitempty"`

	State         State  `json:"state" yaml:"state"`
	Bidirectional bool   `json:"bidirectional" yaml:"bidirectional"`
	LastError     string `json:"lastError,omitempty" yaml:"last_error,omitempty"`
}

// LastSync returns LastSyncAt as a time, zero if unset.
func (s Status) LastSync() time.Time {
	if s.LastSyncAt == nil {
		return time.Time{}
	}
	return time.UnixMilli(*s.LastSyncAt)
}
