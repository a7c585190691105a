package engine

import "errors"

var (
	// ErrNoPath is returned when a session request names neither file.
	ErrNoPath = errors.New("at least one of text path or rendered path is required")

	// ErrUnsupportedPath is returned for a file whose extension is neither
	// the text nor the rendered extension.
	ErrUnsupportedPath = errors.New("unsupported file type")

	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSourceUnreadable is returned when the file to convert from cannot
	// be read.
	ErrSourceUnreadable = errors.New("source file unreadable")

	// ErrConversion wraps converter failures.
	ErrConversion = errors.New("conversion failed")

	// ErrStopped is returned when operating on a stopped session.
	ErrStopped = errors.New("session stopped")
)

// IsNotFound reports whether err means the session does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
