//go:build windows

package durable

import (
	"errors"

	"golang.org/x/sys/windows"
)

// IsTransient reports whether err looks like another process holding the
// file open, as Word does with the document it is editing.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) ||
		errors.Is(err, windows.ERROR_LOCK_VIOLATION) ||
		errors.Is(err, windows.ERROR_ACCESS_DENIED) ||
		errors.Is(err, windows.ERROR_BUSY)
}
