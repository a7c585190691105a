//go:build unix

package durable

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsTransient reports whether err looks like another process holding the
// file: EBUSY, EACCES or EPERM.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, unix.EBUSY) ||
		errors.Is(err, unix.EACCES) ||
		errors.Is(err, unix.EPERM) ||
		errors.Is(err, unix.ETXTBSY)
}
