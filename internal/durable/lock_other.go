//go:build !unix && !windows

package durable

import (
	"errors"
	"os"
)

// IsTransient reports whether err is a permission error, the closest
// portable signal of a locked file.
func IsTransient(err error) bool {
	return err != nil && errors.Is(err, os.ErrPermission)
}
