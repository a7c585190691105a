//go:build !unix && !windows

package durable

import "os"

func lockErr() error { return os.ErrPermission }
