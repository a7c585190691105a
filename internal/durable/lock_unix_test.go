//go:build unix

package durable

import "golang.org/x/sys/unix"

func lockErr() error { return unix.EBUSY }
