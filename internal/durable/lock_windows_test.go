//go:build windows

package durable

import "golang.org/x/sys/windows"

func lockErr() error { return windows.ERROR_SHARING_VIOLATION }
