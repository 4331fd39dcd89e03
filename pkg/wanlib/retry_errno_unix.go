//go:build !windows

package wanlib

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func isRetryableErrno(errno syscall.Errno) bool {
	switch errno {
	case unix.ECONNRESET, unix.ECONNREFUSED, unix.ECONNABORTED,
		unix.ETIMEDOUT, unix.ENETUNREACH, unix.EHOSTUNREACH,
		unix.ENETDOWN, unix.EPIPE:
		return true
	}
	return false
}
