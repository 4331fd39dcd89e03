//go:build windows

package wanlib

import "syscall"

// native winsock codes, the syscall package only defines posix-style values
const (
	wsaenetdown     syscall.Errno = 10050
	wsaenetunreach  syscall.Errno = 10051
	wsaenetreset    syscall.Errno = 10052
	wsaeconnaborted syscall.Errno = 10053
	wsaeconnreset   syscall.Errno = 10054
	wsaetimedout    syscall.Errno = 10060
	wsaeconnrefused syscall.Errno = 10061
	wsaehostunreach syscall.Errno = 10065
)

func isRetryableErrno(errno syscall.Errno) bool {
	switch errno {
	case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED,
		syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH,
		syscall.EPIPE,
		wsaenetdown, wsaenetunreach, wsaenetreset, wsaeconnaborted,
		wsaeconnreset, wsaetimedout, wsaeconnrefused, wsaehostunreach:
		return true
	}
	return false
}
