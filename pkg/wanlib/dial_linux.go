//go:build linux

package wanlib

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func bindToDevice(device string) (func(network, address string, c syscall.RawConn) error, error) {
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		if err := c.Control(func(fd uintptr) {
			serr = unix.BindToDevice(int(fd), device)
		}); err != nil {
			return err
		}
		return serr
	}, nil
}
