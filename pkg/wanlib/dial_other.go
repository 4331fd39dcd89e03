//go:build !linux

package wanlib

import "syscall"

func bindToDevice(string) (func(network, address string, c syscall.RawConn) error, error) {
	return nil, errDeviceBindingNotAllowed
}
