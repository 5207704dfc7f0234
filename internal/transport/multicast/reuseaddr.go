package multicast

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePortControl sets SO_REUSEADDR and SO_REUSEPORT on the listening
// socket before bind, so a receiver restart or multiple local receivers
// sharing one group port don't collide with TIME_WAIT or a single-owner
// bind.
func reusePortControl(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
			ctrlErr = e
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
			ctrlErr = e
		}
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
