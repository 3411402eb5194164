//go:build !windows

package discovery

import "golang.org/x/sys/unix"

// setReuseAddrPort allows multiple multishiva processes (or a quick
// restart) to rebind :5353 without waiting out TIME_WAIT.
func setReuseAddrPort(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}
