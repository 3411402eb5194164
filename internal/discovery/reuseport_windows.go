//go:build windows

package discovery

import "golang.org/x/sys/windows"

// setReuseAddrPort mirrors the Unix SO_REUSEADDR/SO_REUSEPORT pairing;
// Windows only has SO_REUSEADDR, which is sufficient for a single mDNS
// listener per machine.
func setReuseAddrPort(fd uintptr) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
}
