package wire

import (
	"fmt"
	"net"
)

// Listen binds TCP on port, preferring the dual-stack wildcard address and
// falling back to IPv4-only when the platform or network stack refuses it
// (common in IPv6-disabled container environments).
func Listen(port int) (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("[::]:%d", port))
	if err == nil {
		return ln, nil
	}
	ln, err2 := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err2 != nil {
		return nil, fmt.Errorf("wire: listen on port %d failed for both dual-stack and IPv4-only: %v / %v", port, err, err2)
	}
	return ln, nil
}
