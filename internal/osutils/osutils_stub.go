//go:build !windows

// Package osutils provides small platform-privilege helpers: checking
// whether the process runs elevated, and opening the firewall on platforms
// that need an explicit inbound rule for the listen port.
package osutils

import "log"

// IsAdmin is a stub for non-Windows platforms; Unix firewalls (ufw,
// firewalld, pf) are not managed automatically.
func IsAdmin() bool {
	return false
}

// EnsureFirewallRule is a no-op outside Windows.
func EnsureFirewallRule(port int) error {
	log.Println("firewall: automatic rule management is only implemented on Windows")
	return nil
}
