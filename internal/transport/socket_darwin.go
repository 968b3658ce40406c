//go:build darwin

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSocketOptions configures platform-specific socket options for macOS.
// Sets SO_REUSEADDR and SO_REUSEPORT to enable coexistence with Bonjour
// (mDNSResponder), which also binds port 5353.
func setSocketOptions(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEPORT: %w", err)
	}
	return nil
}

// platformControl is the net.ListenConfig.Control function used on macOS.
func platformControl(_, _ string, c syscall.RawConn) error {
	var sockoptErr error
	err := c.Control(func(fd uintptr) {
		sockoptErr = setSocketOptions(fd)
	})
	if err != nil {
		return fmt.Errorf("raw conn control failed: %w", err)
	}
	return sockoptErr
}

// PlatformControl returns the platform-specific control function for
// net.ListenConfig, used by transceiver.New when binding its shared IPv4
// and IPv6 sockets.
func PlatformControl(network, address string, c syscall.RawConn) error {
	return platformControl(network, address, c)
}
