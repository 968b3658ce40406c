//go:build windows

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// setSocketOptions configures platform-specific socket options for Windows.
// Only SO_REUSEADDR is set: Windows has no SO_REUSEPORT, but its
// SO_REUSEADDR already allows multiple processes to bind the same port,
// unlike POSIX where SO_REUSEADDR only covers TIME_WAIT sockets.
func setSocketOptions(fd uintptr) error {
	if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}
	return nil
}

// platformControl is the net.ListenConfig.Control function used on Windows.
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
