// Package congestion selects the TCP congestion control algorithm used by
// the server's sockets.
package congestion

import (
	"errors"
	"syscall"
)

// ErrNoSupport is returned on platforms where the algorithm cannot be set.
var ErrNoSupport = errors.New("setting the congestion control is not supported on this platform")

// Control returns a net.ListenConfig Control function setting cc on every
// socket. An empty cc leaves the kernel default in place.
func Control(cc string) func(network, address string, c syscall.RawConn) error {
	if cc == "" {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			serr = set(fd, cc)
		})
		if err != nil {
			return err
		}
		return serr
	}
}
