// Package socket wraps non-blocking UDP sockets for the dispatch loop.
//
// Every call is attempted once. A would-block result is reported as zero
// bytes with a nil error so callers can stay in their current state.
package socket

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrUnsupported is returned on platforms without the required syscalls.
	ErrUnsupported = errors.New("socket: not supported on this platform")
	// ErrInvalidAddr is returned for addresses that cannot be used.
	ErrInvalidAddr = errors.New("socket: invalid address")
)

// ParseAddrPort parses "host:port" with a literal IP, defaulting the port
// to 53 when it is missing.
func ParseAddrPort(s string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap, nil
	}
	if a, err := netip.ParseAddr(s); err == nil {
		return netip.AddrPortFrom(a, 53), nil
	}
	return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrInvalidAddr, s)
}
