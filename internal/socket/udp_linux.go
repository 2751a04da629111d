//go:build linux

package socket

import (
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// UDPConn is a non-blocking UDP socket.
type UDPConn struct {
	fd     int
	family int
}

func family(a netip.Addr) int {
	if a.Is4() || a.Is4In6() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

func newSocket(a netip.Addr) (*UDPConn, error) {
	fam := family(a)
	fd, err := unix.Socket(fam, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	return &UDPConn{fd: fd, family: fam}, nil
}

// ListenUDP binds a non-blocking socket to addr.
func ListenUDP(addr netip.AddrPort) (*UDPConn, error) {
	if !addr.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddr, addr)
	}
	c, err := newSocket(addr.Addr())
	if err != nil {
		return nil, err
	}
	_ = unix.SetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if c.family == unix.AF_INET6 {
		// Accept IPv4 clients as mapped addresses on wildcard listeners.
		_ = unix.SetsockoptInt(c.fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	}
	if err := unix.Bind(c.fd, toSockaddr(c.family, addr)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return c, nil
}

// DialUDP creates a non-blocking socket connected to remote. Datagrams
// from other sources are filtered by the kernel.
func DialUDP(remote netip.AddrPort) (*UDPConn, error) {
	if !remote.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddr, remote)
	}
	c, err := newSocket(remote.Addr())
	if err != nil {
		return nil, err
	}
	if err := unix.Connect(c.fd, toSockaddr(c.family, remote)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("connect %s: %w", remote, err)
	}
	return c, nil
}

// Fd returns the file descriptor for event registration.
func (c *UDPConn) Fd() int { return c.fd }

// LocalAddr returns the bound address.
func (c *UDPConn) LocalAddr() (netip.AddrPort, error) {
	sa, err := unix.Getsockname(c.fd)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("getsockname: %w", err)
	}
	return fromSockaddr(sa), nil
}

// Send writes b to the connected peer.
func (c *UDPConn) Send(b []byte) (int, error) {
	n, err := unix.Write(c.fd, b)
	return result(n, err)
}

// Recv reads one datagram from the connected peer.
func (c *UDPConn) Recv(b []byte) (int, error) {
	n, err := unix.Read(c.fd, b)
	return result(n, err)
}

// SendTo writes b to addr.
func (c *UDPConn) SendTo(b []byte, addr netip.AddrPort) (int, error) {
	if err := unix.Sendto(c.fd, b, 0, toSockaddr(c.family, addr)); err != nil {
		return result(0, err)
	}
	return len(b), nil
}

// RecvFrom reads one datagram and its source. A would-block read returns
// zero bytes and an invalid address.
func (c *UDPConn) RecvFrom(b []byte) (int, netip.AddrPort, error) {
	n, sa, err := unix.Recvfrom(c.fd, b, 0)
	if err != nil {
		n, err = result(0, err)
		return n, netip.AddrPort{}, err
	}
	return n, fromSockaddr(sa), nil
}

// Close closes the socket.
func (c *UDPConn) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}

func result(n int, err error) (int, error) {
	if err == nil {
		return n, nil
	}
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
		return 0, nil
	}
	return 0, err
}

// toSockaddr builds a socket address for a socket of the given family.
// IPv4 peers of an AF_INET6 socket are addressed in their mapped form.
func toSockaddr(fam int, ap netip.AddrPort) unix.Sockaddr {
	a := ap.Addr()
	if fam == unix.AF_INET {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: a.Unmap().As4()}
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: a.As16()}
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)) //nolint:gosec // ports fit in uint16
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr).Unmap(), uint16(sa.Port)) //nolint:gosec // ports fit in uint16
	default:
		return netip.AddrPort{}
	}
}
