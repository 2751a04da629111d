//go:build !linux

package socket

import "net/netip"

// UDPConn is unavailable on this platform.
type UDPConn struct{}

func ListenUDP(netip.AddrPort) (*UDPConn, error) { return nil, ErrUnsupported }
func DialUDP(netip.AddrPort) (*UDPConn, error)   { return nil, ErrUnsupported }

func (*UDPConn) Fd() int                                    { return -1 }
func (*UDPConn) LocalAddr() (netip.AddrPort, error)         { return netip.AddrPort{}, ErrUnsupported }
func (*UDPConn) Send([]byte) (int, error)                   { return 0, ErrUnsupported }
func (*UDPConn) Recv([]byte) (int, error)                   { return 0, ErrUnsupported }
func (*UDPConn) SendTo([]byte, netip.AddrPort) (int, error) { return 0, ErrUnsupported }
func (*UDPConn) RecvFrom([]byte) (int, netip.AddrPort, error) {
	return 0, netip.AddrPort{}, ErrUnsupported
}
func (*UDPConn) Close() error { return nil }
