//go:build linux

package socket_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/jroosing/hydraproxy/internal/socket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (*socket.UDPConn, netip.AddrPort) {
	t.Helper()
	c, err := socket.ListenUDP(netip.MustParseAddrPort("127.0.0.1:0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	addr, err := c.LocalAddr()
	require.NoError(t, err)
	return c, addr
}

// recvEventually retries a non-blocking read until data arrives.
func recvEventually(t *testing.T, fn func() (int, error)) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := fn()
		require.NoError(t, err)
		if n > 0 {
			return n
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no datagram received")
	return 0
}

func TestUDP_WouldBlockIsZero(t *testing.T) {
	srv, _ := listen(t)
	buf := make([]byte, 64)

	n, from, err := srv.RecvFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, from.IsValid())
}

func TestUDP_DialSendRecv(t *testing.T) {
	srv, srvAddr := listen(t)

	cli, err := socket.DialUDP(srvAddr)
	require.NoError(t, err)
	defer cli.Close()
	assert.Positive(t, cli.Fd())

	n, err := cli.Send([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 64)
	var from netip.AddrPort
	got := recvEventually(t, func() (int, error) {
		n, a, err := srv.RecvFrom(buf)
		from = a
		return n, err
	})
	assert.Equal(t, "hello", string(buf[:got]))

	cliAddr, err := cli.LocalAddr()
	require.NoError(t, err)
	assert.Equal(t, cliAddr, from)

	_, err = srv.SendTo([]byte("world"), from)
	require.NoError(t, err)
	got = recvEventually(t, func() (int, error) { return cli.Recv(buf) })
	assert.Equal(t, "world", string(buf[:got]))
}

func TestUDP_CloseTwice(t *testing.T) {
	c, err := socket.ListenUDP(netip.MustParseAddrPort("127.0.0.1:0"))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestParseAddrPort(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "8.8.8.8:53", want: "8.8.8.8:53"},
		{in: "1.1.1.1", want: "1.1.1.1:53"},
		{in: "[2001:db8::1]:5353", want: "[2001:db8::1]:5353"},
		{in: "::1", want: "[::1]:53"},
		{in: "dns.google:53", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := socket.ParseAddrPort(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, socket.ErrInvalidAddr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestUDP_DualStackListenerRepliesToIPv4(t *testing.T) {
	srv, err := socket.ListenUDP(netip.MustParseAddrPort("[::]:0"))
	if err != nil {
		t.Skipf("IPv6 unavailable: %v", err)
	}
	defer srv.Close()
	srvAddr, err := srv.LocalAddr()
	require.NoError(t, err)

	cli, err := socket.DialUDP(netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), srvAddr.Port()))
	require.NoError(t, err)
	defer cli.Close()
	_, err = cli.Send([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	var from netip.AddrPort
	recvEventually(t, func() (int, error) {
		n, a, err := srv.RecvFrom(buf)
		from = a
		return n, err
	})
	assert.True(t, from.Addr().Is4(), "client address is unmapped")

	_, err = srv.SendTo([]byte("pong"), from)
	require.NoError(t, err)
	got := recvEventually(t, func() (int, error) { return cli.Recv(buf) })
	assert.Equal(t, "pong", string(buf[:got]))
}
