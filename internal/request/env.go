package request

import (
	"errors"
	"log/slog"
	"net/netip"
	"time"

	"github.com/jroosing/hydraproxy/internal/cache"
	"github.com/jroosing/hydraproxy/internal/eventloop"
)

var (
	// ErrSocketAlloc wraps failures to create or register an upstream socket.
	ErrSocketAlloc = errors.New("upstream socket allocation failed")
	// ErrUpstreamIO wraps send or receive errors on the upstream socket.
	ErrUpstreamIO = errors.New("upstream i/o error")
	// ErrTimeout is recorded when the upstream deadline fires.
	ErrTimeout = errors.New("upstream timeout")
	// ErrClientIO wraps failures to hand the response to the client socket.
	ErrClientIO = errors.New("client send failed")
	// ErrCanceled is recorded when a pending request is dropped on shutdown.
	ErrCanceled = errors.New("request canceled")
)

// DefaultRecvSize is the upstream receive buffer size when Env leaves it unset.
const DefaultRecvSize = 4096

// UpstreamConn is a non-blocking socket connected to the upstream resolver.
// Send and Recv return zero bytes and a nil error when they would block.
type UpstreamConn interface {
	Fd() int
	Send(b []byte) (int, error)
	Recv(b []byte) (int, error)
	Close() error
}

// Dialer allocates an upstream socket.
type Dialer func(upstream netip.AddrPort) (UpstreamConn, error)

// ClientSender sends a datagram back to a client.
type ClientSender interface {
	SendTo(b []byte, addr netip.AddrPort) (int, error)
}

// Observer receives per-request outcomes. Implementations must not block.
type Observer interface {
	CacheHit()
	CacheMiss()
	Forwarded()
	Answered(rtt time.Duration)
	Failed(err error)
}

type nopObserver struct{}

func (nopObserver) CacheHit()              {}
func (nopObserver) CacheMiss()             {}
func (nopObserver) Forwarded()             {}
func (nopObserver) Answered(time.Duration) {}
func (nopObserver) Failed(error)           {}

// Env is everything a Request needs from its surroundings. It is shared by
// all requests of one dispatch loop.
type Env struct {
	Registry eventloop.Registry
	Cache    *cache.AnswerCache
	Upstream netip.AddrPort
	Dial     Dialer
	Client   ClientSender
	Timeout  time.Duration
	RecvSize int
	Now      func() time.Time
	Logger   *slog.Logger
	Observer Observer
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Env) observer() Observer {
	if e.Observer != nil {
		return e.Observer
	}
	return nopObserver{}
}

func (e *Env) recvSize() int {
	if e.RecvSize > 0 {
		return e.RecvSize
	}
	return DefaultRecvSize
}
