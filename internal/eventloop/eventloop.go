// Package eventloop delivers readiness and deadline notifications keyed by
// token. The dispatch loop owns one Poller and never blocks outside Poll.
package eventloop

import (
	"errors"
	"fmt"
	"time"
)

// Token identifies the owner of a registration.
type Token uint64

// Interest is the set of readiness conditions a registration waits for.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

func (i Interest) String() string {
	switch i {
	case Readable:
		return "readable"
	case Writable:
		return "writable"
	case Readable | Writable:
		return "readable|writable"
	default:
		return fmt.Sprintf("interest(%d)", uint8(i))
	}
}

// Kind is the type of a delivered event.
type Kind uint8

const (
	KindReadable Kind = iota + 1
	KindWritable
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindReadable:
		return "readable"
	case KindWritable:
		return "writable"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is a single notification for a token.
type Event struct {
	Token Token
	Kind  Kind
}

// Registry is the part of the poller that requests use to express interest.
type Registry interface {
	// Register sets the interest for fd under token, replacing any previous
	// registration held by the token.
	Register(fd int, interest Interest, token Token) error
	// Deregister removes the socket registration of token, if any.
	Deregister(token Token) error
	// SetDeadline arms (or re-arms) a timeout d from now for token.
	SetDeadline(token Token, d time.Duration)
	// CancelDeadline disarms the timeout of token, if any.
	CancelDeadline(token Token)
}

var (
	// ErrUnsupported is returned by NewPoller on platforms without epoll.
	ErrUnsupported = errors.New("eventloop: poller not supported on this platform")
	// ErrClosed is returned when using a closed poller.
	ErrClosed = errors.New("eventloop: poller closed")
)
