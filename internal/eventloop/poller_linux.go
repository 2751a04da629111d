//go:build linux

package eventloop

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const maxEventsPerPoll = 256

// Poller multiplexes socket readiness with epoll and per-token deadlines.
// It is not safe for concurrent use.
type Poller struct {
	epfd      int
	fdToken   map[int32]Token
	tokenFd   map[Token]int32
	deadlines *Deadlines
	buf       []unix.EpollEvent
	closed    bool
}

var _ Registry = (*Poller)(nil)

// NewPoller creates an epoll instance. now may be nil.
func NewPoller(now func() time.Time) (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Poller{
		epfd:      epfd,
		fdToken:   map[int32]Token{},
		tokenFd:   map[Token]int32{},
		deadlines: NewDeadlines(now),
		buf:       make([]unix.EpollEvent, maxEventsPerPoll),
	}, nil
}

func epollMask(interest Interest) uint32 {
	var ev uint32
	if interest&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if interest&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Register implements Registry.
func (p *Poller) Register(fd int, interest Interest, token Token) error {
	if p.closed {
		return ErrClosed
	}
	fd32 := int32(fd) //nolint:gosec // file descriptors fit in int32
	if cur, ok := p.tokenFd[token]; ok && cur != fd32 {
		if err := p.Deregister(token); err != nil {
			return err
		}
	}
	ev := unix.EpollEvent{Events: epollMask(interest), Fd: fd32}
	op := unix.EPOLL_CTL_ADD
	if _, ok := p.tokenFd[token]; ok {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl fd %d: %w", fd, err)
	}
	p.tokenFd[token] = fd32
	p.fdToken[fd32] = token
	return nil
}

// Deregister implements Registry.
func (p *Poller) Deregister(token Token) error {
	fd, ok := p.tokenFd[token]
	if !ok {
		return nil
	}
	delete(p.tokenFd, token)
	delete(p.fdToken, fd)
	if p.closed {
		return nil
	}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	if err != nil && !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
		return fmt.Errorf("epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

// SetDeadline implements Registry.
func (p *Poller) SetDeadline(token Token, d time.Duration) { p.deadlines.Set(token, d) }

// CancelDeadline implements Registry.
func (p *Poller) CancelDeadline(token Token) { p.deadlines.Cancel(token) }

// Registered reports how many sockets and deadlines are armed.
func (p *Poller) Registered() (sockets, deadlines int) {
	return len(p.tokenFd), p.deadlines.Len()
}

// Poll waits up to timeout for readiness or a deadline and returns the
// events. Readiness events come first, then expired deadlines. An
// interrupted wait returns no events and no error.
func (p *Poller) Poll(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if next, ok := p.deadlines.Next(); ok && next < timeout {
		timeout = next
	}
	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}

	n, err := unix.EpollWait(p.epfd, p.buf, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}

	events := make([]Event, 0, n)
	for _, ev := range p.buf[:n] {
		token, ok := p.fdToken[ev.Fd]
		if !ok {
			continue
		}
		// Errors and hangups surface on the next read or write attempt.
		if ev.Events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			events = append(events, Event{Token: token, Kind: KindReadable})
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			events = append(events, Event{Token: token, Kind: KindWritable})
		}
	}
	return p.deadlines.Expire(events), nil
}

// Close releases the epoll instance.
func (p *Poller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}
