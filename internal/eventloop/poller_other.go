//go:build !linux

package eventloop

import "time"

// Poller is unavailable on this platform.
type Poller struct{}

var _ Registry = (*Poller)(nil)

// NewPoller always fails with ErrUnsupported.
func NewPoller(func() time.Time) (*Poller, error) { return nil, ErrUnsupported }

func (*Poller) Register(int, Interest, Token) error { return ErrUnsupported }
func (*Poller) Deregister(Token) error              { return ErrUnsupported }
func (*Poller) SetDeadline(Token, time.Duration)    {}
func (*Poller) CancelDeadline(Token)                {}
func (*Poller) Registered() (int, int)              { return 0, 0 }

func (*Poller) Poll(time.Duration) ([]Event, error) { return nil, ErrUnsupported }
func (*Poller) Close() error                        { return nil }
