// Package server runs the caching forwarding proxy: a single-threaded
// dispatch loop over one UDP listener, plus the runner that starts it
// alongside the outer services.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/jroosing/hydraproxy/internal/cache"
	"github.com/jroosing/hydraproxy/internal/database"
	"github.com/jroosing/hydraproxy/internal/dns"
	"github.com/jroosing/hydraproxy/internal/eventloop"
	"github.com/jroosing/hydraproxy/internal/metrics"
	"github.com/jroosing/hydraproxy/internal/pool"
	"github.com/jroosing/hydraproxy/internal/request"
	"github.com/jroosing/hydraproxy/internal/socket"
)

// listenerToken is reserved for the client-facing socket.
const listenerToken eventloop.Token = 0

// maxReadsPerEvent bounds how many datagrams one listener event drains so
// in-flight requests are not starved under load.
const maxReadsPerEvent = 64

// Recorder receives one entry per finished request. Record must not block.
type Recorder interface {
	Record(e database.QueryEntry) bool
}

// ProxyOptions configures a Proxy.
type ProxyOptions struct {
	Listen          netip.AddrPort
	Upstream        netip.AddrPort
	Timeout         time.Duration // upstream deadline per request
	MaxRequests     int           // request table capacity
	ServfailOnError bool          // reply SERVFAIL when a request fails
	PollInterval    time.Duration // max wait per poll, bounds shutdown latency
	RecvSize        int           // upstream receive buffer size

	Logger   *slog.Logger
	Stats    *Stats
	Metrics  *metrics.Metrics // optional
	QueryLog Recorder         // optional
	Cache    *cache.AnswerCache
	Now      func() time.Time
}

// Proxy owns the listener, the poller, the request table and the cache.
// Run must be called from a single goroutine.
type Proxy struct {
	opts     ProxyOptions
	logger   *slog.Logger
	poller   *eventloop.Poller
	poll     func(time.Duration) ([]eventloop.Event, error)
	listener *socket.UDPConn
	addr     netip.AddrPort
	env      *request.Env
	obs      observer
	bufs     *pool.Pool[*[]byte]

	requests  map[eventloop.Token]*request.Request
	nextToken eventloop.Token
	pending   []eventloop.Event
	evictions uint64
	closed    bool
}

// NewProxy binds the listener and registers it with a new poller.
func NewProxy(opts ProxyOptions) (*Proxy, error) {
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = 4096
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Stats == nil {
		opts.Stats = NewStats()
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(cache.WithClock(opts.Now))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	poller, err := eventloop.NewPoller(opts.Now)
	if err != nil {
		return nil, err
	}
	listener, err := socket.ListenUDP(opts.Listen)
	if err != nil {
		_ = poller.Close()
		return nil, fmt.Errorf("listen %s: %w", opts.Listen, err)
	}
	addr, err := listener.LocalAddr()
	if err != nil {
		_ = listener.Close()
		_ = poller.Close()
		return nil, err
	}
	if err := poller.Register(listener.Fd(), eventloop.Readable, listenerToken); err != nil {
		_ = listener.Close()
		_ = poller.Close()
		return nil, err
	}

	p := &Proxy{
		opts:      opts,
		logger:    logger,
		poller:    poller,
		listener:  listener,
		addr:      addr,
		bufs:      pool.NewBuffers(dns.MaxIncomingDNSMessageSize + 1),
		requests:  make(map[eventloop.Token]*request.Request),
		nextToken: listenerToken + 1,
		obs:       observer{stats: opts.Stats, metrics: opts.Metrics},
	}
	p.poll = poller.Poll
	p.env = &request.Env{
		Registry: poller,
		Cache:    opts.Cache,
		Upstream: opts.Upstream,
		Dial:     dialUpstream,
		Client:   listener,
		Timeout:  opts.Timeout,
		RecvSize: opts.RecvSize,
		Now:      opts.Now,
		Logger:   logger,
		Observer: p.obs,
	}
	return p, nil
}

func dialUpstream(upstream netip.AddrPort) (request.UpstreamConn, error) {
	c, err := socket.DialUDP(upstream)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Addr returns the bound listener address.
func (p *Proxy) Addr() netip.AddrPort { return p.addr }

// Stats returns the statistics the proxy writes to.
func (p *Proxy) Stats() *Stats { return p.opts.Stats }

// Run dispatches events until ctx is canceled, then cancels every pending
// request and closes the sockets.
func (p *Proxy) Run(ctx context.Context) error {
	defer p.Close()
	p.logger.Info("dns proxy listening",
		"addr", p.addr.String(),
		"upstream", p.opts.Upstream.String(),
		"timeout", p.opts.Timeout,
		"max_requests", p.opts.MaxRequests,
	)

	for ctx.Err() == nil {
		timeout := p.opts.PollInterval
		if len(p.pending) > 0 {
			timeout = 0
		}
		events, err := p.poll(timeout)
		if err != nil {
			p.cancelAll()
			return fmt.Errorf("poll: %w", err)
		}
		queued := p.pending
		p.pending = nil
		for _, ev := range append(queued, events...) {
			p.dispatch(ev)
		}
		p.housekeeping()
	}
	p.cancelAll()
	return nil
}

func (p *Proxy) dispatch(ev eventloop.Event) {
	if ev.Token == listenerToken {
		if ev.Kind == eventloop.KindReadable {
			p.accept()
		}
		return
	}
	r, ok := p.requests[ev.Token]
	if !ok {
		// Late event for a request that already finished.
		return
	}
	p.advance(r, ev.Kind)
}

// accept drains datagrams from the listener and starts a request for each
// well-formed query.
func (p *Proxy) accept() {
	bufPtr := p.bufs.Get()
	defer p.bufs.Put(bufPtr)
	buf := *bufPtr

	for range maxReadsPerEvent {
		n, client, err := p.listener.RecvFrom(buf)
		if err != nil {
			p.logger.Warn("listener read failed", "err", err)
			return
		}
		if n == 0 {
			return
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		p.handleDatagram(raw, client)
	}
}

func (p *Proxy) handleDatagram(raw []byte, client netip.AddrPort) {
	p.opts.Stats.RecordQuery()
	if p.opts.Metrics != nil {
		p.opts.Metrics.Queries.Inc()
	}

	if len(p.requests) >= p.opts.MaxRequests {
		p.opts.Stats.RecordDropped()
		if p.opts.Metrics != nil {
			p.opts.Metrics.Dropped.Inc()
		}
		p.logger.Debug("request table full, dropping query", "client", client.String())
		return
	}

	query, err := dns.ParseQuery(raw)
	if err != nil {
		p.opts.Stats.RecordFormErr()
		if p.opts.Metrics != nil {
			p.opts.Metrics.FormErr.Inc()
		}
		p.logger.Debug("malformed query", "client", client.String(), "err", err)
		if resp := dns.ErrorFromRaw(raw, dns.RCodeFormErr); resp != nil {
			p.sendToClient(resp, client)
		}
		return
	}

	token := p.allocToken()
	r := request.New(token, client, raw, query, p.opts.Now())
	p.requests[token] = r
	p.advance(r, eventloop.KindReadable)
}

func (p *Proxy) allocToken() eventloop.Token {
	for {
		t := p.nextToken
		p.nextToken++
		if t == listenerToken {
			continue
		}
		if _, used := p.requests[t]; !used {
			return t
		}
	}
}

// advance hands one event to r and acts on the resulting state.
func (p *Proxy) advance(r *request.Request, kind eventloop.Kind) {
	switch r.Ready(p.env, kind) {
	case request.StateResponseReceived:
		// The client socket is always writable; reply on the next pass.
		p.pending = append(p.pending, eventloop.Event{Token: r.Token(), Kind: eventloop.KindWritable})
	case request.StateComplete:
		p.finish(r)
	case request.StateError:
		if p.opts.ServfailOnError && !errors.Is(r.Err(), request.ErrCanceled) {
			if resp, err := r.ErrorResponse(dns.RCodeServFail); err == nil {
				p.sendToClient(resp, r.Client())
			}
		}
		p.finish(r)
	}
}

func (p *Proxy) sendToClient(b []byte, client netip.AddrPort) {
	if _, err := p.listener.SendTo(b, client); err != nil {
		p.logger.Debug("failed to send to client", "client", client.String(), "err", err)
	}
}

func (p *Proxy) finish(r *request.Request) {
	delete(p.requests, r.Token())

	now := p.opts.Now()
	entry := database.QueryEntry{
		Time:     r.Started(),
		Client:   r.Client().String(),
		QName:    r.Key().QName,
		QType:    dns.RecordType(r.Key().QType).String(),
		Cached:   r.FromCache(),
		Duration: now.Sub(r.Started()),
	}
	if err := r.Err(); err != nil {
		entry.Error = err.Error()
	}
	if r.State() == request.StateComplete {
		p.opts.Stats.RecordCompleted()
		entry.RCode = r.RCode().String()
	} else {
		entry.RCode = dns.RCodeServFail.String()
		p.logger.Debug("request failed",
			"token", r.Token(),
			"client", r.Client().String(),
			"qname", r.Key().QName,
			"err", r.Err(),
		)
	}
	if p.opts.QueryLog != nil {
		p.opts.QueryLog.Record(entry)
	}
}

// housekeeping evicts expired cache entries and publishes gauges.
func (p *Proxy) housekeeping() {
	c := p.opts.Cache
	c.RemoveExpired()
	cs := c.Stats()
	p.opts.Stats.SetCache(cs.Size, cs.Evictions)
	p.opts.Stats.SetInflight(len(p.requests))
	if m := p.opts.Metrics; m != nil {
		m.CacheEntries.Set(float64(cs.Size))
		m.Inflight.Set(float64(len(p.requests)))
		if cs.Evictions > p.evictions {
			m.Evictions.Add(float64(cs.Evictions - p.evictions))
		}
	}
	p.evictions = cs.Evictions
}

func (p *Proxy) cancelAll() {
	for _, r := range p.requests {
		r.Cancel(p.env)
		p.obs.Failed(r.Err())
		p.finish(r)
	}
	p.pending = nil
	p.logger.Info("dns proxy stopped")
}

// Close releases the listener and the poller. It is safe to call more
// than once and is called by Run on return.
func (p *Proxy) Close() {
	if p.closed {
		return
	}
	p.closed = true
	_ = p.poller.Deregister(listenerToken)
	_ = p.listener.Close()
	_ = p.poller.Close()
}
