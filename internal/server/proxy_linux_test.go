//go:build linux

package server

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jroosing/hydraproxy/internal/database"
	"github.com/jroosing/hydraproxy/internal/dns"
	"github.com/jroosing/hydraproxy/internal/eventloop"
	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mu      sync.Mutex
	entries []database.QueryEntry
}

func (m *memRecorder) Record(e database.QueryEntry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return true
}

func (m *memRecorder) all() []database.QueryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.QueryEntry(nil), m.entries...)
}

// startUpstream runs a miekg/dns server that answers with handler and
// counts the queries it sees.
func startUpstream(t *testing.T, handler func(w mdns.ResponseWriter, r *mdns.Msg)) (netip.AddrPort, *atomic.Int64) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	var hits atomic.Int64
	started := make(chan struct{})
	srv := &mdns.Server{
		PacketConn: pc,
		Handler: mdns.HandlerFunc(func(w mdns.ResponseWriter, r *mdns.Msg) {
			hits.Add(1)
			handler(w, r)
		}),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return netip.MustParseAddrPort(pc.LocalAddr().String()), &hits
}

func answerA(w mdns.ResponseWriter, r *mdns.Msg) {
	m := new(mdns.Msg)
	m.SetReply(r)
	rr, _ := mdns.NewRR(r.Question[0].Name + " 300 IN A 10.0.0.1")
	m.Answer = append(m.Answer, rr)
	_ = w.WriteMsg(m)
}

func startProxy(t *testing.T, upstream netip.AddrPort, mutate func(*ProxyOptions)) (*Proxy, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	opts := ProxyOptions{
		Listen:          netip.MustParseAddrPort("127.0.0.1:0"),
		Upstream:        upstream,
		Timeout:         2 * time.Second,
		ServfailOnError: true,
		PollInterval:    20 * time.Millisecond,
		QueryLog:        rec,
	}
	if mutate != nil {
		mutate(&opts)
	}
	p, err := NewProxy(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("proxy did not stop")
		}
	})
	return p, rec
}

func exchange(t *testing.T, addr netip.AddrPort, name string, qtype uint16) *mdns.Msg {
	t.Helper()
	c := &mdns.Client{Net: "udp", Timeout: 3 * time.Second}
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(name), qtype)
	resp, _, err := c.Exchange(m, addr.String())
	require.NoError(t, err)
	require.Equal(t, m.Id, resp.Id)
	return resp
}

func TestProxy_MissThenHit(t *testing.T) {
	upstream, hits := startUpstream(t, answerA)
	p, rec := startProxy(t, upstream, nil)

	first := exchange(t, p.Addr(), "example.com", mdns.TypeA)
	require.Equal(t, mdns.RcodeSuccess, first.Rcode)
	require.Len(t, first.Answer, 1)
	assert.Equal(t, "10.0.0.1", first.Answer[0].(*mdns.A).A.String())
	assert.Equal(t, uint32(300), first.Answer[0].Header().Ttl)

	second := exchange(t, p.Addr(), "EXAMPLE.com", mdns.TypeA)
	require.Len(t, second.Answer, 1)
	assert.Equal(t, "10.0.0.1", second.Answer[0].(*mdns.A).A.String())
	assert.LessOrEqual(t, second.Answer[0].Header().Ttl, uint32(300))
	assert.GreaterOrEqual(t, second.Answer[0].Header().Ttl, uint32(298))
	assert.True(t, second.RecursionAvailable)

	assert.Equal(t, int64(1), hits.Load(), "second query served from cache")

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, 2*time.Second, 10*time.Millisecond)
	entries := rec.all()
	assert.False(t, entries[0].Cached)
	assert.True(t, entries[1].Cached)
	assert.Equal(t, "example.com", entries[1].QName)
	assert.Equal(t, "A", entries[1].QType)
	assert.Equal(t, "NOERROR", entries[1].RCode)

	snap := p.Stats().Snapshot()
	assert.Equal(t, uint64(2), snap.Queries)
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.Equal(t, uint64(1), snap.Forwarded)
	assert.Equal(t, uint64(2), snap.Completed)
}

func TestProxy_TypesAreCachedSeparately(t *testing.T) {
	upstream, hits := startUpstream(t, func(w mdns.ResponseWriter, r *mdns.Msg) {
		m := new(mdns.Msg)
		m.SetReply(r)
		if r.Question[0].Qtype == mdns.TypeAAAA {
			rr, _ := mdns.NewRR(r.Question[0].Name + " 60 IN AAAA 2001:db8::1")
			m.Answer = append(m.Answer, rr)
		} else {
			rr, _ := mdns.NewRR(r.Question[0].Name + " 60 IN A 192.0.2.1")
			m.Answer = append(m.Answer, rr)
		}
		_ = w.WriteMsg(m)
	})
	p, _ := startProxy(t, upstream, nil)

	a := exchange(t, p.Addr(), "dual.test", mdns.TypeA)
	aaaa := exchange(t, p.Addr(), "dual.test", mdns.TypeAAAA)
	require.Len(t, a.Answer, 1)
	require.Len(t, aaaa.Answer, 1)
	assert.IsType(t, &mdns.A{}, a.Answer[0])
	assert.IsType(t, &mdns.AAAA{}, aaaa.Answer[0])
	assert.Equal(t, int64(2), hits.Load())
}

func TestProxy_NXDomainIsNotCached(t *testing.T) {
	upstream, hits := startUpstream(t, func(w mdns.ResponseWriter, r *mdns.Msg) {
		m := new(mdns.Msg)
		m.SetRcode(r, mdns.RcodeNameError)
		_ = w.WriteMsg(m)
	})
	p, _ := startProxy(t, upstream, nil)

	for range 2 {
		resp := exchange(t, p.Addr(), "missing.test", mdns.TypeA)
		assert.Equal(t, mdns.RcodeNameError, resp.Rcode)
	}
	assert.Equal(t, int64(2), hits.Load())
}

func TestProxy_TimeoutRepliesServfail(t *testing.T) {
	// An upstream that reads but never answers.
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = silent.Close() })

	p, rec := startProxy(t, netip.MustParseAddrPort(silent.LocalAddr().String()), func(o *ProxyOptions) {
		o.Timeout = 100 * time.Millisecond
	})

	resp := exchange(t, p.Addr(), "slow.test", mdns.TypeA)
	assert.Equal(t, mdns.RcodeServerFailure, resp.Rcode)

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, rec.all()[0].Error, "timeout")
	assert.Equal(t, uint64(1), p.Stats().Snapshot().Timeouts)
}

func TestProxy_MalformedQueryGetsFormErr(t *testing.T) {
	upstream, hits := startUpstream(t, answerA)
	p, _ := startProxy(t, upstream, nil)

	// A response sent to the proxy is not a valid query.
	bad := dns.Message{
		Header:    dns.Header{ID: 0x4242, Flags: dns.QRFlag | dns.RDFlag},
		Questions: []dns.Question{{Name: "example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}},
	}
	raw, err := bad.Marshal()
	require.NoError(t, err)

	conn, err := net.Dial("udp", p.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	_, err = conn.Write(raw)
	require.NoError(t, err)

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	resp, err := dns.ParseMessage(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4242), resp.Header.ID)
	assert.Equal(t, dns.RCodeFormErr, resp.Header.RCode())
	assert.Equal(t, uint64(1), p.Stats().Snapshot().FormErr)
	assert.Zero(t, hits.Load())
}

func TestProxy_ConcurrentClients(t *testing.T) {
	upstream, _ := startUpstream(t, answerA)
	p, _ := startProxy(t, upstream, nil)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &mdns.Client{Net: "udp", Timeout: 3 * time.Second}
			m := new(mdns.Msg)
			m.SetQuestion("host"+string(rune('a'+i))+".test.", mdns.TypeA)
			resp, _, err := c.Exchange(m, p.Addr().String())
			if assert.NoError(t, err) {
				assert.Len(t, resp.Answer, 1)
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return p.Stats().Snapshot().Completed == 20
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProxy_CancelDropsPendingRequests(t *testing.T) {
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	p, err := NewProxy(ProxyOptions{
		Listen:       netip.MustParseAddrPort("127.0.0.1:0"),
		Upstream:     netip.MustParseAddrPort(silent.LocalAddr().String()),
		Timeout:      time.Minute,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	c := &mdns.Client{Net: "udp", Timeout: 200 * time.Millisecond}
	m := new(mdns.Msg)
	m.SetQuestion("pending.test.", mdns.TypeA)
	_, _, _ = c.Exchange(m, p.Addr().String())

	require.Eventually(t, func() bool { return p.Stats().Snapshot().Forwarded == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	snap := p.Stats().Snapshot()
	assert.Equal(t, uint64(1), snap.Errors)
	assert.Zero(t, snap.Completed)
}

func TestProxy_PollFailureCancelsPendingRequests(t *testing.T) {
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	rec := &memRecorder{}
	p, err := NewProxy(ProxyOptions{
		Listen:       netip.MustParseAddrPort("127.0.0.1:0"),
		Upstream:     netip.MustParseAddrPort(silent.LocalAddr().String()),
		Timeout:      time.Minute,
		PollInterval: 10 * time.Millisecond,
		QueryLog:     rec,
	})
	require.NoError(t, err)

	var broken atomic.Bool
	pollErr := errors.New("epoll gone")
	poll := p.poll
	p.poll = func(d time.Duration) ([]eventloop.Event, error) {
		if broken.Load() {
			return nil, pollErr
		}
		return poll(d)
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	c := &mdns.Client{Net: "udp", Timeout: 200 * time.Millisecond}
	m := new(mdns.Msg)
	m.SetQuestion("pending.test.", mdns.TypeA)
	_, _, _ = c.Exchange(m, p.Addr().String())
	require.Eventually(t, func() bool { return p.Stats().Snapshot().Forwarded == 1 }, 2*time.Second, 5*time.Millisecond)

	broken.Store(true)
	select {
	case err := <-done:
		require.ErrorIs(t, err, pollErr)
	case <-time.After(5 * time.Second):
		t.Fatal("proxy did not stop")
	}

	assert.Empty(t, p.requests)
	assert.Equal(t, uint64(1), p.Stats().Snapshot().Errors)
	entries := rec.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "pending.test", entries[0].QName)
	assert.Contains(t, entries[0].Error, "canceled")
}
