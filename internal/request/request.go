// Package request implements the per-query state machine of the proxy.
//
// A Request is advanced only by Ready, called by the dispatch loop when an
// event for its token arrives. Each call makes at most one non-blocking I/O
// attempt; a would-block result leaves the state unchanged.
//
//	New ──cache hit──────────────────────────────┐
//	 │                                           v
//	 └─> Accepted ──send──> Forwarded ──recv──> ResponseReceived ──> Complete
//	        │                   │
//	        └──timeout/error────┴──> Error
package request

import (
	"fmt"
	"math/rand/v2"
	"net/netip"
	"strings"
	"time"

	"github.com/jroosing/hydraproxy/internal/cache"
	"github.com/jroosing/hydraproxy/internal/dns"
	"github.com/jroosing/hydraproxy/internal/eventloop"
)

// Request tracks one client query from arrival to reply.
type Request struct {
	token  eventloop.Token
	client netip.AddrPort
	raw    []byte
	query  dns.Message
	key    cache.Key
	state  State

	upstream   UpstreamConn
	upstreamID uint16
	outbound   []byte
	registered bool
	armed      bool

	response  []byte
	rcode     dns.RCode
	fromCache bool
	started   time.Time
	sentAt    time.Time
	err       error
}

// New creates a request for a decoded client query. raw is the query as
// received and is not modified.
func New(token eventloop.Token, client netip.AddrPort, raw []byte, query dns.Message, now time.Time) *Request {
	r := &Request{
		token:   token,
		client:  client,
		raw:     raw,
		query:   query,
		state:   StateNew,
		started: now,
	}
	if q, ok := query.Question(); ok {
		r.key = cache.KeyFromQuestion(q)
	}
	return r
}

func (r *Request) Token() eventloop.Token { return r.token }
func (r *Request) Client() netip.AddrPort { return r.client }
func (r *Request) State() State           { return r.state }
func (r *Request) Key() cache.Key         { return r.key }
func (r *Request) Started() time.Time     { return r.started }

// Err returns the error that ended the request, if any.
func (r *Request) Err() error { return r.err }

// FromCache reports whether the answer was served from the cache.
func (r *Request) FromCache() bool { return r.fromCache }

// Response returns the buffered response once in StateResponseReceived or later.
func (r *Request) Response() []byte { return r.response }

// RCode returns the response code of the buffered response.
func (r *Request) RCode() dns.RCode { return r.rcode }

// Ready advances the state machine for one event and returns the new state.
func (r *Request) Ready(env *Env, kind eventloop.Kind) State {
	prev := r.state
	switch r.state {
	case StateNew:
		r.start(env)
	case StateAccepted:
		switch kind {
		case eventloop.KindTimeout:
			r.fail(env, ErrTimeout)
		case eventloop.KindWritable:
			r.send(env)
		}
	case StateForwarded:
		switch kind {
		case eventloop.KindTimeout:
			r.fail(env, ErrTimeout)
		case eventloop.KindReadable:
			r.receive(env)
		}
	case StateResponseReceived:
		r.reply(env)
	}
	if r.state != prev {
		env.logger().Debug("request transition",
			"token", r.token,
			"client", r.client.String(),
			"qname", r.key.QName,
			"qtype", dns.RecordType(r.key.QType).String(),
			"from", prev.String(),
			"to", r.state.String(),
		)
	}
	return r.state
}

// Cancel releases every registration and the upstream socket. A request
// that has not finished moves to StateError.
func (r *Request) Cancel(env *Env) {
	r.release(env)
	if !r.state.Terminal() {
		r.err = ErrCanceled
		r.state = StateError
	}
}

// ErrorResponse encodes an error reply carrying rcode for the client query.
func (r *Request) ErrorResponse(rcode dns.RCode) ([]byte, error) {
	return dns.BuildErrorResponse(r.query, rcode).Marshal()
}

func (r *Request) start(env *Env) {
	if _, ok := r.query.Question(); !ok {
		r.fail(env, fmt.Errorf("%w: query has no question", dns.ErrDNSError))
		return
	}
	if r.answerFromCache(env) {
		return
	}

	conn, err := env.Dial(env.Upstream)
	if err != nil {
		r.fail(env, fmt.Errorf("%w: %w", ErrSocketAlloc, err))
		return
	}
	r.upstream = conn
	r.upstreamID = uint16(rand.Uint32()) //nolint:gosec // transaction ids need not be cryptographic
	r.outbound = dns.PatchID(r.raw, r.upstreamID)

	if err := env.Registry.Register(conn.Fd(), eventloop.Writable, r.token); err != nil {
		r.fail(env, fmt.Errorf("%w: %w", ErrSocketAlloc, err))
		return
	}
	r.registered = true
	env.Registry.SetDeadline(r.token, env.Timeout)
	r.armed = true
	r.state = StateAccepted
}

func (r *Request) answerFromCache(env *Env) bool {
	if env.Cache == nil {
		return false
	}
	entry, ok := env.Cache.Get(r.key)
	if ok {
		if ttl := env.Cache.CalcTTL(entry); ttl > 0 {
			b, err := dns.BuildAnswer(r.query, entry.AnswersWithTTL(ttl)).Marshal()
			if err == nil {
				r.response = b
				r.rcode = dns.RCodeNoError
				r.fromCache = true
				r.state = StateResponseReceived
				env.observer().CacheHit()
				return true
			}
			env.logger().Warn("failed to encode cached answer", "key", r.key.String(), "err", err)
		}
	}
	env.observer().CacheMiss()
	return false
}

func (r *Request) send(env *Env) {
	n, err := r.upstream.Send(r.outbound)
	if err != nil {
		r.fail(env, fmt.Errorf("%w: send: %w", ErrUpstreamIO, err))
		return
	}
	if n == 0 {
		return
	}
	if err := env.Registry.Register(r.upstream.Fd(), eventloop.Readable, r.token); err != nil {
		r.fail(env, fmt.Errorf("%w: %w", ErrSocketAlloc, err))
		return
	}
	env.Registry.SetDeadline(r.token, env.Timeout)
	r.sentAt = env.now()
	r.state = StateForwarded
	env.observer().Forwarded()
}

func (r *Request) receive(env *Env) {
	buf := make([]byte, env.recvSize())
	n, err := r.upstream.Recv(buf)
	if err != nil {
		r.fail(env, fmt.Errorf("%w: recv: %w", ErrUpstreamIO, err))
		return
	}
	if n == 0 {
		return
	}
	msg, err := dns.ParseMessage(buf[:n])
	if err != nil || !r.matches(msg) {
		env.logger().Debug("ignoring unexpected upstream datagram", "token", r.token, "bytes", n, "err", err)
		return
	}

	now := env.now()
	env.Registry.CancelDeadline(r.token)
	r.armed = false
	r.response = dns.PatchID(buf[:n], r.query.Header.ID)
	r.rcode = msg.Header.RCode()
	if env.Cache != nil && r.rcode == dns.RCodeNoError && !msg.Header.Truncated() {
		if k, e, ok := cache.EntryFromMessage(msg, now); ok {
			env.Cache.Upsert(k, e)
		}
	}
	r.release(env)
	r.state = StateResponseReceived
	env.observer().Answered(now.Sub(r.sentAt))
}

// matches checks that msg answers the query that was forwarded.
func (r *Request) matches(msg dns.Message) bool {
	if !msg.Header.IsResponse() || msg.Header.ID != r.upstreamID {
		return false
	}
	got, ok := msg.Question()
	want, _ := r.query.Question()
	return ok &&
		strings.EqualFold(dns.NormalizeName(got.Name), dns.NormalizeName(want.Name)) &&
		got.Type == want.Type &&
		got.Class == want.Class
}

func (r *Request) reply(env *Env) {
	n, err := env.Client.SendTo(r.response, r.client)
	switch {
	case err != nil:
		r.err = fmt.Errorf("%w: %w", ErrClientIO, err)
	case n == 0:
		r.err = fmt.Errorf("%w: socket not ready", ErrClientIO)
	}
	if r.err != nil {
		env.logger().Warn("failed to send response", "client", r.client.String(), "qname", r.key.QName, "err", r.err)
	}
	r.state = StateComplete
}

func (r *Request) fail(env *Env, err error) {
	r.err = err
	r.release(env)
	r.state = StateError
	env.observer().Failed(err)
}

func (r *Request) release(env *Env) {
	if r.armed {
		env.Registry.CancelDeadline(r.token)
		r.armed = false
	}
	if r.registered {
		if err := env.Registry.Deregister(r.token); err != nil {
			env.logger().Debug("deregister failed", "token", r.token, "err", err)
		}
		r.registered = false
	}
	if r.upstream != nil {
		_ = r.upstream.Close()
		r.upstream = nil
	}
}
