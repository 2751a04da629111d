// Package cache implements the answer cache used by the forwarding proxy.
//
// AnswerCache pairs a map (O(1) lookup) with a slice of expiry projections
// kept in ascending expiry order, so expired entries are always a prefix of
// the index and can be dropped without scanning the whole cache.
//
// The cache is not safe for concurrent use. It is owned by the dispatch loop.
package cache

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jroosing/hydraproxy/internal/dns"
	"github.com/jroosing/hydraproxy/internal/helpers"
)

// Key identifies a cacheable question.
type Key struct {
	QName  string
	QType  uint16
	QClass uint16
}

// KeyFromQuestion builds the lookup key for q. Names are compared
// case-insensitively.
func KeyFromQuestion(q dns.Question) Key {
	return Key{QName: dns.NormalizeName(q.Name), QType: q.Type, QClass: q.Class}
}

// Compare orders keys by name only. It is not used for eviction.
func (k Key) Compare(o Key) int {
	return strings.Compare(k.QName, o.QName)
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.QName, dns.RecordType(k.QType), k.QClass)
}

// Entry is an immutable cached answer set.
type Entry struct {
	answers []dns.Record
	ttl     uint32
	expiry  time.Time
}

// NewEntry creates an entry that expires ttl seconds after created.
func NewEntry(answers []dns.Record, ttl uint32, created time.Time) Entry {
	return Entry{
		answers: slices.Clone(answers),
		ttl:     ttl,
		expiry:  created.Add(time.Duration(ttl) * time.Second),
	}
}

// EntryFromMessage builds the key and entry for an upstream response.
// The entry TTL is the smallest TTL among the answers. Responses without
// a question or without answers are not cacheable.
func EntryFromMessage(msg dns.Message, created time.Time) (Key, Entry, bool) {
	q, ok := msg.Question()
	if !ok || len(msg.Answers) == 0 {
		return Key{}, Entry{}, false
	}
	ttl := msg.Answers[0].TTL
	for _, rr := range msg.Answers[1:] {
		ttl = min(ttl, rr.TTL)
	}
	return KeyFromQuestion(q), NewEntry(msg.Answers, ttl, created), true
}

// Answers returns a copy of the cached records.
func (e Entry) Answers() []dns.Record { return slices.Clone(e.answers) }

// TTL returns the TTL the entry was created with.
func (e Entry) TTL() uint32 { return e.ttl }

// Expiry returns the absolute expiry time.
func (e Entry) Expiry() time.Time { return e.expiry }

// AnswersWithTTL returns the cached records with their TTL rewritten to ttl.
func (e Entry) AnswersWithTTL(ttl uint32) []dns.Record {
	out := e.Answers()
	for i := range out {
		out[i].TTL = ttl
	}
	return out
}

type projection struct {
	key    Key
	expiry time.Time
}

// ConsistencyError reports that the map and the expiry index disagree.
// It is raised as a panic since it can only result from a bug.
type ConsistencyError struct {
	MapLen   int
	IndexLen int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("cache: map holds %d entries but expiry index holds %d", e.MapLen, e.IndexLen)
}

// Stats is a point-in-time copy of the cache counters.
type Stats struct {
	Size      int    `json:"size"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Inserts   uint64 `json:"inserts"`
	Evictions uint64 `json:"evictions"`
}

// Option configures an AnswerCache.
type Option func(*AnswerCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *AnswerCache) { c.now = now }
}

// AnswerCache maps question keys to answer sets and evicts by expiry.
type AnswerCache struct {
	now   func() time.Time
	data  map[Key]Entry
	index []projection // ascending by expiry

	hits      uint64
	misses    uint64
	inserts   uint64
	evictions uint64
}

// New creates an empty cache.
func New(opts ...Option) *AnswerCache {
	c := &AnswerCache{
		now:  time.Now,
		data: map[Key]Entry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert removes expired entries and then stores e under k if k is absent.
// An existing entry for k is kept unchanged.
func (c *AnswerCache) Upsert(k Key, e Entry) {
	c.RemoveExpired()
	if _, exists := c.data[k]; exists {
		return
	}
	c.data[k] = e
	c.index = append(c.index, projection{key: k, expiry: e.expiry})
	slices.SortStableFunc(c.index, func(a, b projection) int {
		return a.expiry.Compare(b.expiry)
	})
	c.inserts++
}

// Get returns the entry stored under k. It does not check expiry; use
// CalcTTL or call RemoveExpired first when freshness matters.
func (c *AnswerCache) Get(k Key) (Entry, bool) {
	e, ok := c.data[k]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return e, ok
}

// Contains reports whether k is stored, without touching the counters.
func (c *AnswerCache) Contains(k Key) bool {
	_, ok := c.data[k]
	return ok
}

// RemoveExpired drops every entry whose expiry is at or before now and
// returns how many were removed.
func (c *AnswerCache) RemoveExpired() int {
	now := c.now()
	n := 0
	for n < len(c.index) && !c.index[n].expiry.After(now) {
		delete(c.data, c.index[n].key)
		n++
	}
	if n > 0 {
		c.index = slices.Delete(c.index, 0, n)
		c.evictions += uint64(n)
	}
	if len(c.data) != len(c.index) {
		panic(&ConsistencyError{MapLen: len(c.data), IndexLen: len(c.index)})
	}
	return n
}

// CalcTTL returns the whole seconds left before e expires, or 0.
func (c *AnswerCache) CalcTTL(e Entry) uint32 {
	left := e.expiry.Sub(c.now())
	if left <= 0 {
		return 0
	}
	return helpers.ClampIntToUint32(int(left / time.Second))
}

// Len returns the number of stored entries.
func (c *AnswerCache) Len() int { return len(c.data) }

// Stats returns the current counters.
func (c *AnswerCache) Stats() Stats {
	return Stats{
		Size:      len(c.data),
		Hits:      c.hits,
		Misses:    c.misses,
		Inserts:   c.inserts,
		Evictions: c.evictions,
	}
}
