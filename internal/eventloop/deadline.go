package eventloop

import (
	"container/heap"
	"time"
)

type deadline struct {
	token Token
	at    time.Time
	index int
}

type deadlineHeap []*deadline

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	d := x.(*deadline)
	d.index = len(*h)
	*h = append(*h, d)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	d.index = -1
	*h = old[:n-1]
	return d
}

// Deadlines is a set of per-token timeouts ordered by due time.
// At most one deadline exists per token.
type Deadlines struct {
	now     func() time.Time
	heap    deadlineHeap
	byToken map[Token]*deadline
}

// NewDeadlines creates an empty set using now as its clock.
func NewDeadlines(now func() time.Time) *Deadlines {
	if now == nil {
		now = time.Now
	}
	return &Deadlines{now: now, byToken: map[Token]*deadline{}}
}

// Set arms a deadline d from now for token, replacing an existing one.
func (s *Deadlines) Set(token Token, d time.Duration) {
	at := s.now().Add(d)
	if cur, ok := s.byToken[token]; ok {
		cur.at = at
		heap.Fix(&s.heap, cur.index)
		return
	}
	dl := &deadline{token: token, at: at}
	heap.Push(&s.heap, dl)
	s.byToken[token] = dl
}

// Cancel removes the deadline for token.
func (s *Deadlines) Cancel(token Token) {
	cur, ok := s.byToken[token]
	if !ok {
		return
	}
	heap.Remove(&s.heap, cur.index)
	delete(s.byToken, token)
}

// Len returns the number of armed deadlines.
func (s *Deadlines) Len() int { return len(s.heap) }

// Next returns the time until the earliest deadline. ok is false when none
// is armed. A due deadline yields 0.
func (s *Deadlines) Next() (time.Duration, bool) {
	if len(s.heap) == 0 {
		return 0, false
	}
	return max(s.heap[0].at.Sub(s.now()), 0), true
}

// Expire removes every due deadline and appends a timeout event for each
// to events, earliest first.
func (s *Deadlines) Expire(events []Event) []Event {
	now := s.now()
	for len(s.heap) > 0 && !s.heap[0].at.After(now) {
		dl := heap.Pop(&s.heap).(*deadline)
		delete(s.byToken, dl.token)
		events = append(events, Event{Token: dl.token, Kind: KindTimeout})
	}
	return events
}
