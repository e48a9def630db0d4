package backend

import (
	"sync"

	"tailview/internal/model"
)

// bufferCap bounds the in-memory event history that local backends keep
// to serve polls.
const bufferCap = 65536

// recorder is the shared guts of the in-repo backends: it remembers
// observed events so PollSince can replay them, and forwards them to the
// listener while a push session is open.
type recorder struct {
	mu       sync.Mutex
	listener Listener
	pushing  bool
	events   []model.RawEvent
	seq      int64
}

func (r *recorder) Subscribe(l Listener) {
	r.mu.Lock()
	r.listener = l
	r.mu.Unlock()
}

func (r *recorder) setPushing(on bool) {
	r.mu.Lock()
	r.pushing = on
	r.mu.Unlock()
}

// record stores the event and pushes it if a session is open. Delivery
// happens outside the lock; the listener may take its own locks.
func (r *recorder) record(e model.RawEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	if over := len(r.events) - bufferCap; over > 0 {
		r.events = append(r.events[:0:0], r.events[over:]...)
	}
	l := r.listener
	pushing := r.pushing
	r.mu.Unlock()
	if pushing && l != nil {
		l.OnEvents([]model.RawEvent{e}, 1)
	}
}

func (r *recorder) nextSeq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

func (r *recorder) pollSince(from int64, max int) []model.RawEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.RawEvent, 0, max)
	for _, e := range r.events {
		if e.Timestamp < from {
			continue
		}
		out = append(out, e)
		if len(out) >= max {
			break
		}
	}
	return out
}

func (r *recorder) emitError(msg string) {
	r.mu.Lock()
	l := r.listener
	r.mu.Unlock()
	if l != nil {
		l.OnError(msg)
	}
}
