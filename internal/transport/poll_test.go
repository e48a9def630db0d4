package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tailview/internal/backend"
	"tailview/internal/model"
)

type pollSink struct {
	mu     sync.Mutex
	events []model.RawEvent
	errs   []error
}

func (s *pollSink) deliver(events []model.RawEvent) {
	s.mu.Lock()
	s.events = append(s.events, events...)
	s.mu.Unlock()
}

func (s *pollSink) onError(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *pollSink) timestamps() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.events))
	for i, e := range s.events {
		out[i] = e.Timestamp
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func testOpts() PollOptions {
	return PollOptions{Interval: 5 * time.Millisecond, Lookback: time.Minute, MaxCount: 100}
}

func TestPollerCursorFilter(t *testing.T) {
	b := backend.NewScripted()
	sink := &pollSink{}
	calls := 0
	var mu sync.Mutex
	b.AnswerPolls(func(from int64, max int) ([]model.RawEvent, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		switch calls {
		case 1:
			// Server-side lookback overlap: one event older than the cursor.
			return []model.RawEvent{
				{Timestamp: 900, Message: "old", EventID: "a"},
				{Timestamp: 1000, Message: "at cursor", EventID: "b"},
				{Timestamp: 1100, Message: "new", EventID: "c"},
			}, nil
		case 2:
			// After catching up the filter is cleared for the session.
			return []model.RawEvent{{Timestamp: 800, Message: "late", EventID: "d"}}, nil
		default:
			return nil, nil
		}
	})
	p := NewPoller(b, "g", testOpts(), func() int64 { return 0 }, sink.deliver, sink.onError)
	p.SetCursor(1000)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()
	waitFor(t, func() bool { return len(sink.timestamps()) >= 3 })
	got := sink.timestamps()[:3]
	want := []int64{1000, 1100, 800}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivered %v, want %v", got, want)
		}
	}
}

func TestPollerLookbackWhenNoEvents(t *testing.T) {
	b := backend.NewScripted()
	sink := &pollSink{}
	p := NewPoller(b, "g", testOpts(), func() int64 { return 0 }, sink.deliver, sink.onError)
	start := time.Now().UnixMilli()
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()
	waitFor(t, func() bool { return len(b.PollFroms()) > 0 })
	from := b.PollFroms()[0]
	lookback := testOpts().Lookback.Milliseconds()
	if from > start-lookback+1000 || from < start-lookback-1000 {
		t.Fatalf("first poll from=%d, want about %d", from, start-lookback)
	}
}

func TestPollerUsesLastKnownTimestamp(t *testing.T) {
	b := backend.NewScripted()
	sink := &pollSink{}
	last := int64(5_000_000_000_000) // far future, beats any cursor
	p := NewPoller(b, "g", testOpts(), func() int64 { return last }, sink.deliver, sink.onError)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()
	waitFor(t, func() bool { return len(b.PollFroms()) > 0 })
	if got := b.PollFroms()[0]; got != last {
		t.Fatalf("from=%d, want last known %d", got, last)
	}
}

func TestPollerRetriesAfterFailure(t *testing.T) {
	b := backend.NewScripted()
	sink := &pollSink{}
	calls := 0
	var mu sync.Mutex
	b.AnswerPolls(func(from int64, max int) ([]model.RawEvent, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		return []model.RawEvent{{Timestamp: time.Now().UnixMilli(), Message: "ok", EventID: "x"}}, nil
	})
	p := NewPoller(b, "g", testOpts(), func() int64 { return time.Now().UnixMilli() }, sink.deliver, sink.onError)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()
	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.errs) >= 1 && len(sink.events) >= 1
	})
}

func TestPollerStopSilence(t *testing.T) {
	b := backend.NewScripted()
	sink := &pollSink{}
	b.AnswerPolls(func(from int64, max int) ([]model.RawEvent, error) {
		return []model.RawEvent{{Timestamp: time.Now().UnixMilli(), Message: "tick"}}, nil
	})
	p := NewPoller(b, "g", testOpts(), func() int64 { return time.Now().UnixMilli() }, sink.deliver, sink.onError)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return len(sink.timestamps()) > 0 })
	p.Stop()
	p.Stop() // idempotent
	if p.IsActive() {
		t.Fatalf("poller still active after stop")
	}
	n := len(sink.timestamps())
	time.Sleep(30 * time.Millisecond)
	if got := len(sink.timestamps()); got != n {
		t.Fatalf("delivery after Stop: %d -> %d", n, got)
	}
}
