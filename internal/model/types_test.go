package model

import (
	"fmt"
	"testing"
)

func TestStoreCap(t *testing.T) {
	s := NewStore(5)
	for i := 0; i < 20; i++ {
		s.Append([]ParsedEvent{{RawEvent: RawEvent{Timestamp: int64(i), Message: fmt.Sprintf("m%d", i), EventID: fmt.Sprintf("e%d", i)}}})
		if s.Len() > 5 {
			t.Fatalf("cap exceeded after append %d: len=%d", i, s.Len())
		}
	}
	snap := s.Snapshot()
	if len(snap.Events) != 5 {
		t.Fatalf("expected 5 retained, got %d", len(snap.Events))
	}
	for i, e := range snap.Events {
		want := fmt.Sprintf("e%d", 15+i)
		if e.EventID != want {
			t.Fatalf("retained[%d]=%s, want %s (oldest must drop first)", i, e.EventID, want)
		}
	}
	total, dropped := s.Stats()
	if total != 20 || dropped != 15 {
		t.Fatalf("stats total=%d dropped=%d", total, dropped)
	}
}

func TestStoreDedup(t *testing.T) {
	s := NewStore(100)
	batch := []ParsedEvent{
		{RawEvent: RawEvent{Timestamp: 1, Message: "a", EventID: "x"}},
		{RawEvent: RawEvent{Timestamp: 2, Message: "b"}},
	}
	if got := len(s.Append(batch)); got != 2 {
		t.Fatalf("first append added %d", got)
	}
	if got := s.Append(batch); got != nil {
		t.Fatalf("second append added %d, want 0", len(got))
	}
	if s.Len() != 2 {
		t.Fatalf("len=%d after duplicate delivery", s.Len())
	}
}

func TestStoreDedupKeyPrefix(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	a := RawEvent{Timestamp: 5, Message: string(long)}
	b := RawEvent{Timestamp: 5, Message: string(long) + "tail differs past 100"}
	if a.DedupKey() != b.DedupKey() {
		t.Fatalf("keys should collapse on first 100 chars")
	}
	c := RawEvent{Timestamp: 6, Message: string(long)}
	if a.DedupKey() == c.DedupKey() {
		t.Fatalf("different timestamps must not collide")
	}
}

func TestSnapshotIdentity(t *testing.T) {
	s := NewStore(10)
	s1 := s.Snapshot()
	s2 := s.Snapshot()
	if s1.ID != s2.ID {
		t.Fatalf("unchanged store must keep snapshot id")
	}
	s.Append([]ParsedEvent{{RawEvent: RawEvent{Timestamp: 1, Message: "a"}}})
	if s.Snapshot().ID == s1.ID {
		t.Fatalf("append must produce a new snapshot id")
	}
	before := s.Snapshot().ID
	s.Clear()
	if s.Snapshot().ID == before {
		t.Fatalf("clear must produce a new snapshot id")
	}
	if s.Len() != 0 {
		t.Fatalf("clear left %d events", s.Len())
	}
}
