package model

import (
	"encoding/json"
	"sync"
)

// RawEvent is one event as delivered by the backend. Timestamp is in
// milliseconds since epoch. StreamName and EventID are empty when the
// backend did not report them.
type RawEvent struct {
	Timestamp  int64  `json:"timestamp"`
	Message    string `json:"message"`
	StreamName string `json:"log_stream_name,omitempty"`
	EventID    string `json:"event_id,omitempty"`
}

const dedupMessagePrefix = 100

// DedupKey identifies an event for at-most-once delivery. Backends that
// report event ids get exact identity; otherwise the key is derived from
// the timestamp and a message prefix.
func (e RawEvent) DedupKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	msg := e.Message
	if len(msg) > dedupMessagePrefix {
		msg = msg[:dedupMessagePrefix]
	}
	return itoa(e.Timestamp) + "|" + msg
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ParsedEvent is a RawEvent after classification and payload parsing.
// Created once per event and never mutated afterward.
type ParsedEvent struct {
	RawEvent
	Category      string         `json:"category"`
	Payload       map[string]any `json:"payload,omitempty"`
	FormattedTime string         `json:"formatted_time"`
}

func (e ParsedEvent) PrettyPayload() string {
	if e.Payload == nil {
		return ""
	}
	b, _ := json.MarshalIndent(e.Payload, "", "  ")
	return string(b)
}

// LevelRule maps keywords to a category. Lower Priority is checked first.
type LevelRule struct {
	ID       string   `json:"id"`
	Priority int      `json:"priority"`
	Keywords []string `json:"keywords"`
}

// CategoryUnknown is assigned when no rule matches.
const CategoryUnknown = "unknown"

// DefaultRules is the rule set used when no rules file is configured.
func DefaultRules() []LevelRule {
	return []LevelRule{
		{ID: "error", Priority: 0, Keywords: []string{"error", "err", "fatal", "panic", "exception"}},
		{ID: "warn", Priority: 1, Keywords: []string{"warn", "warning"}},
		{ID: "info", Priority: 2, Keywords: []string{"info", "report"}},
		{ID: "debug", Priority: 3, Keywords: []string{"debug", "trace"}},
	}
}

// Snapshot is an immutable view of the store. ID changes on every store
// mutation, so two snapshots with equal IDs have equal contents; filter
// memoization keys on it.
type Snapshot struct {
	Events []ParsedEvent
	ID     uint64
}

// Store is the bounded, arrival-ordered event collection. Single writer
// (the tailer's append path); readers work on snapshots.
type Store struct {
	mu      sync.RWMutex
	events  []ParsedEvent
	keys    map[string]struct{}
	max     int
	gen     uint64
	total   uint64 // total appended (post-dedup)
	dropped uint64 // trimmed by the cap
}

func NewStore(max int) *Store {
	if max < 1 {
		max = 1
	}
	return &Store{keys: map[string]struct{}{}, max: max}
}

// Has reports whether an event with the given dedup key is currently held.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

// Append adds events in arrival order, skipping any whose dedup key is
// already present, then trims the oldest events down to the cap. Returns
// the events actually appended.
func (s *Store) Append(batch []ParsedEvent) []ParsedEvent {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	added := make([]ParsedEvent, 0, len(batch))
	for _, e := range batch {
		k := e.DedupKey()
		if _, dup := s.keys[k]; dup {
			continue
		}
		s.keys[k] = struct{}{}
		s.events = append(s.events, e)
		added = append(added, e)
		s.total++
	}
	if len(added) == 0 {
		return nil
	}
	if over := len(s.events) - s.max; over > 0 {
		for _, old := range s.events[:over] {
			delete(s.keys, old.DedupKey())
		}
		s.events = append(s.events[:0:0], s.events[over:]...)
		s.dropped += uint64(over)
	}
	s.gen++
	return added
}

// Snapshot copies the current contents under the read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ParsedEvent, len(s.events))
	copy(out, s.events)
	return Snapshot{Events: out, ID: s.gen}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Clear empties the store without resetting counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.keys = map[string]struct{}{}
	s.gen++
}

// Stats returns total appended and cap-trimmed counts.
func (s *Store) Stats() (total, dropped uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total, s.dropped
}
