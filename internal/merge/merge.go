package merge

import (
	"strings"

	"tailview/internal/model"
)

// DefaultToleranceMS is how far apart (in ms) fragments of one oversized
// message may be stamped and still be joined.
const DefaultToleranceMS = 100

// Merger reassembles oversized messages that the backend split across
// consecutive events. A fragment head is an event whose trimmed message
// opens a JSON object but leaves it unbalanced; following events on the
// same stream within the timestamp tolerance are absorbed verbatim until
// the braces balance. Single pass, no lookahead across batches: a head
// still unbalanced at batch end is flushed as-is.
type Merger struct {
	ToleranceMS int64
}

func NewMerger() *Merger {
	return &Merger{ToleranceMS: DefaultToleranceMS}
}

// braceScanner tracks JSON brace depth across message fragments, ignoring
// braces inside double-quoted strings.
type braceScanner struct {
	depth    int
	inString bool
	escaped  bool
}

func (b *braceScanner) feed(s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if b.escaped {
			b.escaped = false
			continue
		}
		if b.inString {
			switch c {
			case '\\':
				b.escaped = true
			case '"':
				b.inString = false
			}
			continue
		}
		switch c {
		case '"':
			b.inString = true
		case '{':
			b.depth++
		case '}':
			b.depth--
		}
	}
}

// Merge joins fragment runs in a time-ordered batch. Merged events keep
// the head fragment's timestamp, stream and event id.
func (m *Merger) Merge(batch []model.RawEvent) []model.RawEvent {
	out := make([]model.RawEvent, 0, len(batch))
	for i := 0; i < len(batch); {
		head := batch[i]
		if !strings.HasPrefix(strings.TrimSpace(head.Message), "{") {
			out = append(out, head)
			i++
			continue
		}
		var sc braceScanner
		sc.feed(head.Message)
		if sc.depth <= 0 {
			out = append(out, head)
			i++
			continue
		}
		var b strings.Builder
		b.WriteString(head.Message)
		j := i + 1
		for j < len(batch) && sc.depth > 0 {
			next := batch[j]
			if next.StreamName != head.StreamName {
				break
			}
			if delta := next.Timestamp - head.Timestamp; delta > m.ToleranceMS || delta < -m.ToleranceMS {
				break
			}
			b.WriteString(next.Message)
			sc.feed(next.Message)
			j++
		}
		merged := head
		merged.Message = b.String()
		out = append(out, merged)
		i = j
	}
	return out
}
