package group

import (
	"regexp"
	"sort"
	"strconv"

	"tailview/internal/model"
)

// Mode selects how the visible event sequence is partitioned.
type Mode string

const (
	ModeNone       Mode = "none"
	ModeStream     Mode = "stream"
	ModeInvocation Mode = "invocation"
)

// Meta is per-section summary metadata. Invocation fields are zero for
// stream sections.
type Meta struct {
	LogCount        int     `json:"logCount"`
	HasError        bool    `json:"hasError"`
	FirstTimestamp  int64   `json:"firstTimestamp"`
	LastTimestamp   int64   `json:"lastTimestamp"`
	RequestID       string  `json:"requestId,omitempty"`
	Duration        float64 `json:"duration,omitempty"`       // ms
	MemoryUsed      int     `json:"memoryUsed,omitempty"`     // MB
	MemoryAllocated int     `json:"memoryAllocated,omitempty"` // MB
	InProgress      bool    `json:"inProgress,omitempty"`
	InitDuration    float64 `json:"initDuration,omitempty"` // ms
}

// Section is one labeled partition of the visible events. Collapse state
// is a presentation concern keyed by ID; IDs are stable across
// recomputation so it survives.
type Section struct {
	ID     string
	Label  string
	Events []model.ParsedEvent
	Meta   Meta
}

var (
	reStart      = regexp.MustCompile(`^START RequestId:\s+(\S+)`)
	reEnd        = regexp.MustCompile(`^END RequestId:\s+(\S+)`)
	reReport     = regexp.MustCompile(`^REPORT RequestId:\s+(\S+)`)
	reInitReport = regexp.MustCompile(`^INIT_REPORT\s`)
	reDuration   = regexp.MustCompile(`Duration:\s*([0-9.]+)\s*ms`)
	reInitDur    = regexp.MustCompile(`Init Duration:\s*([0-9.]+)\s*ms`)
	reMemSize    = regexp.MustCompile(`Memory Size:\s*([0-9]+)\s*MB`)
	reMemUsed    = regexp.MustCompile(`Max Memory Used:\s*([0-9]+)\s*MB`)
)

// Group partitions visible events into sections. ModeNone yields nil (the
// caller renders a flat list). errorCategory is the highest-severity
// configured category; a section containing it reports HasError.
func Group(events []model.ParsedEvent, mode Mode, errorCategory string) []Section {
	switch mode {
	case ModeStream:
		return byStream(events, errorCategory)
	case ModeInvocation:
		return byInvocation(events, errorCategory)
	default:
		return nil
	}
}

func byStream(events []model.ParsedEvent, errorCategory string) []Section {
	index := map[string]int{}
	var sections []Section
	for _, e := range events {
		name := e.StreamName
		i, ok := index[name]
		if !ok {
			label := name
			if label == "" {
				label = "(no stream)"
			}
			i = len(sections)
			index[name] = i
			sections = append(sections, Section{ID: "stream:" + name, Label: label})
		}
		addMember(&sections[i], e, errorCategory)
	}
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Meta.FirstTimestamp < sections[j].Meta.FirstTimestamp
	})
	return sections
}

func byInvocation(events []model.ParsedEvent, errorCategory string) []Section {
	var sections []Section
	byRequest := map[string]int{} // request id -> section index
	current := -1                 // open invocation receiving unmarked lines
	other := -1                   // catch-all for lines outside any invocation

	appendTo := func(idx int, e model.ParsedEvent) {
		addMember(&sections[idx], e, errorCategory)
	}

	for _, e := range events {
		msg := e.Message
		if m := reStart.FindStringSubmatch(msg); m != nil {
			id := m[1]
			idx, ok := byRequest[id]
			if !ok {
				idx = len(sections)
				byRequest[id] = idx
				sections = append(sections, Section{
					ID:    "req:" + id,
					Label: id,
					Meta:  Meta{RequestID: id, InProgress: true},
				})
			}
			appendTo(idx, e)
			current = idx
			continue
		}
		if m := reReport.FindStringSubmatch(msg); m != nil {
			id := m[1]
			idx, ok := byRequest[id]
			if !ok {
				// Report without a seen start: still a closed section.
				idx = len(sections)
				byRequest[id] = idx
				sections = append(sections, Section{ID: "req:" + id, Label: id, Meta: Meta{RequestID: id}})
			}
			appendTo(idx, e)
			s := &sections[idx]
			s.Meta.InProgress = false
			if d := reDuration.FindStringSubmatch(msg); d != nil {
				s.Meta.Duration, _ = strconv.ParseFloat(d[1], 64)
			}
			if d := reInitDur.FindStringSubmatch(msg); d != nil {
				s.Meta.InitDuration, _ = strconv.ParseFloat(d[1], 64)
			}
			if d := reMemSize.FindStringSubmatch(msg); d != nil {
				s.Meta.MemoryAllocated, _ = strconv.Atoi(d[1])
			}
			if d := reMemUsed.FindStringSubmatch(msg); d != nil {
				s.Meta.MemoryUsed, _ = strconv.Atoi(d[1])
			}
			if current == idx {
				current = -1
			}
			continue
		}
		if m := reEnd.FindStringSubmatch(msg); m != nil {
			if idx, ok := byRequest[m[1]]; ok {
				appendTo(idx, e)
				continue
			}
		}
		if reInitReport.MatchString(msg) {
			idx := len(sections)
			sections = append(sections, Section{ID: "init:" + e.DedupKey(), Label: "Init"})
			appendTo(idx, e)
			if d := reInitDur.FindStringSubmatch(msg); d != nil {
				sections[idx].Meta.InitDuration, _ = strconv.ParseFloat(d[1], 64)
			}
			continue
		}
		if current >= 0 {
			appendTo(current, e)
			continue
		}
		if other < 0 {
			other = len(sections)
			sections = append(sections, Section{ID: "other", Label: "Other logs"})
		}
		appendTo(other, e)
	}
	return sections
}

func addMember(s *Section, e model.ParsedEvent, errorCategory string) {
	if s.Meta.LogCount == 0 || e.Timestamp < s.Meta.FirstTimestamp {
		s.Meta.FirstTimestamp = e.Timestamp
	}
	if e.Timestamp > s.Meta.LastTimestamp {
		s.Meta.LastTimestamp = e.Timestamp
	}
	if errorCategory != "" && e.Category == errorCategory {
		s.Meta.HasError = true
	}
	s.Events = append(s.Events, e)
	s.Meta.LogCount++
}
