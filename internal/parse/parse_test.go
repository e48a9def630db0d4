package parse

import (
	"testing"

	"tailview/internal/classify"
	"tailview/internal/model"
)

func TestPayloadStrictJSON(t *testing.T) {
	if Payload(`{"a":1}`) == nil {
		t.Fatalf("valid object should parse")
	}
	if Payload(`  {"a":1}  `) == nil {
		t.Fatalf("surrounding whitespace should be tolerated")
	}
	if Payload(`not json`) != nil {
		t.Fatalf("plain text must yield nil")
	}
	if Payload(`{"a":1`) != nil {
		t.Fatalf("truncated object must yield nil, not an error")
	}
	if Payload(`[1,2,3]`) != nil {
		t.Fatalf("non-object JSON is not a structured payload")
	}
}

func TestEvent(t *testing.T) {
	c := classify.New(model.DefaultRules())
	e := Event(model.RawEvent{Timestamp: 1700000000000, Message: `{"level":"error","msg":"boom"}`}, c)
	if e.Category != "error" {
		t.Fatalf("category=%s", e.Category)
	}
	if e.Payload == nil {
		t.Fatalf("payload should be set")
	}
	if e.FormattedTime == "" {
		t.Fatalf("formatted time missing")
	}

	e = Event(model.RawEvent{Timestamp: 1, Message: "no rule matches this line"}, c)
	if e.Category != model.CategoryUnknown {
		t.Fatalf("expected unknown, got %s", e.Category)
	}
	if e.Payload != nil {
		t.Fatalf("plain message must have nil payload")
	}
}
