package parse

import (
	"encoding/json"
	"strings"
	"time"

	"tailview/internal/classify"
	"tailview/internal/model"
)

const timeLayout = "2006-01-02 15:04:05.000"

// Payload attempts a strict JSON object parse of the message. Only
// brace-delimited messages are tried; anything else, or any parse error,
// yields nil (never an error — see the pipeline error taxonomy).
func Payload(message string) map[string]any {
	t := strings.TrimSpace(message)
	if !strings.HasPrefix(t, "{") || !strings.HasSuffix(t, "}") {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(t), &m); err != nil {
		return nil
	}
	return m
}

// Event enriches one raw event: payload parse, classification, display time.
func Event(raw model.RawEvent, c *classify.Classifier) model.ParsedEvent {
	payload := Payload(raw.Message)
	return model.ParsedEvent{
		RawEvent:      raw,
		Payload:       payload,
		Category:      c.Classify(raw.Message, payload),
		FormattedTime: time.UnixMilli(raw.Timestamp).Format(timeLayout),
	}
}

// Events enriches a batch, preserving order.
func Events(batch []model.RawEvent, c *classify.Classifier) []model.ParsedEvent {
	out := make([]model.ParsedEvent, len(batch))
	for i, raw := range batch {
		out[i] = Event(raw, c)
	}
	return out
}
