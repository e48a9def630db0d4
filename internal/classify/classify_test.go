package classify

import (
	"fmt"
	"testing"

	"tailview/internal/model"
)

func rules() []model.LevelRule {
	return []model.LevelRule{
		{ID: "error", Priority: 0, Keywords: []string{"err"}},
		{ID: "info", Priority: 1, Keywords: []string{"started"}},
	}
}

func TestPriorityWins(t *testing.T) {
	c := New(rules())
	if got := c.Classify("err: server started", nil); got != "error" {
		t.Fatalf("expected error (priority 0), got %s", got)
	}
}

func TestWholeTokenBoundary(t *testing.T) {
	c := New(rules())
	if got := c.Classify("server restarted cleanly", nil); got != model.CategoryUnknown {
		t.Fatalf("keyword inside a word must not match, got %s", got)
	}
	if got := c.Classify("service [started] ok", nil); got != "info" {
		t.Fatalf("bracket-bounded keyword should match, got %s", got)
	}
	if got := c.Classify("(err) something", nil); got != "error" {
		t.Fatalf("paren-bounded keyword should match, got %s", got)
	}
}

func TestPayloadLevelField(t *testing.T) {
	c := New([]model.LevelRule{
		{ID: "error", Priority: 0, Keywords: []string{"error"}},
		{ID: "warn", Priority: 1, Keywords: []string{"warn", "warning"}},
	})
	if got := c.Classify("irrelevant", map[string]any{"level": "WARNING"}); got != "warn" {
		t.Fatalf("payload level should classify case-insensitively, got %s", got)
	}
	if got := c.Classify("irrelevant", map[string]any{"Severity": "error"}); got != "error" {
		t.Fatalf("casing variant field should be probed, got %s", got)
	}
	// Unrecognized field value falls back to the message scan.
	if got := c.Classify("warn: disk nearly full", map[string]any{"level": "notice"}); got != "warn" {
		t.Fatalf("fallback to message scan failed, got %s", got)
	}
}

func TestUnknownSentinel(t *testing.T) {
	c := New(rules())
	if got := c.Classify("completely unrelated text", nil); got != model.CategoryUnknown {
		t.Fatalf("expected %q, got %s", model.CategoryUnknown, got)
	}
}

func TestPatternCacheEviction(t *testing.T) {
	c := New(nil)
	c.maxCache = 4
	kws := make([]string, 8)
	for i := range kws {
		kws[i] = fmt.Sprintf("kw%d", i)
	}
	c.SetRules([]model.LevelRule{{ID: "x", Priority: 0, Keywords: kws}})
	c.Classify("no match here", nil)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.patterns) > 4 || len(c.order) > 4 {
		t.Fatalf("cache exceeded bound: %d patterns", len(c.patterns))
	}
	// Oldest-inserted keywords were evicted.
	if _, ok := c.patterns["kw0"]; ok {
		t.Fatalf("oldest entry should have been evicted")
	}
	if _, ok := c.patterns["kw7"]; !ok {
		t.Fatalf("newest entry should remain")
	}
}

func TestSetRulesInvalidatesCache(t *testing.T) {
	c := New(rules())
	c.Classify("err: boom", nil)
	c.SetRules(rules())
	c.mu.Lock()
	n := len(c.patterns)
	c.mu.Unlock()
	if n != 0 {
		t.Fatalf("rule change must drop the pattern cache, %d left", n)
	}
}

func TestTopCategory(t *testing.T) {
	c := New([]model.LevelRule{
		{ID: "info", Priority: 5, Keywords: []string{"info"}},
		{ID: "fatal", Priority: 1, Keywords: []string{"fatal"}},
	})
	if got := c.TopCategory(); got != "fatal" {
		t.Fatalf("TopCategory=%s", got)
	}
}
