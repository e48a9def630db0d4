package classify

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"tailview/internal/model"
)

// levelFieldNames are the payload keys probed for an explicit level value,
// tried in order. Casing variants cover the common serializer conventions.
var levelFieldNames = []string{
	"level", "Level", "LEVEL", "lvl",
	"severity", "Severity", "SEVERITY",
	"log_level", "logLevel", "LogLevel",
}

// defaultCacheSize bounds the compiled keyword pattern cache.
const defaultCacheSize = 512

// Classifier assigns a category to an event from a priority-ordered rule
// set. Pure with respect to its inputs; rule edits invalidate the whole
// pattern cache.
type Classifier struct {
	mu       sync.Mutex
	rules    []model.LevelRule
	patterns map[string]*regexp.Regexp
	order    []string // cache insertion order, oldest first
	maxCache int
}

func New(rules []model.LevelRule) *Classifier {
	c := &Classifier{maxCache: defaultCacheSize}
	c.SetRules(rules)
	return c
}

// SetRules replaces the rule set and drops all compiled patterns.
func (c *Classifier) SetRules(rules []model.LevelRule) {
	sorted := make([]model.LevelRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	c.mu.Lock()
	c.rules = sorted
	c.patterns = map[string]*regexp.Regexp{}
	c.order = c.order[:0]
	c.mu.Unlock()
}

// Rules returns the rule set in priority order.
func (c *Classifier) Rules() []model.LevelRule {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.LevelRule, len(c.rules))
	copy(out, c.rules)
	return out
}

// TopCategory is the id of the highest-severity (lowest priority value)
// rule, or empty when no rules are configured.
func (c *Classifier) TopCategory() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rules) == 0 {
		return ""
	}
	return c.rules[0].ID
}

// Classify picks the category for a message. A structured payload with a
// recognized level field wins; otherwise the raw message is scanned for
// rule keywords as whole tokens. First match in priority order wins;
// nothing matching yields the unknown sentinel.
func (c *Classifier) Classify(message string, payload map[string]any) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if payload != nil {
		if id, ok := c.classifyPayload(payload); ok {
			return id
		}
	}
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if c.keywordPattern(kw).MatchString(message) {
				return r.ID
			}
		}
	}
	return model.CategoryUnknown
}

func (c *Classifier) classifyPayload(payload map[string]any) (string, bool) {
	for _, name := range levelFieldNames {
		v, ok := payload[name]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		for _, r := range c.rules {
			for _, kw := range r.Keywords {
				if strings.EqualFold(kw, s) {
					return r.ID, true
				}
			}
		}
	}
	return "", false
}

// keywordPattern returns a compiled whole-token matcher for the keyword,
// caching by lower-cased keyword with oldest-inserted-first eviction.
// Caller holds c.mu.
func (c *Classifier) keywordPattern(kw string) *regexp.Regexp {
	key := strings.ToLower(kw)
	if re, ok := c.patterns[key]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)(?:^|[\s\[\]():])` + regexp.QuoteMeta(key) + `(?:$|[\s\[\]():])`)
	if len(c.order) >= c.maxCache {
		delete(c.patterns, c.order[0])
		c.order = c.order[1:]
	}
	c.patterns[key] = re
	c.order = append(c.order, key)
	return re
}
