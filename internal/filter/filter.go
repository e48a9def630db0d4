package filter

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Knetic/govaluate"

	"tailview/internal/model"
)

// Criteria describes what the operator wants to see.
type Criteria struct {
	Text     string          // AND'd substring terms, or "dotted.path:value" for a payload field query
	Disabled map[string]bool // categories hidden from view
	Expr     string          // optional govaluate expression over payload fields
}

var reFieldQuery = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*):(.+)$`)

// Engine derives the visible subset of a store snapshot. The last result
// is memoized against the snapshot identity and the criteria, so repeated
// recomputation between appends is free.
type Engine struct {
	mu   sync.Mutex
	memo *memoEntry
}

type memoEntry struct {
	snapID      uint64
	text        string
	disabledKey string
	expr        string
	result      []model.ParsedEvent
}

func NewEngine() *Engine {
	return &Engine{}
}

// Apply filters the snapshot. Only an invalid Expr produces an error;
// everything else is a plain (possibly empty) result.
func (g *Engine) Apply(snap model.Snapshot, c Criteria) ([]model.ParsedEvent, error) {
	text := strings.TrimSpace(c.Text)
	expr := strings.TrimSpace(c.Expr)
	if text == "" && expr == "" && !anyDisabled(c.Disabled) {
		return snap.Events, nil
	}
	dk := disabledKey(c.Disabled)
	g.mu.Lock()
	if m := g.memo; m != nil && m.snapID == snap.ID && m.text == text && m.disabledKey == dk && m.expr == expr {
		res := m.result
		g.mu.Unlock()
		return res, nil
	}
	g.mu.Unlock()

	var eval *govaluate.EvaluableExpression
	if expr != "" {
		var err error
		eval, err = govaluate.NewEvaluableExpression(expr)
		if err != nil {
			return nil, err
		}
	}

	var fieldPath []string
	fieldValue := ""
	var terms []string
	if m := reFieldQuery.FindStringSubmatch(text); m != nil {
		fieldPath = strings.Split(m[1], ".")
		fieldValue = m[2]
	} else if text != "" {
		terms = strings.Fields(text)
	}

	out := make([]model.ParsedEvent, 0, len(snap.Events))
	for _, e := range snap.Events {
		if c.Disabled[e.Category] {
			continue
		}
		if fieldPath != nil {
			v, ok := resolvePath(e.Payload, fieldPath)
			if !ok || !containsFold(stringify(v), fieldValue) {
				continue
			}
		} else if len(terms) > 0 && !matchAllTerms(e.Message, terms) {
			continue
		}
		if eval != nil && !matchExpr(eval, e) {
			continue
		}
		out = append(out, e)
	}

	g.mu.Lock()
	g.memo = &memoEntry{snapID: snap.ID, text: text, disabledKey: dk, expr: expr, result: out}
	g.mu.Unlock()
	return out, nil
}

func anyDisabled(m map[string]bool) bool {
	for _, v := range m {
		if v {
			return true
		}
	}
	return false
}

func disabledKey(m map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// resolvePath walks nested payload maps by successive key lookups.
func resolvePath(payload map[string]any, path []string) (any, bool) {
	if payload == nil {
		return nil, false
	}
	var cur any = payload
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// matchAllTerms requires every term to appear somewhere in the message,
// in any order.
func matchAllTerms(message string, terms []string) bool {
	lower := strings.ToLower(message)
	for _, t := range terms {
		if !strings.Contains(lower, strings.ToLower(t)) {
			return false
		}
	}
	return true
}

func matchExpr(eval *govaluate.EvaluableExpression, e model.ParsedEvent) bool {
	params := map[string]any{}
	for k, v := range e.Payload {
		params[k] = v
	}
	params["category"] = e.Category
	params["message"] = e.Message
	params["stream"] = e.StreamName
	result, err := eval.Evaluate(params)
	if err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}
