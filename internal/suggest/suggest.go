// Package suggest proposes classification rule sets for a log group by
// showing a redacted sample of its lines to an OpenAI-compatible model.
// Suggestions are advisory: the caller decides whether to install them
// on the classifier.
package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	altai "github.com/sashabaranov/go-openai"

	"tailview/internal/model"
	"tailview/internal/util"
)

const maxSampleLines = 200

// Client wraps the chat completion API behind the one call this program
// needs.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
}

func NewClient(apiKey, baseURL, chatModel string, timeout time.Duration) *Client {
	return &Client{apiKey: apiKey, baseURL: baseURL, model: chatModel, timeout: timeout}
}

// Enabled reports whether the client is configured to make calls.
func (c *Client) Enabled() bool { return c != nil && c.apiKey != "" }

type aiResponse struct {
	Rules []struct {
		ID       string   `json:"id"`
		Keywords []string `json:"keywords"`
		Priority int      `json:"priority"`
	} `json:"rules"`
	Confidence float64 `json:"confidence"`
}

// InferRules returns a rule set for the given sample lines, ordered by
// priority. Lines are redacted before leaving the process.
func (c *Client) InferRules(ctx context.Context, lines []string) ([]model.LevelRule, error) {
	if !c.Enabled() {
		return nil, errors.New("openai disabled")
	}
	prompt := buildRulesPrompt(lines)
	ctx2, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.call(ctx2, prompt)
	if err != nil {
		return nil, err
	}
	var out aiResponse
	if err := json.Unmarshal([]byte(resp), &out); err != nil {
		return nil, errors.New("failed to infer rules")
	}
	return toRules(out)
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	cfg := altai.DefaultConfig(c.apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	cli := altai.NewClientWithConfig(cfg)
	resp, err := cli.CreateChatCompletion(ctx, altai.ChatCompletionRequest{
		Model: c.model,
		Messages: []altai.ChatCompletionMessage{
			{Role: altai.ChatMessageRoleSystem, Content: "You classify log severities and return ONLY strict JSON following the specified contract. No prose, no code fences."},
			{Role: altai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    0.2,
		ResponseFormat: &altai.ChatCompletionResponseFormat{Type: altai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func buildRulesPrompt(lines []string) string {
	max := maxSampleLines
	if len(lines) < max {
		max = len(lines)
	}
	var b strings.Builder
	b.WriteString("Analyze the log lines below and return ONLY strict JSON matching this contract: ")
	b.WriteString(`{"rules":[{"id","keywords":[...],"priority"}],"confidence"}. `)
	b.WriteString("Each rule is a severity category (lower priority wins on ties); keywords are literal tokens found in messages of that severity.\n")
	b.WriteString("Lines:\n")
	for i := 0; i < max; i++ {
		b.WriteString(util.RedactPII(lines[i]))
		b.WriteByte('\n')
	}
	return b.String()
}

func toRules(a aiResponse) ([]model.LevelRule, error) {
	rules := make([]model.LevelRule, 0, len(a.Rules))
	for _, r := range a.Rules {
		id := strings.ToLower(strings.TrimSpace(r.ID))
		if id == "" || len(r.Keywords) == 0 {
			continue
		}
		rules = append(rules, model.LevelRule{ID: id, Keywords: r.Keywords, Priority: r.Priority})
	}
	if len(rules) == 0 {
		return nil, errors.New("no usable rules in response")
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	return rules, nil
}
