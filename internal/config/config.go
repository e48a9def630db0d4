package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tailview/internal/model"
)

type Config struct {
	FilePath   string
	Group      string
	Demo       bool
	MaxLogs    int
	Tolerance  int64
	PollEvery  time.Duration
	Lookback   time.Duration
	RulesPath  string
	FilterText string
	FilterExpr string
	Disabled   []string
	GroupBy    string
	Offline    bool
	NoCache    bool

	OpenAIModel      string
	OpenAIBase       string
	OpenAITimeoutSec int

	ExportFormat string
	ExportOut    string

	ShowVersion bool
}

func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("tailview", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.FilePath, "file", "", "path to a local log file to tail (default: demo generator)")
	fs.StringVar(&cfg.Group, "group", "local", "log group label; keys the rules cache")
	fs.IntVar(&cfg.MaxLogs, "max-logs", 10000, "retained event cap; oldest events drop first")
	fs.Int64Var(&cfg.Tolerance, "merge-tolerance-ms", 100, "fragment merge time tolerance in milliseconds")
	fs.DurationVar(&cfg.PollEvery, "poll-interval", 2*time.Second, "polling transport interval")
	fs.DurationVar(&cfg.Lookback, "lookback", 15*time.Minute, "how far back the first poll reaches")
	fs.StringVar(&cfg.RulesPath, "rules", getenvDefault("TAILVIEW_RULES", ""), "path to a JSON classification rules file")
	fs.StringVar(&cfg.FilterText, "filter", "", "filter query (free text, field:value, attr:)")
	fs.StringVar(&cfg.FilterExpr, "expr", "", "filter expression, e.g. 'category == \"error\" && payload.code >= 500'")
	disabled := fs.String("disable", "", "comma-separated categories to hide")
	fs.StringVar(&cfg.GroupBy, "group-by", "none", "grouping mode: none|stream|invocation")
	fs.BoolVar(&cfg.Offline, "offline", false, "disable OpenAI rule suggestions")
	fs.BoolVar(&cfg.NoCache, "no-cache", false, "disable the suggested-rules cache (skip read/write)")
	fs.StringVar(&cfg.OpenAIModel, "openai-model", getenvDefault("TAILVIEW_OPENAI_MODEL", "gpt-5-mini"), "OpenAI model override")
	fs.StringVar(&cfg.OpenAIBase, "openai-base-url", getenvDefault("TAILVIEW_OPENAI_BASE_URL", ""), "OpenAI base URL override")
	fs.IntVar(&cfg.OpenAITimeoutSec, "openai-timeout-sec", getenvDefaultInt("TAILVIEW_OPENAI_TIMEOUT_SEC", 120), "OpenAI request timeout in seconds")
	fs.StringVar(&cfg.ExportFormat, "export", "", "export the filtered view on exit: csv|json")
	fs.StringVar(&cfg.ExportOut, "out", "", "output path for export")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Demo = cfg.FilePath == ""
	cfg.Disabled = splitList(*disabled)

	switch cfg.GroupBy {
	case "none", "stream", "invocation":
	default:
		return nil, fmt.Errorf("unknown -group-by mode %q", cfg.GroupBy)
	}
	switch cfg.ExportFormat {
	case "", "csv", "json":
	default:
		return nil, fmt.Errorf("unknown -export format %q", cfg.ExportFormat)
	}
	if cfg.ExportFormat != "" && cfg.ExportOut == "" {
		return nil, errors.New("-export requires -out path")
	}
	if cfg.MaxLogs < 1 {
		cfg.MaxLogs = 1
	}

	return cfg, nil
}

// Rules resolves the classification rule set: the -rules file when given,
// the built-in defaults otherwise.
func (c *Config) Rules() ([]model.LevelRule, error) {
	if c.RulesPath == "" {
		return model.DefaultRules(), nil
	}
	b, err := os.ReadFile(c.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("rules file: %w", err)
	}
	var rules []model.LevelRule
	if err := json.Unmarshal(b, &rules); err != nil {
		return nil, fmt.Errorf("rules file %s: %w", c.RulesPath, err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("rules file %s: no rules", c.RulesPath)
	}
	return rules, nil
}

func (c *Config) OpenAIKey() string { return os.Getenv("OPENAI_API_KEY") }

func (c *Config) String() string {
	src := c.FilePath
	if c.Demo {
		src = "demo"
	}
	return fmt.Sprintf("source=%s group=%s max-logs=%d group-by=%s offline=%v", src, c.Group, c.MaxLogs, c.GroupBy, c.Offline)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvDefaultInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}
