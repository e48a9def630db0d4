package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tailview/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Demo {
		t.Fatalf("no -file must select the demo source")
	}
	if cfg.MaxLogs != 10000 || cfg.PollEvery != 2*time.Second || cfg.Lookback != 15*time.Minute {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.GroupBy != "none" {
		t.Fatalf("group-by default: %s", cfg.GroupBy)
	}
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load([]string{
		"-file", "/var/log/app.log", "-group", "/aws/lambda/orders",
		"-max-logs", "500", "-disable", "debug, info ,", "-group-by", "invocation",
		"-filter", "payload.code:500", "-export", "csv", "-out", "x.csv",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Demo {
		t.Fatalf("-file must disable the demo source")
	}
	if len(cfg.Disabled) != 2 || cfg.Disabled[0] != "debug" || cfg.Disabled[1] != "info" {
		t.Fatalf("disabled=%v", cfg.Disabled)
	}
	if cfg.GroupBy != "invocation" || cfg.ExportFormat != "csv" {
		t.Fatalf("parsed: %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	if _, err := Load([]string{"-group-by", "color"}); err == nil {
		t.Fatalf("bad group-by accepted")
	}
	if _, err := Load([]string{"-export", "xml", "-out", "x"}); err == nil {
		t.Fatalf("bad export format accepted")
	}
	if _, err := Load([]string{"-export", "csv"}); err == nil {
		t.Fatalf("export without out accepted")
	}
}

func TestRulesFromFile(t *testing.T) {
	cfg := &Config{}
	rules, err := cfg.Rules()
	if err != nil || len(rules) == 0 {
		t.Fatalf("default rules: %v %v", rules, err)
	}

	p := filepath.Join(t.TempDir(), "rules.json")
	custom := []model.LevelRule{{ID: "sev1", Priority: 0, Keywords: []string{"outage"}}}
	b, _ := json.Marshal(custom)
	if err := os.WriteFile(p, b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.RulesPath = p
	rules, err = cfg.Rules()
	if err != nil || len(rules) != 1 || rules[0].ID != "sev1" {
		t.Fatalf("custom rules: %v %v", rules, err)
	}

	cfg.RulesPath = filepath.Join(t.TempDir(), "missing.json")
	if _, err := cfg.Rules(); err == nil {
		t.Fatalf("missing rules file accepted")
	}
}
