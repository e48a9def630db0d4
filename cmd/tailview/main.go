package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"tailview/internal/backend"
	"tailview/internal/classify"
	"tailview/internal/config"
	"tailview/internal/export"
	"tailview/internal/filter"
	"tailview/internal/group"
	"tailview/internal/model"
	"tailview/internal/suggest"
	"tailview/internal/tailer"
	"tailview/internal/transport"
	"tailview/internal/util/logx"
	"tailview/internal/version"
)

func main() {
	logx.SetLevelFromEnv()
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	if cfg.ShowVersion {
		fmt.Println("tailview", version.String())
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logx.Infof("starting tailview %s: %s", version.String(), cfg.String())
	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "tailview:", err)
		logx.Errorf("tailview exited with error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	rules, err := cfg.Rules()
	if err != nil {
		return err
	}
	if cfg.RulesPath == "" && !cfg.NoCache {
		if cached, ok := suggest.LoadCachedRules(cfg.Group); ok {
			logx.Infof("using cached suggested rules for %s", cfg.Group)
			rules = cached
		}
	}
	classifier := classify.New(rules)

	var b interface {
		backend.Backend
		Close()
	}
	if cfg.Demo {
		b = backend.NewDemo()
	} else {
		b = backend.NewLocal(cfg.FilePath)
	}
	defer b.Close()

	p := newPrinter(os.Stdout, cfg)
	tl := tailer.New(b, classifier, tailer.Callbacks{
		OnEvents:           p.printEvents,
		OnTransportChanged: func(kind string) { p.printStatus("transport: " + kind) },
		OnAdvisory:         func(msg string) { p.printStatus(msg) },
		OnFatal: func(err error) {
			p.printStatus("fatal: " + err.Error())
			// unblock the main wait; the session is already stopped
			p.fail(err)
		},
	}, tailer.Options{
		MaxLogCount:         cfg.MaxLogs,
		FragmentToleranceMS: cfg.Tolerance,
		Poll:                transport.PollOptions{Interval: cfg.PollEvery, Lookback: cfg.Lookback},
	})

	if err := tl.Start(ctx, cfg.Group); err != nil {
		return err
	}
	startSuggestion(ctx, cfg, classifier, tl, p)

	select {
	case <-ctx.Done():
	case err := <-p.failed:
		tl.Stop()
		return err
	}
	tl.Stop()

	return finish(cfg, classifier, tl)
}

// finish applies the configured filter one last time, prints the group
// summary and runs the export.
func finish(cfg *config.Config, classifier *classify.Classifier, tl *tailer.Tailer) error {
	crit := filter.Criteria{Text: cfg.FilterText, Expr: cfg.FilterExpr, Disabled: map[string]bool{}}
	for _, c := range cfg.Disabled {
		crit.Disabled[c] = true
	}
	visible, err := filter.NewEngine().Apply(tl.Store().Snapshot(), crit)
	if err != nil {
		return err
	}

	if mode := group.Mode(cfg.GroupBy); mode != group.ModeNone {
		printSections(os.Stdout, group.Group(visible, mode, classifier.TopCategory()))
	}

	switch cfg.ExportFormat {
	case "csv":
		if err := export.ToCSV(cfg.ExportOut, visible); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		logx.Infof("exported %d events to %s", len(visible), cfg.ExportOut)
	case "json":
		if err := export.ToNDJSON(cfg.ExportOut, visible); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		logx.Infof("exported %d events to %s", len(visible), cfg.ExportOut)
	}

	total, dropped := tl.Store().Stats()
	logx.Infof("session closed: %d events ingested, %d trimmed, %d visible", total, dropped, len(visible))
	return nil
}

const suggestSampleSize = 50

// startSuggestion waits for enough events to arrive, then asks the
// model for a rule set tuned to this group and installs it.
func startSuggestion(ctx context.Context, cfg *config.Config, classifier *classify.Classifier, tl *tailer.Tailer, p *printer) {
	if cfg.Offline || cfg.RulesPath != "" {
		return
	}
	cli := suggest.NewClient(cfg.OpenAIKey(), cfg.OpenAIBase, cfg.OpenAIModel, time.Duration(cfg.OpenAITimeoutSec)*time.Second)
	if !cli.Enabled() {
		return
	}
	if !cfg.NoCache {
		if _, ok := suggest.LoadCachedRules(cfg.Group); ok {
			return // already applied in run
		}
	}
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			snap := tl.Store().Snapshot()
			if len(snap.Events) < suggestSampleSize {
				continue
			}
			lines := make([]string, 0, suggestSampleSize)
			for _, e := range snap.Events[len(snap.Events)-suggestSampleSize:] {
				lines = append(lines, e.Message)
			}
			rules, err := cli.InferRules(ctx, lines)
			if err != nil {
				logx.Warnf("rule suggestion failed: %v", err)
				return
			}
			classifier.SetRules(rules)
			if !cfg.NoCache {
				if err := suggest.SaveCachedRules(cfg.Group, rules); err != nil {
					logx.Warnf("rule cache write failed: %v", err)
				}
			}
			p.printStatus(fmt.Sprintf("installed %d suggested rules", len(rules)))
			return
		}
	}()
}

type printer struct {
	mu      sync.Mutex
	out     *os.File
	cfg     *config.Config
	eng     *filter.Engine
	crit    filter.Criteria
	snapSeq uint64
	styles  map[string]lipgloss.Style
	status  lipgloss.Style

	failOnce sync.Once
	failed   chan error
}

func newPrinter(out *os.File, cfg *config.Config) *printer {
	crit := filter.Criteria{Text: cfg.FilterText, Expr: cfg.FilterExpr, Disabled: map[string]bool{}}
	for _, c := range cfg.Disabled {
		crit.Disabled[c] = true
	}
	return &printer{
		out:  out,
		cfg:  cfg,
		eng:  filter.NewEngine(),
		crit: crit,
		styles: map[string]lipgloss.Style{
			"error":   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
			"warn":    lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
			"info":    lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
			"debug":   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
			"unknown": lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		},
		status: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		failed: make(chan error, 1),
	}
}

func (p *printer) fail(err error) {
	p.failOnce.Do(func() { p.failed <- err })
}

// printEvents renders a fresh batch, honoring the configured filter.
func (p *printer) printEvents(added []model.ParsedEvent) {
	p.mu.Lock()
	p.snapSeq++
	snap := model.Snapshot{Events: added, ID: p.snapSeq}
	p.mu.Unlock()
	visible, err := p.eng.Apply(snap, p.crit)
	if err != nil {
		// a bad -expr surfaces once and the filter is dropped
		p.printStatus("filter expression error: " + err.Error())
		p.crit.Expr = ""
		visible = added
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range visible {
		st, ok := p.styles[e.Category]
		if !ok {
			st = p.styles[model.CategoryUnknown]
		}
		line := fmt.Sprintf("%s %-7s %s %s", e.FormattedTime, e.Category, e.StreamName, e.Message)
		fmt.Fprintln(p.out, st.Render(line))
	}
}

func (p *printer) printStatus(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.status.Render("-- "+msg))
}

func printSections(out *os.File, sections []group.Section) {
	for _, s := range sections {
		var extra []string
		if s.Meta.RequestID != "" {
			extra = append(extra, "request="+s.Meta.RequestID)
		}
		if s.Meta.Duration > 0 {
			extra = append(extra, fmt.Sprintf("duration=%.1fms", s.Meta.Duration))
		}
		if s.Meta.InitDuration > 0 {
			extra = append(extra, fmt.Sprintf("init=%.1fms", s.Meta.InitDuration))
		}
		if s.Meta.MemoryUsed > 0 {
			extra = append(extra, fmt.Sprintf("memory=%d/%dMB", s.Meta.MemoryUsed, s.Meta.MemoryAllocated))
		}
		if s.Meta.HasError {
			extra = append(extra, "errors")
		}
		if s.Meta.InProgress {
			extra = append(extra, "in progress")
		}
		suffix := ""
		if len(extra) > 0 {
			suffix = " (" + strings.Join(extra, ", ") + ")"
		}
		fmt.Fprintf(out, "%s: %d events%s\n", s.Label, s.Meta.LogCount, suffix)
	}
}
