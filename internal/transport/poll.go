package transport

import (
	"context"
	"sync"
	"time"

	"tailview/internal/backend"
	"tailview/internal/model"
	"tailview/internal/util/logx"
)

// Poll cadence and windowing defaults. Policy, not protocol: override via
// PollOptions.
const (
	DefaultInterval = 2 * time.Second
	DefaultLookback = 15 * time.Minute
	DefaultMaxCount = 10000
)

type PollOptions struct {
	Interval time.Duration
	Lookback time.Duration // how far back the first request reaches when no events are known
	MaxCount int
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Lookback <= 0 {
		o.Lookback = DefaultLookback
	}
	if o.MaxCount <= 0 {
		o.MaxCount = DefaultMaxCount
	}
	return o
}

// Poller pulls "events since timestamp" on a fixed cadence. Requests are
// strictly sequential; a failed request is reported and retried on the
// next tick. The cursor suppresses server-side lookback overlap: events
// older than it are dropped until the first event at or past it shows up,
// after which the filter is cleared for the rest of the session.
type Poller struct {
	backend backend.Backend
	group   string
	opts    PollOptions
	deliver func([]model.RawEvent)
	onError func(error)
	lastTS  func() int64 // highest event timestamp the owner has ingested

	mu          sync.Mutex
	cursor      int64
	cursorArmed bool
	active      bool
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewPoller(b backend.Backend, group string, opts PollOptions, lastTS func() int64, deliver func([]model.RawEvent), onError func(error)) *Poller {
	return &Poller{
		backend: b,
		group:   group,
		opts:    opts.withDefaults(),
		deliver: deliver,
		onError: onError,
		lastTS:  lastTS,
	}
}

// SetCursor arms the replay filter at an explicit timestamp. Called by
// the tailer before Start when failing over from the stream.
func (p *Poller) SetCursor(ts int64) {
	p.mu.Lock()
	p.cursor = ts
	p.cursorArmed = true
	p.mu.Unlock()
}

// ResetCursor re-arms the filter at "now", so a cleared view does not
// replay history on the next tick.
func (p *Poller) ResetCursor() {
	p.SetCursor(time.Now().UnixMilli())
}

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return nil
	}
	if !p.cursorArmed {
		cursor := time.Now().UnixMilli()
		if p.lastTS() == 0 {
			cursor -= p.opts.Lookback.Milliseconds()
		}
		p.cursor = cursor
		p.cursorArmed = true
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.active = true
	done := p.done
	p.mu.Unlock()

	go p.run(runCtx, done)
	return nil
}

// Stop halts the tick loop and waits for it to drain, so no delivery
// fires after Stop returns. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()
	cancel()
	<-done
}

func (p *Poller) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	cursor := p.cursor
	armed := p.cursorArmed
	p.mu.Unlock()

	from := p.lastTS()
	if cursor > from {
		from = cursor
	}
	events, err := p.backend.PollSince(ctx, p.group, from, p.opts.MaxCount)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logx.Warnf("poll: %v", err)
		if p.onError != nil {
			p.onError(err)
		}
		return
	}
	if armed {
		kept := events[:0]
		caughtUp := false
		for _, e := range events {
			if e.Timestamp < cursor {
				continue
			}
			caughtUp = true
			kept = append(kept, e)
		}
		events = kept
		if caughtUp {
			p.mu.Lock()
			// Only disarm if nobody re-armed it meanwhile.
			if p.cursor == cursor {
				p.cursorArmed = false
			}
			p.mu.Unlock()
		}
	}
	if len(events) > 0 && ctx.Err() == nil {
		p.deliver(events)
	}
}
