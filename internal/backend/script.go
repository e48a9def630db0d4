package backend

import (
	"context"
	"sync"

	"tailview/internal/model"
)

// Scripted is a backend whose behavior is driven by the test (or demo)
// harness: push notifications are emitted explicitly and polls answer
// through a pluggable function.
type Scripted struct {
	mu         sync.Mutex
	listener   Listener
	startErr   error
	startCalls int
	stopCalls  int
	pollFn     func(from int64, max int) ([]model.RawEvent, error)
	pollCalls  []int64
}

func NewScripted() *Scripted {
	return &Scripted{}
}

func (b *Scripted) Subscribe(l Listener) {
	b.mu.Lock()
	b.listener = l
	b.mu.Unlock()
}

func (b *Scripted) StartPush(ctx context.Context, group string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startCalls++
	return b.startErr
}

func (b *Scripted) StopPush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopCalls++
	return nil
}

func (b *Scripted) PollSince(ctx context.Context, group string, from int64, max int) ([]model.RawEvent, error) {
	b.mu.Lock()
	fn := b.pollFn
	b.pollCalls = append(b.pollCalls, from)
	b.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(from, max)
}

// FailStartPush makes subsequent StartPush calls return err (nil restores
// success).
func (b *Scripted) FailStartPush(err error) {
	b.mu.Lock()
	b.startErr = err
	b.mu.Unlock()
}

// AnswerPolls installs the poll response function.
func (b *Scripted) AnswerPolls(fn func(from int64, max int) ([]model.RawEvent, error)) {
	b.mu.Lock()
	b.pollFn = fn
	b.mu.Unlock()
}

// EmitEvents pushes a batch to the listener, as the remote session would.
func (b *Scripted) EmitEvents(events []model.RawEvent, reportedCount int) {
	if l := b.currentListener(); l != nil {
		l.OnEvents(events, reportedCount)
	}
}

func (b *Scripted) EmitError(msg string) {
	if l := b.currentListener(); l != nil {
		l.OnError(msg)
	}
}

func (b *Scripted) EmitSessionEnd() {
	if l := b.currentListener(); l != nil {
		l.OnSessionEnd()
	}
}

func (b *Scripted) currentListener() Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listener
}

func (b *Scripted) StartCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startCalls
}

func (b *Scripted) StopCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopCalls
}

// PollFroms returns the "from" timestamp of every poll seen so far.
func (b *Scripted) PollFroms() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int64, len(b.pollCalls))
	copy(out, b.pollCalls)
	return out
}
