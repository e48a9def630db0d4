package backend

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"tailview/internal/model"
)

// Demo generates Lambda-style invocation logs so the pipeline can be
// exercised without a file or a remote service.
type Demo struct {
	recorder
	Interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewDemo() *Demo {
	return &Demo{Interval: 400 * time.Millisecond}
}

func (b *Demo) StartPush(ctx context.Context, group string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel == nil {
		runCtx, cancel := context.WithCancel(context.Background())
		b.cancel = cancel
		go b.generate(runCtx)
	}
	b.setPushing(true)
	return nil
}

func (b *Demo) StopPush() error {
	b.setPushing(false)
	return nil
}

func (b *Demo) PollSince(ctx context.Context, group string, from int64, max int) ([]model.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.pollSince(from, max), nil
}

func (b *Demo) Close() {
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.mu.Unlock()
}

func (b *Demo) generate(ctx context.Context) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()
	var script []string
	stream := "demo/stream"
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if len(script) == 0 {
				script = invocationScript()
			}
			msg := script[0]
			script = script[1:]
			b.record(model.RawEvent{
				Timestamp:  time.Now().UnixMilli(),
				Message:    msg,
				StreamName: stream,
				EventID:    fmt.Sprintf("demo-%d", b.nextSeq()),
			})
		}
	}
}

// invocationScript produces one synthetic invocation: START, a few app
// lines (JSON and plain, occasionally warn/error), END, REPORT.
func invocationScript() []string {
	id := fmt.Sprintf("%08x-%04x-%04x", rand.Uint32(), rand.Intn(0xffff), rand.Intn(0xffff))
	dur := 50 + rand.Float64()*400
	mem := 40 + rand.Intn(80)
	lines := []string{
		fmt.Sprintf("START RequestId: %s Version: $LATEST", id),
		fmt.Sprintf(`{"level":"info","msg":"handling request","requestId":"%s","path":"/v1/items"}`, id),
	}
	switch rand.Intn(4) {
	case 0:
		lines = append(lines, fmt.Sprintf(`{"level":"warn","msg":"slow downstream call","latency_ms":%d}`, 200+rand.Intn(500)))
	case 1:
		lines = append(lines, "error: failed to write cache entry, retrying")
	default:
		lines = append(lines, "Database connection established")
	}
	lines = append(lines,
		fmt.Sprintf("END RequestId: %s", id),
		fmt.Sprintf("REPORT RequestId: %s Duration: %.2f ms Billed Duration: %.0f ms Memory Size: 128 MB Max Memory Used: %d MB", id, dur, dur+1, mem),
	)
	return lines
}
