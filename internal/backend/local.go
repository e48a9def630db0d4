package backend

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/nxadm/tail"

	"tailview/internal/model"
	"tailview/internal/util/logx"
)

// Local tails a file on disk and presents it as a log group: new lines
// become push batches while a session is open, and the observed history
// serves polls. Lines are stamped at observation time; the file name is
// the stream name.
type Local struct {
	recorder
	path string

	watchMu  sync.Mutex
	watching bool
	cancel   context.CancelFunc
}

func NewLocal(path string) *Local {
	return &Local{path: path}
}

func (b *Local) StartPush(ctx context.Context, group string) error {
	if err := b.ensureWatch(); err != nil {
		return err
	}
	_ = group // a Local backend has exactly one group: its file
	b.setPushing(true)
	return nil
}

func (b *Local) StopPush() error {
	b.setPushing(false)
	return nil
}

func (b *Local) PollSince(ctx context.Context, group string, from int64, max int) ([]model.RawEvent, error) {
	if err := b.ensureWatch(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.pollSince(from, max), nil
}

// Close stops the file watcher. The backend cannot be reused afterwards.
func (b *Local) Close() {
	b.watchMu.Lock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.watchMu.Unlock()
}

func (b *Local) ensureWatch() error {
	b.watchMu.Lock()
	defer b.watchMu.Unlock()
	if b.watching {
		return nil
	}
	t, err := tail.TailFile(b.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
		Poll:      true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.watching = true
	go b.watch(ctx, t)
	return nil
}

func (b *Local) watch(ctx context.Context, t *tail.Tail) {
	defer t.Cleanup()
	stream := filepath.Base(b.path)
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return
		case l, ok := <-t.Lines:
			if !ok {
				b.watchMu.Lock()
				b.watching = false
				b.watchMu.Unlock()
				return
			}
			if l.Err != nil {
				logx.Warnf("local backend: tail %s: %v", b.path, l.Err)
				b.emitError(l.Err.Error())
				continue
			}
			b.record(model.RawEvent{
				Timestamp:  time.Now().UnixMilli(),
				Message:    l.Text,
				StreamName: stream,
				EventID:    fmt.Sprintf("%s-%d", stream, b.nextSeq()),
			})
		}
	}
}
