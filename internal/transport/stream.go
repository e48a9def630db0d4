package transport

import (
	"context"
	"sync"

	"tailview/internal/backend"
	"tailview/internal/util/logx"
)

// Stream wraps the backend's push session as a Transport. Batches arrive
// through the backend's listener, not through this type; locally it only
// owns the session lifecycle, so Stop is a best-effort backend notify.
type Stream struct {
	backend backend.Backend
	group   string

	mu     sync.Mutex
	active bool
}

func NewStream(b backend.Backend, group string) *Stream {
	return &Stream{backend: b, group: group}
}

func (s *Stream) Start(ctx context.Context) error {
	if err := s.backend.StartPush(ctx, s.group); err != nil {
		return err
	}
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	return nil
}

func (s *Stream) Stop() {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()
	if !wasActive {
		return
	}
	if err := s.backend.StopPush(); err != nil {
		logx.Warnf("stream: stop push: %v", err)
	}
}

func (s *Stream) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ResetCursor is a no-op: the push session has no replay cursor.
func (s *Stream) ResetCursor() {}
