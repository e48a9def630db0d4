// Package backend defines the boundary to the remote log source. The
// core never talks to a log service directly; it consumes this contract.
// Local and Demo are in-repo implementations for tailing files and for
// demo data; the real remote backend lives outside this module.
package backend

import (
	"context"

	"tailview/internal/model"
)

// Listener receives asynchronous push-session notifications. Registered
// once, before the first StartPush.
type Listener interface {
	// OnEvents delivers a push batch. reportedCount is the backend's own
	// count for the batch, which can exceed len(events) under sampling.
	OnEvents(events []model.RawEvent, reportedCount int)
	// OnError reports a session error as an opaque message string.
	OnError(message string)
	// OnSessionEnd signals the backend closed the push session (e.g. a
	// fixed-duration session limit).
	OnSessionEnd()
}

type Backend interface {
	// Subscribe registers the listener for push notifications.
	Subscribe(l Listener)
	// StartPush opens a push session for the group.
	StartPush(ctx context.Context, group string) error
	// StopPush ends the push session. Best-effort.
	StopPush() error
	// PollSince returns events with timestamp >= from, capped at max.
	PollSince(ctx context.Context, group string, from int64, max int) ([]model.RawEvent, error)
}
