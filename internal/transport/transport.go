package transport

import "context"

// Transport is one delivery mechanism for a tailing session. Exactly one
// transport is active at a time; the tailer enforces that.
type Transport interface {
	Start(ctx context.Context) error
	Stop()
	IsActive() bool
	// ResetCursor re-arms any replay-suppression cursor to "now". No-op
	// for transports without one.
	ResetCursor()
}
