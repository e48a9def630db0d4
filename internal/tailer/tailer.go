package tailer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"tailview/internal/backend"
	"tailview/internal/classify"
	"tailview/internal/merge"
	"tailview/internal/model"
	"tailview/internal/parse"
	"tailview/internal/transport"
	"tailview/internal/util/logx"
)

// State of the tailing session. Owned exclusively by the Tailer.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StatePolling
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StatePolling:
		return "polling"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Transport kind names reported through OnTransportChanged.
const (
	KindStream = "stream"
	KindPoll   = "poll"
)

// Callbacks is the presentation boundary. Callbacks are invoked from the
// Tailer's delivery path and must not call Stop synchronously.
type Callbacks struct {
	// OnEvents delivers newly appended parsed events.
	OnEvents func(added []model.ParsedEvent)
	// OnTransportChanged reports KindStream or KindPoll.
	OnTransportChanged func(kind string)
	// OnAdvisory reports non-fatal conditions (sampling, failover).
	OnAdvisory func(message string)
	// OnFatal reports conditions needing out-of-band action; the session
	// is stopped when it fires.
	OnFatal func(err error)
}

const (
	DefaultMaxLogCount       = 10000
	DefaultSamplingThreshold = 500
)

// Options are session policy knobs. Zero values take the defaults.
type Options struct {
	MaxLogCount         int
	SamplingThreshold   int
	FragmentToleranceMS int64
	Poll                transport.PollOptions
}

func (o Options) withDefaults() Options {
	if o.MaxLogCount <= 0 {
		o.MaxLogCount = DefaultMaxLogCount
	}
	if o.SamplingThreshold <= 0 {
		o.SamplingThreshold = DefaultSamplingThreshold
	}
	if o.FragmentToleranceMS <= 0 {
		o.FragmentToleranceMS = merge.DefaultToleranceMS
	}
	return o
}

// Tailer keeps the ingestion store in sync with a remote log group. It
// owns exactly one active transport, fails over between push and poll,
// and routes every delivered batch through merge, dedup and
// classification before appending. Single start/stop lifecycle: a
// stopped Tailer is not restarted.
type Tailer struct {
	opts       Options
	backend    backend.Backend
	classifier *classify.Classifier
	merger     *merge.Merger
	cb         Callbacks
	store      *model.Store

	mu        sync.Mutex
	state     State
	group     string
	runCtx    context.Context
	runCancel context.CancelFunc
	stream    *transport.Stream
	poller    *transport.Poller
	lastClean int64 // max timestamp of the last clean (sub-threshold) streamed batch

	lastEvent atomic.Int64 // highest timestamp appended to the store

	// cbMu gates all callback delivery; Stop closes the gate after
	// draining in-flight deliveries.
	cbMu    sync.Mutex
	stopped bool
}

func New(b backend.Backend, classifier *classify.Classifier, cb Callbacks, opts Options) *Tailer {
	opts = opts.withDefaults()
	t := &Tailer{
		opts:       opts,
		backend:    b,
		classifier: classifier,
		merger:     &merge.Merger{ToleranceMS: opts.FragmentToleranceMS},
		cb:         cb,
		store:      model.NewStore(opts.MaxLogCount),
	}
	b.Subscribe(t)
	return t
}

// Store exposes the ingestion store for the read-side engines. Readers
// must work on snapshots.
func (t *Tailer) Store() *model.Store { return t.store }

func (t *Tailer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start opens the session: push first, polling as the fallback. A failed
// push open is not an error, just a degraded start.
func (t *Tailer) Start(ctx context.Context, group string) error {
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return fmt.Errorf("tailer: cannot start from state %s", t.state)
	}
	t.group = group
	t.runCtx, t.runCancel = context.WithCancel(ctx)
	t.stream = transport.NewStream(t.backend, group)
	t.poller = transport.NewPoller(t.backend, group, t.opts.Poll,
		t.lastEvent.Load, t.handlePollBatch, t.handlePollError)

	if err := t.stream.Start(t.runCtx); err != nil {
		logx.Warnf("tailer: push open failed, falling back to polling: %v", err)
		t.startPollingLocked(0)
		t.mu.Unlock()
		t.emit(func() { t.notifyTransport(KindPoll) })
		return nil
	}
	t.state = StateStreaming
	t.mu.Unlock()
	t.emit(func() { t.notifyTransport(KindStream) })
	return nil
}

// Stop tears the session down from any state. Idempotent; when it
// returns, no further callbacks fire.
func (t *Tailer) Stop() {
	t.mu.Lock()
	stream := t.stream
	poller := t.poller
	cancel := t.runCancel
	t.state = StateStopped
	t.lastClean = 0
	t.mu.Unlock()

	if stream != nil && stream.IsActive() {
		stream.Stop()
	}
	if poller != nil {
		poller.Stop()
	}
	if cancel != nil {
		cancel()
	}
	t.cbMu.Lock()
	t.stopped = true
	t.cbMu.Unlock()
}

// Clear wipes the visible view while tailing: the store empties and the
// poll cursor re-arms at now, so history is not replayed. The transport
// keeps running.
func (t *Tailer) Clear() {
	t.store.Clear()
	t.mu.Lock()
	poller := t.poller
	active := poller != nil && t.state == StatePolling
	t.mu.Unlock()
	if active {
		poller.ResetCursor()
	}
}

// OnEvents implements backend.Listener for the push session.
func (t *Tailer) OnEvents(events []model.RawEvent, reportedCount int) {
	t.mu.Lock()
	if t.state != StateStreaming {
		t.mu.Unlock()
		return
	}
	if reportedCount >= t.opts.SamplingThreshold {
		// The backend is sampling: this batch is lossy. Replay from the
		// last clean timestamp over the poll transport.
		t.stream.Stop()
		seed := int64(0)
		if t.lastClean > 0 {
			seed = t.lastClean + 1
		}
		t.startPollingLocked(seed)
		t.mu.Unlock()
		t.emit(func() {
			t.notifyAdvisory(fmt.Sprintf("high log volume: the stream reported %d events and may be sampled; switching to polling", reportedCount))
			t.notifyTransport(KindPoll)
		})
		return
	}
	added, maxTS := t.ingestLocked(events)
	if maxTS > t.lastClean {
		t.lastClean = maxTS
	}
	t.mu.Unlock()
	if len(added) > 0 {
		t.emit(func() { t.notifyEvents(added) })
	}
}

// OnError implements backend.Listener. Connectivity and credential
// conditions are fatal; anything else falls over to polling.
func (t *Tailer) OnError(message string) {
	t.mu.Lock()
	if t.state == StateStopped {
		t.mu.Unlock()
		return
	}
	if isConnectivityError(message) {
		stream := t.stream
		poller := t.poller
		cancel := t.runCancel
		t.state = StateStopped
		t.lastClean = 0
		t.mu.Unlock()
		if stream != nil && stream.IsActive() {
			stream.Stop()
		}
		if poller != nil {
			poller.Stop()
		}
		if cancel != nil {
			cancel()
		}
		t.cbMu.Lock()
		if !t.stopped && t.cb.OnFatal != nil {
			t.cb.OnFatal(errors.New(humanize(message)))
		}
		t.stopped = true
		t.cbMu.Unlock()
		return
	}
	if t.state != StateStreaming {
		t.mu.Unlock()
		t.emit(func() { t.notifyAdvisory("log source error: " + message) })
		return
	}
	// Transport-local: do not retry the stream that just failed.
	t.stream.Stop()
	seed := int64(0)
	if t.lastClean > 0 {
		seed = t.lastClean + 1
	}
	t.startPollingLocked(seed)
	t.mu.Unlock()
	t.emit(func() {
		t.notifyAdvisory("stream error, switching to polling: " + message)
		t.notifyTransport(KindPoll)
	})
}

// OnSessionEnd implements backend.Listener: the backend hit its push
// session limit. One reconnect attempt, then polling.
func (t *Tailer) OnSessionEnd() {
	t.mu.Lock()
	if t.state != StateStreaming {
		t.mu.Unlock()
		return
	}
	t.state = StateReconnecting
	if err := t.stream.Start(t.runCtx); err == nil {
		t.state = StateStreaming
		t.mu.Unlock()
		logx.Infof("tailer: push session ended, reconnected")
		return
	}
	seed := int64(0)
	if t.lastClean > 0 {
		seed = t.lastClean + 1
	}
	t.startPollingLocked(seed)
	t.mu.Unlock()
	t.emit(func() {
		t.notifyAdvisory("stream session ended and reconnect failed; switching to polling")
		t.notifyTransport(KindPoll)
	})
}

func (t *Tailer) handlePollBatch(events []model.RawEvent) {
	t.mu.Lock()
	if t.state != StatePolling {
		t.mu.Unlock()
		return
	}
	added, _ := t.ingestLocked(events)
	t.mu.Unlock()
	if len(added) > 0 {
		t.emit(func() { t.notifyEvents(added) })
	}
}

func (t *Tailer) handlePollError(err error) {
	// The poll loop retries on its own cadence; just surface it.
	t.emit(func() { t.notifyAdvisory("poll request failed (will retry): " + err.Error()) })
}

// ingestLocked runs merge -> dedup -> classify -> append for one batch.
// Returns the appended events and the batch's max raw timestamp.
func (t *Tailer) ingestLocked(events []model.RawEvent) ([]model.ParsedEvent, int64) {
	merged := t.merger.Merge(events)
	var maxTS int64
	seen := map[string]struct{}{}
	fresh := make([]model.RawEvent, 0, len(merged))
	for _, e := range merged {
		if e.Timestamp > maxTS {
			maxTS = e.Timestamp
		}
		k := e.DedupKey()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if t.store.Has(k) {
			continue
		}
		fresh = append(fresh, e)
	}
	added := t.store.Append(parse.Events(fresh, t.classifier))
	for _, e := range added {
		if e.Timestamp > t.lastEvent.Load() {
			t.lastEvent.Store(e.Timestamp)
		}
	}
	return added, maxTS
}

func (t *Tailer) startPollingLocked(seedCursor int64) {
	if seedCursor > 0 {
		t.poller.SetCursor(seedCursor)
	}
	if err := t.poller.Start(t.runCtx); err != nil {
		logx.Errorf("tailer: poller start: %v", err)
	}
	t.state = StatePolling
}

// emit runs f under the delivery gate so Stop can drain in-flight
// callbacks and guarantee silence afterwards.
func (t *Tailer) emit(f func()) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	if t.stopped {
		return
	}
	f()
}

func (t *Tailer) notifyEvents(added []model.ParsedEvent) {
	if t.cb.OnEvents != nil {
		t.cb.OnEvents(added)
	}
}

func (t *Tailer) notifyTransport(kind string) {
	if t.cb.OnTransportChanged != nil {
		t.cb.OnTransportChanged(kind)
	}
}

func (t *Tailer) notifyAdvisory(msg string) {
	logx.Infof("tailer: %s", msg)
	if t.cb.OnAdvisory != nil {
		t.cb.OnAdvisory(msg)
	}
}
