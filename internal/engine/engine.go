// Package engine implements the per-connection reorder buffer, sequence
// arithmetic, concealment, reaper, and dispatch discipline for the
// packet processing engine.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nfpgo/nfp/internal/applog"
	"github.com/nfpgo/nfp/internal/pipeline"
	"github.com/nfpgo/nfp/internal/wire"
	"github.com/nfpgo/nfp/internal/workerpool"
)

const (
	// DefaultWindow is W, the reorder window's modular ring capacity.
	DefaultWindow = 32
	// DefaultTimeout is the per-connection idle timeout, renewed on every packet.
	DefaultTimeout = 10 * time.Second
	// DefaultReapPeriod is how often the reaper scans for expired connections.
	DefaultReapPeriod = 15 * time.Second
	// readinessThreshold is the number of ever-filled slots that flips a
	// connection from priming to live.
	readinessThreshold = 5
)

// PipelineFactory builds a fresh, independent Pipeline instance for a new
// connection. It is invoked exactly once per connection, on first packet.
type PipelineFactory func() *pipeline.Pipeline

// Sender is the narrow interface the engine needs from the downstream UDP
// sender: queue a processed block for the given destination port.
type Sender interface {
	Send(samples []float32, port uint16)
}

// Activity is the narrow interface the engine needs to record connection
// lifecycle events. *applog.ActivityLog satisfies this.
type Activity interface {
	Write(now time.Time, connKey uint64, event applog.Event, detail string) error
}

// Engine owns the connection table, the sender handle, and the reaper.
type Engine struct {
	mu    sync.Mutex
	conns map[uint64]*connState

	pool     *workerpool.Pool
	factory  PipelineFactory
	policy   Concealment
	sender   Sender
	logger   *log.Logger
	activity Activity

	window         int
	defaultTimeout time.Duration
	reapPeriod     time.Duration

	reapStop chan struct{}
	reapOnce sync.Once
	reapWG   sync.WaitGroup
}

// Option configures non-default tuning on construction.
type Option func(*Engine)

// WithWindow overrides the reorder window size W (default 32).
func WithWindow(w int) Option {
	return func(e *Engine) { e.window = w }
}

// WithDefaultTimeout overrides the per-connection idle timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) { e.defaultTimeout = d }
}

// WithReapPeriod overrides how often the reaper scans for expired connections.
func WithReapPeriod(d time.Duration) Option {
	return func(e *Engine) { e.reapPeriod = d }
}

// WithLogger attaches a structured logger for diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithActivity attaches a connection-lifecycle activity recorder.
func WithActivity(a Activity) Option {
	return func(e *Engine) { e.activity = a }
}

// New constructs a PacketEngine. pool executes both connection dispatch and
// the reaper tick; factory builds a fresh Pipeline per new connection.
func New(pool *workerpool.Pool, factory PipelineFactory, policy Concealment, opts ...Option) *Engine {
	e := &Engine{
		conns:          make(map[uint64]*connState),
		pool:           pool,
		factory:        factory,
		policy:         policy,
		window:         DefaultWindow,
		defaultTimeout: DefaultTimeout,
		reapPeriod:     DefaultReapPeriod,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetSender attaches the downstream sender. Must be called before the first
// packet that expects output, typically during control-glue wiring.
func (e *Engine) SetSender(s Sender) {
	e.sender = s
}

// Dispatch posts HandlePacket onto the worker pool, decoupling the receive
// I/O loop from connection processing.
func (e *Engine) Dispatch(dg wire.Inbound, srcAddr [4]byte, srcPort uint16) {
	e.pool.Submit(func() {
		e.HandlePacket(dg, srcAddr, srcPort)
	})
}

// HandlePacket runs the full per-packet algorithm under a single
// table-wide lock: lookup-or-insert, far-future reset, slot insert,
// readiness, consume-at-head (with concealment on a gap), pipeline
// evaluation, and finally — outside the lock — dispatch to the sender.
func (e *Engine) HandlePacket(dg wire.Inbound, srcAddr [4]byte, srcPort uint16) {
	k := key(srcAddr, srcPort)

	var (
		sendData      bool
		clientPort    uint16
		clientOutput  []float32
		outputIsEmpty = true
	)

	e.mu.Lock()

	cs, ok := e.conns[k]
	now := time.Now()
	if !ok {
		cs = newConnState(e.window, e.factory())
		e.conns[k] = cs
		e.recordActivity(now, k, applog.EventNew, "")
	}

	cs.lastArrive = now
	cs.deadline = now.Add(e.defaultTimeout)

	// Far-future reset: the sender jumped ahead beyond any plausible
	// reorder. Recover by treating the new sequence as the head.
	if dg.Seq >= cs.expectedSeq+2*uint64(e.window) {
		e.recordActivity(now, k, applog.EventReset, fmt.Sprintf("expected=%d arrived=%d", cs.expectedSeq, dg.Seq))
		cs.expectedSeq = dg.Seq
		cs.present = 0
	}

	slot := int(dg.Seq % uint64(e.window))
	cs.buffer[slot] = dg
	cs.present |= 1 << uint(slot)

	if !cs.initialized && popcount32(cs.present) >= readinessThreshold {
		cs.initialized = true
	}

	var input sampleBlock

	if cs.initialized {
		head := int(cs.expectedSeq % uint64(e.window))
		if cs.present&(1<<uint(head)) != 0 {
			stored := cs.buffer[head]
			clientPort = stored.OutPort
			cs.lastPort = clientPort
			input = sampleBlock(stored.Samples)

			cs.lastGood = input
			cs.recomputeFade()

			cs.present &^= 1 << uint(head)
			cs.expectedSeq++
		} else {
			input = cs.conceal(e.policy)
			clientPort = cs.lastPort
			cs.expectedSeq++
		}
		sendData = true
	} else {
		// Priming window: not enough packets seen yet. expectedSeq still
		// advances by one on this call, same as the live branches.
		input = sampleBlock{}
		clientPort = cs.lastPort
		cs.expectedSeq++
		sendData = true
	}

	in64 := make([]float64, wire.BlockSize)
	for i, v := range input {
		in64[i] = float64(v)
	}
	out64 := make([]float64, 0, wire.BlockSize)
	out64 = cs.pipeline.ProcessBlock(in64, out64)

	if len(out64) == wire.BlockSize {
		out := make([]float32, wire.BlockSize)
		for i, v := range out64 {
			out[i] = float32(v)
		}
		clientOutput = out
		outputIsEmpty = false
	}

	e.mu.Unlock()

	if !sendData {
		return
	}

	if outputIsEmpty {
		// The pipeline returned the wrong block length. Fall back to
		// silence for this packet rather than abort.
		clientOutput = make([]float32, wire.BlockSize)
	}

	if e.sender != nil {
		e.sender.Send(clientOutput, clientPort)
	}
}

// recordActivity writes a lifecycle event if an activity recorder is
// attached; a write failure is logged but never blocks packet handling.
func (e *Engine) recordActivity(now time.Time, connKey uint64, event applog.Event, detail string) {
	if e.activity == nil {
		return
	}
	if err := e.activity.Write(now, connKey, event, detail); err != nil && e.logger != nil {
		e.logger.Warn("activity log write failed", "err", err)
	}
}

// ConnCount returns the number of live connections, used by tests and
// diagnostics.
func (e *Engine) ConnCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}
