// Package pipelinerun owns the PipelineInstance state machine from
// spec §4.3: launching, health-checking and tearing down one media
// graph, with all mutation serialized through a command channel and
// external observers reading lock-free snapshots.
package pipelinerun

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/perr"
)

// State is a PipelineInstance's lifecycle state (spec §3).
type State string

const (
	StateNull    State = "null"
	StateReady   State = "ready"
	StatePaused  State = "paused"
	StatePlaying State = "playing"
	StateError   State = "error"
)

// EventKind classifies one bus message drained via DrainEvents.
type EventKind string

const (
	EventTransient EventKind = "transient"
	EventFatal     EventKind = "fatal"
	EventEOS       EventKind = "eos"
	EventWarning   EventKind = "warning"
)

// Event is one classified bus message (spec §4.3).
type Event struct {
	Kind    EventKind
	Message string
	At      time.Time
}

// Snapshot is a value copy of PipelineInstance, safe to read without
// synchronizing with the owning goroutine.
type Snapshot struct {
	State         State
	ErrorKind     string
	StartTime     time.Time
	BytesProduced uint64
	// BytesTracked reports whether BytesProduced reflects a real,
	// live-updating counter. An engine that cannot observe bytes
	// written (no recsink element in this pipeline, or a simulated
	// engine) leaves this false so callers like the recording stall
	// watchdog don't mistake an always-zero counter for a stalled
	// pipeline.
	BytesTracked  bool
	FramesEncoded uint64
}

// Engine is the real media-graph driver. gstEngine (cgo builds) wraps
// go-gst; simEngine (no-cgo builds, and tests) is a deterministic
// in-memory stand-in. Runtime owns exactly one Engine, but
// Runtime.DrainEvents calls the engine's DrainEvents from the caller's
// goroutine rather than the owner goroutine, so Engine implementations
// guard their own state with a mutex.
type Engine interface {
	// Start blocks until the pipeline reaches the playing state or ctx
	// is done.
	Start(ctx context.Context, pipelineString string) error
	// Stop tears the pipeline down to the null state. Always runs to
	// completion once called, per spec §5's cancellation rule.
	Stop() error
	State() Snapshot
	// DrainEvents returns bus messages accumulated since the last call.
	DrainEvents() []Event
}

const defaultStartDeadline = 10 * time.Second
const defaultStopDeadline = 10 * time.Second

type command struct {
	kind   commandKind
	ctx    context.Context
	pipeline string
	reply  chan error
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
)

// Runtime wraps an Engine with the single-owner command-channel
// concurrency model spec §4.3/§5 require: one goroutine owns the
// engine, external callers only ever send commands and read snapshots.
type Runtime struct {
	engine   Engine
	commands chan command
	done     chan struct{}

	snapshot atomic.Value // Snapshot
}

// NewRuntime starts the owning goroutine for engine and returns a
// Runtime ready to accept Start/Stop calls.
func NewRuntime(engine Engine) *Runtime {
	r := &Runtime{
		engine:   engine,
		commands: make(chan command, 4),
		done:     make(chan struct{}),
	}
	r.snapshot.Store(Snapshot{State: StateNull})
	go r.loop()
	return r
}

func (r *Runtime) loop() {
	for {
		select {
		case cmd := <-r.commands:
			switch cmd.kind {
			case cmdStart:
				err := r.engine.Start(cmd.ctx, cmd.pipeline)
				r.snapshot.Store(r.engine.State())
				cmd.reply <- err
			case cmdStop:
				err := r.engine.Stop()
				r.snapshot.Store(r.engine.State())
				cmd.reply <- err
			}
		case <-r.done:
			return
		}
	}
}

// Start transitions the pipeline toward playing. Cancelling ctx (or
// exceeding the default 10s deadline if ctx carries none) leaves the
// pipeline in null — either it never started or Stop is invoked to
// guarantee that (spec §5).
func (r *Runtime) Start(ctx context.Context, pipelineString string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultStartDeadline)
		defer cancel()
	}

	reply := make(chan error, 1)
	select {
	case r.commands <- command{kind: cmdStart, ctx: ctx, pipeline: pipelineString, reply: reply}:
	case <-ctx.Done():
		return fmt.Errorf("%w: start command not accepted", perr.ErrStartTimeout)
	}

	select {
	case err := <-reply:
		if err != nil {
			// Ensure we never leave a half-started instance behind.
			r.Stop(context.Background())
			return err
		}
		return nil
	case <-ctx.Done():
		r.Stop(context.Background())
		return fmt.Errorf("%w: %v", perr.ErrStartTimeout, ctx.Err())
	}
}

// Stop transitions to null. Idempotent, and always runs to completion
// once accepted — spec §5 explicitly forbids a partial stop.
func (r *Runtime) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case r.commands <- command{kind: cmdStop, reply: reply}:
	case <-r.done:
		return nil
	}
	return <-reply
}

// Snapshot returns the last known PipelineInstance state. Safe to call
// from any goroutine.
func (r *Runtime) Snapshot() Snapshot {
	return r.snapshot.Load().(Snapshot)
}

// DrainEvents pulls classified bus messages accumulated since the last
// call.
func (r *Runtime) DrainEvents() []Event {
	return r.engine.DrainEvents()
}

// Close stops the owning goroutine. The Runtime must not be used
// afterward.
func (r *Runtime) Close() {
	close(r.done)
}
