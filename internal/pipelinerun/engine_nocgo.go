//go:build !cgo

package pipelinerun

import (
	"context"
	"sync"
	"time"
)

// simEngine is a deterministic in-memory stand-in for gstEngine, used
// whenever cgo (and therefore go-gst) is unavailable: in unit tests and
// on developer hosts without GStreamer installed. It never touches real
// hardware; Start reaches playing immediately unless ctx is already
// done, in which case it returns ctx.Err().
type simEngine struct {
	mu        sync.Mutex
	state     State
	startTime time.Time
	events    []Event
}

func newSimEngine() *simEngine {
	return &simEngine{state: StateNull}
}

func (e *simEngine) Start(ctx context.Context, pipelineString string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	e.mu.Lock()
	e.state = StatePlaying
	e.startTime = time.Now()
	e.mu.Unlock()
	return nil
}

func (e *simEngine) Stop() error {
	e.mu.Lock()
	e.state = StateNull
	e.mu.Unlock()
	return nil
}

func (e *simEngine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	// BytesTracked stays false: there's no real recsink to probe here,
	// so callers (the recording stall watchdog) must not read the
	// zero-value BytesProduced as "stalled".
	return Snapshot{State: e.state, StartTime: e.startTime}
}

func (e *simEngine) DrainEvents() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.events
	e.events = nil
	return out
}

// InjectFatal lets tests simulate a fatal bus message without a real
// media graph.
func (e *simEngine) InjectFatal(message string) {
	e.mu.Lock()
	e.state = StateError
	e.events = append(e.events, Event{Kind: EventFatal, Message: message, At: time.Now()})
	e.mu.Unlock()
}

// NewSimRuntime returns a Runtime backed by the deterministic simulated
// engine.
func NewSimRuntime() *Runtime {
	return NewRuntime(newSimEngine())
}
