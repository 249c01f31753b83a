// Package mock provides a scriptable test double for recognize.Engine.
//
// Tests drive the engine by calling Emit with the events the subscriber
// should receive, and inspect StartCalls/StopCalls to verify lifecycle
// handling such as auto-restart.
package mock

import (
	"context"
	"sync"

	"github.com/Johnwalk12/fluentspeak/pkg/recognize"
)

// Engine is a mock implementation of recognize.Engine.
type Engine struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StartCalls counts Start invocations that were not no-ops.
	StartCalls int

	// StopCalls counts Stop invocations that were not no-ops.
	StopCalls int

	running    bool
	subscriber func(recognize.Event)
}

// Start marks the engine running. No-op when already running.
func (e *Engine) Start(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	if e.StartErr != nil {
		return e.StartErr
	}
	e.running = true
	e.StartCalls++
	return nil
}

// Stop marks the engine stopped. No-op when already stopped.
// It does not emit KindEnded on its own; tests emit events explicitly.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false
	e.StopCalls++
	return nil
}

// Subscribe replaces the current subscriber.
func (e *Engine) Subscribe(fn func(recognize.Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscriber = fn
}

// Emit delivers ev to the current subscriber synchronously. An emitted
// KindEnded also marks the engine stopped, matching a spontaneously
// terminating capability.
func (e *Engine) Emit(ev recognize.Event) {
	e.mu.Lock()
	if ev.Kind == recognize.KindEnded {
		e.running = false
	}
	fn := e.subscriber
	e.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Running reports whether the engine is currently started.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Counts returns the recorded Start and Stop call counts.
func (e *Engine) Counts() (starts, stops int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.StartCalls, e.StopCalls
}

var _ recognize.Engine = (*Engine)(nil)
