// Package transcribe coordinates the single continuous recognition engine
// across recorder sessions.
//
// The engine is an exclusively-owned resource: the [Coordinator] attaches its
// result delivery to exactly one [Sink] at a time, reassigning (never
// duplicating) it as recording sessions start and stop, and restarts the
// engine automatically when it terminates while the attached sink is still
// recording. Transcription is a best-effort enhancement — none of its
// failures ever interrupt capture.
package transcribe

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/Johnwalk12/fluentspeak/internal/notify"
	"github.com/Johnwalk12/fluentspeak/internal/observe"
	"github.com/Johnwalk12/fluentspeak/pkg/recognize"
)

// Sink receives transcription output for one recorder session.
//
// Implementations must be safe for concurrent use; the coordinator invokes
// these from engine event delivery.
type Sink interface {
	// ID identifies the sink's session, for logs.
	ID() string

	// AppendFinal commits a final transcript fragment. The sink appends it
	// to its response text followed by a single separator.
	AppendFinal(text string)

	// SetInterim replaces the sink's provisional transcript display.
	// An empty string clears it.
	SetInterim(text string)

	// Recording reports whether the sink's session is still capturing.
	// Drives the engine auto-restart decision.
	Recording() bool
}

// Coordinator owns the engine attachment. All exported methods are safe for
// concurrent use.
type Coordinator struct {
	engine   recognize.Engine
	notifier notify.Notifier
	metrics  *observe.Metrics

	mu       sync.Mutex
	attached Sink
	running  bool
	ctx      context.Context
}

// New creates a Coordinator over the given engine and subscribes to its
// events. notifier receives the user-facing recognition failures; metrics may
// be nil.
func New(engine recognize.Engine, notifier notify.Notifier, metrics *observe.Metrics) *Coordinator {
	c := &Coordinator{
		engine:   engine,
		notifier: notifier,
		metrics:  metrics,
		ctx:      context.Background(),
	}
	engine.Subscribe(c.handleEvent)
	return c
}

// Attach routes engine results to s, detaching any previously attached sink
// first, and starts the engine if it is not already running. ctx governs the
// engine's lifetime, including automatic restarts, until the next Attach.
func (c *Coordinator) Attach(ctx context.Context, s Sink) {
	c.mu.Lock()
	prev := c.attached
	c.attached = s
	c.ctx = ctx
	wasRunning := c.running
	c.running = true
	c.mu.Unlock()

	if prev != nil && prev != s {
		prev.SetInterim("")
	}

	if !wasRunning {
		if err := c.engine.Start(ctx); err != nil {
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			c.reportError(err)
		}
	}
}

// Detach stops result delivery to s. Only effective when s is the attached
// sink; a stale detach from an already-replaced sink is a no-op. The engine
// is stopped — by the mutual-exclusion invariant no other session can still
// need it.
func (c *Coordinator) Detach(s Sink) {
	c.mu.Lock()
	if c.attached != s {
		c.mu.Unlock()
		return
	}
	c.attached = nil
	c.running = false
	c.mu.Unlock()

	s.SetInterim("")
	if err := c.engine.Stop(); err != nil {
		slog.Warn("transcribe: engine stop", "session_id", s.ID(), "err", err)
	}
}

// Attached returns the currently attached sink, or nil.
func (c *Coordinator) Attached() Sink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

// EngineRunning reports whether the coordinator believes the engine is active.
func (c *Coordinator) EngineRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// handleEvent dispatches one engine event.
func (c *Coordinator) handleEvent(ev recognize.Event) {
	switch ev.Kind {
	case recognize.KindResults:
		c.deliverResults(ev.Results)
	case recognize.KindError:
		c.reportError(ev.Err)
	case recognize.KindEnded:
		c.handleEnded()
	}
}

// deliverResults partitions a result batch into final fragments (committed to
// the sink's response text) and interim fragments (replacing the sink's
// provisional display). Interim text never persists past the next batch: an
// all-final batch clears it.
func (c *Coordinator) deliverResults(results []recognize.Result) {
	c.mu.Lock()
	sink := c.attached
	c.mu.Unlock()
	if sink == nil {
		return
	}

	var interim strings.Builder
	for _, r := range results {
		if r.IsFinal {
			sink.AppendFinal(r.Text)
			if c.metrics != nil {
				c.metrics.RecordTranscript(context.Background(), "final")
			}
		} else {
			interim.WriteString(r.Text)
			if c.metrics != nil {
				c.metrics.RecordTranscript(context.Background(), "interim")
			}
		}
	}
	sink.SetInterim(interim.String())
}

// handleEnded restarts the engine when it terminated while the attached sink
// still records; otherwise the termination is accepted.
func (c *Coordinator) handleEnded() {
	c.mu.Lock()
	sink := c.attached
	c.running = false
	ctx := c.ctx
	c.mu.Unlock()

	if sink == nil || !sink.Recording() {
		return
	}

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	if err := c.engine.Start(ctx); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		// A failed restart degrades to a transient engine problem.
		c.notifier.Message(notify.NewMessage(notify.LevelWarning,
			"Speech recognition stopped unexpectedly."))
		slog.Warn("transcribe: engine restart failed", "session_id", sink.ID(), "err", err)
		return
	}

	if c.metrics != nil {
		c.metrics.EngineRestarts.Add(context.Background(), 1)
	}
	slog.Debug("transcribe: engine restarted", "session_id", sink.ID())
}

// reportError surfaces an engine error according to the taxonomy: permission
// problems are user-facing errors, network problems are transient warnings,
// anything else is logged and swallowed — capture continues regardless.
func (c *Coordinator) reportError(err error) {
	switch {
	case errors.Is(err, recognize.ErrNotAllowed):
		c.notifier.Message(notify.NewMessage(notify.LevelError,
			"Microphone access denied. Please allow microphone access to use voice recording."))
	case errors.Is(err, recognize.ErrNetwork):
		c.notifier.Message(notify.NewMessage(notify.LevelWarning,
			"Network error occurred during speech recognition."))
	default:
		slog.Debug("transcribe: engine error", "err", err)
	}
}
