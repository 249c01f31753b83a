// Package recognize defines the continuous speech recognition contract for
// FluentSpeak.
//
// An [Engine] wraps a continuous recognition capability (a streaming STT
// service or an on-device recognizer). Rather than ambient handler
// reassignment, the engine delivers a small closed set of event kinds —
// results, error, ended — to a single current subscriber, so attachment and
// ordering are testable in isolation.
//
// Engines may terminate spontaneously; Start on a running engine is a silent
// no-op so that callers can restart unconditionally.
package recognize

import (
	"context"
	"errors"
)

// ErrNotAllowed indicates recognition consent was refused by the user or
// platform. Surfaced to the learner as a permission problem.
var ErrNotAllowed = errors.New("recognize: recognition not allowed")

// ErrNetwork indicates a transient network failure inside the recognition
// capability. Capture is unaffected; surfaced as a warning only.
var ErrNetwork = errors.New("recognize: network error")

// EventKind classifies engine events.
type EventKind int

const (
	// KindResults carries a batch of recognition results.
	KindResults EventKind = iota

	// KindError carries a recognition error. The engine keeps running.
	KindError

	// KindEnded signals the engine terminated, spontaneously or after Stop.
	KindEnded
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case KindResults:
		return "RESULTS"
	case KindError:
		return "ERROR"
	case KindEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// Result is one recognition fragment within a batch. Interim results replace
// one another; final results are committed.
type Result struct {
	Text    string
	IsFinal bool
}

// Event is a single engine callback payload.
type Event struct {
	Kind    EventKind
	Results []Result // set when Kind is KindResults
	Err     error    // set when Kind is KindError
}

// Engine is the continuous recognition capability.
//
// Implementations must be safe for concurrent use. Events are delivered
// sequentially to the current subscriber; a Subscribe call replaces the
// previous subscriber.
type Engine interface {
	// Start begins continuous recognition. Calling Start on an already
	// running engine is a no-op, not an error.
	Start(ctx context.Context) error

	// Stop halts recognition. A KindEnded event is delivered to the
	// subscriber. Stopping an already stopped engine is a no-op.
	Stop() error

	// Subscribe registers fn as the single current event subscriber,
	// replacing any previous registration. A nil fn discards events.
	Subscribe(fn func(Event))
}
