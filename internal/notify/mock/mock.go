// Package mock provides a recording test double for notify.Notifier.
package mock

import (
	"sync"

	"github.com/Johnwalk12/fluentspeak/internal/notify"
)

// StatusCall records a single Status invocation.
type StatusCall struct {
	SessionID string
	Text      string
}

// RecordingCall records a single RecordingChanged invocation.
type RecordingCall struct {
	SessionID string
	Recording bool
}

// Notifier is a mock implementation of notify.Notifier that records every call.
type Notifier struct {
	mu sync.Mutex

	// Messages records every Message call in order.
	Messages []notify.Message

	// StatusCalls records every Status call in order.
	StatusCalls []StatusCall

	// RecordingCalls records every RecordingChanged call in order.
	RecordingCalls []RecordingCall
}

// Message records the call.
func (n *Notifier) Message(msg notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, msg)
}

// Status records the call.
func (n *Notifier) Status(sessionID, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.StatusCalls = append(n.StatusCalls, StatusCall{SessionID: sessionID, Text: text})
}

// RecordingChanged records the call.
func (n *Notifier) RecordingChanged(sessionID string, recording bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.RecordingCalls = append(n.RecordingCalls, RecordingCall{SessionID: sessionID, Recording: recording})
}

// MessagesByLevel returns the recorded messages with the given level.
func (n *Notifier) MessagesByLevel(level notify.Level) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Message
	for _, m := range n.Messages {
		if m.Level == level {
			out = append(out, m)
		}
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = nil
	n.StatusCalls = nil
	n.RecordingCalls = nil
}

var _ notify.Notifier = (*Notifier)(nil)
