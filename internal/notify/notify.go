// Package notify defines the presentation contract the recording core calls.
//
// The core never manipulates presentation directly: it reports session state
// changes, per-widget status lines, and transient global messages through a
// [Notifier], and implementations render them. Two implementations ship with
// FluentSpeak: [Logger], which writes to slog, and [Hub], which pushes JSON
// messages to the embedding browser page over WebSocket.
package notify

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Level categorises a transient global message.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
)

// DefaultDismissAfter is how long a message stays visible unless dismissed.
const DefaultDismissAfter = 5 * time.Second

// Message is one transient, dismissible global notification.
type Message struct {
	// ID uniquely identifies the message so it can be dismissed individually.
	ID string `json:"id"`

	// Level is the message category.
	Level Level `json:"level"`

	// Text is the human-readable message body.
	Text string `json:"text"`

	// DismissAfter is the auto-dismiss delay.
	DismissAfter time.Duration `json:"dismiss_after"`
}

// NewMessage builds a Message with a fresh id and the default dismiss delay.
func NewMessage(level Level, text string) Message {
	return Message{
		ID:           uuid.NewString(),
		Level:        level,
		Text:         text,
		DismissAfter: DefaultDismissAfter,
	}
}

// Notifier receives everything the recording core wants presented.
//
// Implementations must be safe for concurrent use and must not block the
// caller; the core invokes these from its state transitions.
type Notifier interface {
	// Message shows a transient global message.
	Message(msg Message)

	// Status shows a short status line scoped to one widget
	// (e.g. "Recording...", "Processing recording...").
	Status(sessionID, text string)

	// RecordingChanged reports that a session entered or left the
	// recording state, so the widget's button can be re-rendered.
	RecordingChanged(sessionID string, recording bool)
}

// Logger is a Notifier that writes notifications to slog. Used as the
// fallback when no UI hub is connected, and in tests.
type Logger struct{}

// Message logs the message at a level matching its category.
func (Logger) Message(msg Message) {
	switch msg.Level {
	case LevelError:
		slog.Error(msg.Text, "message_id", msg.ID)
	case LevelWarning:
		slog.Warn(msg.Text, "message_id", msg.ID)
	default:
		slog.Info(msg.Text, "message_id", msg.ID, "level", string(msg.Level))
	}
}

// Status logs the status line.
func (Logger) Status(sessionID, text string) {
	slog.Info("widget status", "session_id", sessionID, "status", text)
}

// RecordingChanged logs the state change.
func (Logger) RecordingChanged(sessionID string, recording bool) {
	slog.Info("recording state changed", "session_id", sessionID, "recording", recording)
}

var _ Notifier = Logger{}
