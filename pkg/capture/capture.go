// Package capture defines the microphone capture contracts for FluentSpeak.
//
// The three abstractions mirror what a browser hands a recording widget:
//
//   - [Source] — requests access to the audio input device (user-permission
//     gated, may fail with [ErrPermissionDenied] or [ErrDeviceUnavailable]).
//   - [Handle] — the shared input obtained from a Source. One Handle serves
//     every recorder session on the page; consumers read frames through
//     independent taps.
//   - [Recorder] — an encoder bound to a Handle. It emits encoded chunks
//     while running and a single flush signal after Stop.
//
// Implementations are provided by adapter packages (capture/ffmpeg for local
// device capture, capture/mock for tests). All contract methods must be safe
// for concurrent use.
package capture

import (
	"context"
	"errors"
	"slices"
)

// ErrPermissionDenied indicates the user (or OS) refused access to the
// audio input device. Callers should surface this and must not retry in a loop.
var ErrPermissionDenied = errors.New("capture: audio input permission denied")

// ErrDeviceUnavailable indicates no usable audio input device exists.
var ErrDeviceUnavailable = errors.New("capture: no audio input device available")

// DefaultMIMETypes is the ordered encoding preference list used when the
// configuration does not override it. Negotiation picks the first type the
// recorder factory supports and falls back to the primary if none do.
var DefaultMIMETypes = []string{"audio/webm", "audio/mp4", "audio/ogg"}

// Source is the entry point for audio input acquisition.
type Source interface {
	// Request asks for access to the audio input device. Blocking: the result
	// (or denial) may arrive only after user interaction. Returns an error
	// wrapping ErrPermissionDenied or ErrDeviceUnavailable on failure.
	Request(ctx context.Context) (Handle, error)
}

// Handle is an open shared audio input. Multiple consumers (the capture
// encoder and the recognition engine) read the same input concurrently, each
// through its own tap.
type Handle interface {
	// ID identifies the underlying device, for logs.
	ID() string

	// Tap returns a new independent frame subscription and a cancel function
	// that releases it. Frames are raw PCM bytes in capture order. The channel
	// is closed when the tap is cancelled or the input terminates.
	Tap() (frames <-chan []byte, cancel func())
}

// Recorder is an encoder capturing one recording attempt. It delivers encoded
// chunks to a single current subscriber in capture order.
//
// Stop blocks until every buffered chunk has been delivered and the flush
// callback has run, so a caller observing Stop's return has seen the complete
// recording. Calling Stop more than once is a no-op.
type Recorder interface {
	Start() error
	Stop() error

	// OnData registers fn as the chunk subscriber. A subsequent call replaces
	// the previous registration.
	OnData(fn func(chunk []byte))

	// OnFlush registers fn to run once after the final chunk of a stopped
	// recording has been delivered.
	OnFlush(fn func())
}

// RecorderFactory creates Recorders bound to an input handle, encoding to a
// negotiated MIME type.
type RecorderFactory interface {
	// Supports reports whether the factory can encode to mimeType.
	Supports(mimeType string) bool

	// New creates a recorder reading from h and encoding to mimeType.
	New(h Handle, mimeType string) (Recorder, error)
}

// NegotiateMIMEType returns the first entry of prefs that f supports, or the
// first entry when none is supported (matching the platform behaviour of
// defaulting to the primary format). prefs must be non-empty; when it is
// empty the DefaultMIMETypes primary is returned.
func NegotiateMIMEType(f RecorderFactory, prefs []string) string {
	if len(prefs) == 0 {
		prefs = DefaultMIMETypes
	}
	if i := slices.IndexFunc(prefs, f.Supports); i >= 0 {
		return prefs[i]
	}
	return prefs[0]
}
