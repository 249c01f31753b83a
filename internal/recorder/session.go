// Package recorder implements the per-widget recording session state machine
// and the registry that enforces the single-active-recording invariant across
// all widgets on a page.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Johnwalk12/fluentspeak/internal/artifact"
	"github.com/Johnwalk12/fluentspeak/internal/notify"
	"github.com/Johnwalk12/fluentspeak/internal/observe"
	"github.com/Johnwalk12/fluentspeak/internal/transcribe"
	"github.com/Johnwalk12/fluentspeak/pkg/capture"
)

// DefaultMaxDuration bounds a single recording before it is auto-stopped.
const DefaultMaxDuration = time.Minute

// State is a recorder session's lifecycle state.
type State int

const (
	// StateIdle: no capture in progress; chunks empty; eligible to start.
	StateIdle State = iota

	// StateAcquiring: waiting for the shared audio input.
	StateAcquiring

	// StateRecording: capture running, chunks accumulating.
	StateRecording

	// StateStopping: capture stopped, encoder flushing buffered chunks.
	StateStopping

	// StateFinalizing: chunks being combined into an artifact.
	StateFinalizing
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAcquiring:
		return "ACQUIRING"
	case StateRecording:
		return "RECORDING"
	case StateStopping:
		return "STOPPING"
	case StateFinalizing:
		return "FINALIZING"
	default:
		return "UNKNOWN"
	}
}

// Deps holds the collaborators shared by every session on the page.
type Deps struct {
	Broker      *capture.Broker
	Factory     capture.RecorderFactory
	Coordinator *transcribe.Coordinator
	Artifacts   *artifact.Store
	Notifier    notify.Notifier
	Metrics     *observe.Metrics

	// MaxDuration bounds one recording. Zero means DefaultMaxDuration.
	MaxDuration time.Duration

	// MIMETypes is the ordered encoding preference list. Nil means
	// capture.DefaultMIMETypes.
	MIMETypes []string

	// OnSaved, when set, observes every finalized recording — the
	// "response saved" signal consumed by the lesson-flow collaborators.
	OnSaved func(s *Session, a *artifact.Artifact)
}

// Session is one widget's recording lifecycle. Created once per discovered
// widget and alive for the page's duration, cycling Idle → Acquiring →
// Recording → Stopping → Finalizing → Idle.
//
// All exported methods are safe for concurrent use.
type Session struct {
	id       string
	deps     Deps
	registry *Registry

	// announceMu orders the post-start announcement (transcription attach
	// plus notifications) against a concurrent teardown, so a stop that
	// overtakes an in-flight start never leaves a stale attachment behind.
	announceMu sync.Mutex

	mu        sync.Mutex
	state     State
	gen       uint64 // attempt generation; bumped when async work is abandoned
	announced bool   // the start announcement ran for the current attempt

	// idleCh is non-nil while the session is away from Idle and is closed
	// when the attempt unwinds back to it; awaitIdle blocks on it.
	idleCh chan struct{}

	chunks       [][]byte
	recorder     capture.Recorder
	mimeType     string
	artifact     *artifact.Artifact
	responseText string
	interim      string
	wordCount    int
	startedAt    time.Time
	timer        *time.Timer
}

// NewSession creates an idle session for the widget identified by id.
func NewSession(id string, deps Deps) *Session {
	if deps.MaxDuration <= 0 {
		deps.MaxDuration = DefaultMaxDuration
	}
	if deps.MIMETypes == nil {
		deps.MIMETypes = capture.DefaultMIMETypes
	}
	return &Session{id: id, deps: deps}
}

// ID returns the widget identity this session is tied to.
func (s *Session) ID() string { return s.id }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Recording reports whether the session is currently capturing.
// Part of the transcribe.Sink contract.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRecording
}

// Toggle is the record-button action: it starts an idle session and stops
// one that is already acquiring or recording.
func (s *Session) Toggle(ctx context.Context) error {
	switch s.State() {
	case StateIdle:
		return s.Start(ctx)
	case StateAcquiring, StateRecording:
		s.Stop()
		return nil
	default:
		// Stopping or Finalizing: the stop sequence is already running.
		return nil
	}
}

// Start begins a recording attempt. Any other non-idle session is driven
// through its stop sequence first; then the shared input is acquired, an
// encoder is created for the negotiated format, transcription is attached,
// and the max-duration timer is armed.
//
// Capture-path failures return the session to Idle and surface exactly one
// user-visible error.
func (s *Session) Start(ctx context.Context) error {
	myGen, err := s.enterAcquiring()
	if err != nil {
		return err
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordStarted(ctx, s.id)
	}

	handle, err := s.deps.Broker.Acquire(ctx)
	if abandoned := s.abandonedSince(myGen, StateAcquiring); abandoned {
		// The session was stopped (or preempted) while awaiting the input;
		// discard the late result either way.
		return nil
	}
	if err != nil {
		s.failAcquire(ctx, err)
		return err
	}

	mimeType := capture.NegotiateMIMEType(s.deps.Factory, s.deps.MIMETypes)
	rec, err := s.deps.Factory.New(handle, mimeType)
	if err != nil {
		s.failAcquire(ctx, err)
		return fmt.Errorf("recorder: create encoder: %w", err)
	}
	rec.OnData(func(chunk []byte) { s.appendChunk(myGen, chunk) })
	rec.OnFlush(func() { s.finalize(myGen) })

	s.mu.Lock()
	if s.gen != myGen || s.state != StateAcquiring {
		s.mu.Unlock()
		return nil
	}
	s.chunks = nil
	s.recorder = rec
	s.mimeType = mimeType
	s.startedAt = time.Now()
	s.state = StateRecording
	s.timer = time.AfterFunc(s.deps.MaxDuration, func() { s.timerFired(myGen) })
	s.mu.Unlock()

	if err := rec.Start(); err != nil {
		s.mu.Lock()
		s.gen++
		s.recorder = nil
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.becomeIdleLocked()
		s.mu.Unlock()
		s.deps.Notifier.Message(notify.NewMessage(notify.LevelError,
			"Could not access microphone. Please check your browser settings."))
		return fmt.Errorf("recorder: start encoder: %w", err)
	}

	s.announceMu.Lock()
	s.mu.Lock()
	live := s.gen == myGen && s.state == StateRecording
	if live {
		s.announced = true
	}
	s.mu.Unlock()
	if !live {
		// A stop overtook the start while the encoder was spinning up; it
		// already ran the teardown, so there is nothing to announce.
		s.announceMu.Unlock()
		return nil
	}

	s.deps.Coordinator.Attach(ctx, s)
	s.deps.Notifier.RecordingChanged(s.id, true)
	s.deps.Notifier.Status(s.id, "Recording...")
	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveRecordings.Add(ctx, 1)
	}
	s.announceMu.Unlock()
	slog.Info("recording started", "session_id", s.id, "mime_type", mimeType)

	return nil
}

// Stop ends the current attempt. For a recording session this runs the full
// stop → flush → finalize sequence and returns only after the session is
// Idle again with its artifact installed. Stopping a session that is still
// acquiring abandons the acquisition; the late grant or denial is discarded.
// A no-op in any other state.
func (s *Session) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateAcquiring:
		s.gen++
		s.becomeIdleLocked()
		s.mu.Unlock()
		slog.Info("recording abandoned while acquiring", "session_id", s.id)
		return

	case StateRecording:
		s.state = StateStopping
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		rec := s.recorder
		s.mu.Unlock()

		// Waits for an in-flight start announcement to finish, then undoes
		// it. A start that never announced has nothing to undo.
		s.announceMu.Lock()
		s.mu.Lock()
		announced := s.announced
		s.announced = false
		s.mu.Unlock()
		if announced {
			s.deps.Coordinator.Detach(s)
			s.deps.Notifier.RecordingChanged(s.id, false)
			s.deps.Notifier.Status(s.id, "Processing recording...")
			if s.deps.Metrics != nil {
				s.deps.Metrics.ActiveRecordings.Add(context.Background(), -1)
			}
		}
		s.announceMu.Unlock()
		slog.Info("recording stopped", "session_id", s.id)

		// Blocks until buffered chunks are delivered and finalize has run.
		if err := rec.Stop(); err != nil {
			slog.Warn("recorder: encoder stop", "session_id", s.id, "err", err)
		}
		return

	default:
		s.mu.Unlock()
	}
}

// enterAcquiring transitions Idle → Acquiring after enforcing mutual
// exclusion, returning the attempt generation.
func (s *Session) enterAcquiring() (uint64, error) {
	if s.registry != nil {
		s.registry.enforce(s)
	} else {
		s.mu.Lock()
		if s.state != StateIdle {
			st := s.state
			s.mu.Unlock()
			return 0, fmt.Errorf("recorder: session %s cannot start from state %s", s.id, st)
		}
		s.leaveIdleLocked(StateAcquiring)
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAcquiring {
		return 0, fmt.Errorf("recorder: session %s cannot start from state %s", s.id, s.state)
	}
	return s.gen, nil
}

// leaveIdleLocked moves the session out of Idle and arms the channel that
// awaitIdle blocks on. Callers must hold s.mu.
func (s *Session) leaveIdleLocked(next State) {
	s.state = next
	s.idleCh = make(chan struct{})
}

// becomeIdleLocked returns the session to Idle and releases every waiter in
// awaitIdle. Callers must hold s.mu.
func (s *Session) becomeIdleLocked() {
	s.state = StateIdle
	if s.idleCh != nil {
		close(s.idleCh)
		s.idleCh = nil
	}
}

// awaitIdle blocks until the current attempt has fully unwound to Idle.
// Returns immediately for a session that is already idle.
func (s *Session) awaitIdle() {
	s.mu.Lock()
	ch := s.idleCh
	s.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

// abandonedSince reports whether the attempt identified by myGen no longer
// owns the session (it was stopped or preempted while awaiting a callback).
func (s *Session) abandonedSince(myGen uint64, want State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != myGen || s.state != want
}

// failAcquire returns the session to Idle and reports the acquisition
// failure to the learner.
func (s *Session) failAcquire(ctx context.Context, err error) {
	s.mu.Lock()
	s.gen++
	s.becomeIdleLocked()
	s.mu.Unlock()

	text := "Could not access microphone. Please check your browser settings."
	reason := "unavailable"
	if errors.Is(err, capture.ErrPermissionDenied) {
		text = "Microphone access denied. Please allow microphone access to use voice recording."
		reason = "permission_denied"
	}
	s.deps.Notifier.Message(notify.NewMessage(notify.LevelError, text))
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordAcquireFailure(ctx, reason)
	}
	slog.Error("audio input acquisition failed", "session_id", s.id, "err", err)
}

// timerFired handles max-duration expiry: if the attempt is still recording
// it takes the same path as a manual stop, otherwise it is a no-op.
func (s *Session) timerFired(myGen uint64) {
	s.mu.Lock()
	live := s.gen == myGen && s.state == StateRecording
	s.mu.Unlock()
	if !live {
		return
	}
	slog.Info("max recording duration reached", "session_id", s.id)
	s.Stop()
}

// appendChunk accumulates one encoded chunk, in capture order. Chunks from
// abandoned attempts are discarded.
func (s *Session) appendChunk(myGen uint64, chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != myGen {
		return
	}
	if s.state != StateRecording && s.state != StateStopping {
		return
	}
	s.chunks = append(s.chunks, chunk)
}

// finalize runs after the encoder's flush signal: the accumulated chunks
// become the session's artifact, replacing (and revoking) any prior one, and
// the session returns to Idle.
func (s *Session) finalize(myGen uint64) {
	s.mu.Lock()
	if s.gen != myGen || s.state != StateStopping {
		s.mu.Unlock()
		return
	}
	s.state = StateFinalizing
	chunks := s.chunks
	mimeType := s.mimeType
	startedAt := s.startedAt
	s.mu.Unlock()

	art, err := s.deps.Artifacts.Finalize(s.id, chunks, mimeType)

	s.mu.Lock()
	s.chunks = nil
	s.recorder = nil
	if err == nil {
		s.artifact = art
	}
	s.becomeIdleLocked()
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, artifact.ErrNoChunks) {
			s.deps.Notifier.Message(notify.NewMessage(notify.LevelWarning,
				"No audio was captured."))
		} else {
			s.deps.Notifier.Message(notify.NewMessage(notify.LevelError,
				"Error processing recording."))
		}
		slog.Warn("finalize failed", "session_id", s.id, "err", err)
		return
	}

	s.deps.Notifier.Status(s.id, "Recording complete")
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordCompleted(context.Background(), s.id, time.Since(startedAt).Seconds())
	}
	slog.Info("recording finalized",
		"session_id", s.id,
		"bytes", len(art.Bytes),
		"mime_type", art.MIMEType,
		"handle", art.Handle.ID(),
	)

	if s.deps.OnSaved != nil {
		s.deps.OnSaved(s, art)
	}
}

// ---- transcription sink ----

// AppendFinal commits a final transcript fragment to the response text,
// followed by a single trailing separator, and recomputes the word count.
func (s *Session) AppendFinal(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseText += text + " "
	s.wordCount = WordCount(s.responseText)
}

// SetInterim replaces the provisional transcript display.
func (s *Session) SetInterim(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interim = text
}

var _ transcribe.Sink = (*Session)(nil)

// ---- externally visible response state ----

// SetResponseText replaces the learner-edited response text and recomputes
// the word count.
func (s *Session) SetResponseText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseText = text
	s.wordCount = WordCount(text)
}

// ResponseText returns the accumulated response text (learner edits plus
// committed transcript fragments).
func (s *Session) ResponseText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responseText
}

// Interim returns the current provisional transcript fragment.
func (s *Session) Interim() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interim
}

// WordCount returns the derived word count of the response text.
func (s *Session) WordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wordCount
}

// Artifact returns the most recently finalized recording, or nil.
func (s *Session) Artifact() *artifact.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// ChunkCount returns the number of accumulated chunks. Zero while Idle.
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}
