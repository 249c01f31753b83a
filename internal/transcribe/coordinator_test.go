package transcribe

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Johnwalk12/fluentspeak/internal/notify"
	notifymock "github.com/Johnwalk12/fluentspeak/internal/notify/mock"
	"github.com/Johnwalk12/fluentspeak/pkg/recognize"
	recognizemock "github.com/Johnwalk12/fluentspeak/pkg/recognize/mock"
)

// fakeSink is a minimal Sink recording everything delivered to it.
type fakeSink struct {
	mu        sync.Mutex
	id        string
	recording bool
	finals    []string
	interims  []string
}

func (s *fakeSink) ID() string { return s.id }

func (s *fakeSink) AppendFinal(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = append(s.finals, text)
}

func (s *fakeSink) SetInterim(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interims = append(s.interims, text)
}

func (s *fakeSink) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

func (s *fakeSink) setRecording(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = v
}

func (s *fakeSink) lastInterim() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.interims) == 0 {
		return "", false
	}
	return s.interims[len(s.interims)-1], true
}

func results(rs ...recognize.Result) recognize.Event {
	return recognize.Event{Kind: recognize.KindResults, Results: rs}
}

func TestCoordinator_AttachStartsEngineOnce(t *testing.T) {
	t.Parallel()
	engine := &recognizemock.Engine{}
	c := New(engine, &notifymock.Notifier{}, nil)

	a := &fakeSink{id: "a", recording: true}
	c.Attach(context.Background(), a)
	if starts, _ := engine.Counts(); starts != 1 {
		t.Fatalf("engine starts = %d, want 1", starts)
	}
	if c.Attached() != Sink(a) {
		t.Fatal("sink not attached")
	}

	// Re-attaching while the engine runs must not start it again.
	b := &fakeSink{id: "b", recording: true}
	c.Attach(context.Background(), b)
	if starts, _ := engine.Counts(); starts != 1 {
		t.Fatalf("engine starts after reattach = %d, want 1", starts)
	}
	if c.Attached() != Sink(b) {
		t.Fatal("attachment not reassigned")
	}
	if got, ok := a.lastInterim(); !ok || got != "" {
		t.Fatalf("previous sink interim = %q, %v; want cleared", got, ok)
	}
}

func TestCoordinator_DetachStopsEngine(t *testing.T) {
	t.Parallel()
	engine := &recognizemock.Engine{}
	c := New(engine, &notifymock.Notifier{}, nil)

	a := &fakeSink{id: "a"}
	c.Attach(context.Background(), a)
	c.Detach(a)

	if _, stops := engine.Counts(); stops != 1 {
		t.Fatalf("engine stops = %d, want 1", stops)
	}
	if c.Attached() != nil {
		t.Fatal("sink still attached after detach")
	}
	if got, ok := a.lastInterim(); !ok || got != "" {
		t.Fatalf("interim = %q, %v; want cleared", got, ok)
	}

	// A stale detach from a replaced sink is a no-op.
	b := &fakeSink{id: "b"}
	c.Attach(context.Background(), b)
	c.Detach(a)
	if c.Attached() != Sink(b) {
		t.Fatal("stale detach removed the current sink")
	}
}

func TestCoordinator_DeliverPartitionsFinalsAndInterims(t *testing.T) {
	t.Parallel()
	engine := &recognizemock.Engine{}
	c := New(engine, &notifymock.Notifier{}, nil)

	s := &fakeSink{id: "a", recording: true}
	c.Attach(context.Background(), s)

	engine.Emit(results(
		recognize.Result{Text: "hello ", IsFinal: false},
		recognize.Result{Text: "hello world", IsFinal: true},
		recognize.Result{Text: "and th", IsFinal: false},
	))

	if len(s.finals) != 1 || s.finals[0] != "hello world" {
		t.Fatalf("finals = %v, want [hello world]", s.finals)
	}
	if got, _ := s.lastInterim(); got != "hello and th" {
		t.Fatalf("interim = %q, want %q", got, "hello and th")
	}

	// An all-final batch clears the provisional display.
	engine.Emit(results(recognize.Result{Text: "and then", IsFinal: true}))
	if got, _ := s.lastInterim(); got != "" {
		t.Fatalf("interim after all-final batch = %q, want empty", got)
	}
}

func TestCoordinator_ResultsWithoutSinkDropped(t *testing.T) {
	t.Parallel()
	engine := &recognizemock.Engine{}
	New(engine, &notifymock.Notifier{}, nil)

	// Must not panic with nothing attached.
	engine.Emit(results(recognize.Result{Text: "orphan", IsFinal: true}))
}

func TestCoordinator_EndedWhileRecordingRestartsOnce(t *testing.T) {
	t.Parallel()
	engine := &recognizemock.Engine{}
	c := New(engine, &notifymock.Notifier{}, nil)

	s := &fakeSink{id: "a", recording: true}
	c.Attach(context.Background(), s)

	engine.Emit(recognize.Event{Kind: recognize.KindEnded})

	if starts, _ := engine.Counts(); starts != 2 {
		t.Fatalf("engine starts = %d, want 2 (initial + one restart)", starts)
	}
	if !c.EngineRunning() {
		t.Fatal("engine not marked running after restart")
	}
}

func TestCoordinator_EndedWhileIdleAccepted(t *testing.T) {
	t.Parallel()
	engine := &recognizemock.Engine{}
	c := New(engine, &notifymock.Notifier{}, nil)

	s := &fakeSink{id: "a", recording: true}
	c.Attach(context.Background(), s)
	s.setRecording(false)

	engine.Emit(recognize.Event{Kind: recognize.KindEnded})

	if starts, _ := engine.Counts(); starts != 1 {
		t.Fatalf("engine starts = %d, want 1 (no restart for idle sink)", starts)
	}
	if c.EngineRunning() {
		t.Fatal("engine marked running after accepted termination")
	}
}

func TestCoordinator_RestartFailureWarnsOnce(t *testing.T) {
	t.Parallel()
	engine := &recognizemock.Engine{}
	notifier := &notifymock.Notifier{}
	c := New(engine, notifier, nil)

	s := &fakeSink{id: "a", recording: true}
	c.Attach(context.Background(), s)

	engine.StartErr = errors.New("no backend")
	engine.Emit(recognize.Event{Kind: recognize.KindEnded})

	warnings := notifier.MessagesByLevel(notify.LevelWarning)
	if len(warnings) != 1 {
		t.Fatalf("warning notifications = %d, want 1", len(warnings))
	}
	if c.EngineRunning() {
		t.Fatal("engine marked running after failed restart")
	}
}

func TestCoordinator_ErrorTaxonomy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		err       error
		wantLevel notify.Level
		wantCount int
	}{
		{name: "not allowed", err: recognize.ErrNotAllowed, wantLevel: notify.LevelError, wantCount: 1},
		{name: "network", err: recognize.ErrNetwork, wantLevel: notify.LevelWarning, wantCount: 1},
		{name: "other swallowed", err: errors.New("no-speech"), wantCount: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine := &recognizemock.Engine{}
			notifier := &notifymock.Notifier{}
			c := New(engine, notifier, nil)
			c.Attach(context.Background(), &fakeSink{id: "a", recording: true})

			engine.Emit(recognize.Event{Kind: recognize.KindError, Err: tt.err})

			if len(notifier.Messages) != tt.wantCount {
				t.Fatalf("notifications = %d, want %d", len(notifier.Messages), tt.wantCount)
			}
			if tt.wantCount == 1 && notifier.Messages[0].Level != tt.wantLevel {
				t.Fatalf("level = %q, want %q", notifier.Messages[0].Level, tt.wantLevel)
			}
		})
	}
}
