package recorder

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Johnwalk12/fluentspeak/pkg/capture"
	capturemock "github.com/Johnwalk12/fluentspeak/pkg/capture/mock"
)

func TestRegistry_RegisterPreservesOrder(t *testing.T) {
	t.Parallel()
	f := newFixture()
	r := NewRegistry(f.deps)
	r.RegisterAll([]string{"w3", "w1", "w2"})

	sessions := r.Sessions()
	if len(sessions) != 3 {
		t.Fatalf("session count = %d, want 3", len(sessions))
	}
	for i, want := range []string{"w3", "w1", "w2"} {
		if sessions[i].ID() != want {
			t.Fatalf("session %d = %q, want %q", i, sessions[i].ID(), want)
		}
	}

	if again := r.Register("w1"); again != sessions[1] {
		t.Fatal("re-registering an id returned a different session")
	}
	if r.Len() != 3 {
		t.Fatalf("Len after duplicate register = %d, want 3", r.Len())
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	t.Parallel()
	r := NewRegistry(newFixture().deps)
	if _, err := r.Get("nope"); err == nil {
		t.Fatal("Get of unregistered id returned no error")
	}
}

func TestRegistry_StartStopsOtherSession(t *testing.T) {
	t.Parallel()
	f := newFixture()
	r := NewRegistry(f.deps)
	a := r.Register("a")
	b := r.Register("b")

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start a: %v", err)
	}
	f.factory.Last().PendingChunks = [][]byte{[]byte("from-a")}

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start b: %v", err)
	}

	if got := a.State(); got != StateIdle {
		t.Fatalf("a state after b started = %v, want %v", got, StateIdle)
	}
	if got := b.State(); got != StateRecording {
		t.Fatalf("b state = %v, want %v", got, StateRecording)
	}

	// a's recording went through the full stop sequence, artifact included.
	art := a.Artifact()
	if art == nil {
		t.Fatal("a has no artifact after being preempted")
	}
	if !bytes.Equal(art.Bytes, []byte("from-a")) {
		t.Fatalf("a artifact bytes = %q, want %q", art.Bytes, "from-a")
	}

	recording := 0
	for _, s := range r.Sessions() {
		if s.Recording() {
			recording++
		}
	}
	if recording != 1 {
		t.Fatalf("recording sessions = %d, want 1", recording)
	}
}

func TestRegistry_StartFromRecordingFails(t *testing.T) {
	t.Parallel()
	f := newFixture()
	r := NewRegistry(f.deps)
	s := r.Register("a")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second start from recording state returned no error")
	}
	if got := s.State(); got != StateRecording {
		t.Fatalf("state after rejected start = %v, want %v", got, StateRecording)
	}
}

// slowFlushRecorder models an encoder whose final flush takes a while: Stop
// parks until released, then delivers chunks and flush as usual.
type slowFlushRecorder struct {
	*capturemock.Recorder
	stopping chan struct{}
	release  chan struct{}
}

func (r *slowFlushRecorder) Stop() error {
	close(r.stopping)
	<-r.release
	return r.Recorder.Stop()
}

func TestRegistry_StartWaitsForInFlightStop(t *testing.T) {
	t.Parallel()
	f := newFixture()
	slow := &slowFlushRecorder{
		Recorder: &capturemock.Recorder{PendingChunks: [][]byte{[]byte("tail")}},
		stopping: make(chan struct{}),
		release:  make(chan struct{}),
	}
	f.deps.Factory = &scriptedFactory{queue: []capture.Recorder{slow}}
	r := NewRegistry(f.deps)
	a := r.Register("a")
	b := r.Register("b")

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start a: %v", err)
	}

	go a.Stop()
	<-slow.stopping
	if got := a.State(); got != StateStopping {
		t.Fatalf("a state mid-flush = %v, want %v", got, StateStopping)
	}

	started := make(chan error, 1)
	go func() { started <- b.Start(context.Background()) }()

	// b must not begin acquiring while a is still flushing.
	select {
	case err := <-started:
		t.Fatalf("b started while a was still flushing (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}
	if got := b.State(); got != StateIdle {
		t.Fatalf("b state while a flushing = %v, want %v", got, StateIdle)
	}

	close(slow.release)
	if err := <-started; err != nil {
		t.Fatalf("start b: %v", err)
	}
	if got := a.State(); got != StateIdle {
		t.Fatalf("a state = %v, want %v", got, StateIdle)
	}
	if got := b.State(); got != StateRecording {
		t.Fatalf("b state = %v, want %v", got, StateRecording)
	}
	if a.Artifact() == nil {
		t.Fatal("a has no artifact after its flush completed")
	}
}
