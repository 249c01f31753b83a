// Package mock provides test doubles for the capture package interfaces.
//
// Source records Request calls and returns a configurable Handle or error.
// Handle fans pushed frames out to every open tap. Recorder lets tests drive
// chunk delivery by hand: Push emits a chunk to the current OnData subscriber,
// and Stop delivers any PendingChunks before running the flush callback,
// matching the capture.Recorder contract.
package mock

import (
	"context"
	"sync"

	"github.com/Johnwalk12/fluentspeak/pkg/capture"
)

// Source is a mock implementation of capture.Source.
type Source struct {
	mu sync.Mutex

	// Handle is returned by Request. If nil, Request returns a new default
	// Handle with ID "mock-input".
	Handle capture.Handle

	// RequestErr, if non-nil, is returned as the error from Request.
	RequestErr error

	// RequestCallCount is the number of times Request was called.
	RequestCallCount int
}

// Request records the call and returns Handle, RequestErr.
func (s *Source) Request(_ context.Context) (capture.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RequestCallCount++
	if s.RequestErr != nil {
		return nil, s.RequestErr
	}
	if s.Handle != nil {
		return s.Handle, nil
	}
	s.Handle = NewHandle("mock-input")
	return s.Handle, nil
}

// Calls returns the number of Request calls. Thread-safe.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.RequestCallCount
}

var _ capture.Source = (*Source)(nil)

// Handle is a mock implementation of capture.Handle that fans pushed frames
// out to all open taps.
type Handle struct {
	id string

	mu   sync.Mutex
	taps map[int]chan []byte
	next int
}

// NewHandle creates a Handle with the given device id.
func NewHandle(id string) *Handle {
	return &Handle{id: id, taps: make(map[int]chan []byte)}
}

// ID returns the configured device id.
func (h *Handle) ID() string { return h.id }

// Tap returns a buffered frame channel and its cancel function.
func (h *Handle) Tap() (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan []byte, 64)
	key := h.next
	h.next++
	h.taps[key] = ch
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.taps[key]; ok {
			delete(h.taps, key)
			close(c)
		}
	}
	return ch, cancel
}

// Push delivers a frame to every open tap. Full taps drop the frame.
func (h *Handle) Push(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.taps {
		select {
		case ch <- frame:
		default:
		}
	}
}

// TapCount returns the number of open taps.
func (h *Handle) TapCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.taps)
}

var _ capture.Handle = (*Handle)(nil)

// Recorder is a mock implementation of capture.Recorder driven by the test.
type Recorder struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// PendingChunks are delivered, in order, to the OnData subscriber when
	// Stop is called — modelling an encoder's buffered final chunks.
	PendingChunks [][]byte

	// StartCallCount and StopCallCount record lifecycle calls.
	StartCallCount int
	StopCallCount  int

	onData  func([]byte)
	onFlush func()
	stopped bool
}

// Start records the call and returns StartErr.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartCallCount++
	return r.StartErr
}

// Stop delivers PendingChunks to the OnData subscriber, runs the flush
// callback, and returns nil. Subsequent calls are no-ops.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.StopCallCount++
	pending := r.PendingChunks
	onData, onFlush := r.onData, r.onFlush
	r.mu.Unlock()

	for _, c := range pending {
		if onData != nil {
			onData(c)
		}
	}
	if onFlush != nil {
		onFlush()
	}
	return nil
}

// OnData registers the chunk subscriber.
func (r *Recorder) OnData(fn func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = fn
}

// OnFlush registers the flush callback.
func (r *Recorder) OnFlush(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFlush = fn
}

// Push delivers a chunk to the OnData subscriber, simulating an encoder
// data-available event while recording.
func (r *Recorder) Push(chunk []byte) {
	r.mu.Lock()
	fn := r.onData
	r.mu.Unlock()
	if fn != nil {
		fn(chunk)
	}
}

var _ capture.Recorder = (*Recorder)(nil)

// NewCall records a single invocation of Factory.New.
type NewCall struct {
	Handle   capture.Handle
	MIMEType string
}

// Factory is a mock implementation of capture.RecorderFactory.
type Factory struct {
	mu sync.Mutex

	// SupportedTypes lists the MIME types Supports reports true for.
	// When nil, every type is supported.
	SupportedTypes []string

	// Recorder is returned by New. If nil, a fresh Recorder is returned
	// per call.
	Recorder *Recorder

	// NewErr, if non-nil, is returned as the error from New.
	NewErr error

	// NewCalls records every call to New.
	NewCalls []NewCall

	// Recorders records every recorder handed out, in creation order.
	Recorders []*Recorder
}

// Supports reports whether mimeType is in SupportedTypes (or true when
// SupportedTypes is nil).
func (f *Factory) Supports(mimeType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SupportedTypes == nil {
		return true
	}
	for _, t := range f.SupportedTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// New records the call and returns Recorder (or a fresh one), NewErr.
func (f *Factory) New(h capture.Handle, mimeType string) (capture.Recorder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NewCalls = append(f.NewCalls, NewCall{Handle: h, MIMEType: mimeType})
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	rec := f.Recorder
	if rec == nil {
		rec = &Recorder{}
	}
	f.Recorders = append(f.Recorders, rec)
	return rec, nil
}

// Last returns the most recently created recorder, or nil.
func (f *Factory) Last() *Recorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Recorders) == 0 {
		return nil
	}
	return f.Recorders[len(f.Recorders)-1]
}

var _ capture.RecorderFactory = (*Factory)(nil)
