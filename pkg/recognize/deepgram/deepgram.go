// Package deepgram implements recognize.Engine on top of the Deepgram live
// transcription WebSocket API. It taps the shared microphone input held by a
// capture.Broker and delivers interim/final results as recognition events.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/coder/websocket"

	"github.com/Johnwalk12/fluentspeak/pkg/capture"
	"github.com/Johnwalk12/fluentspeak/pkg/recognize"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithModel sets the Deepgram model (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithLanguage sets the BCP-47 recognition locale (e.g., "en-US").
func WithLanguage(language string) Option {
	return func(e *Engine) { e.language = language }
}

// WithSampleRate sets the PCM sample rate in Hz of the tapped input.
func WithSampleRate(rate int) Option {
	return func(e *Engine) { e.sampleRate = rate }
}

// Engine is a Deepgram-backed recognize.Engine. All methods are safe for
// concurrent use.
type Engine struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	broker     *capture.Broker

	mu         sync.Mutex
	subscriber func(recognize.Event)
	stream     *stream
}

// New creates a Deepgram engine reading audio from the broker's shared input.
// apiKey must be non-empty.
func New(apiKey string, broker *capture.Broker, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	if broker == nil {
		return nil, errors.New("deepgram: broker must not be nil")
	}
	e := &Engine{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		broker:     broker,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Start opens the streaming connection and begins recognition. A no-op when
// the engine is already running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream != nil {
		return nil
	}

	handle, err := e.broker.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("deepgram: acquire input: %w", err)
	}

	wsURL, err := e.buildURL()
	if err != nil {
		return fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return fmt.Errorf("deepgram: dial: %w: %v", recognize.ErrNetwork, err)
	}

	frames, cancelTap := handle.Tap()
	st := &stream{
		engine:    e,
		conn:      conn,
		frames:    frames,
		cancelTap: cancelTap,
		done:      make(chan struct{}),
	}
	e.stream = st

	st.wg.Add(2)
	go st.readLoop(ctx)
	go st.writeLoop(ctx)

	return nil
}

// Stop closes the streaming connection. The subscriber receives a KindEnded
// event. A no-op when the engine is not running.
func (e *Engine) Stop() error {
	e.mu.Lock()
	st := e.stream
	e.stream = nil
	e.mu.Unlock()

	if st == nil {
		return nil
	}
	st.close()
	return nil
}

// Subscribe replaces the current event subscriber.
func (e *Engine) Subscribe(fn func(recognize.Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscriber = fn
}

// emit delivers ev to the current subscriber, if any.
func (e *Engine) emit(ev recognize.Event) {
	e.mu.Lock()
	fn := e.subscriber
	e.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// ended clears the stream slot if it still refers to st (a spontaneous
// termination rather than an explicit Stop) and emits KindEnded.
func (e *Engine) ended(st *stream) {
	e.mu.Lock()
	if e.stream == st {
		e.stream = nil
	}
	e.mu.Unlock()
	e.emit(recognize.Event{Kind: recognize.KindEnded})
}

// buildURL constructs the live transcription endpoint URL.
func (e *Engine) buildURL() (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", e.model)
	q.Set("language", e.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(e.sampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ recognize.Engine = (*Engine)(nil)

// ---- stream ----

// deepgramResponse is the JSON shape of a Deepgram Results message.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// stream is one live connection lifetime.
type stream struct {
	engine    *Engine
	conn      *websocket.Conn
	frames    <-chan []byte
	cancelTap func()

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *stream) close() {
	s.once.Do(func() {
		close(s.done)
		s.cancelTap()
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "engine stopped")
	})
}

// writeLoop forwards tapped PCM frames to Deepgram as binary messages.
func (s *stream) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case frame, ok := <-s.frames:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop receives Deepgram messages and dispatches recognition events.
// When the connection drops unexpectedly, it reports the error and the end of
// the engine so the coordinator can decide whether to restart.
func (s *stream) readLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Explicit Stop: close() already ran; Engine.Stop emitted nothing
				// yet, so report the clean end here.
			default:
				if classified := classifyReadError(err); classified != nil {
					s.engine.emit(recognize.Event{Kind: recognize.KindError, Err: classified})
				}
			}
			s.engine.ended(s)
			return
		}

		results, ok := parseResponse(msg)
		if !ok {
			continue
		}
		s.engine.emit(recognize.Event{Kind: recognize.KindResults, Results: results})
	}
}

// classifyReadError maps a connection read failure onto the recognition error
// taxonomy. Normal closures return nil.
func classifyReadError(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	case websocket.StatusPolicyViolation:
		return fmt.Errorf("deepgram: %w: %v", recognize.ErrNotAllowed, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("deepgram: %w: %v", recognize.ErrNetwork, err)
	}
	return fmt.Errorf("deepgram: read: %w", err)
}

// parseResponse parses a raw message into a result batch. Returns false for
// messages that should be ignored (metadata, empty transcripts).
func parseResponse(data []byte) ([]recognize.Result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return nil, false
	}
	text := resp.Channel.Alternatives[0].Transcript
	if text == "" {
		return nil, false
	}
	return []recognize.Result{{Text: text, IsFinal: resp.IsFinal}}, true
}
