// Package ffmpeg implements the capture contracts with ffmpeg subprocesses,
// so the FluentSpeak binary can record from a local microphone when it runs
// outside a browser.
//
// Two processes are involved: the [Source] launches one long-lived ffmpeg
// capturing raw PCM (s16le, 16 kHz mono) from the configured input device and
// fans the frames out to taps; each [capture.Recorder] launched by the
// [Factory] runs a second ffmpeg encoding that PCM stream into the negotiated
// container format.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"

	"github.com/Johnwalk12/fluentspeak/pkg/capture"
)

const (
	sampleRate = 16000
	channels   = 1
	frameSize  = 3200 // 100ms of s16le mono at 16kHz
)

// codecArgs maps a negotiated MIME type to ffmpeg output arguments.
var codecArgs = map[string][]string{
	"audio/webm": {"-f", "webm", "-c:a", "libopus"},
	"audio/ogg":  {"-f", "ogg", "-c:a", "libopus"},
	"audio/mp4":  {"-f", "mp4", "-c:a", "aac", "-movflags", "frag_keyframe+empty_moov"},
}

// defaultInputArgs returns the platform capture flags for the default device.
func defaultInputArgs(device string) []string {
	switch runtime.GOOS {
	case "darwin":
		if device == "" {
			device = ":default"
		}
		return []string{"-f", "avfoundation", "-i", device}
	case "windows":
		if device == "" {
			device = "audio=default"
		}
		return []string{"-f", "dshow", "-i", device}
	default:
		if device == "" {
			device = "default"
		}
		return []string{"-f", "pulse", "-i", device}
	}
}

// Source implements capture.Source by launching an ffmpeg capture process on
// the first Request.
type Source struct {
	// Device overrides the platform default input device string.
	Device string
}

// Request starts the capture process and returns its handle. Returns an error
// wrapping capture.ErrDeviceUnavailable when ffmpeg is missing or the device
// cannot be opened.
func (s *Source) Request(ctx context.Context) (capture.Handle, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: ffmpeg binary not found", capture.ErrDeviceUnavailable)
	}

	args := append(defaultInputArgs(s.Device),
		"-ac", fmt.Sprint(channels),
		"-ar", fmt.Sprint(sampleRate),
		"-f", "s16le",
		"pipe:1",
	)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: start capture: %v", capture.ErrDeviceUnavailable, err)
	}

	h := &handle{
		id:   "ffmpeg:" + s.Device,
		taps: make(map[int]chan []byte),
	}
	go h.readFrames(stdout)
	return h, nil
}

var _ capture.Source = (*Source)(nil)

// handle is the shared ffmpeg input. It reads fixed-size PCM frames from the
// capture process and fans them out to every open tap.
type handle struct {
	id string

	mu   sync.Mutex
	taps map[int]chan []byte
	next int
	done bool
}

func (h *handle) ID() string { return h.id }

func (h *handle) Tap() (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan []byte, 64)
	if h.done {
		close(ch)
		return ch, func() {}
	}
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

// readFrames pumps capture output into the taps until the process exits.
func (h *handle) readFrames(r io.Reader) {
	buf := make([]byte, frameSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			h.broadcast(frame)
		}
		if err != nil {
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.done = true
	for key, ch := range h.taps {
		delete(h.taps, key)
		close(ch)
	}
}

func (h *handle) broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.taps {
		select {
		case ch <- frame:
		default:
			// Slow consumer: drop the frame rather than stall capture.
		}
	}
}

// Factory implements capture.RecorderFactory with ffmpeg encoder processes.
type Factory struct{}

// Supports reports whether mimeType has a known ffmpeg codec mapping.
func (Factory) Supports(mimeType string) bool {
	_, ok := codecArgs[mimeType]
	return ok
}

// New creates a recorder that encodes PCM frames from h into mimeType.
func (Factory) New(h capture.Handle, mimeType string) (capture.Recorder, error) {
	args, ok := codecArgs[mimeType]
	if !ok {
		return nil, fmt.Errorf("ffmpeg: unsupported mime type %q", mimeType)
	}
	return &recorder{input: h, outArgs: args}, nil
}

var _ capture.RecorderFactory = Factory{}

// recorder encodes tapped PCM into the negotiated container via ffmpeg.
type recorder struct {
	input   capture.Handle
	outArgs []string

	mu        sync.Mutex
	onData    func([]byte)
	onFlush   func()
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	cancelTap func()
	started   bool
	stopped   bool
	ioDone    chan struct{}
}

func (r *recorder) OnData(fn func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = fn
}

func (r *recorder) OnFlush(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFlush = fn
}

// Start launches the encoder process and begins pumping frames.
func (r *recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("ffmpeg: recorder already started")
	}

	inArgs := []string{
		"-f", "s16le",
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
		"-i", "pipe:0",
	}
	args := append(inArgs, r.outArgs...)
	args = append(args, "pipe:1")
	cmd := exec.Command("ffmpeg", args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg: start encoder: %w", err)
	}

	frames, cancelTap := r.input.Tap()
	r.cmd = cmd
	r.stdin = stdin
	r.cancelTap = cancelTap
	r.started = true
	r.ioDone = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for frame := range frames {
			if _, err := stdin.Write(frame); err != nil {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		buf := make([]byte, 8192)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				r.emit(chunk)
			}
			if err != nil {
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		_ = cmd.Wait()
		close(r.ioDone)
	}()

	return nil
}

// Stop detaches from the input, lets the encoder flush, and waits until the
// final chunks have been delivered before running the flush callback.
func (r *recorder) Stop() error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	cancelTap := r.cancelTap
	stdin := r.stdin
	ioDone := r.ioDone
	r.mu.Unlock()

	cancelTap()
	_ = stdin.Close()
	<-ioDone

	r.mu.Lock()
	onFlush := r.onFlush
	r.mu.Unlock()
	if onFlush != nil {
		onFlush()
	}
	return nil
}

func (r *recorder) emit(chunk []byte) {
	r.mu.Lock()
	fn := r.onData
	r.mu.Unlock()
	if fn != nil {
		fn(chunk)
	}
}

var _ capture.Recorder = (*recorder)(nil)
