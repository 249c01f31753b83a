package capture_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Johnwalk12/fluentspeak/pkg/capture"
	"github.com/Johnwalk12/fluentspeak/pkg/capture/mock"
)

func TestBroker_AcquireMemoizes(t *testing.T) {
	t.Parallel()

	src := &mock.Source{}
	b := capture.NewBroker(src)

	h1, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	h2, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire() error: %v", err)
	}

	if h1 != h2 {
		t.Error("expected the same handle from both Acquire calls")
	}
	if got := src.Calls(); got != 1 {
		t.Errorf("Request calls = %d, want 1", got)
	}
	if !b.Acquired() {
		t.Error("Acquired() = false after successful Acquire")
	}
}

func TestBroker_AcquireFailureNotMemoized(t *testing.T) {
	t.Parallel()

	src := &mock.Source{RequestErr: capture.ErrPermissionDenied}
	b := capture.NewBroker(src)

	if _, err := b.Acquire(context.Background()); !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("Acquire() error = %v, want ErrPermissionDenied", err)
	}
	if b.Acquired() {
		t.Error("Acquired() = true after failed Acquire")
	}

	// A later attempt hits the source again once the failure cause is gone.
	src.RequestErr = nil
	if _, err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("retry Acquire() error: %v", err)
	}
	if got := src.Calls(); got != 2 {
		t.Errorf("Request calls = %d, want 2", got)
	}
}

func TestNegotiateMIMEType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		supported []string
		prefs     []string
		want      string
	}{
		{
			name:      "primary supported",
			supported: []string{"audio/webm", "audio/ogg"},
			prefs:     []string{"audio/webm", "audio/mp4", "audio/ogg"},
			want:      "audio/webm",
		},
		{
			name:      "falls back to secondary",
			supported: []string{"audio/mp4"},
			prefs:     []string{"audio/webm", "audio/mp4", "audio/ogg"},
			want:      "audio/mp4",
		},
		{
			name:      "nothing supported defaults to primary",
			supported: []string{},
			prefs:     []string{"audio/webm", "audio/mp4", "audio/ogg"},
			want:      "audio/webm",
		},
		{
			name:      "empty prefs use package default",
			supported: []string{},
			prefs:     nil,
			want:      "audio/webm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := &mock.Factory{SupportedTypes: tt.supported}
			if got := capture.NegotiateMIMEType(f, tt.prefs); got != tt.want {
				t.Errorf("NegotiateMIMEType() = %q, want %q", got, tt.want)
			}
		})
	}
}
