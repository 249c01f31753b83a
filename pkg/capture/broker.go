package capture

import (
	"context"
	"log/slog"
	"sync"
)

// Broker owns the single shared audio input for the whole page. The first
// Acquire performs the physical device request; every later Acquire returns
// the memoized handle without touching the device again. A failed request is
// not memoized, so the next Acquire retries — but the Broker itself never
// retries on its own.
//
// The handle is held for the Broker's lifetime; there is no release.
// All methods are safe for concurrent use.
type Broker struct {
	mu     sync.Mutex
	source Source
	handle Handle
}

// NewBroker creates a Broker over the given input source.
func NewBroker(source Source) *Broker {
	return &Broker{source: source}
}

// Acquire returns the shared input handle, requesting it from the source on
// first use. Concurrent callers are serialised so that at most one physical
// acquisition is ever in flight.
func (b *Broker) Acquire(ctx context.Context) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handle != nil {
		return b.handle, nil
	}

	h, err := b.source.Request(ctx)
	if err != nil {
		return nil, err
	}
	b.handle = h

	slog.Info("audio input acquired", "device", h.ID())
	return h, nil
}

// Acquired reports whether the shared input has been obtained.
func (b *Broker) Acquired() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle != nil
}
