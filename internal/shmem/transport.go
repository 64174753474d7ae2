package shmem

import (
	"context"
	"fmt"
	"time"

	"github.com/librorum/vdfs/internal/wire"
)

// Config tunes retry and liveness behavior of a Transport.
type Config struct {
	MessageTimeout   time.Duration
	HeartbeatInterval time.Duration
	MaxRetries       int
}

// DefaultConfig matches the original shared-memory transport's
// defaults: a 30s send timeout, a 5s heartbeat cadence, and 3 retries
// before giving up on a full ring.
func DefaultConfig() Config {
	return Config{
		MessageTimeout:    30 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		MaxRetries:        3,
	}
}

// Transport sends and receives wire frames through a named shared
// memory region's ring buffer, retrying with backoff when the ring is
// momentarily full and polling while it is empty.
type Transport struct {
	region *Region
	ring   *RingBuffer
	cfg    Config
}

// NewTransport creates (or attaches to, if owner is false) a named
// region sized to size bytes and wraps it in a Transport.
func NewTransport(name string, size int, owner bool, cfg Config) (*Transport, error) {
	var region *Region
	var err error
	if owner {
		region, err = Create(name, size)
	} else {
		region, err = Open(name)
	}
	if err != nil {
		return nil, err
	}
	return &Transport{region: region, ring: NewRingBuffer(region, owner), cfg: cfg}, nil
}

// Send writes a frame to the region, retrying with linear backoff
// (100ms * attempt) up to MaxRetries times if the ring is full, and
// failing once ctx or the configured MessageTimeout expires.
func (t *Transport) Send(ctx context.Context, h wire.Header, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.MessageTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		err := t.ring.TryWrite(h, payload)
		if err == nil {
			return nil
		}
		if err != ErrFull {
			return err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return fmt.Errorf("shmem: send timed out: %w", ctx.Err())
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("shmem: send failed after %d retries: %w", t.cfg.MaxRetries, lastErr)
}

// Receive polls for the next frame every 20ms while the ring is empty,
// until a frame arrives or ctx/MessageTimeout expires.
func (t *Transport) Receive(ctx context.Context) (wire.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.MessageTimeout)
	defer cancel()

	attempt := 0
	for {
		f, err := t.ring.TryRead()
		if err == nil {
			return f, nil
		}
		if err != ErrEmpty {
			return wire.Frame{}, err
		}
		attempt++
		select {
		case <-ctx.Done():
			return wire.Frame{}, fmt.Errorf("shmem: receive timed out: %w", ctx.Err())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// Stats reports the ring buffer's current occupancy, used by health
// checks and metrics.
type Stats struct {
	Capacity  uint64
	Available uint64
	Free      uint64
}

// Stats returns the current ring occupancy.
func (t *Transport) Stats() Stats {
	return Stats{Capacity: t.ring.Capacity(), Available: t.ring.Available(), Free: t.ring.Free()}
}

// Name returns the underlying region's name.
func (t *Transport) Name() string { return t.region.Name() }

// Close detaches from the region without deleting its backing file.
func (t *Transport) Close() error { return t.region.Close() }

// Destroy detaches and removes the backing file; only the owning side
// should call this once all peers are done.
func (t *Transport) Destroy() error { return t.region.Remove() }
