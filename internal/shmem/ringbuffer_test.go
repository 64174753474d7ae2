package shmem

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/librorum/vdfs/internal/wire"
)

func TestRingBufferWriteReadRoundTrip(t *testing.T) {
	name := fmt.Sprintf("test-%d", time.Now().UnixNano())
	region, err := Create(name, 4096)
	if err != nil {
		t.Fatalf("create region: %v", err)
	}
	defer region.Remove()

	rb := NewRingBuffer(region, true)
	h := wire.Header{Type: wire.MessageData, Sequence: 1}
	payload := []byte("hello shared memory")

	if err := rb.TryWrite(h, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := rb.TryRead()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Fatalf("payload mismatch: got %q", f.Payload)
	}
}

// TestRingBufferControlBlockLayout pins the 64-byte cache-line-aligned
// control block: magic/version/capacity/write_pos/read_pos/available/
// server_status/client_status, initialized by the owning side and
// visible to a peer that attaches afterward.
func TestRingBufferControlBlockLayout(t *testing.T) {
	name := fmt.Sprintf("test-control-%d", time.Now().UnixNano())
	region, err := Create(name, controlBlockSize+256)
	if err != nil {
		t.Fatalf("create region: %v", err)
	}
	defer region.Remove()

	rb := NewRingBuffer(region, true)
	if !rb.Initialized() {
		t.Fatalf("expected control block to report initialized")
	}
	if rb.Capacity() != 256 {
		t.Fatalf("expected capacity 256, got %d", rb.Capacity())
	}
	if rb.Available() != 0 {
		t.Fatalf("expected available 0, got %d", rb.Available())
	}
	if rb.ServerStatus() != StatusOnline {
		t.Fatalf("expected server_status Online, got %d", rb.ServerStatus())
	}
	if rb.ClientStatus() != StatusUnknown {
		t.Fatalf("expected client_status Unknown, got %d", rb.ClientStatus())
	}

	rb.SetClientStatus(StatusOnline)
	peer := NewRingBuffer(region, false)
	if !peer.Initialized() {
		t.Fatalf("peer attach should observe the owner's control block")
	}
	if peer.ClientStatus() != StatusOnline {
		t.Fatalf("peer should observe the status update through shared memory")
	}
}

// TestRingBufferWrapsAtExactBoundary reproduces the literal wrap
// scenario: a 256-byte data area, four 64-byte messages (32-byte
// header + 32-byte payload each), where the fourth message starts at
// offset 192 and ends exactly at offset 256 — the wrap point.
func TestRingBufferWrapsAtExactBoundary(t *testing.T) {
	name := fmt.Sprintf("test-wrap-%d", time.Now().UnixNano())
	region, err := Create(name, controlBlockSize+256)
	if err != nil {
		t.Fatalf("create region: %v", err)
	}
	defer region.Remove()

	rb := NewRingBuffer(region, true)
	payload := bytes.Repeat([]byte{0x42}, 32) // 32 + HeaderSize(32) = 64 bytes/entry

	for i := 0; i < 4; i++ {
		h := wire.Header{Type: wire.MessageData, Sequence: uint64(i)}
		if err := rb.TryWrite(h, payload); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if rb.Available() != 256 {
		t.Fatalf("expected ring full at 256 bytes, got %d", rb.Available())
	}
	if err := rb.TryWrite(wire.Header{Type: wire.MessageData}, payload); err != ErrFull {
		t.Fatalf("expected ErrFull once the ring is exactly full, got %v", err)
	}

	for i := 0; i < 4; i++ {
		f, err := rb.TryRead()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if f.Header.Sequence != uint64(i) {
			t.Fatalf("sequence mismatch at %d: got %d", i, f.Header.Sequence)
		}
		if !bytes.Equal(f.Payload, payload) {
			t.Fatalf("payload mismatch at %d", i)
		}
	}
	if rb.Available() != 0 {
		t.Fatalf("expected ring empty after draining, got %d available", rb.Available())
	}

	// The write position has wrapped back to 0; a fifth write should
	// land at the front of the data area without error.
	if err := rb.TryWrite(wire.Header{Type: wire.MessageData, Sequence: 4}, payload); err != nil {
		t.Fatalf("write after wrap: %v", err)
	}
	f, err := rb.TryRead()
	if err != nil {
		t.Fatalf("read after wrap: %v", err)
	}
	if f.Header.Sequence != 4 {
		t.Fatalf("expected sequence 4 after wrap, got %d", f.Header.Sequence)
	}
}

func TestRingBufferFullReturnsErrFull(t *testing.T) {
	name := fmt.Sprintf("test-full-%d", time.Now().UnixNano())
	region, err := Create(name, controlBlockSize+wire.HeaderSize+8)
	if err != nil {
		t.Fatalf("create region: %v", err)
	}
	defer region.Remove()

	rb := NewRingBuffer(region, true)
	h := wire.Header{Type: wire.MessageData}
	big := bytes.Repeat([]byte{0x01}, 1024)
	if err := rb.TryWrite(h, big); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestTransportSendReceive(t *testing.T) {
	name := fmt.Sprintf("test-transport-%d", time.Now().UnixNano())
	tx, err := NewTransport(name, 8192, true, DefaultConfig())
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	defer tx.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	h := wire.Header{Type: wire.MessageHeartbeat}
	if err := tx.Send(ctx, h, []byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}
	f, err := tx.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(f.Payload) != "ping" {
		t.Fatalf("unexpected payload: %q", f.Payload)
	}
}
