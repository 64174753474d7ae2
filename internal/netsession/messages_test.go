package netsession

import (
	"testing"

	"github.com/librorum/vdfs/internal/wire"
)

func TestSetupRoundTrip(t *testing.T) {
	want := SetupMessage{
		TermOffset: 0, SessionID: 7, StreamID: 2,
		InitialTermID: 1, ActiveTermID: 1, TermLength: 64 << 10, MTU: 1408, TTL: 64,
	}
	buf := encodeSetup(want)
	if len(buf) != setupPayloadSize {
		t.Fatalf("expected %d-byte payload, got %d", setupPayloadSize, len(buf))
	}
	got, err := decodeSetup(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	want := StatusMessage{TermID: 1, Window: 4096, Reserved: 0}
	buf := encodeStatus(want)
	if len(buf) != statusPayloadSize {
		t.Fatalf("expected %d-byte payload, got %d", statusPayloadSize, len(buf))
	}
	got, err := decodeStatus(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestNakAndErrorRoundTrip(t *testing.T) {
	sessionID, ranges, err := decodeSessionString(encodeSessionString(7, "3-7,10,15-20"))
	if err != nil {
		t.Fatalf("decode nak: %v", err)
	}
	if sessionID != 7 || ranges != "3-7,10,15-20" {
		t.Fatalf("nak round trip mismatch: %d %q", sessionID, ranges)
	}

	sessionID, reason, err := decodeSessionString(encodeSessionString(9, "checksum mismatch"))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if sessionID != 9 || reason != "checksum mismatch" {
		t.Fatalf("error round trip mismatch: %d %q", sessionID, reason)
	}
}

func TestFileHeaderRoundTrip(t *testing.T) {
	want := FileHeaderMessage{
		FileID: "file-123", FileName: "report.pdf", FileSize: 4096,
		ChunkSize: 1024, ChunkCount: 4, MerkleRoot: "abc123",
	}
	got, err := decodeFileHeader(encodeFileHeader(want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestDecodeRejectsWrongFrameType(t *testing.T) {
	f := wire.Frame{Header: wire.Header{Type: wire.MessageData}}
	if _, err := DecodeSetup(f); err == nil {
		t.Fatalf("expected error decoding DATA frame as SETUP")
	}
}
