package chunkstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStorePutGetExistsDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	data := []byte("hello chunk")
	id := ComputeChunkID(data)

	if s.Exists(id) {
		t.Fatalf("chunk should not exist yet")
	}
	if err := s.Put(id, data); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !s.Exists(id) {
		t.Fatalf("chunk should exist after put")
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("data mismatch: %q", got)
	}

	if err := s.Delete(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.Exists(id) {
		t.Fatalf("chunk should not exist after delete")
	}
	if _, err := s.Get(id); err != ErrChunkNotFound {
		t.Fatalf("expected ErrChunkNotFound, got %v", err)
	}
}

func TestStoreGC(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	data := []byte("stale chunk")
	id := ComputeChunkID(data)
	if err := s.Put(id, data); err != nil {
		t.Fatalf("put: %v", err)
	}

	removed, err := s.GC(-time.Second) // everything is "older" than a negative retention window
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}

func TestSplitFileAndManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := make([]byte, 20)
	for i := range content {
		content[i] = byte(i)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	m, chunks, err := BuildManifest(path, Options{ChunkSize: 8}, nil)
	if err != nil {
		t.Fatalf("build manifest: %v", err)
	}
	if m.ChunkCount != 3 {
		t.Fatalf("expected 3 chunks, got %d", m.ChunkCount)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunk buffers, got %d", len(chunks))
	}
	if m.MerkleRoot == "" {
		t.Fatalf("expected non-empty merkle root")
	}
}

func TestBuildManifestEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	m, chunks, err := BuildManifest(path, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("build manifest: %v", err)
	}
	if m.ChunkCount != 1 || len(chunks) != 1 {
		t.Fatalf("expected single empty chunk, got count=%d bufs=%d", m.ChunkCount, len(chunks))
	}
}
