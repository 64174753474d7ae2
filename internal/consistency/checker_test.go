package consistency

import (
	"testing"
	"time"

	"github.com/librorum/vdfs/internal/chunkstore"
	"github.com/librorum/vdfs/internal/metadata"
)

func TestCheckFileDetectsSizeMismatch(t *testing.T) {
	meta := metadata.NewManager()
	id := metadata.NewFileID()
	if err := meta.SetFileInfo(metadata.FileInfo{ID: id, Path: "/a.txt", Size: 999, ModifiedAt: time.Now()}); err != nil {
		t.Fatalf("set file info: %v", err)
	}
	chunkID := chunkstore.ComputeChunkID([]byte("data"))
	meta.SetChunkMapping(id, []chunkstore.ChunkDescriptor{{Index: 0, ID: chunkID, Length: 4}})

	checker := New(meta, nil, nil)
	issues := checker.CheckFile("/a.txt", nil)

	found := false
	for _, iss := range issues {
		if iss.Type == FileSizeMismatch {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected FileSizeMismatch, got %+v", issues)
	}
}

func TestRepairFileSizeFixesMismatch(t *testing.T) {
	meta := metadata.NewManager()
	id := metadata.NewFileID()
	meta.SetFileInfo(metadata.FileInfo{ID: id, Path: "/a.txt", Size: 999, ModifiedAt: time.Now()})
	chunkID := chunkstore.ComputeChunkID([]byte("data"))
	meta.SetChunkMapping(id, []chunkstore.ChunkDescriptor{{Index: 0, ID: chunkID, Length: 4}})

	checker := New(meta, nil, nil)
	issues := checker.CheckFile("/a.txt", nil)
	for _, iss := range issues {
		if iss.Type == FileSizeMismatch {
			fixed, err := checker.Repair(iss)
			if err != nil || !fixed {
				t.Fatalf("repair failed: fixed=%v err=%v", fixed, err)
			}
		}
	}

	info, err := meta.GetFileInfo("/a.txt")
	if err != nil {
		t.Fatalf("get file info: %v", err)
	}
	if info.Size != 4 {
		t.Fatalf("expected repaired size 4, got %d", info.Size)
	}
}

func TestSweepOrphansFindsUnreferencedChunks(t *testing.T) {
	meta := metadata.NewManager()
	dir := t.TempDir()
	store, err := chunkstore.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	orphanID := chunkstore.ComputeChunkID([]byte("orphan"))
	if err := store.Put(orphanID, []byte("orphan")); err != nil {
		t.Fatalf("put: %v", err)
	}

	checker := New(meta, store, nil)
	issues, err := checker.SweepOrphans([]chunkstore.ChunkID{orphanID}, meta, true)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(issues) != 1 || issues[0].Type != OrphanedChunkMetadata {
		t.Fatalf("expected one orphan issue, got %+v", issues)
	}
	if store.Exists(orphanID) {
		t.Fatalf("expected orphan chunk to be removed")
	}
}
