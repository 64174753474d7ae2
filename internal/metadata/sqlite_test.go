package metadata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/librorum/vdfs/internal/chunkstore"
)

func TestSQLiteStoreSaveLoadDeleteFile(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenSQLiteStore(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer store.Close()

	info := FileInfo{
		ID: NewFileID(), Path: "/docs/report.pdf", Size: 16,
		ModifiedAt: time.Now().Truncate(time.Second), MerkleRoot: "abc123", ChunkSize: 8,
	}
	chunks := []chunkstore.ChunkDescriptor{
		{Index: 0, ID: "aa", Length: 8},
		{Index: 1, ID: "bb", Length: 8},
	}

	if err := store.SaveFile(info, chunks); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	loaded, loadedChunks, err := store.LoadFile(info.Path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.ID != info.ID || loaded.Size != info.Size || loaded.MerkleRoot != info.MerkleRoot {
		t.Fatalf("loaded file mismatch: %+v", loaded)
	}
	if len(loadedChunks) != 2 || loadedChunks[0].ID != "aa" || loadedChunks[1].ID != "bb" {
		t.Fatalf("loaded chunks mismatch: %+v", loadedChunks)
	}

	if err := store.DeleteFile(info.Path); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if _, _, err := store.LoadFile(info.Path); err != ErrFileNotFound {
		t.Fatalf("expected ErrFileNotFound after delete, got %v", err)
	}
}

func TestSQLiteStoreLoadAll(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenSQLiteStore(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer store.Close()

	if err := store.SaveDirectory("/docs"); err != nil {
		t.Fatalf("SaveDirectory: %v", err)
	}
	info := FileInfo{ID: NewFileID(), Path: "/docs/a.txt", Size: 4, ModifiedAt: time.Now(), MerkleRoot: "r", ChunkSize: 4}
	if err := store.SaveFile(info, []chunkstore.ChunkDescriptor{{Index: 0, ID: "cc", Length: 4}}); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	files, chunksByFile, dirs, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(files) != 1 || files[0].Path != "/docs/a.txt" {
		t.Fatalf("unexpected files: %+v", files)
	}
	if len(chunksByFile[info.ID]) != 1 {
		t.Fatalf("unexpected chunk mapping: %+v", chunksByFile)
	}
	if len(dirs) != 1 || dirs[0] != "/docs" {
		t.Fatalf("unexpected directories: %+v", dirs)
	}
}
