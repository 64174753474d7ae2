package chunkstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

// ErrChunkNotFound is returned by Get when no chunk with the given ID
// is present.
var ErrChunkNotFound = errors.New("chunkstore: chunk not found")

var bucketPresence = []byte("chunks")

// Store is a content-addressed chunk store: file bytes on disk,
// sharded by the first two hex characters of the chunk ID to avoid an
// unreasonably large single directory, with a BoltDB side index
// tracking last-access time for orphan garbage collection.
type Store struct {
	root string
	db   *bolt.DB
}

// Open creates (or reopens) a Store rooted at dir, with its presence
// index at dir/index.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chunkstore: create store dir: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dir, "index.db"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("chunkstore: open index: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketPresence)
		return e
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{root: dir, db: db}, nil
}

func (s *Store) pathFor(id ChunkID) string {
	str := string(id)
	shard := str
	if len(str) >= 2 {
		shard = str[:2]
	}
	return filepath.Join(s.root, shard, str)
}

// Put writes chunk data under its content address, recording an
// access timestamp for GC purposes. Writing the same ID twice is a
// cheap no-op check, not a re-write, since content-addressed data
// never changes for a given ID.
func (s *Store) Put(id ChunkID, data []byte) error {
	path := s.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("chunkstore: create shard dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return s.touch(id)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("chunkstore: write chunk: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("chunkstore: finalize chunk: %w", err)
	}
	return s.touch(id)
}

// Get reads chunk data by content address.
func (s *Store) Get(id ChunkID) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chunkstore: read chunk: %w", err)
	}
	_ = s.touch(id)
	return data, nil
}

// Exists reports whether a chunk with the given ID is present.
func (s *Store) Exists(id ChunkID) bool {
	_, err := os.Stat(s.pathFor(id))
	return err == nil
}

// Delete removes a chunk's data and its presence record.
func (s *Store) Delete(id ChunkID) error {
	if err := os.Remove(s.pathFor(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("chunkstore: delete chunk: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPresence).Delete([]byte(id))
	})
}

func (s *Store) touch(id ChunkID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(time.Now().Unix()))
		return tx.Bucket(bucketPresence).Put([]byte(id), buf)
	})
}

// GC removes chunks whose last access predates maxAge, returning the
// number of chunks removed. Run periodically (see config's gc
// cadence) rather than on every write.
func (s *Store) GC(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	var stale []ChunkID

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPresence).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) >= 8 && int64(binary.BigEndian.Uint64(v)) < cutoff {
				stale = append(stale, ChunkID(append([]byte{}, k...)))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range stale {
		if err := s.Delete(id); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

// DiskUsage sums the byte size of every stored chunk, walking the
// sharded directory tree. Used for the disk-space-used metric and
// gauge; not cheap, so callers should poll it rather than call it per
// request.
func (s *Store) DiskUsage() (int64, error) {
	var total int64
	err := filepath.Walk(s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Base(p) == "index.db" {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("chunkstore: disk usage: %w", err)
	}
	return total, nil
}

// Close closes the presence index.
func (s *Store) Close() error { return s.db.Close() }
