// Package cache implements the hybrid memory+disk cache layer: an
// LRU/LFU/size-weighted eviction score, write-back with dirty
// tracking, per-entry TTL, and distributed invalidation broadcast
// through the transport event bus. Entries are addressed by one of
// four key kinds — FileMetadata(path), FileData(FileId),
// ChunkData(ChunkId), DirectoryListing(path) — so the same policy
// front serves whole small files, individual chunks, and the
// metadata/listing lookups the node layer makes on every call.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/librorum/vdfs/internal/chunkstore"
	"golang.org/x/sync/errgroup"
)

// KeyKind discriminates the four cache key variants §4.7 names.
type KeyKind int

const (
	KindChunkData KeyKind = iota
	KindFileData
	KindFileMetadata
	KindDirectoryListing
)

// Key addresses one cache entry. Only the field matching Kind is
// meaningful; Key is comparable so it can key the entries map
// directly.
type Key struct {
	Kind  KeyKind
	Chunk chunkstore.ChunkID
	Path  string
}

// ChunkData addresses a single content-addressed chunk's bytes.
func ChunkData(id chunkstore.ChunkID) Key { return Key{Kind: KindChunkData, Chunk: id} }

// FileData addresses a whole file's assembled bytes, for files at or
// under the configured file_threshold.
func FileData(fileID string) Key { return Key{Kind: KindFileData, Path: fileID} }

// FileMetadata addresses a file's FileInfo, keyed by virtual path.
func FileMetadata(path string) Key { return Key{Kind: KindFileMetadata, Path: path} }

// DirectoryListing addresses a directory's immediate children, keyed
// by virtual path.
func DirectoryListing(path string) Key { return Key{Kind: KindDirectoryListing, Path: path} }

// flushConcurrency bounds how many dirty entries are written back to
// disk at once, so a large flush batch doesn't open an unbounded
// number of concurrent file writes.
const flushConcurrency = 8

// Weights controls the eviction score formula:
//
//	score = wLRU*ageSeconds + wLFU*(1/(accessCount+1)) + wSize*sizeMiB - dirtyPenalty
//
// Higher-scoring entries are evicted first among eviction candidates
// once the cache exceeds its memory budget; a high dirtyPenalty keeps
// unflushed writes resident until they've been written back.
type Weights struct {
	LRU  float64
	LFU  float64
	Size float64
}

// DefaultWeights matches the defaults carried over from the original
// cache design: recency weighted slightly above frequency and size.
func DefaultWeights() Weights { return Weights{LRU: 0.4, LFU: 0.3, Size: 0.3} }

// dirtyPenalty is subtracted from a dirty entry's score, effectively
// pinning it against eviction until written back.
const dirtyPenalty = 100.0

// writeBackPriority is the priority assigned to a flush task for a
// newly dirtied entry.
const writeBackPriority = 5

// entry is one cached value, tracked for eviction scoring.
type entry struct {
	key         Key
	data        []byte
	accessCount int64
	lastAccess  time.Time
	expiresAt   time.Time // zero means no TTL
	dirty       bool
	dirtySince  time.Time
}

func (e *entry) score(w Weights) float64 {
	age := time.Since(e.lastAccess).Seconds()
	sizeMiB := float64(len(e.data)) / (1 << 20)
	s := w.LRU*age + w.LFU*(1/(float64(e.accessCount)+1)) + w.Size*sizeMiB
	if e.dirty {
		s -= dirtyPenalty
	}
	return s
}

func (e *entry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// WriteBackFunc persists a dirty entry to the backing content store
// (or to a remote peer, for replicated writes). Only ChunkData keys
// correspond to durable content-addressed storage; callers ignore
// other key kinds since FileMetadata/FileData/DirectoryListing
// entries are read-acceleration caches over data already made durable
// some other way.
type WriteBackFunc func(key Key, data []byte) error

// InvalidateFunc broadcasts a cache invalidation for key to other
// nodes; typically wired to the transport event bus's
// CacheInvalidated event.
type InvalidateFunc func(key Key)

// Cache is the in-memory tier of the hybrid cache. It never stores to
// disk itself — Disk, if set, is consulted on Get-miss and
// used as the eviction target for clean entries.
type Cache struct {
	mu sync.Mutex

	entries map[Key]*entry
	weights Weights
	maxMem  int64
	curMem  int64
	ttl     time.Duration

	disk       *chunkstore.Store
	writeBack  WriteBackFunc
	invalidate InvalidateFunc

	pendingFlush map[Key]struct{}
}

// Config configures a Cache.
type Config struct {
	MaxMemoryBytes int64
	TTL            time.Duration
	Weights        Weights
	Disk           *chunkstore.Store
	WriteBack      WriteBackFunc
	Invalidate     InvalidateFunc
}

// New builds a Cache from cfg, filling in defaults for zero-valued
// fields.
func New(cfg Config) *Cache {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	return &Cache{
		entries:      make(map[Key]*entry),
		weights:      cfg.Weights,
		maxMem:       cfg.MaxMemoryBytes,
		ttl:          cfg.TTL,
		disk:         cfg.Disk,
		writeBack:    cfg.WriteBack,
		invalidate:   cfg.Invalidate,
		pendingFlush: make(map[Key]struct{}),
	}
}

// Get returns a cached value's bytes, checking memory first and, for
// ChunkData keys, falling back to the disk tier (promoting the chunk
// into memory on disk-hit). Other key kinds have no disk fallback —
// a miss simply means the caller must rebuild the value from its
// owning subsystem (metadata manager, chunk assembly, ...).
func (c *Cache) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !e.expired() {
		e.accessCount++
		e.lastAccess = time.Now()
		data := e.data
		c.mu.Unlock()
		return data, true
	}
	if e, ok := c.entries[key]; ok && e.expired() {
		c.removeLocked(key, e)
	}
	c.mu.Unlock()

	if c.disk == nil || key.Kind != KindChunkData {
		return nil, false
	}
	data, err := c.disk.Get(key.Chunk)
	if err != nil {
		return nil, false
	}
	c.Put(key, data, false)
	return data, true
}

// Put inserts or updates a cached value. dirty marks it as needing
// write-back; clean entries (dirty=false) are assumed already durable
// (e.g. just loaded from disk, or a read-accelerating cache of data
// durable elsewhere).
func (c *Cache) Put(key Key, data []byte, dirty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.curMem -= int64(len(old.data))
	}

	e := &entry{key: key, data: data, lastAccess: time.Now(), dirty: dirty}
	if dirty {
		e.dirtySince = time.Now()
	}
	if c.ttl > 0 {
		e.expiresAt = time.Now().Add(c.ttl)
	}
	c.entries[key] = e
	c.curMem += int64(len(data))

	if dirty {
		c.pendingFlush[key] = struct{}{}
	}

	c.evictIfNeededLocked()
}

// MarkDirty flags an already-cached entry as needing write-back,
// e.g. after a partial in-place update.
func (c *Cache) MarkDirty(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.dirty = true
		e.dirtySince = time.Now()
		c.pendingFlush[key] = struct{}{}
	}
}

// Invalidate drops a locally cached entry (e.g. in response to a
// remote peer's CacheInvalidated event) without attempting a flush.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
}

func (c *Cache) removeLocked(key Key, e *entry) {
	c.curMem -= int64(len(e.data))
	delete(c.entries, key)
	delete(c.pendingFlush, key)
}

// evictIfNeededLocked evicts the highest-scoring clean entries until
// curMem is back under the memory budget. Dirty entries are never
// chosen, but remain eligible once flushed.
func (c *Cache) evictIfNeededLocked() {
	if c.maxMem <= 0 || c.curMem <= c.maxMem {
		return
	}
	for c.curMem > c.maxMem {
		var victimKey Key
		var victim *entry
		var bestScore float64
		found := false
		for key, e := range c.entries {
			if e.dirty {
				continue
			}
			s := e.score(c.weights)
			if !found || s > bestScore {
				bestScore, victimKey, victim, found = s, key, e, true
			}
		}
		if !found {
			// Nothing left to evict that isn't dirty; stop rather than
			// drop unflushed data.
			return
		}
		if c.disk != nil && victimKey.Kind == KindChunkData {
			_ = c.disk.Put(victimKey.Chunk, victim.data)
		}
		c.removeLocked(victimKey, victim)
	}
}

// FlushDirty writes back every currently dirty entry via WriteBack,
// clearing the dirty flag on success. It returns the number of
// entries flushed and the first error encountered, continuing past
// individual failures so one bad write doesn't block the rest.
func (c *Cache) FlushDirty() (int, error) {
	c.mu.Lock()
	keys := make([]Key, 0, len(c.pendingFlush))
	for key := range c.pendingFlush {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	var flushed int32
	var g errgroup.Group
	g.SetLimit(flushConcurrency)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			c.mu.Lock()
			e, ok := c.entries[key]
			data := []byte(nil)
			if ok {
				data = e.data
			}
			c.mu.Unlock()
			if !ok {
				return nil
			}

			if c.writeBack != nil {
				if err := c.writeBack(key, data); err != nil {
					return err
				}
			}

			c.mu.Lock()
			if e, ok := c.entries[key]; ok {
				e.dirty = false
			}
			delete(c.pendingFlush, key)
			c.mu.Unlock()

			if c.invalidate != nil {
				c.invalidate(key)
			}
			atomic.AddInt32(&flushed, 1)
			return nil
		})
	}

	err := g.Wait()
	return int(flushed), err
}

// Stats summarizes current cache occupancy.
type Stats struct {
	Entries      int
	MemoryUsed   int64
	MemoryBudget int64
	DirtyCount   int
}

// Stats reports the cache's current memory usage and dirty-entry count.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:      len(c.entries),
		MemoryUsed:   c.curMem,
		MemoryBudget: c.maxMem,
		DirtyCount:   len(c.pendingFlush),
	}
}
